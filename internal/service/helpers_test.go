package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/events"
	"github.com/spec-kit/workflow-service/internal/repository/memory"
)

// fixture wires the services against in-memory repositories.
type fixture struct {
	workflows   *memory.WorkflowRepo
	states      *memory.StateRepo
	transitions *memory.TransitionRepo
	tickets     *memory.TicketRepo
	history     *memory.HistoryRepo
	dispatcher  events.Dispatcher

	machine     *StateMachine
	sla         *SLAService
	workflowSvc *WorkflowService
	ticketSvc   *TicketService
	historySvc  *HistoryService

	clock *fakeClock
}

// fakeClock is a manually advanced clock shared by all services of a
// fixture, so due dates and ledger timestamps are deterministic.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newFixture() *fixture {
	f := &fixture{
		workflows:   memory.NewWorkflowRepo(),
		states:      memory.NewStateRepo(),
		transitions: memory.NewTransitionRepo(),
		tickets:     memory.NewTicketRepo(),
		history:     memory.NewHistoryRepo(),
		dispatcher:  events.NewInMemoryDispatcher(),
		clock:       &fakeClock{current: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
	}

	f.machine = NewStateMachine(f.states, f.transitions)
	f.sla = NewSLAService(f.transitions, f.history)
	f.sla.now = f.clock.Now

	f.workflowSvc = NewWorkflowService(WorkflowDependencies{
		WorkflowRepo:   f.workflows,
		StateRepo:      f.states,
		TransitionRepo: f.transitions,
		TicketRepo:     f.tickets,
		Dispatcher:     f.dispatcher,
	})

	f.ticketSvc = NewTicketService(TicketDependencies{
		TicketRepo:     f.tickets,
		WorkflowRepo:   f.workflows,
		StateRepo:      f.states,
		TransitionRepo: f.transitions,
		HistoryRepo:    f.history,
		Machine:        f.machine,
		SLA:            f.sla,
		Dispatcher:     f.dispatcher,
	})
	f.ticketSvc.now = f.clock.Now

	f.historySvc = NewHistoryService(f.tickets, f.states, f.transitions, f.history, f.sla)
	f.historySvc.now = f.clock.Now

	return f
}

func hoursPtr(h int) *time.Duration {
	d := time.Duration(h) * time.Hour
	return &d
}

// seedSupportWorkflow creates a three-state workflow:
//
//	Open --Start(10h)--> InProgress --Resolve(24h)--> Done(final)
//	Open --Resolve(5h)--> Done
//
// and returns its composed detail.
func seedSupportWorkflow(t *testing.T, f *fixture, visibility domain.WorkflowVisibility) *WorkflowDetail {
	t.Helper()
	detail, err := f.workflowSvc.SaveDetailed(context.Background(), WorkflowDetailInput{
		Workflow: WorkflowInput{
			Name:       "Support",
			Visibility: visibility,
		},
		States: []StateInput{
			{ID: "s-open", Name: "Open", IsInitial: true},
			{ID: "s-progress", Name: "In Progress"},
			{ID: "s-done", Name: "Done", IsFinal: true},
		},
		Transitions: []TransitionInput{
			{ID: "t-start", FromStateID: "s-open", ToStateID: "s-progress", EventName: "Start", SLA: hoursPtr(10)},
			{ID: "t-resolve", FromStateID: "s-progress", ToStateID: "s-done", EventName: "Resolve", SLA: hoursPtr(24)},
			{ID: "t-fast", FromStateID: "s-open", ToStateID: "s-done", EventName: "Resolve", SLA: hoursPtr(5)},
		},
	})
	require.NoError(t, err)
	return detail
}

func stateByName(t *testing.T, detail *WorkflowDetail, name string) domain.WorkflowState {
	t.Helper()
	for _, state := range detail.States {
		if state.Name == name {
			return state
		}
	}
	t.Fatalf("state %q not found", name)
	return domain.WorkflowState{}
}
