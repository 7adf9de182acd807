package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/pkg/util"
)

func TestEarliestDueDatePicksMinimum(t *testing.T) {
	f := newFixture()
	detail, err := f.workflowSvc.SaveDetailed(context.Background(), WorkflowDetailInput{
		Workflow: WorkflowInput{Name: "Triage"},
		States: []StateInput{
			{ID: "a", Name: "New", IsInitial: true},
			{ID: "b", Name: "Later"},
			{ID: "c", Name: "Soon"},
			{ID: "d", Name: "Done", IsFinal: true},
		},
		Transitions: []TransitionInput{
			{ID: "t1", FromStateID: "a", ToStateID: "b", EventName: "Defer", SLA: hoursPtr(10)},
			{ID: "t2", FromStateID: "a", ToStateID: "c", EventName: "Pick", SLA: hoursPtr(5)},
			{ID: "t3", FromStateID: "a", ToStateID: "d", EventName: "Close", SLA: hoursPtr(20)},
		},
	})
	require.NoError(t, err)
	start := stateByName(t, detail, "New")

	due, err := f.sla.EarliestDueDate(context.Background(), detail.Workflow.ID, start.ID)
	require.NoError(t, err)
	require.NotNil(t, due)
	assert.Equal(t, f.clock.Now().Add(5*time.Hour), *due)
}

func TestEarliestDueDateNilWithoutSLA(t *testing.T) {
	f := newFixture()
	detail, err := f.workflowSvc.SaveDetailed(context.Background(), WorkflowDetailInput{
		Workflow: WorkflowInput{Name: "Casual"},
		States: []StateInput{
			{ID: "a", Name: "Open", IsInitial: true},
			{ID: "b", Name: "Done", IsFinal: true},
		},
		Transitions: []TransitionInput{
			{ID: "t1", FromStateID: "a", ToStateID: "b", EventName: "Close"},
		},
	})
	require.NoError(t, err)
	start := stateByName(t, detail, "Open")

	due, err := f.sla.EarliestDueDate(context.Background(), detail.Workflow.ID, start.ID)
	require.NoError(t, err)
	assert.Nil(t, due)
}

func TestEarliestDueDateNoOutboundTransitions(t *testing.T) {
	f := newFixture()
	detail, err := f.workflowSvc.SaveDetailed(context.Background(), WorkflowDetailInput{
		Workflow: WorkflowInput{Name: "Broken"},
		States: []StateInput{
			{ID: "a", Name: "Stuck", IsInitial: true},
		},
	})
	require.NoError(t, err)
	start := stateByName(t, detail, "Stuck")

	_, err = f.sla.EarliestDueDate(context.Background(), detail.Workflow.ID, start.ID)
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "CONFIGURATION_ERROR", domainErr.Code)
}

func TestDueDateForTransition(t *testing.T) {
	f := newFixture()

	withSLA := &domain.WorkflowTransition{SLA: hoursPtr(8)}
	due := f.sla.DueDateForTransition(withSLA)
	require.NotNil(t, due)
	assert.Equal(t, f.clock.Now().Add(8*time.Hour), *due)

	assert.Nil(t, f.sla.DueDateForTransition(&domain.WorkflowTransition{}))
	assert.Nil(t, f.sla.DueDateForTransition(nil))
}

func TestEscalateMarksRow(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)

	ticket, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "printer on fire",
	})
	require.NoError(t, err)

	// The opening row is due 5h out; jump past it.
	f.clock.Advance(6 * time.Hour)

	violated, err := f.sla.FindAlreadyViolated(context.Background())
	require.NoError(t, err)
	require.Len(t, violated, 1)
	assert.Equal(t, ticket.ID, violated[0].TicketID)

	updated, err := f.sla.Escalate(context.Background(), violated[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransitionEscalated, updated.Status)

	// Escalated rows leave the IN_PROGRESS scan.
	violated, err = f.sla.FindAlreadyViolated(context.Background())
	require.NoError(t, err)
	assert.Empty(t, violated)
}

func TestFindViolatingSoonWindow(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)

	_, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "slow vpn",
	})
	require.NoError(t, err)

	// Due in 5h: outside a 1h window, inside a 6h window.
	soon, err := f.sla.FindViolatingSoon(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Empty(t, soon)

	soon, err = f.sla.FindViolatingSoon(context.Background(), 6*time.Hour)
	require.NoError(t, err)
	assert.Len(t, soon, 1)
}

func TestEscalateUnknownRow(t *testing.T) {
	f := newFixture()

	_, err := f.sla.Escalate(context.Background(), "missing")
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
}
