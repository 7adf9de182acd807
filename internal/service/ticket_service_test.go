package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/events"
	"github.com/spec-kit/workflow-service/internal/repository"
	"github.com/spec-kit/workflow-service/pkg/util"
)

func TestCreateTicketOpensInInitialState(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)
	open := stateByName(t, detail, "Open")

	ticket, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID:  detail.Workflow.ID,
		Title:       "laptop won't boot",
		Description: "grey screen on start",
	})
	require.NoError(t, err)

	assert.Equal(t, open.ID, ticket.CurrentStateID)
	assert.True(t, ticket.IsNew)
	assert.False(t, ticket.IsCompleted)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Contains(t, ticket.ExternalKey, "TCK-")

	entries, err := f.history.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].FromStateID)
	assert.Equal(t, open.ID, entries[0].ToStateID)
	assert.Equal(t, "Created", entries[0].EventName)
	assert.Equal(t, domain.TransitionInProgress, entries[0].Status)
	// earliest declared SLA out of Open is the 5h fast path
	require.NotNil(t, entries[0].SLADueAt)
	assert.Equal(t, f.clock.Now().Add(5*time.Hour), *entries[0].SLADueAt)
}

func TestCreateTicketUnknownWorkflow(t *testing.T) {
	f := newFixture()

	_, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: "missing",
		Title:      "whatever",
	})
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
}

func TestCreateTicketWithoutInitialState(t *testing.T) {
	f := newFixture()
	detail, err := f.workflowSvc.SaveDetailed(context.Background(), WorkflowDetailInput{
		Workflow: WorkflowInput{Name: "Headless"},
		States: []StateInput{
			{ID: "a", Name: "Middle"},
		},
	})
	require.NoError(t, err)

	_, err = f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "no way in",
	})
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
}

func TestCreateTicketDeadEndInitialStateWritesNothing(t *testing.T) {
	f := newFixture()
	detail, err := f.workflowSvc.SaveDetailed(context.Background(), WorkflowDetailInput{
		Workflow: WorkflowInput{Name: "Dead End"},
		States: []StateInput{
			{ID: "a", Name: "Open", IsInitial: true},
		},
	})
	require.NoError(t, err)

	_, err = f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "stuck before it starts",
	})
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "CONFIGURATION_ERROR", domainErr.Code)

	// no ticket and no ledger row survive the failed create
	count, err := f.tickets.CountActiveByWorkflow(context.Background(), detail.Workflow.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	tickets, err := f.tickets.ListWithFilter(context.Background(), repository.TicketFilter{WorkflowID: &detail.Workflow.ID})
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestConcurrentStateUpdatesKeepLedgerLinear(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)
	progress := stateByName(t, detail, "In Progress")
	done := stateByName(t, detail, "Done")

	ticket, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "contended ticket",
	})
	require.NoError(t, err)

	edges := make(map[[2]string]bool, len(detail.Transitions))
	for _, transition := range detail.Transitions {
		edges[[2]string{transition.FromStateID, transition.ToStateID}] = true
	}

	targets := []string{progress.ID, done.ID, progress.ID, done.ID, progress.ID, done.ID, progress.ID, done.ID}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			_, errs[i] = f.ticketSvc.UpdateTicketState(context.Background(), ticket.ID, target)
		}(i, target)
	}
	wg.Wait()

	// losers of the race may only fail with an undeclared-edge rejection
	for _, err := range errs {
		if err == nil {
			continue
		}
		var domainErr *util.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "INVALID_TRANSITION", domainErr.Code)
	}

	// the ledger must read as one unbroken chain of declared edges
	entries, err := f.history.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Nil(t, entries[0].FromStateID)
	for i := 1; i < len(entries); i++ {
		require.NotNil(t, entries[i].FromStateID)
		assert.Equal(t, entries[i-1].ToStateID, *entries[i].FromStateID)
		assert.True(t, edges[[2]string{*entries[i].FromStateID, entries[i].ToStateID}],
			"ledger row %d does not follow a declared edge", i)
	}

	stored, err := f.ticketSvc.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, entries[len(entries)-1].ToStateID, stored.CurrentStateID)
}

func TestUpdateTicketStateFollowsEdge(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)
	progress := stateByName(t, detail, "In Progress")

	ticket, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "vpn drops hourly",
	})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	moved, err := f.ticketSvc.UpdateTicketState(context.Background(), ticket.ID, progress.ID)
	require.NoError(t, err)
	assert.Equal(t, progress.ID, moved.CurrentStateID)
	assert.False(t, moved.IsNew)
	assert.False(t, moved.IsCompleted)

	entries, err := f.history.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	latest := entries[1]
	require.NotNil(t, latest.FromStateID)
	assert.Equal(t, ticket.CurrentStateID, *latest.FromStateID)
	assert.Equal(t, progress.ID, latest.ToStateID)
	assert.Equal(t, "Start", latest.EventName)
	assert.Equal(t, domain.TransitionInProgress, latest.Status)
	// the Start edge carries a 10h SLA
	require.NotNil(t, latest.SLADueAt)
	assert.Equal(t, f.clock.Now().Add(10*time.Hour), *latest.SLADueAt)
}

func TestUpdateTicketStateToFinalCompletes(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)
	done := stateByName(t, detail, "Done")

	ticket, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "reset password",
	})
	require.NoError(t, err)

	moved, err := f.ticketSvc.UpdateTicketState(context.Background(), ticket.ID, done.ID)
	require.NoError(t, err)
	assert.True(t, moved.IsCompleted)
	require.NotNil(t, moved.CompletedAt)
	assert.Equal(t, f.clock.Now(), *moved.CompletedAt)

	entries, err := f.history.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.TransitionCompleted, entries[1].Status)
}

func TestUpdateTicketStateRejectsUndeclaredEdge(t *testing.T) {
	f := newFixture()
	detail, err := f.workflowSvc.SaveDetailed(context.Background(), WorkflowDetailInput{
		Workflow: WorkflowInput{Name: "Strict"},
		States: []StateInput{
			{ID: "a", Name: "Open", IsInitial: true},
			{ID: "b", Name: "Review"},
			{ID: "c", Name: "Done", IsFinal: true},
		},
		Transitions: []TransitionInput{
			{ID: "t1", FromStateID: "a", ToStateID: "b", EventName: "Submit"},
			{ID: "t2", FromStateID: "b", ToStateID: "c", EventName: "Approve"},
		},
	})
	require.NoError(t, err)
	done := stateByName(t, detail, "Done")

	ticket, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "skip the queue",
	})
	require.NoError(t, err)

	// Open -> Done has no declared edge.
	_, err = f.ticketSvc.UpdateTicketState(context.Background(), ticket.ID, done.ID)
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "INVALID_TRANSITION", domainErr.Code)

	// state unchanged, no extra ledger row
	stored, err := f.ticketSvc.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.CurrentStateID, stored.CurrentStateID)
	entries, err := f.history.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUpdateTicketStateSameStateIsNoOp(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)

	ticket, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "noop",
	})
	require.NoError(t, err)

	moved, err := f.ticketSvc.UpdateTicketState(context.Background(), ticket.ID, ticket.CurrentStateID)
	require.NoError(t, err)
	assert.Equal(t, ticket.CurrentStateID, moved.CurrentStateID)
	assert.True(t, moved.IsNew)

	entries, err := f.history.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTransitionEventFiresAfterLedgerRow(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)
	progress := stateByName(t, detail, "In Progress")

	ticket, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "ordering check",
	})
	require.NoError(t, err)

	var rowsSeen int
	f.dispatcher.Subscribe(events.EventTicketStateTransitioned, func(ctx context.Context, event events.Event) error {
		entries, listErr := f.history.ListByTicket(ctx, ticket.ID)
		require.NoError(t, listErr)
		rowsSeen = len(entries)
		return nil
	})

	_, err = f.ticketSvc.UpdateTicketState(context.Background(), ticket.ID, progress.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rowsSeen, "handler should observe the new ledger row")
}

func TestUpdateTicketMetadataAndState(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)
	progress := stateByName(t, detail, "In Progress")

	ticket, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "old title",
	})
	require.NoError(t, err)

	newTitle := "new title"
	priority := domain.TicketPriorityUrgent
	updated, err := f.ticketSvc.UpdateTicket(context.Background(), ticket.ID, TicketPatch{
		Title:    &newTitle,
		Priority: &priority,
		StateID:  &progress.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "new title", updated.Title)
	assert.Equal(t, domain.TicketPriorityUrgent, updated.Priority)
	assert.Equal(t, progress.ID, updated.CurrentStateID)
}

func TestDeleteTicketSoftDeletes(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)

	ticket, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "remove me",
	})
	require.NoError(t, err)

	require.NoError(t, f.ticketSvc.DeleteTicket(context.Background(), ticket.ID))

	count, err := f.tickets.CountActiveByWorkflow(context.Background(), detail.Workflow.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	// ledger survives the soft delete
	entries, err := f.history.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNextStates(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)

	ticket, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "where next",
	})
	require.NoError(t, err)

	states, err := f.ticketSvc.NextStates(context.Background(), ticket.ID, false)
	require.NoError(t, err)
	names := make([]string, 0, len(states))
	for _, state := range states {
		names = append(names, state.Name)
	}
	assert.ElementsMatch(t, []string{"In Progress", "Done"}, names)
}
