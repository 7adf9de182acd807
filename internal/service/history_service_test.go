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

func TestHistoryForTicketOrderedOldestFirst(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)
	progress := stateByName(t, detail, "In Progress")
	done := stateByName(t, detail, "Done")

	ticket, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "full journey",
	})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.ticketSvc.UpdateTicketState(context.Background(), ticket.ID, progress.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.ticketSvc.UpdateTicketState(context.Background(), ticket.ID, done.ID)
	require.NoError(t, err)

	records, err := f.historySvc.HistoryForTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Nil(t, records[0].FromStateName)
	assert.Equal(t, "Open", records[0].ToStateName)
	assert.Equal(t, "Created", records[0].EventName)

	require.NotNil(t, records[1].FromStateName)
	assert.Equal(t, "Open", *records[1].FromStateName)
	assert.Equal(t, "In Progress", records[1].ToStateName)
	assert.Equal(t, "Start", records[1].EventName)

	require.NotNil(t, records[2].FromStateName)
	assert.Equal(t, "In Progress", *records[2].FromStateName)
	assert.Equal(t, "Done", records[2].ToStateName)
	assert.Equal(t, domain.TransitionCompleted, records[2].Status)

	assert.True(t, records[0].TransitionedAt.Before(records[1].TransitionedAt))
	assert.True(t, records[1].TransitionedAt.Before(records[2].TransitionedAt))
}

func TestHistoryForUnknownTicketIsEmpty(t *testing.T) {
	f := newFixture()

	records, err := f.historySvc.HistoryForTicket(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHistoryFallsBackToRawIDForDeletedState(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)
	progress := stateByName(t, detail, "In Progress")

	ticket, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "orphaned row",
	})
	require.NoError(t, err)
	_, err = f.ticketSvc.UpdateTicketState(context.Background(), ticket.ID, progress.ID)
	require.NoError(t, err)

	require.NoError(t, f.states.Delete(context.Background(), progress.ID))

	records, err := f.historySvc.HistoryForTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, progress.ID, records[1].ToStateName)
}

func TestRecordAppendsLedgerRow(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)
	open := stateByName(t, detail, "Open")
	progress := stateByName(t, detail, "In Progress")

	ticket, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "external transition",
	})
	require.NoError(t, err)

	entry, err := f.historySvc.Record(context.Background(), ticket.ID, open.ID, progress.ID)
	require.NoError(t, err)
	assert.Equal(t, "Start", entry.EventName)
	assert.Equal(t, domain.TransitionInProgress, entry.Status)
	require.NotNil(t, entry.SLADueAt)
	assert.Equal(t, f.clock.Now().Add(10*time.Hour), *entry.SLADueAt)
}

func TestRecordUnknownTicket(t *testing.T) {
	f := newFixture()

	_, err := f.historySvc.Record(context.Background(), "missing", "a", "b")
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
}

func TestRecordUndeclaredTransition(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)
	progress := stateByName(t, detail, "In Progress")
	open := stateByName(t, detail, "Open")

	ticket, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "backwards",
	})
	require.NoError(t, err)

	// In Progress -> Open is not a declared edge.
	_, err = f.historySvc.Record(context.Background(), ticket.ID, progress.ID, open.ID)
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
}
