package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/events"
	"github.com/spec-kit/workflow-service/pkg/util"
)

func TestCreateWorkflowLinksOwnerTeam(t *testing.T) {
	f := newFixture()
	teamID := "team-1"

	workflow, err := f.workflowSvc.Create(context.Background(), WorkflowInput{
		Name:        "Ops",
		OwnerTeamID: &teamID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.VisibilityPrivate, workflow.Visibility)

	listed, err := f.workflowSvc.ListForTeam(context.Background(), teamID, false)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, workflow.ID, listed[0].ID)
}

func TestSaveDetailedRemapsProvisionalIDs(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)

	require.Len(t, detail.States, 3)
	require.Len(t, detail.Transitions, 3)

	ids := make(map[string]bool, len(detail.States))
	for _, state := range detail.States {
		assert.NotContains(t, []string{"s-open", "s-progress", "s-done"}, state.ID)
		ids[state.ID] = true
	}
	for _, transition := range detail.Transitions {
		assert.True(t, ids[transition.FromStateID], "from endpoint resolved")
		assert.True(t, ids[transition.ToStateID], "to endpoint resolved")
		assert.Equal(t, detail.Workflow.ID, transition.WorkflowID)
	}
}

func TestSaveDetailedRejectsUnknownStateRef(t *testing.T) {
	f := newFixture()

	_, err := f.workflowSvc.SaveDetailed(context.Background(), WorkflowDetailInput{
		Workflow: WorkflowInput{Name: "Dangling"},
		States: []StateInput{
			{ID: "a", Name: "Open", IsInitial: true},
		},
		Transitions: []TransitionInput{
			{ID: "t1", FromStateID: "a", ToStateID: "ghost", EventName: "Close"},
		},
	})
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "VALIDATION_FAILED", domainErr.Code)

	// the rejected payload must not leave a half-written workflow behind
	leftovers, err := f.workflows.ListGlobalUnlinked(context.Background(), "any-team")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestUpdateWorkflowPatch(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)

	name := "Support v2"
	visibility := domain.VisibilityTeam
	updated, err := f.workflowSvc.Update(context.Background(), detail.Workflow.ID, WorkflowPatch{
		Name:             &name,
		Visibility:       &visibility,
		EscalationLevel1: hoursPtr(4),
	})
	require.NoError(t, err)
	assert.Equal(t, "Support v2", updated.Name)
	assert.Equal(t, domain.VisibilityTeam, updated.Visibility)
	require.NotNil(t, updated.EscalationLevel1)
	// untouched fields survive
	assert.Equal(t, detail.Workflow.Description, updated.Description)
}

func TestDeleteWorkflowRemovesGraph(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)

	require.NoError(t, f.workflowSvc.Delete(context.Background(), detail.Workflow.ID))

	_, err := f.workflowSvc.GetDetail(context.Background(), detail.Workflow.ID)
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "NOT_FOUND", domainErr.Code)

	states, err := f.states.ListByWorkflow(context.Background(), detail.Workflow.ID)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestDeleteWorkflowBlockedByReference(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityTeam)

	_, err := f.workflowSvc.CreateByReference(context.Background(), "team-2", detail.Workflow.ID, WorkflowInput{})
	require.NoError(t, err)

	err = f.workflowSvc.Delete(context.Background(), detail.Workflow.ID)
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "CONFLICT", domainErr.Code)
}

func TestDeleteWorkflowBlockedByActiveTickets(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)

	ticket, err := f.ticketSvc.CreateTicket(context.Background(), TicketCreateInput{
		WorkflowID: detail.Workflow.ID,
		Title:      "blocker",
	})
	require.NoError(t, err)

	err = f.workflowSvc.Delete(context.Background(), detail.Workflow.ID)
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "CONFLICT", domainErr.Code)

	// soft-deleting the ticket unblocks the workflow
	require.NoError(t, f.ticketSvc.DeleteTicket(context.Background(), ticket.ID))
	require.NoError(t, f.workflowSvc.Delete(context.Background(), detail.Workflow.ID))
}

func TestUpdateDetailedReconcilesGraph(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)
	open := stateByName(t, detail, "Open")
	done := stateByName(t, detail, "Done")
	progress := stateByName(t, detail, "In Progress")

	// Drop In Progress, keep Open/Done, add an Archived state.
	var keepTransition domain.WorkflowTransition
	for _, transition := range detail.Transitions {
		if transition.FromStateID == open.ID && transition.ToStateID == done.ID {
			keepTransition = transition
		}
	}
	require.NotEmpty(t, keepTransition.ID)

	updated, err := f.workflowSvc.UpdateDetailed(context.Background(), detail.Workflow.ID, WorkflowDetailInput{
		Workflow: WorkflowInput{Name: detail.Workflow.Name},
		States: []StateInput{
			{ID: open.ID, Name: "Open", IsInitial: true},
			{ID: done.ID, Name: "Done", IsFinal: true},
			{ID: "new-archived", Name: "Archived", IsFinal: true},
		},
		Transitions: []TransitionInput{
			{ID: keepTransition.ID, FromStateID: open.ID, ToStateID: done.ID, EventName: "Resolve"},
			{ID: "new-archive", FromStateID: done.ID, ToStateID: "new-archived", EventName: "Archive"},
		},
	})
	require.NoError(t, err)

	assert.Len(t, updated.States, 3)
	assert.Len(t, updated.Transitions, 2)
	for _, state := range updated.States {
		assert.NotEqual(t, progress.ID, state.ID, "removed state is gone")
		assert.NotEqual(t, "new-archived", state.ID, "provisional id was remapped")
	}
	for _, transition := range updated.Transitions {
		assert.NotEqual(t, progress.ID, transition.FromStateID)
		assert.NotEqual(t, progress.ID, transition.ToStateID)
	}
}

func TestCloneProducesIndependentCopy(t *testing.T) {
	f := newFixture()
	source := seedSupportWorkflow(t, f, domain.VisibilityPublic)

	clone, err := f.workflowSvc.CreateByCloning(context.Background(), "team-9", source.Workflow.ID, WorkflowInput{Name: "My Copy"})
	require.NoError(t, err)
	assert.True(t, clone.ClonedFromGlobal)
	assert.Equal(t, domain.VisibilityPrivate, clone.Visibility)

	cloneDetail, err := f.workflowSvc.GetDetail(context.Background(), clone.ID)
	require.NoError(t, err)
	require.Len(t, cloneDetail.States, 3)
	require.Len(t, cloneDetail.Transitions, 3)

	sourceIDs := make(map[string]bool)
	for _, state := range source.States {
		sourceIDs[state.ID] = true
	}
	for _, state := range cloneDetail.States {
		assert.False(t, sourceIDs[state.ID], "clone owns fresh state ids")
		assert.Equal(t, clone.ID, state.WorkflowID)
	}

	// Renaming a source state leaves the clone untouched.
	sourceOpen := stateByName(t, source, "Open")
	sourceOpen.Name = "Reopened"
	require.NoError(t, f.states.Update(context.Background(), &sourceOpen))

	cloneDetail, err = f.workflowSvc.GetDetail(context.Background(), clone.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(cloneDetail.States))
	for _, state := range cloneDetail.States {
		names = append(names, state.Name)
	}
	assert.Contains(t, names, "Open")
	assert.NotContains(t, names, "Reopened")
}

func TestReferenceReadsParentGraphLive(t *testing.T) {
	f := newFixture()
	source := seedSupportWorkflow(t, f, domain.VisibilityTeam)

	reference, err := f.workflowSvc.CreateByReference(context.Background(), "team-3", source.Workflow.ID, WorkflowInput{})
	require.NoError(t, err)
	assert.True(t, reference.IsReference())
	assert.False(t, reference.ClonedFromGlobal)

	detail, err := f.workflowSvc.GetDetail(context.Background(), reference.ID)
	require.NoError(t, err)
	require.Len(t, detail.States, 3)
	// the graph still belongs to the parent, no copies were made
	for _, state := range detail.States {
		assert.Equal(t, source.Workflow.ID, state.WorkflowID)
	}

	// A parent edit shows through the reference immediately.
	sourceOpen := stateByName(t, source, "Open")
	sourceOpen.Name = "Inbox"
	require.NoError(t, f.states.Update(context.Background(), &sourceOpen))

	detail, err = f.workflowSvc.GetDetail(context.Background(), reference.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(detail.States))
	for _, state := range detail.States {
		names = append(names, state.Name)
	}
	assert.Contains(t, names, "Inbox")
}

func TestDeriveRequiresShareableSource(t *testing.T) {
	f := newFixture()
	source := seedSupportWorkflow(t, f, domain.VisibilityPrivate)

	_, err := f.workflowSvc.CreateByCloning(context.Background(), "team-4", source.Workflow.ID, WorkflowInput{})
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "CONFLICT", domainErr.Code)

	_, err = f.workflowSvc.CreateByReference(context.Background(), "team-4", source.Workflow.ID, WorkflowInput{})
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "CONFLICT", domainErr.Code)
}

func TestListGlobalUnlinked(t *testing.T) {
	f := newFixture()

	global, err := f.workflowSvc.Create(context.Background(), WorkflowInput{
		Name:       "Global Template",
		Visibility: domain.VisibilityPublic,
	})
	require.NoError(t, err)

	unlinked, err := f.workflowSvc.ListGlobalUnlinked(context.Background(), "team-5")
	require.NoError(t, err)
	require.Len(t, unlinked, 1)
	assert.Equal(t, global.ID, unlinked[0].ID)

	require.NoError(t, f.workflows.LinkTeam(context.Background(), global.ID, "team-5"))
	unlinked, err = f.workflowSvc.ListGlobalUnlinked(context.Background(), "team-5")
	require.NoError(t, err)
	assert.Empty(t, unlinked)
}

func TestTeamCreatedEventSeedsProjectWorkflow(t *testing.T) {
	f := newFixture()
	f.workflowSvc.RegisterHandlers()

	_, err := f.workflowSvc.SaveDetailed(context.Background(), WorkflowDetailInput{
		Workflow: WorkflowInput{
			Name:          "Project Template",
			Visibility:    domain.VisibilityPublic,
			UseForProject: true,
		},
		States: []StateInput{
			{ID: "a", Name: "Backlog", IsInitial: true},
			{ID: "b", Name: "Shipped", IsFinal: true},
		},
		Transitions: []TransitionInput{
			{ID: "t1", FromStateID: "a", ToStateID: "b", EventName: "Ship"},
		},
	})
	require.NoError(t, err)

	err = f.dispatcher.Publish(context.Background(), events.Event{
		Type:    events.EventTeamCreated,
		Payload: events.TeamCreatedPayload{TeamID: "team-new", TeamName: "New Team"},
	})
	require.NoError(t, err)

	seeded, err := f.workflowSvc.ListForTeam(context.Background(), "team-new", true)
	require.NoError(t, err)
	require.Len(t, seeded, 1)
	assert.Equal(t, "Project Template", seeded[0].Name)
	assert.True(t, seeded[0].ClonedFromGlobal)

	detail, err := f.workflowSvc.GetDetail(context.Background(), seeded[0].ID)
	require.NoError(t, err)
	assert.Len(t, detail.States, 2)
	assert.Len(t, detail.Transitions, 1)
}
