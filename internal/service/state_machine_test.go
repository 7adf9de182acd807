package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/pkg/util"
)

func TestInitialStates(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)

	initial, err := f.machine.InitialStates(context.Background(), detail.Workflow.ID)
	require.NoError(t, err)
	require.Len(t, initial, 1)
	assert.Equal(t, "Open", initial[0].Name)
}

func TestInitialStatesMultiple(t *testing.T) {
	f := newFixture()
	detail, err := f.workflowSvc.SaveDetailed(context.Background(), WorkflowDetailInput{
		Workflow: WorkflowInput{Name: "Intake"},
		States: []StateInput{
			{ID: "a", Name: "Email", IsInitial: true},
			{ID: "b", Name: "Phone", IsInitial: true},
			{ID: "c", Name: "Closed", IsFinal: true},
		},
		Transitions: []TransitionInput{
			{ID: "t1", FromStateID: "a", ToStateID: "c", EventName: "Close"},
			{ID: "t2", FromStateID: "b", ToStateID: "c", EventName: "Close"},
		},
	})
	require.NoError(t, err)

	initial, err := f.machine.InitialStates(context.Background(), detail.Workflow.ID)
	require.NoError(t, err)
	assert.Len(t, initial, 2)
}

func TestIsFinalState(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)
	done := stateByName(t, detail, "Done")
	open := stateByName(t, detail, "Open")

	final, err := f.machine.IsFinalState(context.Background(), detail.Workflow.ID, done.ID)
	require.NoError(t, err)
	assert.True(t, final)

	final, err = f.machine.IsFinalState(context.Background(), detail.Workflow.ID, open.ID)
	require.NoError(t, err)
	assert.False(t, final)
}

func TestIsFinalStateUnknownState(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)

	_, err := f.machine.IsFinalState(context.Background(), detail.Workflow.ID, "missing")
	var domainErr *util.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
}

func TestIsFinalStateWrongWorkflow(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)
	other := seedSupportWorkflow(t, f, domain.VisibilityPrivate)
	done := stateByName(t, detail, "Done")

	final, err := f.machine.IsFinalState(context.Background(), other.Workflow.ID, done.ID)
	require.NoError(t, err)
	assert.False(t, final)
}

func TestValidTargetStates(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)
	open := stateByName(t, detail, "Open")

	targets, err := f.machine.ValidTargetStates(context.Background(), detail.Workflow.ID, open.ID, false)
	require.NoError(t, err)
	names := make([]string, 0, len(targets))
	for _, target := range targets {
		names = append(names, target.Name)
	}
	assert.ElementsMatch(t, []string{"In Progress", "Done"}, names)
}

func TestValidTargetStatesIncludeSelf(t *testing.T) {
	f := newFixture()
	detail := seedSupportWorkflow(t, f, domain.VisibilityPrivate)
	open := stateByName(t, detail, "Open")

	targets, err := f.machine.ValidTargetStates(context.Background(), detail.Workflow.ID, open.ID, true)
	require.NoError(t, err)
	require.NotEmpty(t, targets)
	assert.Equal(t, open.ID, targets[0].ID)
	assert.Len(t, targets, 3)
}

func TestValidTargetStatesDeduplicates(t *testing.T) {
	f := newFixture()
	detail, err := f.workflowSvc.SaveDetailed(context.Background(), WorkflowDetailInput{
		Workflow: WorkflowInput{Name: "Parallel"},
		States: []StateInput{
			{ID: "a", Name: "A", IsInitial: true},
			{ID: "b", Name: "B", IsFinal: true},
		},
		Transitions: []TransitionInput{
			{ID: "t1", FromStateID: "a", ToStateID: "b", EventName: "Approve"},
			{ID: "t2", FromStateID: "a", ToStateID: "b", EventName: "Reject"},
		},
	})
	require.NoError(t, err)
	start := stateByName(t, detail, "A")

	targets, err := f.machine.ValidTargetStates(context.Background(), detail.Workflow.ID, start.ID, false)
	require.NoError(t, err)
	assert.Len(t, targets, 1)
}
