package service

import (
	"context"
	"errors"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/repository"
	"github.com/spec-kit/workflow-service/pkg/util"
)

// StateMachine answers structural questions about a workflow graph:
// which states a ticket may start in, which states finish it, and which
// states are reachable from a given state. Read-only.
type StateMachine struct {
	states      repository.WorkflowStateRepository
	transitions repository.WorkflowTransitionRepository
}

// NewStateMachine constructs the validator.
func NewStateMachine(states repository.WorkflowStateRepository, transitions repository.WorkflowTransitionRepository) *StateMachine {
	return &StateMachine{states: states, transitions: transitions}
}

// InitialStates returns all states of the workflow flagged as initial.
// A workflow may legitimately declare more than one.
func (m *StateMachine) InitialStates(ctx context.Context, workflowID string) ([]domain.WorkflowState, error) {
	states, err := m.states.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	var initial []domain.WorkflowState
	for _, state := range states {
		if state.IsInitial {
			initial = append(initial, state)
		}
	}
	return initial, nil
}

// IsFinalState reports whether the state belongs to the workflow and is final.
func (m *StateMachine) IsFinalState(ctx context.Context, workflowID, stateID string) (bool, error) {
	state, err := m.states.GetByID(ctx, stateID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, util.NewNotFound("workflow state", map[string]any{"state_id": stateID})
		}
		return false, err
	}
	return state.WorkflowID == workflowID && state.IsFinal, nil
}

// ValidTargetStates returns the states reachable by exactly one outbound
// transition from the given state. With includeSelf the current state is
// prepended, so UIs can offer "stay in state" as a choice.
func (m *StateMachine) ValidTargetStates(ctx context.Context, workflowID, fromStateID string, includeSelf bool) ([]domain.WorkflowState, error) {
	states, err := m.states.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.WorkflowState, len(states))
	for _, state := range states {
		byID[state.ID] = state
	}

	outbound, err := m.transitions.ListFromState(ctx, workflowID, fromStateID)
	if err != nil {
		return nil, err
	}

	var result []domain.WorkflowState
	if includeSelf {
		if self, ok := byID[fromStateID]; ok {
			result = append(result, self)
		}
	}
	seen := map[string]bool{fromStateID: includeSelf}
	for _, transition := range outbound {
		if seen[transition.ToStateID] {
			continue
		}
		seen[transition.ToStateID] = true
		if target, ok := byID[transition.ToStateID]; ok {
			result = append(result, target)
		}
	}
	return result, nil
}
