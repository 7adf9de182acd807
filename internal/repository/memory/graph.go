package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/repository"
)

// StateRepo is an in-memory WorkflowStateRepository.
type StateRepo struct {
	mu     sync.RWMutex
	states map[string]domain.WorkflowState
	order  []string
}

// NewStateRepo builds an empty repository.
func NewStateRepo() *StateRepo {
	return &StateRepo{states: make(map[string]domain.WorkflowState)}
}

func (r *StateRepo) Create(_ context.Context, state *domain.WorkflowState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state.ID = uuid.NewString()
	r.states[state.ID] = *state
	r.order = append(r.order, state.ID)
	return nil
}

func (r *StateRepo) Update(_ context.Context, state *domain.WorkflowState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[state.ID]; !ok {
		return repository.ErrNotFound
	}
	r.states[state.ID] = *state
	return nil
}

func (r *StateRepo) GetByID(_ context.Context, id string) (*domain.WorkflowState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.states[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &state, nil
}

func (r *StateRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.states, id)
	r.order = removeID(r.order, id)
	return nil
}

func (r *StateRepo) ListByWorkflow(_ context.Context, workflowID string) ([]domain.WorkflowState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.WorkflowState
	for _, id := range r.order {
		state := r.states[id]
		if state.WorkflowID == workflowID {
			result = append(result, state)
		}
	}
	return result, nil
}

func (r *StateRepo) DeleteByWorkflow(_ context.Context, workflowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.order[:0]
	for _, id := range r.order {
		if r.states[id].WorkflowID == workflowID {
			delete(r.states, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return nil
}

// TransitionRepo is an in-memory WorkflowTransitionRepository.
type TransitionRepo struct {
	mu          sync.RWMutex
	transitions map[string]domain.WorkflowTransition
	order       []string
}

// NewTransitionRepo builds an empty repository.
func NewTransitionRepo() *TransitionRepo {
	return &TransitionRepo{transitions: make(map[string]domain.WorkflowTransition)}
}

func (r *TransitionRepo) Create(_ context.Context, transition *domain.WorkflowTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	transition.ID = uuid.NewString()
	r.transitions[transition.ID] = cloneTransition(*transition)
	r.order = append(r.order, transition.ID)
	return nil
}

func (r *TransitionRepo) Update(_ context.Context, transition *domain.WorkflowTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.transitions[transition.ID]; !ok {
		return repository.ErrNotFound
	}
	r.transitions[transition.ID] = cloneTransition(*transition)
	return nil
}

func (r *TransitionRepo) GetByID(_ context.Context, id string) (*domain.WorkflowTransition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	transition, ok := r.transitions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := cloneTransition(transition)
	return &copied, nil
}

func (r *TransitionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.transitions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.transitions, id)
	r.order = removeID(r.order, id)
	return nil
}

func (r *TransitionRepo) ListByWorkflow(_ context.Context, workflowID string) ([]domain.WorkflowTransition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.WorkflowTransition
	for _, id := range r.order {
		transition := r.transitions[id]
		if transition.WorkflowID == workflowID {
			result = append(result, cloneTransition(transition))
		}
	}
	return result, nil
}

func (r *TransitionRepo) ListFromState(_ context.Context, workflowID, fromStateID string) ([]domain.WorkflowTransition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.WorkflowTransition
	for _, id := range r.order {
		transition := r.transitions[id]
		if transition.WorkflowID == workflowID && transition.FromStateID == fromStateID {
			result = append(result, cloneTransition(transition))
		}
	}
	return result, nil
}

func (r *TransitionRepo) Find(_ context.Context, workflowID, fromStateID, toStateID string) (*domain.WorkflowTransition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		transition := r.transitions[id]
		if transition.WorkflowID == workflowID && transition.FromStateID == fromStateID && transition.ToStateID == toStateID {
			copied := cloneTransition(transition)
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *TransitionRepo) DeleteByWorkflow(_ context.Context, workflowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.order[:0]
	for _, id := range r.order {
		if r.transitions[id].WorkflowID == workflowID {
			delete(r.transitions, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return nil
}

func cloneTransition(transition domain.WorkflowTransition) domain.WorkflowTransition {
	transition.SLA = cloneDurationPtr(transition.SLA)
	return transition
}

func removeID(order []string, id string) []string {
	for i, storedID := range order {
		if storedID == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
