// Package memory provides map-backed implementations of the repository
// interfaces. They keep insertion order, which mirrors the created_at
// ordering of the SQL implementations, and back the unit tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/repository"
)

// WorkflowRepo is an in-memory WorkflowRepository.
type WorkflowRepo struct {
	mu        sync.RWMutex
	workflows map[string]domain.Workflow
	order     []string
	links     []domain.WorkflowTeamLink
}

// NewWorkflowRepo builds an empty repository.
func NewWorkflowRepo() *WorkflowRepo {
	return &WorkflowRepo{workflows: make(map[string]domain.Workflow)}
}

func (r *WorkflowRepo) Create(_ context.Context, workflow *domain.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	workflow.ID = uuid.NewString()
	now := time.Now()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	r.workflows[workflow.ID] = cloneWorkflow(*workflow)
	r.order = append(r.order, workflow.ID)
	return nil
}

func (r *WorkflowRepo) Update(_ context.Context, workflow *domain.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.workflows[workflow.ID]
	if !ok {
		return repository.ErrNotFound
	}
	workflow.CreatedAt = stored.CreatedAt
	workflow.UpdatedAt = time.Now()
	r.workflows[workflow.ID] = cloneWorkflow(*workflow)
	return nil
}

func (r *WorkflowRepo) GetByID(_ context.Context, id string) (*domain.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	workflow, ok := r.workflows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := cloneWorkflow(workflow)
	return &copied, nil
}

func (r *WorkflowRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.workflows, id)
	for i, storedID := range r.order {
		if storedID == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *WorkflowRepo) ListByTeam(_ context.Context, teamID string, projectOnly bool) ([]domain.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	linked := make(map[string]bool)
	for _, link := range r.links {
		if link.TeamID == teamID {
			linked[link.WorkflowID] = true
		}
	}
	var result []domain.Workflow
	for _, id := range r.order {
		workflow := r.workflows[id]
		if !linked[id] {
			continue
		}
		if projectOnly && !workflow.UseForProject {
			continue
		}
		result = append(result, cloneWorkflow(workflow))
	}
	return result, nil
}

func (r *WorkflowRepo) ListGlobalUnlinked(_ context.Context, teamID string) ([]domain.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	linked := make(map[string]bool)
	for _, link := range r.links {
		if link.TeamID == teamID {
			linked[link.WorkflowID] = true
		}
	}
	var result []domain.Workflow
	for _, id := range r.order {
		workflow := r.workflows[id]
		if workflow.OwnerTeamID != nil || linked[id] {
			continue
		}
		result = append(result, cloneWorkflow(workflow))
	}
	return result, nil
}

func (r *WorkflowRepo) GetGlobalProjectWorkflow(_ context.Context) (*domain.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		workflow := r.workflows[id]
		if workflow.OwnerTeamID == nil && workflow.UseForProject {
			copied := cloneWorkflow(workflow)
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *WorkflowRepo) CountByParent(_ context.Context, workflowID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, workflow := range r.workflows {
		if workflow.ParentWorkflowID != nil && *workflow.ParentWorkflowID == workflowID {
			count++
		}
	}
	return count, nil
}

func (r *WorkflowRepo) LinkTeam(_ context.Context, workflowID, teamID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range r.links {
		if link.WorkflowID == workflowID && link.TeamID == teamID {
			return nil
		}
	}
	r.links = append(r.links, domain.WorkflowTeamLink{
		WorkflowID: workflowID,
		TeamID:     teamID,
		CreatedAt:  time.Now(),
	})
	return nil
}

func (r *WorkflowRepo) UnlinkAllTeams(_ context.Context, workflowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.links[:0]
	for _, link := range r.links {
		if link.WorkflowID != workflowID {
			kept = append(kept, link)
		}
	}
	r.links = kept
	return nil
}

func cloneWorkflow(workflow domain.Workflow) domain.Workflow {
	workflow.Tags = append([]string(nil), workflow.Tags...)
	workflow.OwnerTeamID = cloneStringPtr(workflow.OwnerTeamID)
	workflow.ParentWorkflowID = cloneStringPtr(workflow.ParentWorkflowID)
	workflow.EscalationLevel1 = cloneDurationPtr(workflow.EscalationLevel1)
	workflow.EscalationLevel2 = cloneDurationPtr(workflow.EscalationLevel2)
	workflow.EscalationLevel3 = cloneDurationPtr(workflow.EscalationLevel3)
	return workflow
}

func cloneStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func cloneDurationPtr(value *time.Duration) *time.Duration {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func cloneTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
