package service

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/repository"
	"github.com/spec-kit/workflow-service/pkg/util"
)

// SLAService computes SLA due dates from transition metadata and drives
// the escalation lifecycle of ledger rows.
type SLAService struct {
	transitions repository.WorkflowTransitionRepository
	history     repository.TransitionHistoryRepository
	now         func() time.Time
}

// NewSLAService constructs the tracker.
func NewSLAService(transitions repository.WorkflowTransitionRepository, history repository.TransitionHistoryRepository) *SLAService {
	return &SLAService{
		transitions: transitions,
		history:     history,
		now:         time.Now,
	}
}

// EarliestDueDate picks the minimum declared SLA among the outbound
// transitions of fromStateID and returns now + that duration. A nil
// result means no outbound transition declares a deadline. A state with
// no outbound transitions at all is a broken workflow definition.
func (s *SLAService) EarliestDueDate(ctx context.Context, workflowID, fromStateID string) (*time.Time, error) {
	outbound, err := s.transitions.ListFromState(ctx, workflowID, fromStateID)
	if err != nil {
		return nil, err
	}
	if len(outbound) == 0 {
		return nil, util.NewConfigurationError("workflow state has no outbound transitions")
	}

	var min *time.Duration
	for i := range outbound {
		transition := &outbound[i]
		if !transition.HasSLA() {
			continue
		}
		if min == nil || *transition.SLA < *min {
			min = transition.SLA
		}
	}
	if min == nil {
		return nil, nil
	}
	due := s.now().Add(*min)
	return &due, nil
}

// DueDateForTransition returns now + the transition's SLA, or nil when
// the transition carries no positive SLA duration.
func (s *SLAService) DueDateForTransition(transition *domain.WorkflowTransition) *time.Time {
	if transition == nil || !transition.HasSLA() {
		return nil
	}
	due := s.now().Add(*transition.SLA)
	return &due
}

// FindViolatingSoon returns IN_PROGRESS ledger rows whose due date falls
// within the given window from now. Used by the sweep to pre-warn.
func (s *SLAService) FindViolatingSoon(ctx context.Context, window time.Duration) ([]domain.TransitionHistory, error) {
	return s.history.ListDueBefore(ctx, s.now().Add(window))
}

// FindAlreadyViolated returns IN_PROGRESS ledger rows already past due.
func (s *SLAService) FindAlreadyViolated(ctx context.Context) ([]domain.TransitionHistory, error) {
	return s.history.ListDueBefore(ctx, s.now())
}

// Escalate moves a ledger row to ESCALATED. Not idempotent by itself;
// callers are expected to escalate only rows returned by
// FindAlreadyViolated, whose IN_PROGRESS filter already excludes rows
// escalated earlier.
func (s *SLAService) Escalate(ctx context.Context, historyID string) (*domain.TransitionHistory, error) {
	entry, err := s.history.GetByID(ctx, historyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.NewNotFound("transition history", map[string]any{"history_id": historyID})
		}
		return nil, err
	}
	if err := s.history.UpdateStatus(ctx, historyID, domain.TransitionEscalated); err != nil {
		return nil, err
	}
	entry.Status = domain.TransitionEscalated
	return entry, nil
}
