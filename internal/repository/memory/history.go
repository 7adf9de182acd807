package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/repository"
)

// HistoryRepo is an in-memory TransitionHistoryRepository.
type HistoryRepo struct {
	mu      sync.RWMutex
	entries map[string]domain.TransitionHistory
	order   []string
}

// NewHistoryRepo builds an empty repository.
func NewHistoryRepo() *HistoryRepo {
	return &HistoryRepo{entries: make(map[string]domain.TransitionHistory)}
}

func (r *HistoryRepo) Create(_ context.Context, entry *domain.TransitionHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = uuid.NewString()
	r.entries[entry.ID] = cloneHistory(*entry)
	r.order = append(r.order, entry.ID)
	return nil
}

func (r *HistoryRepo) GetByID(_ context.Context, id string) (*domain.TransitionHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := cloneHistory(entry)
	return &copied, nil
}

func (r *HistoryRepo) UpdateStatus(_ context.Context, id string, status domain.TransitionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return repository.ErrNotFound
	}
	entry.Status = status
	r.entries[id] = entry
	return nil
}

func (r *HistoryRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TransitionHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.TransitionHistory
	for _, id := range r.order {
		entry := r.entries[id]
		if entry.TicketID == ticketID {
			result = append(result, cloneHistory(entry))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TransitionedAt.Before(result[j].TransitionedAt)
	})
	return result, nil
}

func (r *HistoryRepo) ListDueBefore(_ context.Context, deadline time.Time) ([]domain.TransitionHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.TransitionHistory
	for _, id := range r.order {
		entry := r.entries[id]
		if entry.Status != domain.TransitionInProgress || entry.SLADueAt == nil {
			continue
		}
		if entry.SLADueAt.After(deadline) {
			continue
		}
		result = append(result, cloneHistory(entry))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SLADueAt.Before(*result[j].SLADueAt)
	})
	return result, nil
}

func cloneHistory(entry domain.TransitionHistory) domain.TransitionHistory {
	entry.FromStateID = cloneStringPtr(entry.FromStateID)
	entry.SLADueAt = cloneTimePtr(entry.SLADueAt)
	return entry
}
