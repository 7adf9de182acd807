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

// TicketRepo is an in-memory TicketRepository.
type TicketRepo struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
	order   []string
}

// NewTicketRepo builds an empty repository.
func NewTicketRepo() *TicketRepo {
	return &TicketRepo{tickets: make(map[string]domain.Ticket)}
}

func (r *TicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket.ID = uuid.NewString()
	now := time.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	r.tickets[ticket.ID] = cloneTicket(*ticket)
	r.order = append(r.order, ticket.ID)
	return nil
}

func (r *TicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	ticket.CreatedAt = stored.CreatedAt
	ticket.UpdatedAt = time.Now()
	r.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r *TicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := cloneTicket(ticket)
	return &copied, nil
}

func (r *TicketRepo) CountActiveByWorkflow(_ context.Context, workflowID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, ticket := range r.tickets {
		if ticket.WorkflowID == workflowID && !ticket.IsDeleted {
			count++
		}
	}
	return count, nil
}

func (r *TicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Ticket
	for _, id := range r.order {
		ticket := r.tickets[id]
		if ticket.IsDeleted {
			continue
		}
		if filter.WorkflowID != nil && ticket.WorkflowID != *filter.WorkflowID {
			continue
		}
		if filter.StateID != nil && ticket.CurrentStateID != *filter.StateID {
			continue
		}
		if filter.Completed != nil && ticket.IsCompleted != *filter.Completed {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, ticket.Priority) {
			continue
		}
		result = append(result, cloneTicket(ticket))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func containsPriority(priorities []domain.TicketPriority, priority domain.TicketPriority) bool {
	for _, candidate := range priorities {
		if candidate == priority {
			return true
		}
	}
	return false
}

func cloneTicket(ticket domain.Ticket) domain.Ticket {
	ticket.Tags = append([]string(nil), ticket.Tags...)
	ticket.CompletedAt = cloneTimePtr(ticket.CompletedAt)
	return ticket
}
