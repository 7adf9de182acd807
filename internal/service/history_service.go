package service

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/repository"
	"github.com/spec-kit/workflow-service/pkg/util"
)

// HistoryService exposes the transition ledger: appending rows for
// externally observed transitions and reading a ticket's ordered trail.
type HistoryService struct {
	tickets     repository.TicketRepository
	states      repository.WorkflowStateRepository
	transitions repository.WorkflowTransitionRepository
	history     repository.TransitionHistoryRepository
	sla         *SLAService
	now         func() time.Time
}

// NewHistoryService constructs the ledger service.
func NewHistoryService(
	tickets repository.TicketRepository,
	states repository.WorkflowStateRepository,
	transitions repository.WorkflowTransitionRepository,
	history repository.TransitionHistoryRepository,
	sla *SLAService,
) *HistoryService {
	return &HistoryService{
		tickets:     tickets,
		states:      states,
		transitions: transitions,
		history:     history,
		sla:         sla,
		now:         time.Now,
	}
}

// TransitionRecord is the lightweight projection served to clients.
type TransitionRecord struct {
	FromStateName  *string
	ToStateName    string
	EventName      string
	TransitionedAt time.Time
	SLADueAt       *time.Time
	Status         domain.TransitionStatus
}

// Record appends a ledger row for a transition the ticket underwent. The
// matched edge supplies the event name and SLA; the target state's
// finality decides the row status.
func (s *HistoryService) Record(ctx context.Context, ticketID, fromStateID, toStateID string) (*domain.TransitionHistory, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}

	transition, err := s.transitions.Find(ctx, ticket.WorkflowID, fromStateID, toStateID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.NewNotFound("transition", map[string]any{
				"workflow_id":   ticket.WorkflowID,
				"from_state_id": fromStateID,
				"to_state_id":   toStateID,
			})
		}
		return nil, err
	}

	target, err := s.states.GetByID(ctx, toStateID)
	if err != nil {
		return nil, asNotFound(err, "workflow state")
	}

	status := domain.TransitionInProgress
	if target.IsFinal {
		status = domain.TransitionCompleted
	}
	entry := &domain.TransitionHistory{
		TicketID:       ticketID,
		FromStateID:    &fromStateID,
		ToStateID:      toStateID,
		EventName:      transition.EventName,
		TransitionedAt: s.now(),
		SLADueAt:       s.sla.DueDateForTransition(transition),
		Status:         status,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// HistoryForTicket returns the ticket's trail ordered oldest first. An
// unknown ticket id yields an empty trail, not an error.
func (s *HistoryService) HistoryForTicket(ctx context.Context, ticketID string) ([]TransitionRecord, error) {
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	records := make([]TransitionRecord, 0, len(entries))
	for _, entry := range entries {
		record := TransitionRecord{
			ToStateName:    s.stateName(ctx, names, entry.ToStateID),
			EventName:      entry.EventName,
			TransitionedAt: entry.TransitionedAt,
			SLADueAt:       entry.SLADueAt,
			Status:         entry.Status,
		}
		if entry.FromStateID != nil {
			name := s.stateName(ctx, names, *entry.FromStateID)
			record.FromStateName = &name
		}
		records = append(records, record)
	}
	return records, nil
}

// stateName resolves a state id to its name, falling back to the raw id
// for states that were deleted after the row was written.
func (s *HistoryService) stateName(ctx context.Context, cache map[string]string, stateID string) string {
	if name, ok := cache[stateID]; ok {
		return name
	}
	state, err := s.states.GetByID(ctx, stateID)
	name := stateID
	if err == nil {
		name = state.Name
	}
	cache[stateID] = name
	return name
}
