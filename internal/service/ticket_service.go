package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/events"
	"github.com/spec-kit/workflow-service/internal/repository"
	"github.com/spec-kit/workflow-service/pkg/util"
)

// TicketService drives ticket lifecycles through their workflow's state
// machine. Every state change is validated against the transition graph,
// recorded in the ledger, and only then announced to listeners.
type TicketService struct {
	tickets     repository.TicketRepository
	workflows   repository.WorkflowRepository
	states      repository.WorkflowStateRepository
	transitions repository.WorkflowTransitionRepository
	history     repository.TransitionHistoryRepository
	machine     *StateMachine
	sla         *SLAService
	tx          repository.Atomic
	dispatcher  events.Dispatcher
	now         func() time.Time

	// serializes concurrent state updates per ticket so the edge check
	// and the ledger append stay atomic together
	locks sync.Map
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	WorkflowRepo   repository.WorkflowRepository
	StateRepo      repository.WorkflowStateRepository
	TransitionRepo repository.WorkflowTransitionRepository
	HistoryRepo    repository.TransitionHistoryRepository
	Machine        *StateMachine
	SLA            *SLAService
	Tx             repository.Atomic
	Dispatcher     events.Dispatcher
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	WorkflowID  string
	Title       string
	Description string
	Priority    domain.TicketPriority
	Tags        []string
}

// TicketPatch describes a partial ticket update; nil fields are left
// untouched. StateID triggers a workflow transition.
type TicketPatch struct {
	Title       *string
	Description *string
	Priority    *domain.TicketPriority
	Tags        []string
	StateID     *string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:     deps.TicketRepo,
		workflows:   deps.WorkflowRepo,
		states:      deps.StateRepo,
		transitions: deps.TransitionRepo,
		history:     deps.HistoryRepo,
		machine:     deps.Machine,
		sla:         deps.SLA,
		tx:          deps.Tx,
		dispatcher:  deps.Dispatcher,
		now:         time.Now,
	}
}

// CreateTicket opens a ticket in its workflow's initial state and writes
// the opening ledger row before announcing the ticket.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	workflow, err := s.workflows.GetByID(ctx, input.WorkflowID)
	if err != nil {
		return nil, asNotFound(err, "workflow")
	}

	initialStates, err := s.machine.InitialStates(ctx, workflow.ID)
	if err != nil {
		return nil, err
	}
	if len(initialStates) == 0 {
		return nil, util.NewNotFound("initial state", map[string]any{"workflow_id": workflow.ID})
	}
	initial := initialStates[0]

	// Resolve the SLA before writing anything so a misconfigured graph
	// cannot leave a ticket without its opening ledger row.
	dueAt, err := s.sla.EarliestDueDate(ctx, workflow.ID, initial.ID)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		ExternalKey:    generateTicketKey(),
		WorkflowID:     workflow.ID,
		CurrentStateID: initial.ID,
		Title:          strings.TrimSpace(input.Title),
		Description:    strings.TrimSpace(input.Description),
		Priority:       input.Priority,
		Tags:           input.Tags,
		IsNew:          true,
		IsCompleted:    false,
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}
	err = runAtomic(ctx, s.tx, func(ctx context.Context) error {
		if err := s.tickets.Create(ctx, ticket); err != nil {
			return err
		}
		entry := &domain.TransitionHistory{
			TicketID:       ticket.ID,
			FromStateID:    nil,
			ToStateID:      initial.ID,
			EventName:      "Created",
			TransitionedAt: s.now(),
			SLADueAt:       dueAt,
			Status:         domain.TransitionInProgress,
		}
		return s.history.Create(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type: events.EventTicketCreated,
		Payload: events.TicketCreatedPayload{
			TicketID:       ticket.ID,
			WorkflowID:     workflow.ID,
			InitialStateID: initial.ID,
			Priority:       ticket.Priority,
			Title:          ticket.Title,
		},
	})
	return ticket, nil
}

// UpdateTicketState moves the ticket along a declared workflow edge.
// Requesting the current state is a no-op. The ledger row is persisted
// before the transition event fires, so listeners can rely on history
// being queryable.
func (s *TicketService) UpdateTicketState(ctx context.Context, ticketID, newStateID string) (*domain.Ticket, error) {
	lock := s.lockFor(ticketID)
	lock.Lock()
	defer lock.Unlock()
	return s.transitionLocked(ctx, ticketID, newStateID)
}

// UpdateTicket applies metadata changes and, when the patch carries a
// state id, performs the workflow transition.
func (s *TicketService) UpdateTicket(ctx context.Context, ticketID string, patch TicketPatch) (*domain.Ticket, error) {
	lock := s.lockFor(ticketID)
	lock.Lock()
	defer lock.Unlock()

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, asNotFound(err, "ticket")
	}
	if patch.Title != nil {
		ticket.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		ticket.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Priority != nil {
		ticket.Priority = *patch.Priority
	}
	if patch.Tags != nil {
		ticket.Tags = patch.Tags
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, asNotFound(err, "ticket")
	}

	if patch.StateID != nil {
		return s.transitionLocked(ctx, ticketID, *patch.StateID)
	}
	return ticket, nil
}

func (s *TicketService) transitionLocked(ctx context.Context, ticketID, newStateID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, asNotFound(err, "ticket")
	}
	if ticket.CurrentStateID == newStateID {
		return ticket, nil
	}

	transition, err := s.transitions.Find(ctx, ticket.WorkflowID, ticket.CurrentStateID, newStateID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.NewInvalidTransition("transition not found", map[string]any{
				"ticket_id":     ticket.ID,
				"from_state_id": ticket.CurrentStateID,
				"to_state_id":   newStateID,
			})
		}
		return nil, err
	}

	target, err := s.states.GetByID(ctx, newStateID)
	if err != nil {
		return nil, asNotFound(err, "workflow state")
	}

	fromStateID := ticket.CurrentStateID
	ticket.CurrentStateID = target.ID
	ticket.IsNew = false
	ticket.IsCompleted = target.IsFinal
	if target.IsFinal && ticket.CompletedAt == nil {
		completedAt := s.now()
		ticket.CompletedAt = &completedAt
	}

	// The state change and its ledger row land in one transaction.
	err = runAtomic(ctx, s.tx, func(ctx context.Context) error {
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return asNotFound(err, "ticket")
		}
		status := domain.TransitionInProgress
		if target.IsFinal {
			status = domain.TransitionCompleted
		}
		entry := &domain.TransitionHistory{
			TicketID:       ticket.ID,
			FromStateID:    &fromStateID,
			ToStateID:      target.ID,
			EventName:      transition.EventName,
			TransitionedAt: s.now(),
			SLADueAt:       s.sla.DueDateForTransition(transition),
			Status:         status,
		}
		return s.history.Create(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type: events.EventTicketStateTransitioned,
		Payload: events.TicketStateTransitionedPayload{
			TicketID:    ticket.ID,
			FromStateID: fromStateID,
			ToStateID:   target.ID,
			EventName:   transition.EventName,
			Completed:   ticket.IsCompleted,
		},
	})
	return ticket, nil
}

// GetTicket fetches a ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, asNotFound(err, "ticket")
	}
	return ticket, nil
}

// DeleteTicket soft-deletes a ticket; its ledger survives for audit.
func (s *TicketService) DeleteTicket(ctx context.Context, ticketID string) error {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return asNotFound(err, "ticket")
	}
	ticket.IsDeleted = true
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return asNotFound(err, "ticket")
	}
	return nil
}

// NextStates lists the states the ticket may move to from its current
// state, optionally including the current state itself.
func (s *TicketService) NextStates(ctx context.Context, ticketID string, includeSelf bool) ([]domain.WorkflowState, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, asNotFound(err, "ticket")
	}
	return s.machine.ValidTargetStates(ctx, ticket.WorkflowID, ticket.CurrentStateID, includeSelf)
}

// ListTickets returns tickets matching the filter.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	return s.tickets.ListWithFilter(ctx, filter)
}

func (s *TicketService) lockFor(ticketID string) *sync.Mutex {
	value, _ := s.locks.LoadOrStore(ticketID, &sync.Mutex{})
	return value.(*sync.Mutex)
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
