package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/workflow-service/internal/api/dto"
	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/repository"
	"github.com/spec-kit/workflow-service/internal/service"
	apperrors "github.com/spec-kit/workflow-service/pkg/util"
)

// TicketsHandler manages ticket lifecycle endpoints.
type TicketsHandler struct {
	tickets *service.TicketService
	history *service.HistoryService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, historyService *service.HistoryService) *TicketsHandler {
	return &TicketsHandler{tickets: ticketService, history: historyService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.WorkflowID == "" || strings.TrimSpace(req.Title) == "" {
		return apperrors.NewValidationError("workflow_id and title required", nil)
	}

	ticket, err := h.tickets.CreateTicket(c.Context(), service.TicketCreateInput{
		WorkflowID:  req.WorkflowID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Tags:        req.Tags,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.tickets.ListTickets(c.Context(), parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.UpdateTicket(c.Context(), c.Params("id"), service.TicketPatch{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Tags:        req.Tags,
		StateID:     req.StateID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// UpdateTicketState PATCH /tickets/:id/state.
func (h *TicketsHandler) UpdateTicketState(c *fiber.Ctx) error {
	var req dto.UpdateTicketStateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.StateID == "" {
		return apperrors.NewValidationError("state_id required", nil)
	}
	ticket, err := h.tickets.UpdateTicketState(c.Context(), c.Params("id"), req.StateID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	if err := h.tickets.DeleteTicket(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetTicketHistory GET /tickets/:id/history.
func (h *TicketsHandler) GetTicketHistory(c *fiber.Ctx) error {
	records, err := h.history.HistoryForTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.TransitionRecordResponse, 0, len(records))
	for _, record := range records {
		items = append(items, dto.TransitionRecordResponse{
			FromStateName:  record.FromStateName,
			ToStateName:    record.ToStateName,
			EventName:      record.EventName,
			TransitionedAt: record.TransitionedAt,
			SLADueAt:       record.SLADueAt,
			Status:         record.Status,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetNextStates GET /tickets/:id/next-states.
func (h *TicketsHandler) GetNextStates(c *fiber.Ctx) error {
	includeSelf := c.Query("include_self") == "true"
	states, err := h.tickets.NextStates(c.Context(), c.Params("id"), includeSelf)
	if err != nil {
		return err
	}
	items := make([]dto.WorkflowStateResponse, 0, len(states))
	for _, state := range states {
		items = append(items, dto.WorkflowStateResponse{
			ID:        state.ID,
			Name:      state.Name,
			IsInitial: state.IsInitial,
			IsFinal:   state.IsFinal,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	if workflowID := c.Query("workflow_id"); workflowID != "" {
		filter.WorkflowID = &workflowID
	}
	if stateID := c.Query("state_id"); stateID != "" {
		filter.StateID = &stateID
	}
	if completedStr := c.Query("completed"); completedStr != "" {
		completed := completedStr == "true"
		filter.Completed = &completed
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.TrimSpace(part)))
		}
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:             ticket.ID,
		ExternalKey:    ticket.ExternalKey,
		WorkflowID:     ticket.WorkflowID,
		CurrentStateID: ticket.CurrentStateID,
		Title:          ticket.Title,
		Description:    ticket.Description,
		Priority:       ticket.Priority,
		Tags:           ticket.Tags,
		IsNew:          ticket.IsNew,
		IsCompleted:    ticket.IsCompleted,
		CompletedAt:    ticket.CompletedAt,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
	}
}
