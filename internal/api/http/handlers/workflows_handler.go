package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/workflow-service/internal/api/dto"
	"github.com/spec-kit/workflow-service/internal/auth"
	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/service"
	apperrors "github.com/spec-kit/workflow-service/pkg/util"
)

// WorkflowsHandler manages workflow template endpoints.
type WorkflowsHandler struct {
	service *service.WorkflowService
}

// NewWorkflowsHandler constructs handler.
func NewWorkflowsHandler(workflowService *service.WorkflowService) *WorkflowsHandler {
	return &WorkflowsHandler{service: workflowService}
}

// CreateWorkflow POST /workflows.
func (h *WorkflowsHandler) CreateWorkflow(c *fiber.Ctx) error {
	var req dto.CreateWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.NewValidationError("name required", nil)
	}
	if err := requireTeamAccess(c, req.OwnerTeamID); err != nil {
		return err
	}

	workflow, err := h.service.Create(c.Context(), workflowInput(req))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": workflowSummary(workflow)})
}

// CreateWorkflowDetailed POST /workflows/detailed.
func (h *WorkflowsHandler) CreateWorkflowDetailed(c *fiber.Ctx) error {
	var req dto.DetailedWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Workflow.Name) == "" {
		return apperrors.NewValidationError("workflow.name required", nil)
	}
	if len(req.States) == 0 {
		return apperrors.NewValidationError("at least one state required", nil)
	}
	if err := requireTeamAccess(c, req.Workflow.OwnerTeamID); err != nil {
		return err
	}

	detail, err := h.service.SaveDetailed(c.Context(), detailInput(req))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": detailResponse(detail)})
}

// GetWorkflowDetailed GET /workflows/:id/detailed.
func (h *WorkflowsHandler) GetWorkflowDetailed(c *fiber.Ctx) error {
	detail, err := h.service.GetDetail(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": detailResponse(detail)})
}

// UpdateWorkflow PUT /workflows/:id.
func (h *WorkflowsHandler) UpdateWorkflow(c *fiber.Ctx) error {
	var req dto.UpdateWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	patch := service.WorkflowPatch{
		Name:             req.Name,
		Description:      req.Description,
		RequestLabel:     req.RequestLabel,
		Visibility:       req.Visibility,
		EscalationLevel1: hoursToDuration(req.EscalationLevel1),
		EscalationLevel2: hoursToDuration(req.EscalationLevel2),
		EscalationLevel3: hoursToDuration(req.EscalationLevel3),
		Tags:             req.Tags,
		UseForProject:    req.UseForProject,
	}
	workflow, err := h.service.Update(c.Context(), c.Params("id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workflowSummary(workflow)})
}

// UpdateWorkflowDetailed PUT /workflows/:id/detailed.
func (h *WorkflowsHandler) UpdateWorkflowDetailed(c *fiber.Ctx) error {
	var req dto.DetailedWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.States) == 0 {
		return apperrors.NewValidationError("at least one state required", nil)
	}

	detail, err := h.service.UpdateDetailed(c.Context(), c.Params("id"), detailInput(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": detailResponse(detail)})
}

// DeleteWorkflow DELETE /workflows/:id.
func (h *WorkflowsHandler) DeleteWorkflow(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CloneWorkflow POST /workflows/:id/clone.
func (h *WorkflowsHandler) CloneWorkflow(c *fiber.Ctx) error {
	teamID, input, err := deriveInput(c)
	if err != nil {
		return err
	}
	workflow, err := h.service.CreateByCloning(c.Context(), teamID, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": workflowSummary(workflow)})
}

// ReferenceWorkflow POST /workflows/:id/reference.
func (h *WorkflowsHandler) ReferenceWorkflow(c *fiber.Ctx) error {
	teamID, input, err := deriveInput(c)
	if err != nil {
		return err
	}
	workflow, err := h.service.CreateByReference(c.Context(), teamID, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": workflowSummary(workflow)})
}

// ListTeamWorkflows GET /teams/:teamId/workflows.
func (h *WorkflowsHandler) ListTeamWorkflows(c *fiber.Ctx) error {
	teamID := c.Params("teamId")
	if err := requireTeamAccess(c, &teamID); err != nil {
		return err
	}
	projectOnly := c.Query("project") == "true"
	workflows, err := h.service.ListForTeam(c.Context(), teamID, projectOnly)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workflowSummaries(workflows)})
}

// ListGlobalUnlinked GET /teams/:teamId/workflows/global-unlinked.
func (h *WorkflowsHandler) ListGlobalUnlinked(c *fiber.Ctx) error {
	teamID := c.Params("teamId")
	if err := requireTeamAccess(c, &teamID); err != nil {
		return err
	}
	workflows, err := h.service.ListGlobalUnlinked(c.Context(), teamID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workflowSummaries(workflows)})
}

func deriveInput(c *fiber.Ctx) (string, service.WorkflowInput, error) {
	var req dto.DeriveWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return "", service.WorkflowInput{}, apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.TeamID) == "" {
		return "", service.WorkflowInput{}, apperrors.NewValidationError("team_id required", nil)
	}
	if err := requireTeamAccess(c, &req.TeamID); err != nil {
		return "", service.WorkflowInput{}, err
	}
	return req.TeamID, service.WorkflowInput{
		Name:          req.Name,
		Description:   req.Description,
		RequestLabel:  req.RequestLabel,
		Tags:          req.Tags,
		UseForProject: req.UseForProject,
	}, nil
}

// requireTeamAccess rejects callers acting on a team outside their scope.
// Admins pass; a nil team (global workflow) is admin-only.
func requireTeamAccess(c *fiber.Ctx, teamID *string) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if teamID == nil {
		if !principal.IsAdmin() {
			return apperrors.NewForbidden("global workflows require admin role")
		}
		return nil
	}
	if !principal.CanAccessTeam(*teamID) {
		return apperrors.NewForbidden("team access denied")
	}
	return nil
}

func workflowInput(req dto.CreateWorkflowRequest) service.WorkflowInput {
	return service.WorkflowInput{
		Name:             req.Name,
		Description:      req.Description,
		RequestLabel:     req.RequestLabel,
		OwnerTeamID:      req.OwnerTeamID,
		Visibility:       req.Visibility,
		EscalationLevel1: hoursToDuration(req.EscalationLevel1),
		EscalationLevel2: hoursToDuration(req.EscalationLevel2),
		EscalationLevel3: hoursToDuration(req.EscalationLevel3),
		Tags:             req.Tags,
		UseForProject:    req.UseForProject,
	}
}

func detailInput(req dto.DetailedWorkflowRequest) service.WorkflowDetailInput {
	states := make([]service.StateInput, 0, len(req.States))
	for _, state := range req.States {
		states = append(states, service.StateInput{
			ID:        state.ID,
			Name:      state.Name,
			IsInitial: state.IsInitial,
			IsFinal:   state.IsFinal,
		})
	}
	transitions := make([]service.TransitionInput, 0, len(req.Transitions))
	for _, transition := range req.Transitions {
		transitions = append(transitions, service.TransitionInput{
			ID:                  transition.ID,
			FromStateID:         transition.FromStateID,
			ToStateID:           transition.ToStateID,
			EventName:           transition.EventName,
			SLA:                 hoursToDuration(transition.SLAHours),
			EscalateOnViolation: transition.EscalateOnViolation,
		})
	}
	return service.WorkflowDetailInput{
		Workflow:    workflowInput(req.Workflow),
		States:      states,
		Transitions: transitions,
	}
}

func workflowSummary(workflow *domain.Workflow) dto.WorkflowSummary {
	return dto.WorkflowSummary{
		ID:               workflow.ID,
		Name:             workflow.Name,
		Description:      workflow.Description,
		RequestLabel:     workflow.RequestLabel,
		OwnerTeamID:      workflow.OwnerTeamID,
		Visibility:       workflow.Visibility,
		EscalationLevel1: durationToHours(workflow.EscalationLevel1),
		EscalationLevel2: durationToHours(workflow.EscalationLevel2),
		EscalationLevel3: durationToHours(workflow.EscalationLevel3),
		Tags:             workflow.Tags,
		UseForProject:    workflow.UseForProject,
		ClonedFromGlobal: workflow.ClonedFromGlobal,
		ParentWorkflowID: workflow.ParentWorkflowID,
		CreatedAt:        workflow.CreatedAt,
		UpdatedAt:        workflow.UpdatedAt,
	}
}

func workflowSummaries(workflows []domain.Workflow) []dto.WorkflowSummary {
	items := make([]dto.WorkflowSummary, 0, len(workflows))
	for i := range workflows {
		items = append(items, workflowSummary(&workflows[i]))
	}
	return items
}

func detailResponse(detail *service.WorkflowDetail) dto.DetailedWorkflowResponse {
	states := make([]dto.WorkflowStateResponse, 0, len(detail.States))
	for _, state := range detail.States {
		states = append(states, dto.WorkflowStateResponse{
			ID:        state.ID,
			Name:      state.Name,
			IsInitial: state.IsInitial,
			IsFinal:   state.IsFinal,
		})
	}
	transitions := make([]dto.WorkflowTransitionResponse, 0, len(detail.Transitions))
	for _, transition := range detail.Transitions {
		transitions = append(transitions, dto.WorkflowTransitionResponse{
			ID:                  transition.ID,
			FromStateID:         transition.FromStateID,
			ToStateID:           transition.ToStateID,
			EventName:           transition.EventName,
			SLAHours:            durationToHours(transition.SLA),
			EscalateOnViolation: transition.EscalateOnViolation,
		})
	}
	return dto.DetailedWorkflowResponse{
		Workflow:    workflowSummary(&detail.Workflow),
		States:      states,
		Transitions: transitions,
	}
}

func hoursToDuration(hours *int) *time.Duration {
	if hours == nil {
		return nil
	}
	d := time.Duration(*hours) * time.Hour
	return &d
}

func durationToHours(d *time.Duration) *int {
	if d == nil {
		return nil
	}
	hours := int(*d / time.Hour)
	return &hours
}
