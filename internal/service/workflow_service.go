package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/workflow-service/internal/domain"
	"github.com/spec-kit/workflow-service/internal/events"
	"github.com/spec-kit/workflow-service/internal/repository"
	"github.com/spec-kit/workflow-service/pkg/util"
)

// WorkflowService owns workflow templates: creation, detailed editing,
// cloning and referencing, deletion with referential guards.
type WorkflowService struct {
	workflows   repository.WorkflowRepository
	states      repository.WorkflowStateRepository
	transitions repository.WorkflowTransitionRepository
	tickets     repository.TicketRepository
	tx          repository.Atomic
	dispatcher  events.Dispatcher
}

// WorkflowDependencies bundles repositories for the workflow service.
type WorkflowDependencies struct {
	WorkflowRepo   repository.WorkflowRepository
	StateRepo      repository.WorkflowStateRepository
	TransitionRepo repository.WorkflowTransitionRepository
	TicketRepo     repository.TicketRepository
	Tx             repository.Atomic
	Dispatcher     events.Dispatcher
}

// NewWorkflowService constructs the service.
func NewWorkflowService(deps WorkflowDependencies) *WorkflowService {
	return &WorkflowService{
		workflows:   deps.WorkflowRepo,
		states:      deps.StateRepo,
		transitions: deps.TransitionRepo,
		tickets:     deps.TicketRepo,
		tx:          deps.Tx,
		dispatcher:  deps.Dispatcher,
	}
}

// WorkflowInput describes workflow creation payload.
type WorkflowInput struct {
	Name             string
	Description      string
	RequestLabel     string
	OwnerTeamID      *string
	Visibility       domain.WorkflowVisibility
	EscalationLevel1 *time.Duration
	EscalationLevel2 *time.Duration
	EscalationLevel3 *time.Duration
	Tags             []string
	UseForProject    bool
}

// WorkflowPatch describes a partial update; nil fields are left untouched.
type WorkflowPatch struct {
	Name             *string
	Description      *string
	RequestLabel     *string
	Visibility       *domain.WorkflowVisibility
	EscalationLevel1 *time.Duration
	EscalationLevel2 *time.Duration
	EscalationLevel3 *time.Duration
	Tags             []string
	UseForProject    *bool
}

// StateInput carries one state of a detailed payload. ID is either an
// existing state id or a client-side provisional id for new states.
type StateInput struct {
	ID        string
	Name      string
	IsInitial bool
	IsFinal   bool
}

// TransitionInput carries one edge of a detailed payload; FromStateID and
// ToStateID may reference provisional state ids.
type TransitionInput struct {
	ID                  string
	FromStateID         string
	ToStateID           string
	EventName           string
	SLA                 *time.Duration
	EscalateOnViolation bool
}

// WorkflowDetailInput bundles a workflow with its full graph.
type WorkflowDetailInput struct {
	Workflow    WorkflowInput
	States      []StateInput
	Transitions []TransitionInput
}

// WorkflowDetail is the composed read model of a workflow and its graph.
// For referencing workflows the graph belongs to the parent.
type WorkflowDetail struct {
	Workflow    domain.Workflow
	States      []domain.WorkflowState
	Transitions []domain.WorkflowTransition
}

// Create persists a new workflow and links it to its owning team, if any.
// Both writes commit or neither does.
func (s *WorkflowService) Create(ctx context.Context, input WorkflowInput) (*domain.Workflow, error) {
	workflow := buildWorkflow(input)
	err := runAtomic(ctx, s.tx, func(ctx context.Context) error {
		if err := s.workflows.Create(ctx, workflow); err != nil {
			return err
		}
		if workflow.OwnerTeamID != nil {
			return s.workflows.LinkTeam(ctx, workflow.ID, *workflow.OwnerTeamID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishAudit(ctx, "workflow", nil, workflowAuditView(workflow))
	return workflow, nil
}

// Update overwrites mutable fields supplied in the patch.
func (s *WorkflowService) Update(ctx context.Context, id string, patch WorkflowPatch) (*domain.Workflow, error) {
	workflow, err := s.workflows.GetByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err, "workflow")
	}
	before := workflowAuditView(workflow)

	if patch.Name != nil {
		workflow.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		workflow.Description = *patch.Description
	}
	if patch.RequestLabel != nil {
		workflow.RequestLabel = *patch.RequestLabel
	}
	if patch.Visibility != nil {
		workflow.Visibility = *patch.Visibility
	}
	if patch.EscalationLevel1 != nil {
		workflow.EscalationLevel1 = patch.EscalationLevel1
	}
	if patch.EscalationLevel2 != nil {
		workflow.EscalationLevel2 = patch.EscalationLevel2
	}
	if patch.EscalationLevel3 != nil {
		workflow.EscalationLevel3 = patch.EscalationLevel3
	}
	if patch.Tags != nil {
		workflow.Tags = patch.Tags
	}
	if patch.UseForProject != nil {
		workflow.UseForProject = *patch.UseForProject
	}

	if err := s.workflows.Update(ctx, workflow); err != nil {
		return nil, asNotFound(err, "workflow")
	}
	s.publishAudit(ctx, "workflow", before, workflowAuditView(workflow))
	return workflow, nil
}

// Delete removes a workflow and its graph. It refuses while another
// workflow references this one as parent, or while non-deleted tickets
// still run on it.
func (s *WorkflowService) Delete(ctx context.Context, id string) error {
	workflow, err := s.workflows.GetByID(ctx, id)
	if err != nil {
		return asNotFound(err, "workflow")
	}

	err = runAtomic(ctx, s.tx, func(ctx context.Context) error {
		referencing, err := s.workflows.CountByParent(ctx, id)
		if err != nil {
			return err
		}
		if referencing > 0 {
			return util.NewConflict("workflow is referenced by other workflows", map[string]any{
				"workflow_id":       id,
				"referencing_count": referencing,
			})
		}

		activeTickets, err := s.tickets.CountActiveByWorkflow(ctx, id)
		if err != nil {
			return err
		}
		if activeTickets > 0 {
			return util.NewConflict("workflow has active tickets", map[string]any{
				"workflow_id":  id,
				"ticket_count": activeTickets,
			})
		}

		// Transitions reference states, so they go first.
		if err := s.transitions.DeleteByWorkflow(ctx, id); err != nil {
			return err
		}
		if err := s.states.DeleteByWorkflow(ctx, id); err != nil {
			return err
		}
		if err := s.workflows.UnlinkAllTeams(ctx, id); err != nil {
			return err
		}
		if err := s.workflows.Delete(ctx, id); err != nil {
			return asNotFound(err, "workflow")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publishAudit(ctx, "workflow", workflowAuditView(workflow), nil)
	return nil
}

// SaveDetailed creates a workflow together with its full graph. Client
// supplied provisional state ids are remapped to generated ids and
// transition endpoints are re-pointed through that remapping. The graph
// is validated up front and persisted in one transaction, so a rejected
// payload leaves nothing behind.
func (s *WorkflowService) SaveDetailed(ctx context.Context, input WorkflowDetailInput) (*WorkflowDetail, error) {
	if err := validateTransitionRefs(input); err != nil {
		return nil, err
	}

	workflow := buildWorkflow(input.Workflow)
	err := runAtomic(ctx, s.tx, func(ctx context.Context) error {
		if err := s.workflows.Create(ctx, workflow); err != nil {
			return err
		}
		if workflow.OwnerTeamID != nil {
			if err := s.workflows.LinkTeam(ctx, workflow.ID, *workflow.OwnerTeamID); err != nil {
				return err
			}
		}

		remap := make(map[string]string, len(input.States))
		for _, stateInput := range input.States {
			state := &domain.WorkflowState{
				WorkflowID: workflow.ID,
				Name:       strings.TrimSpace(stateInput.Name),
				IsInitial:  stateInput.IsInitial,
				IsFinal:    stateInput.IsFinal,
			}
			if err := s.states.Create(ctx, state); err != nil {
				return err
			}
			remap[stateInput.ID] = state.ID
		}

		for _, transitionInput := range input.Transitions {
			transition, err := buildTransition(workflow.ID, transitionInput, remap, nil)
			if err != nil {
				return err
			}
			if err := s.transitions.Create(ctx, transition); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishAudit(ctx, "workflow", nil, workflowAuditView(workflow))

	return s.GetDetail(ctx, workflow.ID)
}

// UpdateDetailed reconciles the stored graph against the provided full
// set: absent states/transitions are deleted (transitions first to keep
// referential integrity), matched ids are updated in place, unmatched
// entries are inserted with provisional-id resolution.
func (s *WorkflowService) UpdateDetailed(ctx context.Context, id string, input WorkflowDetailInput) (*WorkflowDetail, error) {
	if err := validateTransitionRefs(input); err != nil {
		return nil, err
	}

	workflow, err := s.workflows.GetByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err, "workflow")
	}

	existingStates, err := s.states.ListByWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	existingTransitions, err := s.transitions.ListByWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}

	incomingStateIDs := make(map[string]bool, len(input.States))
	for _, stateInput := range input.States {
		incomingStateIDs[stateInput.ID] = true
	}
	incomingTransitionIDs := make(map[string]bool, len(input.Transitions))
	for _, transitionInput := range input.Transitions {
		incomingTransitionIDs[transitionInput.ID] = true
	}

	removedStates := make(map[string]bool)
	for _, state := range existingStates {
		if !incomingStateIDs[state.ID] {
			removedStates[state.ID] = true
		}
	}

	err = runAtomic(ctx, s.tx, func(ctx context.Context) error {
		// Drop transitions that disappeared or that touch a removed state.
		for _, transition := range existingTransitions {
			if incomingTransitionIDs[transition.ID] &&
				!removedStates[transition.FromStateID] && !removedStates[transition.ToStateID] {
				continue
			}
			if err := s.transitions.Delete(ctx, transition.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}
		for stateID := range removedStates {
			if err := s.states.Delete(ctx, stateID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}

		existingStateIDs := make(map[string]bool, len(existingStates))
		for _, state := range existingStates {
			existingStateIDs[state.ID] = true
		}

		remap := make(map[string]string)
		for _, stateInput := range input.States {
			state := domain.WorkflowState{
				ID:         stateInput.ID,
				WorkflowID: id,
				Name:       strings.TrimSpace(stateInput.Name),
				IsInitial:  stateInput.IsInitial,
				IsFinal:    stateInput.IsFinal,
			}
			if existingStateIDs[stateInput.ID] {
				if err := s.states.Update(ctx, &state); err != nil {
					return err
				}
				continue
			}
			state.ID = ""
			if err := s.states.Create(ctx, &state); err != nil {
				return err
			}
			remap[stateInput.ID] = state.ID
		}

		existingTransitionIDs := make(map[string]bool, len(existingTransitions))
		for _, transition := range existingTransitions {
			existingTransitionIDs[transition.ID] = true
		}
		deletedTransitionIDs := make(map[string]bool)
		for _, transition := range existingTransitions {
			if !incomingTransitionIDs[transition.ID] ||
				removedStates[transition.FromStateID] || removedStates[transition.ToStateID] {
				deletedTransitionIDs[transition.ID] = true
			}
		}

		for _, transitionInput := range input.Transitions {
			transition, err := buildTransition(id, transitionInput, remap, existingStateIDs)
			if err != nil {
				return err
			}
			if existingTransitionIDs[transitionInput.ID] && !deletedTransitionIDs[transitionInput.ID] {
				transition.ID = transitionInput.ID
				if err := s.transitions.Update(ctx, transition); err != nil {
					return err
				}
				continue
			}
			if err := s.transitions.Create(ctx, transition); err != nil {
				return err
			}
		}

		_, err := s.Update(ctx, workflow.ID, patchFromInput(input.Workflow))
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetDetail(ctx, id)
}

// GetDetail composes a workflow with its graph. A referencing workflow
// reads the parent's states and transitions directly; edits to the
// parent are visible through the reference.
func (s *WorkflowService) GetDetail(ctx context.Context, id string) (*WorkflowDetail, error) {
	workflow, err := s.workflows.GetByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err, "workflow")
	}

	graphID := workflow.ID
	if workflow.IsReference() {
		graphID = *workflow.ParentWorkflowID
	}

	states, err := s.states.ListByWorkflow(ctx, graphID)
	if err != nil {
		return nil, err
	}
	transitions, err := s.transitions.ListByWorkflow(ctx, graphID)
	if err != nil {
		return nil, err
	}

	return &WorkflowDetail{
		Workflow:    *workflow,
		States:      states,
		Transitions: transitions,
	}, nil
}

// CreateByReference creates a team-owned workflow that reuses the source
// graph without copying it. Only TEAM or PUBLIC workflows are shareable.
func (s *WorkflowService) CreateByReference(ctx context.Context, teamID, sourceWorkflowID string, input WorkflowInput) (*domain.Workflow, error) {
	source, err := s.shareableSource(ctx, sourceWorkflowID)
	if err != nil {
		return nil, err
	}
	return s.deriveWorkflow(ctx, teamID, source, input, false)
}

// CreateByCloning creates a team-owned deep copy of the source workflow:
// every state is duplicated and every transition re-pointed through the
// state-copy mapping.
func (s *WorkflowService) CreateByCloning(ctx context.Context, teamID, sourceWorkflowID string, input WorkflowInput) (*domain.Workflow, error) {
	source, err := s.shareableSource(ctx, sourceWorkflowID)
	if err != nil {
		return nil, err
	}

	var workflow *domain.Workflow
	err = runAtomic(ctx, s.tx, func(ctx context.Context) error {
		var err error
		workflow, err = s.deriveWorkflow(ctx, teamID, source, input, true)
		if err != nil {
			return err
		}

		sourceStates, err := s.states.ListByWorkflow(ctx, source.ID)
		if err != nil {
			return err
		}
		remap := make(map[string]string, len(sourceStates))
		for _, sourceState := range sourceStates {
			copied := domain.WorkflowState{
				WorkflowID: workflow.ID,
				Name:       sourceState.Name,
				IsInitial:  sourceState.IsInitial,
				IsFinal:    sourceState.IsFinal,
			}
			if err := s.states.Create(ctx, &copied); err != nil {
				return err
			}
			remap[sourceState.ID] = copied.ID
		}

		sourceTransitions, err := s.transitions.ListByWorkflow(ctx, source.ID)
		if err != nil {
			return err
		}
		for _, sourceTransition := range sourceTransitions {
			copied := domain.WorkflowTransition{
				WorkflowID:          workflow.ID,
				FromStateID:         remap[sourceTransition.FromStateID],
				ToStateID:           remap[sourceTransition.ToStateID],
				EventName:           sourceTransition.EventName,
				SLA:                 sourceTransition.SLA,
				EscalateOnViolation: sourceTransition.EscalateOnViolation,
			}
			if err := s.transitions.Create(ctx, &copied); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return workflow, nil
}

// ListForTeam returns all workflows linked to the team, optionally only
// the one flagged for project-ticket creation.
func (s *WorkflowService) ListForTeam(ctx context.Context, teamID string, projectOnly bool) ([]domain.Workflow, error) {
	return s.workflows.ListByTeam(ctx, teamID, projectOnly)
}

// ListGlobalUnlinked returns global templates not yet linked to the team.
func (s *WorkflowService) ListGlobalUnlinked(ctx context.Context, teamID string) ([]domain.Workflow, error) {
	return s.workflows.ListGlobalUnlinked(ctx, teamID)
}

// GetGlobalProjectWorkflow returns the global workflow used to seed new
// teams' project workflows.
func (s *WorkflowService) GetGlobalProjectWorkflow(ctx context.Context) (*domain.Workflow, error) {
	workflow, err := s.workflows.GetGlobalProjectWorkflow(ctx)
	if err != nil {
		return nil, asNotFound(err, "global project workflow")
	}
	return workflow, nil
}

// RegisterHandlers subscribes the service to platform events.
func (s *WorkflowService) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(events.EventTeamCreated, s.handleTeamCreated)
}

// handleTeamCreated seeds a new team's project workflow by cloning the
// global project template.
func (s *WorkflowService) handleTeamCreated(ctx context.Context, event events.Event) error {
	payload, err := decodePayload[events.TeamCreatedPayload](event.Payload)
	if err != nil {
		return err
	}
	template, err := s.GetGlobalProjectWorkflow(ctx)
	if err != nil {
		return err
	}
	_, err = s.CreateByCloning(ctx, payload.TeamID, template.ID, WorkflowInput{
		Name:          template.Name,
		Description:   template.Description,
		RequestLabel:  template.RequestLabel,
		Tags:          template.Tags,
		UseForProject: true,
	})
	return err
}

func (s *WorkflowService) shareableSource(ctx context.Context, sourceWorkflowID string) (*domain.Workflow, error) {
	source, err := s.workflows.GetByID(ctx, sourceWorkflowID)
	if err != nil {
		return nil, asNotFound(err, "workflow")
	}
	if !source.IsShareable() {
		return nil, util.NewConflict("workflow is not shareable", map[string]any{
			"workflow_id": sourceWorkflowID,
			"visibility":  source.Visibility,
		})
	}
	return source, nil
}

func (s *WorkflowService) deriveWorkflow(ctx context.Context, teamID string, source *domain.Workflow, input WorkflowInput, cloned bool) (*domain.Workflow, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = source.Name
	}
	workflow := &domain.Workflow{
		Name:             name,
		Description:      input.Description,
		RequestLabel:     input.RequestLabel,
		OwnerTeamID:      &teamID,
		Visibility:       domain.VisibilityPrivate,
		EscalationLevel1: source.EscalationLevel1,
		EscalationLevel2: source.EscalationLevel2,
		EscalationLevel3: source.EscalationLevel3,
		Tags:             input.Tags,
		UseForProject:    input.UseForProject,
		ClonedFromGlobal: cloned,
		ParentWorkflowID: &source.ID,
	}
	err := runAtomic(ctx, s.tx, func(ctx context.Context) error {
		if err := s.workflows.Create(ctx, workflow); err != nil {
			return err
		}
		return s.workflows.LinkTeam(ctx, workflow.ID, teamID)
	})
	if err != nil {
		return nil, err
	}
	s.publishAudit(ctx, "workflow", nil, workflowAuditView(workflow))
	return workflow, nil
}

func (s *WorkflowService) publishAudit(ctx context.Context, entity string, before, after map[string]any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventAuditLogUpdate,
		Timestamp: time.Now(),
		Payload: events.AuditLogUpdatePayload{
			Entity: entity,
			Before: before,
			After:  after,
		},
	})
}

func buildWorkflow(input WorkflowInput) *domain.Workflow {
	visibility := input.Visibility
	if visibility == "" {
		visibility = domain.VisibilityPrivate
	}
	return &domain.Workflow{
		Name:             strings.TrimSpace(input.Name),
		Description:      input.Description,
		RequestLabel:     input.RequestLabel,
		OwnerTeamID:      input.OwnerTeamID,
		Visibility:       visibility,
		EscalationLevel1: input.EscalationLevel1,
		EscalationLevel2: input.EscalationLevel2,
		EscalationLevel3: input.EscalationLevel3,
		Tags:             input.Tags,
		UseForProject:    input.UseForProject,
	}
}

func buildTransition(workflowID string, input TransitionInput, remap map[string]string, existingStateIDs map[string]bool) (*domain.WorkflowTransition, error) {
	fromID, err := resolveStateID(input.FromStateID, remap, existingStateIDs)
	if err != nil {
		return nil, err
	}
	toID, err := resolveStateID(input.ToStateID, remap, existingStateIDs)
	if err != nil {
		return nil, err
	}
	return &domain.WorkflowTransition{
		WorkflowID:          workflowID,
		FromStateID:         fromID,
		ToStateID:           toID,
		EventName:           strings.TrimSpace(input.EventName),
		SLA:                 input.SLA,
		EscalateOnViolation: input.EscalateOnViolation,
	}, nil
}

func resolveStateID(stateID string, remap map[string]string, existingStateIDs map[string]bool) (string, error) {
	if mapped, ok := remap[stateID]; ok {
		return mapped, nil
	}
	if existingStateIDs != nil && existingStateIDs[stateID] {
		return stateID, nil
	}
	if existingStateIDs == nil && stateID != "" {
		// create-time payloads may only reference provisional ids
		return "", util.NewValidationError("transition references unknown state", map[string]any{"state_id": stateID})
	}
	if stateID == "" {
		return "", util.NewValidationError("transition state reference required", nil)
	}
	return "", util.NewValidationError("transition references unknown state", map[string]any{"state_id": stateID})
}

func patchFromInput(input WorkflowInput) WorkflowPatch {
	visibility := input.Visibility
	patch := WorkflowPatch{
		Name:             &input.Name,
		Description:      &input.Description,
		RequestLabel:     &input.RequestLabel,
		Tags:             input.Tags,
		UseForProject:    &input.UseForProject,
		EscalationLevel1: input.EscalationLevel1,
		EscalationLevel2: input.EscalationLevel2,
		EscalationLevel3: input.EscalationLevel3,
	}
	if visibility != "" {
		patch.Visibility = &visibility
	}
	return patch
}

func workflowAuditView(workflow *domain.Workflow) map[string]any {
	if workflow == nil {
		return nil
	}
	return map[string]any{
		"id":              workflow.ID,
		"name":            workflow.Name,
		"visibility":      workflow.Visibility,
		"owner_team_id":   workflow.OwnerTeamID,
		"use_for_project": workflow.UseForProject,
	}
}

func decodePayload[T any](payload any) (T, error) {
	if typed, ok := payload.(T); ok {
		return typed, nil
	}
	var decoded T
	raw, err := json.Marshal(payload)
	if err != nil {
		return decoded, err
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return decoded, err
	}
	return decoded, nil
}

// validateTransitionRefs rejects detailed payloads whose transitions point
// outside the supplied state set, before anything is written.
func validateTransitionRefs(input WorkflowDetailInput) error {
	known := make(map[string]bool, len(input.States))
	for _, stateInput := range input.States {
		known[stateInput.ID] = true
	}
	for _, transitionInput := range input.Transitions {
		for _, ref := range []string{transitionInput.FromStateID, transitionInput.ToStateID} {
			if ref == "" {
				return util.NewValidationError("transition state reference required", nil)
			}
			if !known[ref] {
				return util.NewValidationError("transition references unknown state", map[string]any{"state_id": ref})
			}
		}
	}
	return nil
}

// runAtomic executes fn in one storage transaction when a runner is
// configured; a context already inside a transaction joins it.
func runAtomic(ctx context.Context, tx repository.Atomic, fn func(context.Context) error) error {
	if tx == nil {
		return fn(ctx)
	}
	return tx.WithinTx(ctx, fn)
}

func asNotFound(err error, resource string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return util.NewNotFound(resource, nil)
	}
	return err
}
