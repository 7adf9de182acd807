package dto

import (
	"time"

	"github.com/spec-kit/workflow-service/internal/domain"
)

// CreateWorkflowRequest payload. Escalation levels and SLAs are given in
// whole hours; absent values mean "not configured".
type CreateWorkflowRequest struct {
	Name             string                    `json:"name"`
	Description      string                    `json:"description"`
	RequestLabel     string                    `json:"request_label"`
	OwnerTeamID      *string                   `json:"owner_team_id"`
	Visibility       domain.WorkflowVisibility `json:"visibility"`
	EscalationLevel1 *int                      `json:"escalation_level1_hours"`
	EscalationLevel2 *int                      `json:"escalation_level2_hours"`
	EscalationLevel3 *int                      `json:"escalation_level3_hours"`
	Tags             []string                  `json:"tags"`
	UseForProject    bool                      `json:"use_for_project"`
}

// UpdateWorkflowRequest payload; omitted fields are left untouched.
type UpdateWorkflowRequest struct {
	Name             *string                    `json:"name"`
	Description      *string                    `json:"description"`
	RequestLabel     *string                    `json:"request_label"`
	Visibility       *domain.WorkflowVisibility `json:"visibility"`
	EscalationLevel1 *int                       `json:"escalation_level1_hours"`
	EscalationLevel2 *int                       `json:"escalation_level2_hours"`
	EscalationLevel3 *int                       `json:"escalation_level3_hours"`
	Tags             []string                   `json:"tags"`
	UseForProject    *bool                      `json:"use_for_project"`
}

// WorkflowStateRequest describes one state of a detailed payload. ID is
// an existing state id or a client-side provisional id for new states.
type WorkflowStateRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsInitial bool   `json:"is_initial"`
	IsFinal   bool   `json:"is_final"`
}

// WorkflowTransitionRequest describes one edge of a detailed payload.
type WorkflowTransitionRequest struct {
	ID                  string `json:"id"`
	FromStateID         string `json:"from_state_id"`
	ToStateID           string `json:"to_state_id"`
	EventName           string `json:"event_name"`
	SLAHours            *int   `json:"sla_hours"`
	EscalateOnViolation bool   `json:"escalate_on_violation"`
}

// DetailedWorkflowRequest bundles a workflow with its full graph.
type DetailedWorkflowRequest struct {
	Workflow    CreateWorkflowRequest       `json:"workflow"`
	States      []WorkflowStateRequest      `json:"states"`
	Transitions []WorkflowTransitionRequest `json:"transitions"`
}

// DeriveWorkflowRequest payload for clone/reference creation.
type DeriveWorkflowRequest struct {
	TeamID        string   `json:"team_id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	RequestLabel  string   `json:"request_label"`
	Tags          []string `json:"tags"`
	UseForProject bool     `json:"use_for_project"`
}

// WorkflowSummary response.
type WorkflowSummary struct {
	ID               string                    `json:"id"`
	Name             string                    `json:"name"`
	Description      string                    `json:"description"`
	RequestLabel     string                    `json:"request_label"`
	OwnerTeamID      *string                   `json:"owner_team_id"`
	Visibility       domain.WorkflowVisibility `json:"visibility"`
	EscalationLevel1 *int                      `json:"escalation_level1_hours"`
	EscalationLevel2 *int                      `json:"escalation_level2_hours"`
	EscalationLevel3 *int                      `json:"escalation_level3_hours"`
	Tags             []string                  `json:"tags"`
	UseForProject    bool                      `json:"use_for_project"`
	ClonedFromGlobal bool                      `json:"cloned_from_global"`
	ParentWorkflowID *string                   `json:"parent_workflow_id"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

// WorkflowStateResponse response.
type WorkflowStateResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsInitial bool   `json:"is_initial"`
	IsFinal   bool   `json:"is_final"`
}

// WorkflowTransitionResponse response.
type WorkflowTransitionResponse struct {
	ID                  string `json:"id"`
	FromStateID         string `json:"from_state_id"`
	ToStateID           string `json:"to_state_id"`
	EventName           string `json:"event_name"`
	SLAHours            *int   `json:"sla_hours"`
	EscalateOnViolation bool   `json:"escalate_on_violation"`
}

// DetailedWorkflowResponse composes a workflow with its graph.
type DetailedWorkflowResponse struct {
	Workflow    WorkflowSummary              `json:"workflow"`
	States      []WorkflowStateResponse      `json:"states"`
	Transitions []WorkflowTransitionResponse `json:"transitions"`
}
