package dto

import (
	"time"

	"github.com/spec-kit/workflow-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	WorkflowID  string                `json:"workflow_id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
	Tags        []string              `json:"tags"`
}

// UpdateTicketStateRequest payload.
type UpdateTicketStateRequest struct {
	StateID string `json:"state_id"`
}

// UpdateTicketRequest payload; omitted fields are left untouched.
type UpdateTicketRequest struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	Priority    *domain.TicketPriority `json:"priority"`
	Tags        []string               `json:"tags"`
	StateID     *string                `json:"state_id"`
}

// TicketResponse response.
type TicketResponse struct {
	ID             string                `json:"id"`
	ExternalKey    string                `json:"external_key"`
	WorkflowID     string                `json:"workflow_id"`
	CurrentStateID string                `json:"current_state_id"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Priority       domain.TicketPriority `json:"priority"`
	Tags           []string              `json:"tags"`
	IsNew          bool                  `json:"is_new"`
	IsCompleted    bool                  `json:"is_completed"`
	CompletedAt    *time.Time            `json:"completed_at"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// TransitionRecordResponse is one entry of a ticket's transition trail.
type TransitionRecordResponse struct {
	FromStateName  *string                 `json:"from_state_name"`
	ToStateName    string                  `json:"to_state_name"`
	EventName      string                  `json:"event_name"`
	TransitionedAt time.Time               `json:"transitioned_at"`
	SLADueAt       *time.Time              `json:"sla_due_at"`
	Status         domain.TransitionStatus `json:"status"`
}
