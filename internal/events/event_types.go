package events

import (
	"time"

	"github.com/spec-kit/workflow-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated           EventType = "ticket_created"
	EventTicketStateTransitioned EventType = "ticket_state_transitioned"
	EventTeamCreated             EventType = "team_created"
	EventAuditLogUpdate          EventType = "audit_log_updated"
	EventSLAEscalated            EventType = "sla_escalated"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketID       string                `json:"ticket_id"`
	WorkflowID     string                `json:"workflow_id"`
	InitialStateID string                `json:"initial_state_id"`
	Priority       domain.TicketPriority `json:"priority"`
	Title          string                `json:"title"`
}

// TicketStateTransitionedPayload payload. History is persisted before this
// event fires, so listeners may query the ledger for the new row.
type TicketStateTransitionedPayload struct {
	TicketID    string `json:"ticket_id"`
	FromStateID string `json:"from_state_id"`
	ToStateID   string `json:"to_state_id"`
	EventName   string `json:"event_name"`
	Completed   bool   `json:"completed"`
}

// TeamCreatedPayload payload. Consumed by the workflow service itself to
// seed the team's project workflow from the global template.
type TeamCreatedPayload struct {
	TeamID   string `json:"team_id"`
	TeamName string `json:"team_name"`
}

// AuditLogUpdatePayload payload.
type AuditLogUpdatePayload struct {
	Entity string         `json:"entity"`
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

// SLAEscalatedPayload payload.
type SLAEscalatedPayload struct {
	HistoryID string    `json:"history_id"`
	TicketID  string    `json:"ticket_id"`
	DueAt     time.Time `json:"due_at"`
}
