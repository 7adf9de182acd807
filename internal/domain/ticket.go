package domain

import "time"

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Ticket is a work item whose lifecycle is driven by one workflow.
// CurrentStateID always references a state of WorkflowID. IsNew holds
// until the first state change; IsCompleted mirrors the finality of the
// current state. IsDeleted is a soft-delete marker; soft-deleted tickets
// no longer block workflow deletion.
type Ticket struct {
	ID             string
	ExternalKey    string
	WorkflowID     string
	CurrentStateID string
	Title          string
	Description    string
	Priority       TicketPriority
	Tags           []string
	IsNew          bool
	IsCompleted    bool
	IsDeleted      bool
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
