package domain

import "time"

// TransitionStatus tracks the SLA lifecycle of a history row.
type TransitionStatus string

const (
	TransitionInProgress TransitionStatus = "IN_PROGRESS"
	TransitionCompleted  TransitionStatus = "COMPLETED"
	TransitionEscalated  TransitionStatus = "ESCALATED"
)

// TransitionHistory is an append-only ledger row recording one state
// change of a ticket. FromStateID is nil on ticket creation; SLADueAt is
// nil when the matched transition carries no SLA. Rows are never deleted;
// the only mutation is IN_PROGRESS -> ESCALATED by the escalation sweep.
type TransitionHistory struct {
	ID             string
	TicketID       string
	FromStateID    *string
	ToStateID      string
	EventName      string
	TransitionedAt time.Time
	SLADueAt       *time.Time
	Status         TransitionStatus
}
