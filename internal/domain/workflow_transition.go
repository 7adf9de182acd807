package domain

import "time"

// WorkflowTransition is a directed edge between two states of the same
// workflow. SLA is nil when the transition carries no deadline; the unit
// is hours throughout the service.
type WorkflowTransition struct {
	ID                  string
	WorkflowID          string
	FromStateID         string
	ToStateID           string
	EventName           string
	SLA                 *time.Duration
	EscalateOnViolation bool
}

// HasSLA reports whether the transition declares a positive SLA duration.
func (t *WorkflowTransition) HasSLA() bool {
	return t.SLA != nil && *t.SLA > 0
}
