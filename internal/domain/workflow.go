package domain

import "time"

// WorkflowVisibility controls whether a workflow can be shared across teams.
type WorkflowVisibility string

const (
	VisibilityPrivate WorkflowVisibility = "PRIVATE"
	VisibilityTeam    WorkflowVisibility = "TEAM"
	VisibilityPublic  WorkflowVisibility = "PUBLIC"
)

// Workflow is a named state-machine template applied to tickets.
// OwnerTeamID is nil for global templates shared across teams. A nil
// escalation level means no escalation is configured for that level.
type Workflow struct {
	ID               string
	Name             string
	Description      string
	RequestLabel     string
	OwnerTeamID      *string
	Visibility       WorkflowVisibility
	EscalationLevel1 *time.Duration
	EscalationLevel2 *time.Duration
	EscalationLevel3 *time.Duration
	Tags             []string
	UseForProject    bool
	ClonedFromGlobal bool
	ParentWorkflowID *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsGlobal reports whether the workflow is a team-less shared template.
func (w *Workflow) IsGlobal() bool {
	return w.OwnerTeamID == nil
}

// IsShareable reports whether other teams may clone or reference it.
func (w *Workflow) IsShareable() bool {
	return w.Visibility == VisibilityTeam || w.Visibility == VisibilityPublic
}

// IsReference reports whether the workflow reuses its parent's graph
// instead of owning a copy.
func (w *Workflow) IsReference() bool {
	return w.ParentWorkflowID != nil && !w.ClonedFromGlobal
}

// WorkflowTeamLink associates a workflow with a team. A workflow may be
// linked to several teams independent of its owner.
type WorkflowTeamLink struct {
	WorkflowID string
	TeamID     string
	CreatedAt  time.Time
}
