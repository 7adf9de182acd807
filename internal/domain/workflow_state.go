package domain

// WorkflowState is a node in a workflow graph. A workflow may declare
// several initial states; finality is purely flag-driven.
type WorkflowState struct {
	ID         string
	WorkflowID string
	Name       string
	IsInitial  bool
	IsFinal    bool
}
