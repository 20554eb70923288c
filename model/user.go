package model

import "time"

// Notification types emitted by the handoff manager.
const (
	NotificationWorkflowAssigned  = "workflow_assigned"
	NotificationWorkflowHandedOff = "workflow_handed_off"
	NotificationWorkflowReceived  = "workflow_received"
	NotificationHandoffApproval   = "handoff_approval_required"
	NotificationHandoffRejected   = "handoff_rejected"
)

// Handoff request statuses.
const (
	HandoffPending  = "pending"
	HandoffApproved = "approved"
	HandoffRejected = "rejected"
)

// Handoff result statuses.
const (
	HandoffCompleted       = "completed"
	HandoffPendingApproval = "pending_approval"
	HandoffNotRequired     = "not_required"
)

// User is a member of staff who can be assigned workflows.
type User struct {
	ID                    string        `json:"id"`
	Name                  string        `json:"name"`
	Role                  RoleID        `json:"role"`
	Email                 string        `json:"email"`
	Department            string        `json:"department"`
	Permissions           Permissions   `json:"permissions"`
	Active                bool          `json:"active"`
	CreatedAt             time.Time     `json:"created_at"`
	LastActive            time.Time     `json:"last_active"`
	AssignedWorkflows     []string      `json:"assigned_workflows"`
	CompletedWorkflows    int           `json:"completed_workflows"`
	AverageCompletionTime time.Duration `json:"average_completion_time"`
	Version               int           `json:"version"`
}

// HasWorkflow reports whether workflowID is in the user's assignment set.
func (u *User) HasWorkflow(workflowID string) bool {
	for _, id := range u.AssignedWorkflows {
		if id == workflowID {
			return true
		}
	}
	return false
}

// AddWorkflow adds workflowID to the assignment set if it is not already there.
func (u *User) AddWorkflow(workflowID string) {
	if !u.HasWorkflow(workflowID) {
		u.AssignedWorkflows = append(u.AssignedWorkflows, workflowID)
	}
}

// RemoveWorkflow drops workflowID from the assignment set.
func (u *User) RemoveWorkflow(workflowID string) bool {
	for i, id := range u.AssignedWorkflows {
		if id == workflowID {
			u.AssignedWorkflows = append(u.AssignedWorkflows[:i:i], u.AssignedWorkflows[i+1:]...)
			return true
		}
	}
	return false
}

// RecordCompletion folds a completion sample into the running statistics
// using the incremental mean avg' = (avg*(n-1) + sample) / n.
func (u *User) RecordCompletion(sample time.Duration) {
	u.CompletedWorkflows++
	n := time.Duration(u.CompletedWorkflows)
	u.AverageCompletionTime = (u.AverageCompletionTime*(n-1) + sample) / n
}

// Clone returns a deep copy of the user.
func (u User) Clone() User {
	out := u
	out.Permissions = u.Permissions.Clone()
	if u.AssignedWorkflows != nil {
		out.AssignedWorkflows = append([]string(nil), u.AssignedWorkflows...)
	}
	return out
}

// Notification is a message delivered to a single user.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Read      bool           `json:"read"`
}

// HandoffRequest is a manual handoff awaiting approval.
type HandoffRequest struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	FromStage   StageID        `json:"from_stage"`
	ToStage     StageID        `json:"to_stage"`
	FromUser    string         `json:"from_user,omitempty"`
	RequestedAt time.Time      `json:"requested_at"`
	Data        map[string]any `json:"data,omitempty"`
	Status      string         `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	DecidedBy   string         `json:"decided_by,omitempty"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
}

// HandoffResult reports the outcome of a handoff attempt.
type HandoffResult struct {
	Status   string          `json:"status"`
	FromUser string          `json:"from_user,omitempty"`
	ToUser   string          `json:"to_user,omitempty"`
	Request  *HandoffRequest `json:"request,omitempty"`
}
