package workflow

import (
	"context"

	"github.com/pitabwire/crmflow/model"
)

// WorkflowStore persists pipeline workflows.
type WorkflowStore interface {
	// Create persists a new workflow. Returns CONFLICT if the id is taken.
	Create(ctx context.Context, wf model.Workflow) error

	// Get retrieves a workflow by ID. Returns NOT_FOUND if it doesn't exist.
	Get(ctx context.Context, id string) (model.Workflow, error)

	// Update persists an updated workflow with optimistic locking.
	// The version must match the current stored version. Returns CONFLICT if
	// the version has changed.
	Update(ctx context.Context, wf model.Workflow) error

	// List returns workflows matching filters, oldest first.
	List(ctx context.Context, filters WorkflowFilters) ([]model.Workflow, error)

	// HealthCheck reports whether the backing store is reachable.
	HealthCheck(ctx context.Context) error
}

// WorkflowFilters are optional filters for listing workflows. Zero values
// match everything.
type WorkflowFilters struct {
	Stage      model.StageID
	Role       model.RoleID
	AssignedTo string
	Limit      int
	Offset     int
}

func (f WorkflowFilters) matches(wf *model.Workflow) bool {
	if f.Stage != "" && wf.CurrentStage != f.Stage {
		return false
	}
	if f.Role != "" && wf.AssignedRole != f.Role {
		return false
	}
	if f.AssignedTo != "" && wf.AssignedTo != f.AssignedTo {
		return false
	}
	return true
}
