package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pitabwire/crmflow/model"
)

func testWorkflow(id string, stage model.StageID, role model.RoleID, created time.Time) model.Workflow {
	return model.Workflow{
		ID:           id,
		CustomerID:   "cust-" + id,
		CurrentStage: stage,
		AssignedTo:   string(role),
		AssignedRole: role,
		CreatedAt:    created,
		UpdatedAt:    created,
		Data:         map[string]any{"k": "v"},
		Version:      1,
	}
}

func TestMemoryWorkflowStore_CreateAndGet(t *testing.T) {
	store := NewMemoryWorkflowStore()
	ctx := context.Background()
	wf := testWorkflow("wf-1", model.StageLeadSubmission, model.RoleMarketingCoordinator, time.Now())

	if err := store.Create(ctx, wf); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	got, err := store.Get(ctx, "wf-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.CustomerID != "cust-wf-1" {
		t.Errorf("CustomerID = %q, want cust-wf-1", got.CustomerID)
	}
}

func TestMemoryWorkflowStore_Create_duplicate(t *testing.T) {
	store := NewMemoryWorkflowStore()
	ctx := context.Background()
	wf := testWorkflow("wf-1", model.StageLeadSubmission, model.RoleMarketingCoordinator, time.Now())
	store.Create(ctx, wf)

	err := store.Create(ctx, wf)
	if !model.IsCode(err, model.ErrConflict) {
		t.Fatalf("error = %v, want CONFLICT", err)
	}
}

func TestMemoryWorkflowStore_Get_notFound(t *testing.T) {
	store := NewMemoryWorkflowStore()

	_, err := store.Get(context.Background(), "nonexistent")
	if !model.IsCode(err, model.ErrNotFound) {
		t.Fatalf("error = %v, want NOT_FOUND", err)
	}
}

func TestMemoryWorkflowStore_isolatesCopies(t *testing.T) {
	store := NewMemoryWorkflowStore()
	ctx := context.Background()
	wf := testWorkflow("wf-1", model.StageLeadSubmission, model.RoleMarketingCoordinator, time.Now())
	store.Create(ctx, wf)

	wf.Data["k"] = "caller"
	got, _ := store.Get(ctx, "wf-1")
	got.Data["k"] = "reader"

	again, _ := store.Get(ctx, "wf-1")
	if again.Data["k"] != "v" {
		t.Errorf("Data[k] = %v, want v", again.Data["k"])
	}
}

func TestMemoryWorkflowStore_Update_optimisticLock(t *testing.T) {
	store := NewMemoryWorkflowStore()
	ctx := context.Background()
	store.Create(ctx, testWorkflow("wf-1", model.StageLeadSubmission, model.RoleMarketingCoordinator, time.Now()))

	wf, _ := store.Get(ctx, "wf-1")
	wf.Priority = model.PriorityHigh
	if err := store.Update(ctx, wf); err != nil {
		t.Fatalf("Update error: %v", err)
	}

	got, _ := store.Get(ctx, "wf-1")
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}

	// Stale write with the old version.
	err := store.Update(ctx, wf)
	if !model.IsCode(err, model.ErrConflict) {
		t.Fatalf("stale update error = %v, want CONFLICT", err)
	}
}

func TestMemoryWorkflowStore_Update_notFound(t *testing.T) {
	store := NewMemoryWorkflowStore()

	err := store.Update(context.Background(), testWorkflow("ghost", model.StageLeadSubmission, "", time.Now()))
	if !model.IsCode(err, model.ErrNotFound) {
		t.Fatalf("error = %v, want NOT_FOUND", err)
	}
}

func TestMemoryWorkflowStore_List(t *testing.T) {
	store := NewMemoryWorkflowStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	store.Create(ctx, testWorkflow("c", model.StageLeadScoring, model.RoleMarketingCoordinator, base.Add(2*time.Hour)))
	store.Create(ctx, testWorkflow("a", model.StageSalesAssignment, model.RoleSalesManager, base))
	store.Create(ctx, testWorkflow("b", model.StageLeadScoring, model.RoleMarketingCoordinator, base.Add(time.Hour)))

	tests := []struct {
		name    string
		filters WorkflowFilters
		want    []string
	}{
		{"all oldest first", WorkflowFilters{}, []string{"a", "b", "c"}},
		{"by stage", WorkflowFilters{Stage: model.StageLeadScoring}, []string{"b", "c"}},
		{"by role", WorkflowFilters{Role: model.RoleSalesManager}, []string{"a"}},
		{"by assignee", WorkflowFilters{AssignedTo: "marketing_coordinator"}, []string{"b", "c"}},
		{"limit", WorkflowFilters{Limit: 2}, []string{"a", "b"}},
		{"offset", WorkflowFilters{Offset: 1}, []string{"b", "c"}},
		{"offset past end", WorkflowFilters{Offset: 5}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, tt.filters)
			if err != nil {
				t.Fatalf("List error: %v", err)
			}
			ids := make([]string, len(got))
			for i, wf := range got {
				ids[i] = wf.ID
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.want) {
				t.Errorf("ids = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestMemoryWorkflowStore_Len(t *testing.T) {
	store := NewMemoryWorkflowStore()
	ctx := context.Background()

	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
	store.Create(ctx, testWorkflow("wf-1", model.StageLeadSubmission, "", time.Now()))
	store.Create(ctx, testWorkflow("wf-2", model.StageLeadSubmission, "", time.Now()))
	if store.Len() != 2 {
		t.Errorf("Len() = %d, want 2", store.Len())
	}
}
