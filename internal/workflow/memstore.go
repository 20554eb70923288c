package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pitabwire/crmflow/model"
)

// MemoryWorkflowStore is an in-memory WorkflowStore. It hands out deep
// copies so callers never alias stored state.
type MemoryWorkflowStore struct {
	mu        sync.RWMutex
	workflows map[string]model.Workflow // key: workflow ID
}

// NewMemoryWorkflowStore creates a new in-memory workflow store.
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{
		workflows: make(map[string]model.Workflow),
	}
}

// Create persists a new workflow.
func (s *MemoryWorkflowStore) Create(_ context.Context, wf model.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[wf.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("workflow %q already exists", wf.ID),
		)
	}

	s.workflows[wf.ID] = wf.Clone()
	return nil
}

// Get retrieves a workflow by ID.
func (s *MemoryWorkflowStore) Get(_ context.Context, id string) (model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, exists := s.workflows[id]
	if !exists {
		return model.Workflow{}, model.NewNotFoundError(
			fmt.Sprintf("workflow %q not found", id),
		)
	}
	return wf.Clone(), nil
}

// Update persists an updated workflow with optimistic locking.
func (s *MemoryWorkflowStore) Update(_ context.Context, wf model.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.workflows[wf.ID]
	if !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("workflow %q not found", wf.ID),
		)
	}

	// Optimistic lock check.
	if existing.Version != wf.Version {
		return model.NewConflictError(
			fmt.Sprintf("workflow %q version conflict (expected %d, got %d)", wf.ID, wf.Version, existing.Version),
		)
	}

	stored := wf.Clone()
	stored.Version++
	s.workflows[wf.ID] = stored
	return nil
}

// List returns workflows matching filters ordered by creation time.
func (s *MemoryWorkflowStore) List(_ context.Context, filters WorkflowFilters) ([]model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		if !filters.matches(&wf) {
			continue
		}
		result = append(result, wf.Clone())
	}

	// Sort by created_at ascending, id as tie-break.
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	// Apply offset and limit.
	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return []model.Workflow{}, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}

	return result, nil
}

// HealthCheck always succeeds.
func (s *MemoryWorkflowStore) HealthCheck(context.Context) error { return nil }

// Len returns the total number of workflows. For testing.
func (s *MemoryWorkflowStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workflows)
}
