// Package workflow drives customer workflows through the stage catalog:
// legal transitions, history, milestones, blockers and the aggregate views
// built from them.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/crmflow/internal/catalog"
	"github.com/pitabwire/crmflow/internal/observability"
	"github.com/pitabwire/crmflow/model"
)

// Thresholds are the dashboard cut-offs. They are configuration, not
// derived from data.
type Thresholds struct {
	// UrgentWithin marks a workflow urgent when its estimated completion is
	// no further away than this.
	UrgentWithin time.Duration
	// UpcomingWindow bounds the upcoming-completions list.
	UpcomingWindow time.Duration
	// BottleneckFactor flags a stage holding more than factor times the mean
	// occupancy of occupied stages.
	BottleneckFactor float64
}

// DefaultThresholds returns 3 days, 7 days and 1.5.
func DefaultThresholds() Thresholds {
	return Thresholds{
		UrgentWithin:     72 * time.Hour,
		UpcomingWindow:   7 * 24 * time.Hour,
		BottleneckFactor: 1.5,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics enables Prometheus recording.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the UUID generator used for workflow and blocker ids.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithThresholds overrides DefaultThresholds.
func WithThresholds(t Thresholds) Option {
	return func(e *Engine) { e.thresholds = t }
}

// WithTuning sets the registry consulted for completion estimates and
// milestone stages.
func WithTuning(r *catalog.TuningRegistry) Option {
	return func(e *Engine) { e.tuning = r }
}

// Engine manages the lifecycle of pipeline workflows.
type Engine struct {
	catalog    *catalog.Catalog
	store      WorkflowStore
	tuning     *catalog.TuningRegistry
	thresholds Thresholds
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
	newID      func() string
	locks      *keyedMutex
}

// NewEngine creates a new workflow engine.
func NewEngine(cat *catalog.Catalog, store WorkflowStore, opts ...Option) *Engine {
	e := &Engine{
		catalog:    cat,
		store:      store,
		thresholds: DefaultThresholds(),
		logger:     zap.NewNop(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
		locks:      newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tuning == nil {
		e.tuning = catalog.NewTuningRegistry(catalog.DefaultTuning())
	}
	return e
}

// Catalog returns the stage catalog the engine validates against.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Thresholds returns the dashboard cut-offs in effect.
func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.now() }

// CreateWorkflow starts a workflow for customerID at the initial stage.
func (e *Engine) CreateWorkflow(ctx context.Context, customerID string, initialData map[string]any) (wf model.Workflow, err error) {
	ctx, span := observability.StartSpan(ctx, "workflow.Create",
		observability.AttrCustomerID.String(customerID),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	// 1. Look up the initial stage.
	initial := e.catalog.InitialStage()
	def, err := e.catalog.Definition(initial)
	if err != nil {
		return model.Workflow{}, err
	}

	// 2. Copy the seed data and pick the priority.
	data := make(map[string]any, len(initialData))
	for k, v := range initialData {
		data[k] = v
	}
	priority := model.PriorityNormal
	if p, ok := data["priority"].(string); ok && model.ValidPriority(p) {
		priority = p
	}

	// 3. Build the workflow with its creation history entry.
	now := e.now()
	wf = model.Workflow{
		ID:           e.newID(),
		CustomerID:   customerID,
		CurrentStage: initial,
		CreatedAt:    now,
		UpdatedAt:    now,
		History: []model.StageTransition{
			{To: initial, Timestamp: now, Notes: "Workflow created"},
		},
		NextActions:         def.NextActions,
		AssignedTo:          string(def.ResponsibleRole),
		AssignedRole:        def.ResponsibleRole,
		Priority:            priority,
		Data:                data,
		EstimatedCompletion: now.AddDate(0, 0, e.tuning.Current().EstimateDays(initial)),
		Version:             1,
	}

	// 4. Persist.
	if err := e.store.Create(ctx, wf); err != nil {
		return model.Workflow{}, err
	}

	e.metrics.RecordWorkflowCreated()
	observability.LoggerFrom(ctx, e.logger).Info("workflow created",
		zap.String("workflow_id", wf.ID),
		zap.String("customer_id", customerID),
		zap.String("stage", string(initial)),
	)
	return wf, nil
}

// AdvanceWorkflow moves a workflow to target, which must be one of the
// current stage's next actions.
func (e *Engine) AdvanceWorkflow(
	ctx context.Context,
	id string,
	target model.StageID,
	completionData map[string]any,
	notes string,
) (wf model.Workflow, err error) {
	ctx, span := observability.StartSpan(ctx, "workflow.Advance",
		observability.AttrWorkflowID.String(id),
		observability.AttrTargetStage.String(string(target)),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	var from model.StageID
	var dwell time.Duration

	wf, err = e.mutate(ctx, id, func(wf *model.Workflow) error {
		from = wf.CurrentStage
		span.SetAttributes(observability.AttrStage.String(string(from)))

		// 1. Validate the transition.
		current, err := e.catalog.Definition(from)
		if err != nil {
			return err
		}
		if !current.Allows(target) {
			return model.NewInvalidTransitionError(from, target)
		}
		next, err := e.catalog.Definition(target)
		if err != nil {
			return err
		}

		// 2. Record history with the time spent in the stage being left.
		now := e.now()
		if entered, ok := wf.EnteredStageAt(from); ok {
			dwell = now.Sub(entered)
		}
		prev := from
		wf.History = append(wf.History, model.StageTransition{
			From:      &prev,
			To:        target,
			Timestamp: now,
			Notes:     notes,
			Duration:  dwell,
		})

		// 3. Merge completion data; later keys win.
		if wf.Data == nil && len(completionData) > 0 {
			wf.Data = make(map[string]any, len(completionData))
		}
		for k, v := range completionData {
			wf.Data[k] = v
		}

		// 4. Enter the new stage.
		tuning := e.tuning.Current()
		wf.CurrentStage = target
		wf.NextActions = next.NextActions
		wf.AssignedTo = string(next.ResponsibleRole)
		wf.AssignedRole = next.ResponsibleRole
		wf.UpdatedAt = now
		wf.EstimatedCompletion = now.AddDate(0, 0, tuning.EstimateDays(target))
		if tuning.IsMilestone(target) {
			wf.Milestones = append(wf.Milestones, model.Milestone{
				Name:        next.Name,
				Stage:       target,
				CompletedAt: now,
			})
		}
		return nil
	})
	if err != nil {
		return model.Workflow{}, err
	}

	e.metrics.RecordWorkflowAdvance(string(from), string(target), dwell)
	observability.LoggerFrom(ctx, e.logger).Info("workflow advanced",
		zap.String("workflow_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
		zap.Duration("dwell", dwell),
	)
	return wf, nil
}

// AddBlocker attaches an open blocker to a workflow. Severity defaults to
// medium.
func (e *Engine) AddBlocker(ctx context.Context, id, description, severity string) (b model.Blocker, err error) {
	ctx, span := observability.StartSpan(ctx, "workflow.AddBlocker",
		observability.AttrWorkflowID.String(id),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	if severity == "" {
		severity = model.SeverityMedium
	}
	if !validSeverity(severity) {
		return model.Blocker{}, model.NewBadRequestError(fmt.Sprintf("unknown blocker severity %q", severity))
	}

	_, err = e.mutate(ctx, id, func(wf *model.Workflow) error {
		now := e.now()
		b = model.Blocker{
			ID:          e.newID(),
			Description: description,
			Severity:    severity,
			CreatedAt:   now,
		}
		wf.Blockers = append(wf.Blockers, b)
		wf.UpdatedAt = now
		return nil
	})
	if err != nil {
		return model.Blocker{}, err
	}

	e.metrics.RecordBlocker("added", severity)
	observability.LoggerFrom(ctx, e.logger).Info("blocker added",
		zap.String("workflow_id", id),
		zap.String("blocker_id", b.ID),
		zap.String("severity", severity),
	)
	return b, nil
}

// ResolveBlocker closes a blocker and stamps its resolution time.
func (e *Engine) ResolveBlocker(ctx context.Context, id, blockerID, resolution string) (b model.Blocker, err error) {
	ctx, span := observability.StartSpan(ctx, "workflow.ResolveBlocker",
		observability.AttrWorkflowID.String(id),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	_, err = e.mutate(ctx, id, func(wf *model.Workflow) error {
		for i := range wf.Blockers {
			if wf.Blockers[i].ID != blockerID {
				continue
			}
			if wf.Blockers[i].Resolved {
				return model.NewConflictError(fmt.Sprintf("blocker %q is already resolved", blockerID))
			}
			now := e.now()
			wf.Blockers[i].Resolved = true
			wf.Blockers[i].Resolution = resolution
			wf.Blockers[i].ResolvedAt = &now
			wf.UpdatedAt = now
			b = wf.Blockers[i]
			return nil
		}
		return model.NewNotFoundError(fmt.Sprintf("blocker %q not found on workflow %q", blockerID, id))
	})
	if err != nil {
		return model.Blocker{}, err
	}

	e.metrics.RecordBlocker("resolved", b.Severity)
	observability.LoggerFrom(ctx, e.logger).Info("blocker resolved",
		zap.String("workflow_id", id),
		zap.String("blocker_id", blockerID),
	)
	return b, nil
}

// SetPriority changes the priority of a workflow.
func (e *Engine) SetPriority(ctx context.Context, id, priority string) (model.Workflow, error) {
	if !model.ValidPriority(priority) {
		return model.Workflow{}, model.NewBadRequestError(fmt.Sprintf("unknown priority %q", priority))
	}
	return e.mutate(ctx, id, func(wf *model.Workflow) error {
		wf.Priority = priority
		wf.UpdatedAt = e.now()
		return nil
	})
}

// Update applies fn to a workflow under its lock and persists the result.
// fn may change assignment, priority and data but not the stage; stage
// changes go through AdvanceWorkflow.
func (e *Engine) Update(ctx context.Context, id string, fn func(*model.Workflow) error) (wf model.Workflow, err error) {
	ctx, span := observability.StartSpan(ctx, "workflow.Update",
		observability.AttrWorkflowID.String(id),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	return e.mutate(ctx, id, func(wf *model.Workflow) error {
		stage, entries := wf.CurrentStage, len(wf.History)
		if err := fn(wf); err != nil {
			return err
		}
		if wf.CurrentStage != stage || len(wf.History) != entries {
			return model.NewBadRequestError("stage changes must go through AdvanceWorkflow")
		}
		wf.UpdatedAt = e.now()
		return nil
	})
}

// GetWorkflow returns a workflow by ID.
func (e *Engine) GetWorkflow(ctx context.Context, id string) (model.Workflow, error) {
	return e.store.Get(ctx, id)
}

// ListWorkflows returns workflows matching filters.
func (e *Engine) ListWorkflows(ctx context.Context, filters WorkflowFilters) ([]model.Workflow, error) {
	return e.store.List(ctx, filters)
}

// GetWorkflowsByStage returns the workflows currently in stage.
func (e *Engine) GetWorkflowsByStage(ctx context.Context, stage model.StageID) ([]model.Workflow, error) {
	if !e.catalog.HasStage(stage) {
		return nil, model.NewUnknownStageError(stage)
	}
	return e.store.List(ctx, WorkflowFilters{Stage: stage})
}

// GetWorkflowsByRole returns the workflows currently assigned to role.
func (e *Engine) GetWorkflowsByRole(ctx context.Context, role model.RoleID) ([]model.Workflow, error) {
	if _, err := e.catalog.Role(role); err != nil {
		return nil, err
	}
	return e.store.List(ctx, WorkflowFilters{Role: role})
}

// GetNextActions describes the legal successors of a workflow's current stage.
func (e *Engine) GetNextActions(ctx context.Context, id string) ([]model.NextAction, error) {
	wf, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.nextActions(wf.CurrentStage)
}

// mutate runs a read-modify-write cycle on one workflow while holding its
// lock. The returned workflow carries the version the store now holds.
func (e *Engine) mutate(ctx context.Context, id string, fn func(*model.Workflow) error) (model.Workflow, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	wf, err := e.store.Get(ctx, id)
	if err != nil {
		return model.Workflow{}, err
	}
	if err := fn(&wf); err != nil {
		return model.Workflow{}, err
	}
	if err := e.store.Update(ctx, wf); err != nil {
		return model.Workflow{}, err
	}
	wf.Version++
	return wf, nil
}

func (e *Engine) nextActions(stage model.StageID) ([]model.NextAction, error) {
	ids, err := e.catalog.NextStages(stage)
	if err != nil {
		return nil, err
	}
	actions := make([]model.NextAction, 0, len(ids))
	for _, id := range ids {
		def, err := e.catalog.Definition(id)
		if err != nil {
			return nil, err
		}
		actions = append(actions, model.NextAction{
			Stage:             def.ID,
			Name:              def.Name,
			Description:       def.Description,
			ResponsibleRole:   def.ResponsibleRole,
			EstimatedDuration: def.EstimatedDuration,
		})
	}
	return actions, nil
}

func validSeverity(s string) bool {
	switch s {
	case model.SeverityLow, model.SeverityMedium, model.SeverityHigh, model.SeverityCritical:
		return true
	}
	return false
}
