package workflow

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/pitabwire/crmflow/internal/observability"
	"github.com/pitabwire/crmflow/model"
)

// GetWorkflowProgress returns the progress view of one workflow, or nil and
// NOT_FOUND when the workflow doesn't exist.
func (e *Engine) GetWorkflowProgress(ctx context.Context, id string) (*model.ProgressView, error) {
	wf, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	view, err := e.Progress(wf)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Progress builds the progress view of wf. Percentage is the share of
// phases completed: (phase-1)/7*100.
func (e *Engine) Progress(wf model.Workflow) (model.ProgressView, error) {
	stage, err := e.catalog.Summary(wf.CurrentStage)
	if err != nil {
		return model.ProgressView{}, err
	}
	next, err := e.nextActions(wf.CurrentStage)
	if err != nil {
		return model.ProgressView{}, err
	}

	completed := stage.Phase - 1
	view := model.ProgressView{
		WorkflowID:          wf.ID,
		CustomerID:          wf.CustomerID,
		Priority:            wf.Priority,
		CurrentStage:        stage,
		CompletedPhases:     completed,
		ProgressPercentage:  float64(completed) / float64(model.PhaseCount) * 100,
		Blockers:            wf.OpenBlockers(),
		Milestones:          append([]model.Milestone{}, wf.Milestones...),
		NextActions:         next,
		AssignedTo:          wf.AssignedTo,
		EstimatedCompletion: wf.EstimatedCompletion,
		UpdatedAt:           wf.UpdatedAt,
	}
	if view.Blockers == nil {
		view.Blockers = []model.Blocker{}
	}
	if rs, err := e.catalog.RoleSummary(wf.AssignedRole); err == nil {
		view.AssignedRole = &rs
	}
	return view, nil
}

// GenerateDashboard aggregates every workflow into a single view and
// publishes the occupancy gauges.
func (e *Engine) GenerateDashboard(ctx context.Context) (view model.DashboardView, err error) {
	ctx, span := observability.StartSpan(ctx, "workflow.GenerateDashboard")
	defer func() { observability.EndSpanWithError(span, err) }()

	workflows, err := e.store.List(ctx, WorkflowFilters{})
	if err != nil {
		return model.DashboardView{}, err
	}

	now := e.now()
	view = model.DashboardView{
		TotalWorkflows:      len(workflows),
		ByStage:             make(map[model.StageID]int),
		ByRole:              make(map[model.RoleID]int),
		Blocked:             []string{},
		UpcomingCompletions: []model.UpcomingCompletion{},
		Bottlenecks:         []model.Bottleneck{},
		GeneratedAt:         now,
	}

	ongoing := e.catalog.OngoingStage()
	var completedTotal time.Duration
	var completedCount int

	for i := range workflows {
		wf := &workflows[i]
		view.ByStage[wf.CurrentStage]++
		if wf.AssignedRole != "" {
			view.ByRole[wf.AssignedRole]++
		}
		if len(wf.OpenBlockers()) > 0 {
			view.Blocked = append(view.Blocked, wf.ID)
		}

		remaining := wf.EstimatedCompletion.Sub(now)
		if remaining >= 0 && remaining <= e.thresholds.UpcomingWindow {
			view.UpcomingCompletions = append(view.UpcomingCompletions, model.UpcomingCompletion{
				WorkflowID:          wf.ID,
				CustomerID:          wf.CustomerID,
				Stage:               wf.CurrentStage,
				EstimatedCompletion: wf.EstimatedCompletion,
				DaysRemaining:       daysRemaining(remaining),
			})
		}

		if wf.CurrentStage == ongoing {
			if reached, ok := wf.FirstEnteredStageAt(ongoing); ok {
				completedTotal += reached.Sub(wf.CreatedAt)
				completedCount++
			}
		}
	}

	sort.SliceStable(view.UpcomingCompletions, func(i, j int) bool {
		return view.UpcomingCompletions[i].EstimatedCompletion.Before(view.UpcomingCompletions[j].EstimatedCompletion)
	})
	if completedCount > 0 {
		view.AverageCompletionTime = completedTotal / time.Duration(completedCount)
	}
	view.Bottlenecks = e.bottlenecks(view.ByStage)

	byStage := make(map[string]int, len(view.ByStage))
	for stage, n := range view.ByStage {
		byStage[string(stage)] = n
	}
	e.metrics.SetDashboard(byStage, len(view.Bottlenecks), len(view.Blocked))
	return view, nil
}

// bottlenecks returns the stages whose count exceeds BottleneckFactor times
// the mean count over occupied stages, busiest first.
func (e *Engine) bottlenecks(byStage map[model.StageID]int) []model.Bottleneck {
	out := []model.Bottleneck{}
	if len(byStage) == 0 {
		return out
	}
	total := 0
	for _, n := range byStage {
		total += n
	}
	mean := float64(total) / float64(len(byStage))
	limit := e.thresholds.BottleneckFactor * mean

	for _, def := range e.catalog.Stages() {
		n := byStage[def.ID]
		if n > 0 && float64(n) > limit {
			out = append(out, model.Bottleneck{Stage: def.ID, Count: n, Mean: mean})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// daysRemaining rounds up to whole days.
func daysRemaining(d time.Duration) int {
	return int(math.Ceil(d.Hours() / 24))
}
