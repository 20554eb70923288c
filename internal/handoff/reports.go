package handoff

import (
	"context"
	"sort"

	"github.com/pitabwire/crmflow/internal/workflow"
	"github.com/pitabwire/crmflow/model"
)

// GetUserDashboard returns the work assigned to a user, partitioned into
// overdue, urgent and blocked, or nil and NOT_FOUND for an unknown user.
func (m *Manager) GetUserDashboard(ctx context.Context, userID string) (*model.UserDashboard, error) {
	user, err := m.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	urgentWithin := m.engine.Thresholds().UrgentWithin
	dash := &model.UserDashboard{
		User:      user,
		Workflows: []model.ProgressView{},
		Overdue:   []model.ProgressView{},
		Urgent:    []model.ProgressView{},
		Blocked:   []model.ProgressView{},
		Performance: model.UserPerformance{
			ActiveWorkflows:       len(user.AssignedWorkflows),
			CompletedWorkflows:    user.CompletedWorkflows,
			AverageCompletionTime: user.AverageCompletionTime,
		},
	}

	for _, id := range user.AssignedWorkflows {
		view, err := m.engine.GetWorkflowProgress(ctx, id)
		if model.IsCode(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		dash.Workflows = append(dash.Workflows, *view)

		remaining := view.EstimatedCompletion.Sub(now)
		switch {
		case remaining < 0:
			dash.Overdue = append(dash.Overdue, *view)
		case remaining <= urgentWithin:
			dash.Urgent = append(dash.Urgent, *view)
		}
		if len(view.Blockers) > 0 {
			dash.Blocked = append(dash.Blocked, *view)
		}
	}

	unread, err := m.notifications.ListForUser(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	dash.UnreadNotifications = unread
	return dash, nil
}

// GetHandoffQueue lists every workflow that can move along a manual
// handoff rule, longest waiting first. Waiting time runs from the
// workflow's last update.
func (m *Manager) GetHandoffQueue(ctx context.Context) ([]model.HandoffQueueEntry, error) {
	workflows, err := m.engine.ListWorkflows(ctx, workflow.WorkflowFilters{})
	if err != nil {
		return nil, err
	}

	now := m.now()
	queue := []model.HandoffQueueEntry{}
	for _, wf := range workflows {
		next, err := m.catalog.NextStages(wf.CurrentStage)
		if err != nil {
			return nil, err
		}
		for _, to := range next {
			rule, ok := m.catalog.Rule(wf.CurrentStage, to)
			if !ok || rule.AutoHandoff {
				continue
			}
			queue = append(queue, model.HandoffQueueEntry{
				WorkflowID:  wf.ID,
				CustomerID:  wf.CustomerID,
				FromStage:   wf.CurrentStage,
				ToStage:     to,
				FromRole:    rule.FromRole,
				ToRole:      rule.ToRole,
				Priority:    wf.Priority,
				WaitingTime: now.Sub(wf.UpdatedAt),
			})
		}
	}

	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].WaitingTime > queue[j].WaitingTime
	})
	return queue, nil
}

// GetRoleWorkloadReport summarises assignments per role in catalog order.
func (m *Manager) GetRoleWorkloadReport(ctx context.Context) ([]model.RoleWorkload, error) {
	users, err := m.users.List(ctx)
	if err != nil {
		return nil, err
	}

	byRole := make(map[model.RoleID][]model.User)
	for _, u := range users {
		byRole[u.Role] = append(byRole[u.Role], u)
	}

	roles := m.catalog.Roles()
	report := make([]model.RoleWorkload, 0, len(roles))
	for _, role := range roles {
		w := model.RoleWorkload{Role: role.ID, RoleName: role.Name}
		for _, u := range byRole[role.ID] {
			n := len(u.AssignedWorkflows)
			w.UserCount++
			w.TotalAssigned += n
			if n > m.overloadThreshold {
				w.OverloadedUsers++
			}
		}
		if w.UserCount > 0 {
			w.AverageWorkload = float64(w.TotalAssigned) / float64(w.UserCount)
		}
		report = append(report, w)
	}
	return report, nil
}

// CanUserAdvanceWorkflow reports whether an active user may advance the
// workflow out of its current stage.
func (m *Manager) CanUserAdvanceWorkflow(ctx context.Context, userID, workflowID string) (bool, error) {
	user, err := m.users.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	wf, err := m.engine.GetWorkflow(ctx, workflowID)
	if err != nil {
		return false, err
	}
	return user.Active && user.Permissions.CanAdvance.Has(wf.CurrentStage), nil
}
