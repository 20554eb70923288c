package handoff

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pitabwire/crmflow/internal/observability"
	"github.com/pitabwire/crmflow/model"
)

// Handoff modes, as recorded in metrics and spans.
const (
	modeAuto   = "auto"
	modeManual = "manual"
)

// ExecuteHandoff moves a workflow crossing from->to to the least-loaded
// active user of the receiving role. Transitions without a rule, or whose
// rule is not automatic, open a pending HandoffRequest instead and leave
// the assignment untouched. The workflow must be at from or to. Every
// check runs before anything is written.
func (m *Manager) ExecuteHandoff(
	ctx context.Context,
	workflowID string,
	from, to model.StageID,
	handoffData map[string]any,
) (res model.HandoffResult, err error) {
	ctx, span := observability.StartSpan(ctx, "handoff.Execute",
		observability.AttrWorkflowID.String(workflowID),
		observability.AttrStage.String(string(from)),
		observability.AttrTargetStage.String(string(to)),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	// 1. Validate stages and load the workflow.
	for _, s := range []model.StageID{from, to} {
		if !m.catalog.HasStage(s) {
			return model.HandoffResult{}, model.NewUnknownStageError(s)
		}
	}
	wf, err := m.engine.GetWorkflow(ctx, workflowID)
	if err != nil {
		return model.HandoffResult{}, err
	}
	if wf.CurrentStage != from && wf.CurrentStage != to {
		return model.HandoffResult{}, &model.ErrorEnvelope{
			Code:    model.ErrInvalidTransition,
			Message: fmt.Sprintf("workflow %q is at %q, not at %q or %q",
				wf.ID, wf.CurrentStage, from, to),
		}
	}

	// 2. Manual path.
	rule, ok := m.catalog.Rule(from, to)
	if !ok || !rule.AutoHandoff {
		span.SetAttributes(observability.AttrHandoffMode.String(modeManual))
		toRole := rule.ToRole
		if !ok {
			def, err := m.catalog.Definition(to)
			if err != nil {
				return model.HandoffResult{}, err
			}
			toRole = def.ResponsibleRole
		}
		return m.requestApprovalLocked(ctx, wf, from, to, toRole, handoffData)
	}

	// 3. Rule-driven path.
	span.SetAttributes(
		observability.AttrHandoffMode.String(modeAuto),
		observability.AttrRole.String(string(rule.ToRole)),
	)
	res, err = m.handoffLocked(ctx, wf, from, to, rule, handoffData)
	m.recordOutcome(modeAuto, err)
	return res, err
}

// handoffLocked validates and applies a reassignment to rule.ToRole.
func (m *Manager) handoffLocked(
	ctx context.Context,
	wf model.Workflow,
	from, to model.StageID,
	rule model.HandoffRule,
	handoffData map[string]any,
) (model.HandoffResult, error) {
	// 1. Required fields, from the workflow or the supplied data.
	if missing := missingFields(rule.RequiredData, wf.Data, handoffData); len(missing) > 0 {
		return model.HandoffResult{}, model.NewMissingFieldsError(missing)
	}

	// 2. Receiving user.
	target, err := m.findAvailableUserLocked(ctx, rule.ToRole)
	if err != nil {
		return model.HandoffResult{}, err
	}
	if err := checkCanView(target, wf.CurrentStage); err != nil {
		return model.HandoffResult{}, err
	}

	// 3. Outgoing user, if anyone holds the workflow.
	outgoing, err := m.holderLocked(ctx, wf.ID)
	if err != nil {
		return model.HandoffResult{}, err
	}

	// 4. Apply.
	if err := m.reassignLocked(ctx, wf, outgoing, target, from, handoffData); err != nil {
		return model.HandoffResult{}, err
	}

	res := model.HandoffResult{Status: model.HandoffCompleted, ToUser: target.ID}
	if outgoing != nil && outgoing.ID != target.ID {
		res.FromUser = outgoing.ID
		m.notifyLocked(ctx, outgoing.ID, model.NotificationWorkflowHandedOff, map[string]any{
			"workflow_id": wf.ID,
			"to_user":     target.ID,
			"from_stage":  string(from),
			"to_stage":    string(to),
			"template":    rule.NotificationTemplate,
		})
	}
	m.notifyLocked(ctx, target.ID, model.NotificationWorkflowReceived, map[string]any{
		"workflow_id": wf.ID,
		"from_user":   res.FromUser,
		"from_stage":  string(from),
		"to_stage":    string(to),
		"template":    rule.NotificationTemplate,
	})

	observability.LoggerFrom(ctx, m.logger).Info("workflow handed off",
		zap.String("workflow_id", wf.ID),
		zap.String("from_stage", string(from)),
		zap.String("to_stage", string(to)),
		zap.String("from_user", res.FromUser),
		zap.String("to_user", target.ID),
	)
	return res, nil
}

// reassignLocked moves wf from outgoing (may be nil) to target. When
// fromStage is set the outgoing user is credited with a completion sampled
// as the time since the workflow entered fromStage. Users already written
// are restored if a later write fails.
func (m *Manager) reassignLocked(
	ctx context.Context,
	wf model.Workflow,
	outgoing *model.User,
	target model.User,
	fromStage model.StageID,
	extraData map[string]any,
) error {
	now := m.now()
	var written []model.User

	if outgoing != nil && outgoing.ID != target.ID {
		original := outgoing.Clone()
		out := outgoing.Clone()
		out.RemoveWorkflow(wf.ID)
		if fromStage != "" {
			entered, ok := wf.EnteredStageAt(fromStage)
			if !ok {
				entered = wf.CreatedAt
			}
			out.RecordCompletion(now.Sub(entered))
		}
		if err := m.users.Update(ctx, out); err != nil {
			return err
		}
		written = append(written, original)
	}

	original := target.Clone()
	target.AddWorkflow(wf.ID)
	target.LastActive = now
	if err := m.users.Update(ctx, target); err != nil {
		m.restoreLocked(ctx, written)
		return err
	}
	written = append(written, original)

	_, err := m.engine.Update(ctx, wf.ID, func(w *model.Workflow) error {
		w.AssignedTo = target.ID
		w.AssignedRole = target.Role
		if len(extraData) > 0 && w.Data == nil {
			w.Data = make(map[string]any, len(extraData))
		}
		for k, v := range extraData {
			w.Data[k] = v
		}
		return nil
	})
	if err != nil {
		m.restoreLocked(ctx, written)
		return err
	}

	m.notifyLocked(ctx, target.ID, model.NotificationWorkflowAssigned, map[string]any{
		"workflow_id": wf.ID,
		"customer_id": wf.CustomerID,
		"stage":       string(wf.CurrentStage),
	})
	observability.LoggerFrom(ctx, m.logger).Debug("workflow assigned",
		zap.String("workflow_id", wf.ID),
		zap.String("user_id", target.ID),
		zap.String("role", string(target.Role)),
		zap.Any("data", observability.RedactBody(extraData, nil)),
	)
	return nil
}

// restoreLocked writes back user snapshots taken before a failed
// reassignment.
func (m *Manager) restoreLocked(ctx context.Context, originals []model.User) {
	for _, orig := range originals {
		current, err := m.users.Get(ctx, orig.ID)
		if err == nil {
			orig.Version = current.Version
			err = m.users.Update(ctx, orig)
		}
		if err != nil {
			observability.LoggerFrom(ctx, m.logger).Error("user restore failed",
				zap.String("user_id", orig.ID),
				zap.Error(err),
			)
		}
	}
}

// requestApprovalLocked opens (or returns the existing) pending request for
// the transition and notifies a manager of toRole.
func (m *Manager) requestApprovalLocked(
	ctx context.Context,
	wf model.Workflow,
	from, to model.StageID,
	toRole model.RoleID,
	handoffData map[string]any,
) (model.HandoffResult, error) {
	for _, id := range m.requestOrder {
		req := m.requests[id]
		if req.Status == model.HandoffPending && req.WorkflowID == wf.ID && req.FromStage == from && req.ToStage == to {
			cp := cloneRequest(*req)
			return model.HandoffResult{Status: model.HandoffPendingApproval, FromUser: cp.FromUser, Request: &cp}, nil
		}
	}

	holder, err := m.holderLocked(ctx, wf.ID)
	if err != nil {
		return model.HandoffResult{}, err
	}
	managerRole := m.catalog.ManagerOf(toRole)
	approver, err := m.findAvailableUserLocked(ctx, managerRole)
	if err != nil && !model.IsCode(err, model.ErrNoAvailableUser) {
		return model.HandoffResult{}, err
	}
	hasApprover := err == nil

	req := &model.HandoffRequest{
		ID:          m.newID(),
		WorkflowID:  wf.ID,
		FromStage:   from,
		ToStage:     to,
		RequestedAt: m.now(),
		Data:        copyData(handoffData),
		Status:      model.HandoffPending,
	}
	if holder != nil {
		req.FromUser = holder.ID
	}
	m.requests[req.ID] = req
	m.requestOrder = append(m.requestOrder, req.ID)

	logger := observability.LoggerFrom(ctx, m.logger)
	if hasApprover {
		m.notifyLocked(ctx, approver.ID, model.NotificationHandoffApproval, map[string]any{
			"request_id":  req.ID,
			"workflow_id": wf.ID,
			"customer_id": wf.CustomerID,
			"from_stage":  string(from),
			"to_stage":    string(to),
			"to_role":     string(toRole),
		})
	} else {
		logger.Warn("no manager available to approve handoff",
			zap.String("request_id", req.ID),
			zap.String("workflow_id", wf.ID),
			zap.String("manager_role", string(managerRole)),
		)
	}
	logger.Info("handoff awaiting approval",
		zap.String("request_id", req.ID),
		zap.String("workflow_id", wf.ID),
		zap.String("from_stage", string(from)),
		zap.String("to_stage", string(to)),
	)
	m.metrics.RecordHandoff(modeManual, "pending")

	cp := cloneRequest(*req)
	return model.HandoffResult{Status: model.HandoffPendingApproval, FromUser: req.FromUser, Request: &cp}, nil
}

// ApproveHandoff carries out a pending request. The approver must be an
// active user with the assign permission. Required fields and user
// availability are still enforced; on failure the request stays pending.
func (m *Manager) ApproveHandoff(ctx context.Context, requestID, approverID string) (res model.HandoffResult, err error) {
	ctx, span := observability.StartSpan(ctx, "handoff.Approve",
		observability.AttrUserID.String(approverID),
		observability.AttrHandoffMode.String(modeManual),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.decideLocked(ctx, requestID, approverID)
	if err != nil {
		return model.HandoffResult{}, err
	}
	span.SetAttributes(observability.AttrWorkflowID.String(req.WorkflowID))

	wf, err := m.engine.GetWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return model.HandoffResult{}, err
	}
	if wf.CurrentStage != req.FromStage && wf.CurrentStage != req.ToStage {
		return model.HandoffResult{}, model.NewConflictError(fmt.Sprintf(
			"workflow %q moved to %q since the request was opened", wf.ID, wf.CurrentStage))
	}
	rule, ok := m.catalog.Rule(req.FromStage, req.ToStage)
	if !ok {
		def, err := m.catalog.Definition(req.ToStage)
		if err != nil {
			return model.HandoffResult{}, err
		}
		rule = model.HandoffRule{ToRole: def.ResponsibleRole}
	}

	res, err = m.handoffLocked(ctx, wf, req.FromStage, req.ToStage, rule, req.Data)
	if err != nil {
		m.recordOutcome(modeManual, err)
		return model.HandoffResult{}, err
	}

	now := m.now()
	req.Status = model.HandoffApproved
	req.DecidedBy = approverID
	req.DecidedAt = &now
	m.metrics.RecordHandoff(modeManual, "approved")

	cp := cloneRequest(*req)
	res.Request = &cp
	return res, nil
}

// RejectHandoff closes a pending request without reassigning and tells the
// requesting user why.
func (m *Manager) RejectHandoff(ctx context.Context, requestID, approverID, reason string) (model.HandoffRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.decideLocked(ctx, requestID, approverID)
	if err != nil {
		return model.HandoffRequest{}, err
	}

	now := m.now()
	req.Status = model.HandoffRejected
	req.Reason = reason
	req.DecidedBy = approverID
	req.DecidedAt = &now
	m.metrics.RecordHandoff(modeManual, "rejected")

	if req.FromUser != "" {
		m.notifyLocked(ctx, req.FromUser, model.NotificationHandoffRejected, map[string]any{
			"request_id":  req.ID,
			"workflow_id": req.WorkflowID,
			"reason":      reason,
		})
	}
	observability.LoggerFrom(ctx, m.logger).Info("handoff rejected",
		zap.String("request_id", req.ID),
		zap.String("workflow_id", req.WorkflowID),
		zap.String("decided_by", approverID),
	)
	return cloneRequest(*req), nil
}

// decideLocked loads a pending request and checks the approver.
func (m *Manager) decideLocked(ctx context.Context, requestID, approverID string) (*model.HandoffRequest, error) {
	req, ok := m.requests[requestID]
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("handoff request %q not found", requestID))
	}
	if req.Status != model.HandoffPending {
		return nil, model.NewConflictError(fmt.Sprintf("handoff request %q is already %s", requestID, req.Status))
	}
	approver, err := m.users.Get(ctx, approverID)
	if err != nil {
		return nil, err
	}
	if !approver.Active || !approver.Permissions.CanAssign {
		return nil, model.NewPermissionDeniedError(
			fmt.Sprintf("user %q cannot decide handoff requests", approverID),
		)
	}
	return req, nil
}

// PendingHandoffs returns the open requests, oldest first.
func (m *Manager) PendingHandoffs(context.Context) []model.HandoffRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []model.HandoffRequest{}
	for _, id := range m.requestOrder {
		if req := m.requests[id]; req.Status == model.HandoffPending {
			out = append(out, cloneRequest(*req))
		}
	}
	return out
}

// AdvanceWorkflow advances a workflow and hands it off across the
// transition. A handoff is only attempted when a rule covers the transition
// or the responsible role changes. A failed handoff is returned alongside
// the advanced workflow.
func (m *Manager) AdvanceWorkflow(
	ctx context.Context,
	workflowID string,
	target model.StageID,
	data map[string]any,
	notes string,
) (model.Workflow, model.HandoffResult, error) {
	wf, err := m.engine.AdvanceWorkflow(ctx, workflowID, target, data, notes)
	if err != nil {
		return model.Workflow{}, model.HandoffResult{}, err
	}
	from := *wf.History[len(wf.History)-1].From

	if !m.needsHandoff(from, target) {
		return wf, model.HandoffResult{Status: model.HandoffNotRequired}, nil
	}

	res, herr := m.ExecuteHandoff(ctx, workflowID, from, target, data)
	if latest, err := m.engine.GetWorkflow(ctx, workflowID); err == nil {
		wf = latest
	}
	return wf, res, herr
}

func (m *Manager) needsHandoff(from, to model.StageID) bool {
	if _, ok := m.catalog.Rule(from, to); ok {
		return true
	}
	a, errA := m.catalog.Definition(from)
	b, errB := m.catalog.Definition(to)
	return errA != nil || errB != nil || a.ResponsibleRole != b.ResponsibleRole
}

func (m *Manager) recordOutcome(mode string, err error) {
	outcome := "completed"
	if err != nil {
		outcome = strings.ToLower(model.CodeOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	m.metrics.RecordHandoff(mode, outcome)
}

// missingFields returns the required keys found in none of sources.
func missingFields(required []string, sources ...map[string]any) []string {
	var missing []string
	for _, field := range required {
		found := false
		for _, src := range sources {
			if _, ok := src[field]; ok {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, field)
		}
	}
	return missing
}

func copyData(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneRequest(r model.HandoffRequest) model.HandoffRequest {
	r.Data = copyData(r.Data)
	if r.DecidedAt != nil {
		at := *r.DecidedAt
		r.DecidedAt = &at
	}
	return r
}
