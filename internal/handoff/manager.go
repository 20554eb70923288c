// Package handoff owns the staff directory and moves workflows between
// users as they cross role boundaries.
package handoff

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/crmflow/internal/catalog"
	"github.com/pitabwire/crmflow/internal/observability"
	"github.com/pitabwire/crmflow/internal/workflow"
	"github.com/pitabwire/crmflow/model"
)

// DefaultOverloadThreshold is the assigned-workflow count above which a
// user is reported as overloaded.
const DefaultOverloadThreshold = 5

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics enables Prometheus recording.
func WithMetrics(mt *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator replaces the UUID generator used for users, notifications
// and handoff requests.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

// WithUserStore replaces the in-memory user store.
func WithUserStore(s UserStore) Option {
	return func(m *Manager) { m.users = s }
}

// WithNotificationStore replaces the in-memory notification store.
func WithNotificationStore(s NotificationStore) Option {
	return func(m *Manager) { m.notifications = s }
}

// WithOverloadThreshold overrides DefaultOverloadThreshold.
func WithOverloadThreshold(n int) Option {
	return func(m *Manager) { m.overloadThreshold = n }
}

// Manager coordinates users, assignments and handoffs. Every operation that
// changes an assignment set runs under one coordinator lock and touches
// workflows only through Engine.Update, so the lock order is always
// manager then workflow.
type Manager struct {
	mu sync.Mutex

	engine            *workflow.Engine
	catalog           *catalog.Catalog
	users             UserStore
	notifications     NotificationStore
	logger            *zap.Logger
	metrics           *observability.Metrics
	now               func() time.Time
	newID             func() string
	overloadThreshold int

	requests     map[string]*model.HandoffRequest
	requestOrder []string
}

// NewManager creates a handoff manager on top of engine.
func NewManager(engine *workflow.Engine, opts ...Option) *Manager {
	m := &Manager{
		engine:            engine,
		catalog:           engine.Catalog(),
		users:             NewMemoryUserStore(),
		notifications:     NewMemoryNotificationStore(),
		logger:            zap.NewNop(),
		now:               func() time.Time { return time.Now().UTC() },
		newID:             uuid.NewString,
		overloadThreshold: DefaultOverloadThreshold,
		requests:          make(map[string]*model.HandoffRequest),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Users returns the user store, for readiness checks.
func (m *Manager) Users() UserStore { return m.users }

// Notifications returns the notification store, for readiness checks.
func (m *Manager) Notifications() NotificationStore { return m.notifications }

// CreateUser registers a staff member. The role's permissions are copied by
// value, so later catalog changes do not reach existing users. An empty id
// is replaced with a generated one.
func (m *Manager) CreateUser(ctx context.Context, id, name string, role model.RoleID, email, department string) (model.User, error) {
	def, err := m.catalog.Role(role)
	if err != nil {
		return model.User{}, err
	}
	if id == "" {
		id = m.newID()
	}
	if department == "" {
		department = def.Department
	}

	now := m.now()
	u := model.User{
		ID:                id,
		Name:              name,
		Role:              role,
		Email:             email,
		Department:        department,
		Permissions:       def.Permissions.Clone(),
		Active:            true,
		CreatedAt:         now,
		LastActive:        now,
		AssignedWorkflows: []string{},
		Version:           1,
	}
	if err := m.users.Create(ctx, u); err != nil {
		return model.User{}, err
	}

	observability.LoggerFrom(ctx, m.logger).Info("user created",
		zap.String("user_id", id),
		zap.String("role", string(role)),
	)
	return u, nil
}

// GetUser returns a user by ID.
func (m *Manager) GetUser(ctx context.Context, id string) (model.User, error) {
	return m.users.Get(ctx, id)
}

// ListUsers returns every user in creation order.
func (m *Manager) ListUsers(ctx context.Context) ([]model.User, error) {
	return m.users.List(ctx)
}

// SetUserActive enables or disables a user. Inactive users keep their
// assignments but are never selected for new work.
func (m *Manager) SetUserActive(ctx context.Context, id string, active bool) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, err := m.users.Get(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	u.Active = active
	if err := m.users.Update(ctx, u); err != nil {
		return model.User{}, err
	}
	u.Version++
	return u, nil
}

// AssignWorkflow gives a workflow to a user who can view its current stage.
// Any previous holder loses it.
func (m *Manager) AssignWorkflow(ctx context.Context, workflowID, userID string) (err error) {
	ctx, span := observability.StartSpan(ctx, "handoff.AssignWorkflow",
		observability.AttrWorkflowID.String(workflowID),
		observability.AttrUserID.String(userID),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	user, err := m.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	wf, err := m.engine.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	if err := checkCanView(user, wf.CurrentStage); err != nil {
		return err
	}
	holder, err := m.holderLocked(ctx, workflowID)
	if err != nil {
		return err
	}

	return m.reassignLocked(ctx, wf, holder, user, "", nil)
}

// SendNotification delivers a notification to an existing user.
func (m *Manager) SendNotification(ctx context.Context, userID, notificationType string, data map[string]any) (model.Notification, error) {
	if _, err := m.users.Get(ctx, userID); err != nil {
		return model.Notification{}, err
	}
	return m.send(ctx, userID, notificationType, data)
}

// MarkNotificationRead flags a user's notification as read.
func (m *Manager) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	return m.notifications.MarkRead(ctx, userID, notificationID)
}

// notifyLocked sends a notification whose failure must not undo the
// assignment that triggered it.
func (m *Manager) notifyLocked(ctx context.Context, userID, notificationType string, data map[string]any) {
	if _, err := m.send(ctx, userID, notificationType, data); err != nil {
		observability.LoggerFrom(ctx, m.logger).Warn("notification not stored",
			zap.String("user_id", userID),
			zap.String("type", notificationType),
			zap.Error(err),
		)
	}
}

func (m *Manager) send(ctx context.Context, userID, notificationType string, data map[string]any) (model.Notification, error) {
	n := model.Notification{
		ID:        m.newID(),
		UserID:    userID,
		Type:      notificationType,
		Data:      data,
		CreatedAt: m.now(),
	}
	if err := m.notifications.Add(ctx, n); err != nil {
		return model.Notification{}, err
	}
	m.metrics.RecordNotification(notificationType)
	observability.LoggerFrom(ctx, m.logger).Debug("notification sent",
		zap.String("user_id", userID),
		zap.String("type", notificationType),
		zap.Any("data", observability.RedactBody(data, nil)),
	)
	return n, nil
}

// findAvailableUserLocked returns the active user of role with the fewest
// assigned workflows. Ties go to the earliest created user.
func (m *Manager) findAvailableUserLocked(ctx context.Context, role model.RoleID) (model.User, error) {
	users, err := m.users.List(ctx)
	if err != nil {
		return model.User{}, err
	}
	var best *model.User
	for i := range users {
		u := &users[i]
		if !u.Active || u.Role != role {
			continue
		}
		if best == nil || len(u.AssignedWorkflows) < len(best.AssignedWorkflows) {
			best = u
		}
	}
	if best == nil {
		return model.User{}, model.NewNoAvailableUserError(role)
	}
	return *best, nil
}

// holderLocked returns the user currently holding workflowID, or nil.
func (m *Manager) holderLocked(ctx context.Context, workflowID string) (*model.User, error) {
	users, err := m.users.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].HasWorkflow(workflowID) {
			return &users[i], nil
		}
	}
	return nil, nil
}

func checkCanView(u model.User, stage model.StageID) error {
	if !u.Permissions.CanView.Has(stage) {
		return model.NewPermissionDeniedError(
			fmt.Sprintf("user %q cannot view stage %q", u.ID, stage),
		)
	}
	return nil
}
