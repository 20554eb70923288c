package handoff

import (
	"context"
	"fmt"
	"sync"

	"github.com/pitabwire/crmflow/model"
)

// UserStore persists staff users.
type UserStore interface {
	// Create persists a new user. Returns CONFLICT if the id is taken.
	Create(ctx context.Context, u model.User) error

	// Get retrieves a user by ID. Returns NOT_FOUND if it doesn't exist.
	Get(ctx context.Context, id string) (model.User, error)

	// Update persists an updated user with optimistic locking. Returns
	// CONFLICT if the stored version differs from u.Version.
	Update(ctx context.Context, u model.User) error

	// List returns every user in creation order. Least-loaded selection
	// breaks ties on this order.
	List(ctx context.Context) ([]model.User, error)

	// HealthCheck reports whether the backing store is reachable.
	HealthCheck(ctx context.Context) error
}

// NotificationStore persists per-user notifications.
type NotificationStore interface {
	// Add stores a notification for n.UserID.
	Add(ctx context.Context, n model.Notification) error

	// ListForUser returns a user's notifications oldest first.
	ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]model.Notification, error)

	// MarkRead flags one notification as read. Returns NOT_FOUND if the
	// user has no such notification.
	MarkRead(ctx context.Context, userID, notificationID string) error

	// HealthCheck reports whether the backing store is reachable.
	HealthCheck(ctx context.Context) error
}

// --- MemoryUserStore ---

// MemoryUserStore is an in-memory UserStore.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]model.User
	order []string
}

// NewMemoryUserStore creates a new in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]model.User)}
}

// Create persists a new user.
func (s *MemoryUserStore) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("user %q already exists", u.ID))
	}
	s.users[u.ID] = u.Clone()
	s.order = append(s.order, u.ID)
	return nil
}

// Get retrieves a user by ID.
func (s *MemoryUserStore) Get(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.users[id]
	if !exists {
		return model.User{}, model.NewNotFoundError(fmt.Sprintf("user %q not found", id))
	}
	return u.Clone(), nil
}

// Update persists an updated user with optimistic locking.
func (s *MemoryUserStore) Update(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.users[u.ID]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("user %q not found", u.ID))
	}
	if existing.Version != u.Version {
		return model.NewConflictError(
			fmt.Sprintf("user %q version conflict (expected %d, got %d)", u.ID, u.Version, existing.Version),
		)
	}
	stored := u.Clone()
	stored.Version++
	s.users[u.ID] = stored
	return nil
}

// List returns every user in creation order.
func (s *MemoryUserStore) List(context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.User, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.users[id].Clone())
	}
	return out, nil
}

// HealthCheck always succeeds.
func (s *MemoryUserStore) HealthCheck(context.Context) error { return nil }

// --- MemoryNotificationStore ---

// MemoryNotificationStore is an in-memory NotificationStore.
type MemoryNotificationStore struct {
	mu     sync.RWMutex
	byUser map[string][]model.Notification
}

// NewMemoryNotificationStore creates a new in-memory notification store.
func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{byUser: make(map[string][]model.Notification)}
}

// Add stores a notification.
func (s *MemoryNotificationStore) Add(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[n.UserID] = append(s.byUser[n.UserID], cloneNotification(n))
	return nil
}

// ListForUser returns a user's notifications oldest first.
func (s *MemoryNotificationStore) ListForUser(_ context.Context, userID string, unreadOnly bool) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.Notification{}
	for _, n := range s.byUser[userID] {
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, cloneNotification(n))
	}
	return out, nil
}

// MarkRead flags one notification as read.
func (s *MemoryNotificationStore) MarkRead(_ context.Context, userID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byUser[userID]
	for i := range list {
		if list[i].ID == notificationID {
			list[i].Read = true
			return nil
		}
	}
	return model.NewNotFoundError(fmt.Sprintf("notification %q not found for user %q", notificationID, userID))
}

// HealthCheck always succeeds.
func (s *MemoryNotificationStore) HealthCheck(context.Context) error { return nil }

// Len returns the number of stored notifications. For testing.
func (s *MemoryNotificationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, list := range s.byUser {
		n += len(list)
	}
	return n
}

func cloneNotification(n model.Notification) model.Notification {
	if n.Data != nil {
		data := make(map[string]any, len(n.Data))
		for k, v := range n.Data {
			data[k] = v
		}
		n.Data = data
	}
	return n
}
