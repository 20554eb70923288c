package handoff

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/crmflow/model"
)

// BreakerState is the state of a notification circuit breaker.
type BreakerState int

const (
	// BreakerClosed lets every write through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects writes until the cooldown passes.
	BreakerOpen
	// BreakerHalfOpen lets trial writes through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// circuitBreaker trips after failureThreshold consecutive failures and
// closes again after successThreshold consecutive trial successes.
type circuitBreaker struct {
	mu               sync.Mutex
	state            BreakerState
	failures         int
	successes        int
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	openedAt         time.Time
	now              func() time.Time
}

func newCircuitBreaker(failureThreshold, successThreshold int, cooldown time.Duration, now func() time.Time) *circuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 5
	}
	if successThreshold < 1 {
		successThreshold = 1
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &circuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
		now:              now,
	}
}

// allow reports whether a call may proceed.
func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpen()
	return cb.state != BreakerOpen
}

// record updates the breaker with a call outcome and returns the state
// before and after.
func (cb *circuitBreaker) record(failed bool) (before, after BreakerState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	before = cb.state
	switch cb.state {
	case BreakerClosed:
		if !failed {
			cb.failures = 0
			break
		}
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.trip()
		}
	case BreakerHalfOpen:
		if failed {
			cb.trip()
			break
		}
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.state = BreakerClosed
			cb.failures = 0
			cb.successes = 0
		}
	}
	return before, cb.state
}

func (cb *circuitBreaker) current() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpen()
	return cb.state
}

// trip must be called with the lock held.
func (cb *circuitBreaker) trip() {
	cb.state = BreakerOpen
	cb.openedAt = cb.now()
	cb.successes = 0
}

// maybeHalfOpen must be called with the lock held.
func (cb *circuitBreaker) maybeHalfOpen() {
	if cb.state == BreakerOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		cb.state = BreakerHalfOpen
		cb.successes = 0
	}
}

// BreakerConfig tunes a GuardedNotificationStore.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
}

// GuardedNotificationStore wraps a NotificationStore so that a failing
// backend is skipped for a cooldown instead of being hit on every handoff.
// Writes rejected while open return STORE_UNAVAILABLE. Reads pass through
// but still feed the breaker.
type GuardedNotificationStore struct {
	next    NotificationStore
	breaker *circuitBreaker
	logger  *zap.Logger
}

// NewGuardedNotificationStore wraps next with a circuit breaker.
func NewGuardedNotificationStore(next NotificationStore, cfg BreakerConfig, logger *zap.Logger) *GuardedNotificationStore {
	return newGuardedNotificationStore(next, cfg, logger, time.Now)
}

func newGuardedNotificationStore(next NotificationStore, cfg BreakerConfig, logger *zap.Logger, now func() time.Time) *GuardedNotificationStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuardedNotificationStore{
		next:    next,
		breaker: newCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.Cooldown, now),
		logger:  logger,
	}
}

// State returns the current breaker state.
func (g *GuardedNotificationStore) State() BreakerState { return g.breaker.current() }

// Add stores n unless the breaker is open.
func (g *GuardedNotificationStore) Add(ctx context.Context, n model.Notification) error {
	if !g.breaker.allow() {
		return model.NewStoreUnavailableError("notification store circuit open")
	}
	err := g.next.Add(ctx, n)
	g.observe(err)
	return err
}

// ListForUser reads through to the wrapped store.
func (g *GuardedNotificationStore) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]model.Notification, error) {
	out, err := g.next.ListForUser(ctx, userID, unreadOnly)
	g.observe(err)
	return out, err
}

// MarkRead reads through to the wrapped store.
func (g *GuardedNotificationStore) MarkRead(ctx context.Context, userID, notificationID string) error {
	err := g.next.MarkRead(ctx, userID, notificationID)
	g.observe(err)
	return err
}

// HealthCheck reports the wrapped store's health.
func (g *GuardedNotificationStore) HealthCheck(ctx context.Context) error {
	return g.next.HealthCheck(ctx)
}

// observe counts only backend failures; NOT_FOUND and friends are
// successful round trips.
func (g *GuardedNotificationStore) observe(err error) {
	failed := err != nil && !isDomainError(err)
	before, after := g.breaker.record(failed)
	if before != after {
		g.logger.Warn("notification store breaker changed state",
			zap.Stringer("from", before),
			zap.Stringer("to", after),
		)
	}
}

func isDomainError(err error) bool {
	switch model.CodeOf(err) {
	case "", model.ErrStoreUnavailable, model.ErrInternalError:
		return false
	}
	return true
}
