package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/crmflow/internal/config"
	"github.com/pitabwire/crmflow/internal/handoff"
	"github.com/pitabwire/crmflow/internal/workflow"
)

// stores bundles the persistence backends selected by config.
type stores struct {
	workflows     workflow.WorkflowStore
	users         handoff.UserStore
	notifications handoff.NotificationStore
	closers       []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildStores connects the configured backends. Postgres and Redis are
// retried with exponential backoff for up to store.connect_timeout.
func buildStores(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*stores, error) {
	s := &stores{}

	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory workflow and user stores")
		s.workflows = workflow.NewMemoryWorkflowStore()
		s.users = handoff.NewMemoryUserStore()
	case "postgres":
		pool, err := connectPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)

		wfStore := workflow.NewPgWorkflowStore(pool)
		if err := wfStore.EnsureSchema(ctx); err != nil {
			s.close()
			return nil, fmt.Errorf("workflow store: %w", err)
		}
		userStore := handoff.NewPgUserStore(pool)
		if err := userStore.EnsureSchema(ctx); err != nil {
			s.close()
			return nil, fmt.Errorf("user store: %w", err)
		}
		s.workflows, s.users = wfStore, userStore
	default:
		return nil, fmt.Errorf("unsupported store driver: %q", cfg.Driver)
	}

	switch cfg.Notifications.Driver {
	case "memory":
		s.notifications = handoff.NewMemoryNotificationStore()
	case "redis":
		client, err := connectRedis(ctx, cfg, logger)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, func() { client.Close() })
		s.notifications = handoff.NewGuardedNotificationStore(
			handoff.NewRedisNotificationStore(client, cfg.Notifications.Namespace),
			handoff.BreakerConfig{
				FailureThreshold: cfg.Notifications.BreakerFailures,
				Cooldown:         cfg.Notifications.BreakerCooldown,
			},
			logger.Named("notifications"),
		)
	default:
		s.close()
		return nil, fmt.Errorf("unsupported notification driver: %q", cfg.Notifications.Driver)
	}

	return s, nil
}

func connectPostgres(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	dsn := os.Getenv(cfg.DSNEnv)
	if dsn == "" {
		return nil, fmt.Errorf("store: %s environment variable not set", cfg.DSNEnv)
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	var pool *pgxpool.Pool
	err = retry(ctx, cfg.ConnectTimeout, logger.With(zap.String("backend", "postgres")), func() error {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	logger.Info("connected to postgres", zap.Int32("max_conns", poolCfg.MaxConns))
	return pool, nil
}

func connectRedis(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*redis.Client, error) {
	addr := os.Getenv(cfg.Notifications.AddrEnv)
	if addr == "" {
		return nil, fmt.Errorf("notifications: %s environment variable not set", cfg.Notifications.AddrEnv)
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.Notifications.DB})

	err := retry(ctx, cfg.ConnectTimeout, logger.With(zap.String("backend", "redis")), func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("notifications: connect redis: %w", err)
	}
	logger.Info("connected to redis", zap.String("addr", addr), zap.String("namespace", cfg.Notifications.Namespace))
	return client, nil
}

// retry runs op with exponential backoff until it succeeds, ctx ends, or
// maxElapsed passes.
func retry(ctx context.Context, maxElapsed time.Duration, logger *zap.Logger, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		logger.Warn("backend not ready, retrying", zap.Error(err), zap.Duration("wait", wait))
	})
}
