package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pitabwire/crmflow/internal/catalog"
	"github.com/pitabwire/crmflow/internal/config"
	"github.com/pitabwire/crmflow/internal/handoff"
	"github.com/pitabwire/crmflow/internal/observability"
	"github.com/pitabwire/crmflow/internal/transport"
	"github.com/pitabwire/crmflow/internal/workflow"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline engine with its operational HTTP endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()
			return runServe(ctx, *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	// Step 1: Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Step 2: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "crmflow", version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 3: Build the catalog and load tuning.
	cat := catalog.Default()
	tuning := catalog.DefaultTuning()
	if cfg.Catalog.TuningFile != "" {
		tuning, err = catalog.LoadTuning(cfg.Catalog.TuningFile, cat)
		if err != nil {
			return err
		}
		logger.Info("tuning loaded",
			zap.String("path", cfg.Catalog.TuningFile),
			zap.String("checksum", tuning.Checksum),
		)
	}
	tuningReg := catalog.NewTuningRegistry(tuning)

	// Step 4: Connect stores.
	st, err := buildStores(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// Step 5: Build engine and handoff manager.
	engine := workflow.NewEngine(cat, st.workflows,
		workflow.WithLogger(logger.Named("workflow")),
		workflow.WithMetrics(metrics),
		workflow.WithTuning(tuningReg),
		workflow.WithThresholds(workflow.Thresholds{
			UrgentWithin:     cfg.Dashboard.UrgentWithin,
			UpcomingWindow:   cfg.Dashboard.UpcomingWindow,
			BottleneckFactor: cfg.Dashboard.BottleneckFactor,
		}),
	)
	manager := handoff.NewManager(engine,
		handoff.WithLogger(logger.Named("handoff")),
		handoff.WithMetrics(metrics),
		handoff.WithUserStore(st.users),
		handoff.WithNotificationStore(st.notifications),
		handoff.WithOverloadThreshold(cfg.Dashboard.OverloadThreshold),
	)

	// Step 6: Build HTTP router.
	router := transport.NewRouter(transport.Dependencies{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Gatherer: prometheus.DefaultGatherer,
		Ready: observability.ReadinessChecks{
			CatalogLoaded:     func() bool { return len(cat.Stages()) > 0 },
			WorkflowStore:     st.workflows,
			UserStore:         st.users,
			NotificationStore: st.notifications,
		},
		Engine:  engine,
		Manager: manager,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 7: Run the server and background tasks until shutdown.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server started",
			zap.Int("port", cfg.Server.Port),
			zap.String("version", version),
			zap.String("commit", commit),
			zap.String("store", cfg.Store.Driver),
			zap.String("notifications", cfg.Store.Notifications.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := tracingShutdown(shutdownCtx); err != nil {
			logger.Error("tracing shutdown error", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		runDashboardRefresher(gctx, engine, cfg.Dashboard.RefreshInterval, logger)
		return nil
	})

	if cfg.Catalog.HotReload {
		g.Go(func() error {
			return catalog.WatchTuning(gctx, cfg.Catalog.TuningFile, cat, tuningReg, logger.Named("tuning"),
				func(catalog.Tuning) { metrics.RecordTuningReload("ok") },
			)
		})
	}

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

// runDashboardRefresher regenerates the dashboard on a fixed interval so the
// occupancy and bottleneck gauges stay current between scrapes.
func runDashboardRefresher(ctx context.Context, engine *workflow.Engine, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := engine.GenerateDashboard(ctx); err != nil {
				logger.Error("dashboard refresh failed", zap.Error(err))
			}
		}
	}
}
