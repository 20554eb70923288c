package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/crmflow/internal/config"
	"github.com/pitabwire/crmflow/internal/handoff"
	"github.com/pitabwire/crmflow/internal/observability"
	"github.com/pitabwire/crmflow/internal/workflow"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
	Ready    observability.ReadinessChecks
	Engine   *workflow.Engine
	Manager  *handoff.Manager
}

// NewRouter creates a chi.Router with the middleware pipeline and all route
// registrations. Health, readiness, and metrics endpoints skip request
// logging and the handler timeout.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(RequestID(logger))
	r.Use(SecurityHeaders)

	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Ready))
	if deps.Config.Observability.Metrics.Enabled && deps.Gatherer != nil {
		r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path, observability.Handler(deps.Gatherer))
	}

	// Read-only pipeline snapshots.
	r.Route("/ops", func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		r.Use(HandlerTimeout(deps.Config.Server.WriteTimeout))
		r.Use(RequestLogging(logger))
		r.Use(deps.Metrics.MetricsMiddleware)

		r.Get("/dashboard", handleDashboard(deps.Engine))
		r.Get("/workflows/{workflowId}/progress", handleWorkflowProgress(deps.Engine))
		r.Get("/handoffs/queue", handleHandoffQueue(deps.Manager))
		r.Get("/handoffs/pending", handlePendingHandoffs(deps.Manager))
		r.Get("/workload", handleWorkload(deps.Manager))
		r.Get("/users/{userId}/dashboard", handleUserDashboard(deps.Manager))
	})

	return r
}
