package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	// Stage dwell times range from minutes to weeks.
	stageDurationBuckets = []float64{60, 600, 3600, 4 * 3600, 86400, 3 * 86400, 7 * 86400, 14 * 86400, 30 * 86400, 90 * 86400}
)

// Metrics holds all Prometheus metric instruments for the pipeline.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Workflow metrics
	WorkflowsCreatedTotal prometheus.Counter
	WorkflowAdvancesTotal *prometheus.CounterVec
	StageDuration         *prometheus.HistogramVec
	BlockersTotal         *prometheus.CounterVec

	// Handoff metrics
	HandoffsTotal      *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec

	// Dashboard gauges
	StageOccupancy   *prometheus.GaugeVec
	BottleneckStages prometheus.Gauge
	BlockedWorkflows prometheus.Gauge

	// System
	TuningReloadTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmflow_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crmflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		WorkflowsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crmflow_workflows_created_total",
			Help: "Total number of workflows created.",
		}),
		WorkflowAdvancesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmflow_workflow_advances_total",
			Help: "Total number of stage transitions.",
		}, []string{"from", "to"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crmflow_stage_duration_seconds",
			Help:    "Time spent in a stage before advancing, in seconds.",
			Buckets: stageDurationBuckets,
		}, []string{"stage"}),
		BlockersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmflow_blockers_total",
			Help: "Total number of blockers raised or resolved.",
		}, []string{"action", "severity"}),

		HandoffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmflow_handoffs_total",
			Help: "Total number of handoff attempts.",
		}, []string{"mode", "outcome"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmflow_notifications_total",
			Help: "Total number of notifications sent.",
		}, []string{"type"}),

		StageOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crmflow_stage_occupancy",
			Help: "Number of workflows currently in each stage.",
		}, []string{"stage"}),
		BottleneckStages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crmflow_bottleneck_stages",
			Help: "Number of stages currently flagged as bottlenecks.",
		}),
		BlockedWorkflows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crmflow_blocked_workflows",
			Help: "Number of workflows with unresolved blockers.",
		}),

		TuningReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmflow_tuning_reload_total",
			Help: "Total tuning file reloads.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		// Workflows
		m.WorkflowsCreatedTotal,
		m.WorkflowAdvancesTotal,
		m.StageDuration,
		m.BlockersTotal,
		// Handoffs
		m.HandoffsTotal,
		m.NotificationsTotal,
		// Dashboard
		m.StageOccupancy,
		m.BottleneckStages,
		m.BlockedWorkflows,
		// System
		m.TuningReloadTotal,
	)

	return m
}

// --- Recording helpers ---
//
// Every helper is a no-op on a nil *Metrics so that components can be built
// without a registry.

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// RecordWorkflowCreated records a new workflow.
func (m *Metrics) RecordWorkflowCreated() {
	if m == nil {
		return
	}
	m.WorkflowsCreatedTotal.Inc()
}

// RecordWorkflowAdvance records a stage transition and how long the workflow
// spent in the stage it left.
func (m *Metrics) RecordWorkflowAdvance(from, to string, dwell time.Duration) {
	if m == nil {
		return
	}
	m.WorkflowAdvancesTotal.WithLabelValues(from, to).Inc()
	m.StageDuration.WithLabelValues(from).Observe(dwell.Seconds())
}

// RecordBlocker records a blocker being raised or resolved.
func (m *Metrics) RecordBlocker(action, severity string) {
	if m == nil {
		return
	}
	m.BlockersTotal.WithLabelValues(action, severity).Inc()
}

// RecordHandoff records a handoff attempt. Mode is auto or manual.
func (m *Metrics) RecordHandoff(mode, outcome string) {
	if m == nil {
		return
	}
	m.HandoffsTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordNotification records a notification sent to a user.
func (m *Metrics) RecordNotification(notificationType string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(notificationType).Inc()
}

// SetDashboard publishes the aggregate gauges computed by a dashboard run.
func (m *Metrics) SetDashboard(byStage map[string]int, bottlenecks, blocked int) {
	if m == nil {
		return
	}
	m.StageOccupancy.Reset()
	for stage, n := range byStage {
		m.StageOccupancy.WithLabelValues(stage).Set(float64(n))
	}
	m.BottleneckStages.Set(float64(bottlenecks))
	m.BlockedWorkflows.Set(float64(blocked))
}

// RecordTuningReload records a tuning reload attempt.
func (m *Metrics) RecordTuningReload(status string) {
	if m == nil {
		return
	}
	m.TuningReloadTotal.WithLabelValues(status).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start))
	})
}

// Handler returns the Prometheus HTTP handler for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}
