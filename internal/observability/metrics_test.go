package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	return m, reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)
	if m == nil {
		t.Fatal("InitMetrics returned nil")
	}

	expected := []string{
		"crmflow_http_requests_total",
		"crmflow_http_request_duration_seconds",
		"crmflow_workflows_created_total",
		"crmflow_workflow_advances_total",
		"crmflow_stage_duration_seconds",
		"crmflow_blockers_total",
		"crmflow_handoffs_total",
		"crmflow_notifications_total",
		"crmflow_stage_occupancy",
		"crmflow_bottleneck_stages",
		"crmflow_blocked_workflows",
		"crmflow_tuning_reload_total",
	}

	// Record a value for each metric so they appear in Gather.
	m.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
	m.RecordWorkflowCreated()
	m.RecordWorkflowAdvance("lead_submission", "lead_validation", time.Hour)
	m.RecordBlocker("raised", "high")
	m.RecordHandoff("auto", "completed")
	m.RecordNotification("workflow_assigned")
	m.SetDashboard(map[string]int{"lead_submission": 2}, 1, 1)
	m.RecordTuningReload("success")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestRecordHelpers_nilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordWorkflowCreated()
	m.RecordWorkflowAdvance("a", "b", time.Second)
	m.RecordBlocker("raised", "low")
	m.RecordHandoff("manual", "pending_approval")
	m.RecordNotification("x")
	m.SetDashboard(nil, 0, 0)
	m.RecordTuningReload("failure")
	m.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
}

func TestRecordWorkflowAdvance(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordWorkflowAdvance("lead_scoring", "sales_assignment", 2*time.Hour)
	m.RecordWorkflowAdvance("lead_scoring", "sales_assignment", 3*time.Hour)

	val := testutil.ToFloat64(m.WorkflowAdvancesTotal.WithLabelValues("lead_scoring", "sales_assignment"))
	if val != 2 {
		t.Errorf("advances = %v, want 2", val)
	}
	if count := testutil.CollectAndCount(m.StageDuration); count == 0 {
		t.Error("expected stage duration histogram to have observations")
	}
}

func TestRecordHandoff(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordHandoff("auto", "completed")
	m.RecordHandoff("auto", "missing_fields")
	m.RecordHandoff("manual", "pending_approval")

	if val := testutil.ToFloat64(m.HandoffsTotal.WithLabelValues("auto", "completed")); val != 1 {
		t.Errorf("auto completed = %v, want 1", val)
	}
	if val := testutil.ToFloat64(m.HandoffsTotal.WithLabelValues("manual", "pending_approval")); val != 1 {
		t.Errorf("manual pending = %v, want 1", val)
	}
}

func TestSetDashboard_resetsOccupancy(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetDashboard(map[string]int{"negotiation": 4, "delivered": 1}, 1, 2)
	if val := testutil.ToFloat64(m.StageOccupancy.WithLabelValues("negotiation")); val != 4 {
		t.Errorf("negotiation occupancy = %v, want 4", val)
	}

	m.SetDashboard(map[string]int{"delivered": 3}, 0, 0)
	if n := testutil.CollectAndCount(m.StageOccupancy); n != 1 {
		t.Errorf("occupancy series = %d, want 1 after reset", n)
	}
	if val := testutil.ToFloat64(m.BlockedWorkflows); val != 0 {
		t.Errorf("blocked = %v, want 0", val)
	}
}

func TestMetricsMiddleware_recordsRoutePattern(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/workflows/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/workflows/wf-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/workflows/{id}", "200"))
	if val != 1 {
		t.Errorf("requests total = %v, want 1", val)
	}
}

func TestMetricsMiddleware_capturesStatusCode(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/ready", "503"))
	if val != 1 {
		t.Errorf("503 requests = %v, want 1", val)
	}
}

func TestMetricsMiddleware_fallsBackToPath(t *testing.T) {
	m, _ := newTestMetrics(t)

	handler := m.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/raw/path", nil))

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/raw/path", "200"))
	if val != 1 {
		t.Errorf("requests total = %v, want 1", val)
	}
}

func TestHandler_servesRegistry(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RecordWorkflowCreated()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "crmflow_workflows_created_total 1") {
		t.Errorf("metrics output missing counter:\n%s", rec.Body.String())
	}
}
