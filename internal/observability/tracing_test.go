package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitabwire/crmflow/internal/config"
	"github.com/pitabwire/crmflow/model"
)

// setupTestTracer installs an always-sampling provider backed by an
// in-memory exporter and restores the previous globals on cleanup.
func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return exporter
}

func spanAttrMap(s tracetest.SpanStub) map[string]string {
	m := make(map[string]string, len(s.Attributes))
	for _, a := range s.Attributes {
		m[string(a.Key)] = a.Value.Emit()
	}
	return m
}

func TestInitTracing(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.TracingConfig
		wantErr bool
	}{
		{name: "disabled", cfg: config.TracingConfig{}},
		{name: "stdout", cfg: config.TracingConfig{Enabled: true, Exporter: "stdout", SamplingRate: 1}},
		{name: "unsupported exporter", cfg: config.TracingConfig{Enabled: true, Exporter: "zipkin"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := otel.GetTracerProvider()
			t.Cleanup(func() { otel.SetTracerProvider(prev) })

			shutdown, err := InitTracing(context.Background(), tt.cfg, "crmflow", "test")
			if tt.wantErr {
				if err == nil {
					t.Fatal("InitTracing() expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("InitTracing() error = %v", err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Errorf("shutdown() error = %v", err)
			}
		})
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{rate: 0, want: "TraceIDRatioBased{0.1}"},
		{rate: 0.25, want: "TraceIDRatioBased{0.25}"},
		{rate: 1, want: "AlwaysOnSampler"},
		{rate: 3, want: "AlwaysOnSampler"},
	}
	for _, tt := range tests {
		desc := newSampler(config.TracingConfig{SamplingRate: tt.rate}).Description()
		if !strings.HasPrefix(desc, "ParentBased{") || !strings.Contains(desc, tt.want) {
			t.Errorf("newSampler(%v).Description() = %q, want ParentBased root %s", tt.rate, desc, tt.want)
		}
	}
}

func TestStartSpan_nestsHandoffUnderAdvance(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx, advance := StartSpan(context.Background(), "workflow.Advance",
		AttrWorkflowID.String("wf-1"),
		AttrStage.String(string(model.StageLeadScoring)),
		AttrTargetStage.String(string(model.StageSalesAssignment)),
	)
	_, handoff := StartSpan(ctx, "handoff.Execute", AttrHandoffMode.String("auto"))
	handoff.End()
	advance.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	child, parent := spans[0], spans[1]
	if child.Parent.SpanID() != parent.SpanContext.SpanID() {
		t.Error("handoff.Execute should be a child of workflow.Advance")
	}
	if child.SpanContext.TraceID() != parent.SpanContext.TraceID() {
		t.Error("nested spans should share a trace id")
	}
	attrs := spanAttrMap(parent)
	for key, want := range map[string]string{
		"crm.workflow_id":  "wf-1",
		"crm.stage":        "lead_scoring",
		"crm.target_stage": "sales_assignment",
	} {
		if attrs[key] != want {
			t.Errorf("%s = %q, want %q", key, attrs[key], want)
		}
	}
	if trace.SpanFromContext(ctx) != advance {
		t.Error("returned context should carry the started span")
	}
}

func TestEndSpanWithError(t *testing.T) {
	exporter := setupTestTracer(t)

	_, failed := StartSpan(context.Background(), "workflow.Advance")
	EndSpanWithError(failed, model.NewInvalidTransitionError(model.StageLeadSubmission, model.StageContractRenewal))
	_, ok := StartSpan(context.Background(), "workflow.Create")
	EndSpanWithError(ok, nil)

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Error || !strings.Contains(spans[0].Status.Description, "INVALID_TRANSITION") {
		t.Errorf("failed span status = %v %q", spans[0].Status.Code, spans[0].Status.Description)
	}
	if len(spans[0].Events) == 0 {
		t.Error("failed span should record the error as an event")
	}
	if spans[1].Status.Code != codes.Unset {
		t.Errorf("ok span status = %v, want Unset", spans[1].Status.Code)
	}
}

func TestTraceIDFromContext(t *testing.T) {
	if got := TraceIDFromContext(context.Background()); got != "" {
		t.Errorf("TraceIDFromContext without span = %q, want empty", got)
	}

	setupTestTracer(t)
	ctx, span := StartSpan(context.Background(), "workflow.Get")
	defer span.End()
	if got, want := TraceIDFromContext(ctx), span.SpanContext().TraceID().String(); got != want {
		t.Errorf("TraceIDFromContext = %q, want %q", got, want)
	}
}

func TestTracingMiddleware_continuesInboundTrace(t *testing.T) {
	exporter := setupTestTracer(t)
	const (
		traceID = "0af7651916cd43dd8448eb211c80319c"
		spanID  = "b7ad6b7169203331"
	)
	handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/workflows", nil)
	req.Header.Set("Traceparent", "00-"+traceID+"-"+spanID+"-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != "POST /workflows" || s.SpanKind != trace.SpanKindServer {
		t.Errorf("span = %q kind %v, want server span POST /workflows", s.Name, s.SpanKind)
	}
	if s.SpanContext.TraceID().String() != traceID || s.Parent.SpanID().String() != spanID {
		t.Errorf("span did not continue the inbound trace: trace %s parent %s",
			s.SpanContext.TraceID(), s.Parent.SpanID())
	}
	if got := spanAttrMap(s)["http.response.status_code"]; got != "201" {
		t.Errorf("http.response.status_code = %q, want 201", got)
	}
	if !strings.Contains(rec.Header().Get("Traceparent"), traceID) {
		t.Errorf("response Traceparent = %q, want trace %s", rec.Header().Get("Traceparent"), traceID)
	}
}

func TestTracingMiddleware_serverErrorMarksSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ops/notifications/u-1", nil))

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Status.Code != codes.Error {
		t.Fatalf("spans = %+v, want one span with Error status", spans)
	}
}
