package handoff

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/pitabwire/crmflow/model"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func endedSpans(rec *tracetest.SpanRecorder, name string) []sdktrace.ReadOnlySpan {
	var out []sdktrace.ReadOnlySpan
	for _, s := range rec.Ended() {
		if s.Name() == name {
			out = append(out, s)
		}
	}
	return out
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[string]string {
	m := make(map[string]string)
	for _, kv := range s.Attributes() {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}

func TestExecuteHandoff_spanAttributes(t *testing.T) {
	f := newFixture(t, nil)
	f.user(t, "sm-1", model.RoleSalesManager)
	wf := f.workflowAt(t, "cust_1", model.StageLeadScoring, qualifiedLead)
	rec := recordSpans(t)

	_, err := f.manager.ExecuteHandoff(context.Background(), wf.ID, model.StageLeadScoring, model.StageSalesAssignment, nil)
	require.NoError(t, err)

	spans := endedSpans(rec, "handoff.Execute")
	require.Len(t, spans, 1)
	execute := spans[0]
	assert.Equal(t, map[string]string{
		"crm.workflow_id":  wf.ID,
		"crm.stage":        "lead_scoring",
		"crm.target_stage": "sales_assignment",
		"crm.handoff_mode": "auto",
		"crm.role":         "sales_manager",
	}, spanAttrs(execute))
	assert.Equal(t, codes.Unset, execute.Status().Code)

	updates := endedSpans(rec, "workflow.Update")
	require.NotEmpty(t, updates)
	assert.Equal(t, execute.SpanContext().SpanID(), updates[0].Parent().SpanID(),
		"the reassignment write runs inside the handoff span")
}

func TestExecuteHandoff_spanRecordsRejection(t *testing.T) {
	f := newFixture(t, nil)
	wf := f.workflowAt(t, "cust_1", model.StageLeadSubmission, nil)
	rec := recordSpans(t)

	_, err := f.manager.ExecuteHandoff(context.Background(), wf.ID, model.StageLeadScoring, model.StageSalesAssignment, nil)
	require.True(t, model.IsCode(err, model.ErrInvalidTransition), "err = %v", err)

	spans := endedSpans(rec, "handoff.Execute")
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Status().Description, string(model.ErrInvalidTransition))
	assert.NotContains(t, spanAttrs(spans[0]), "crm.handoff_mode")
}
