package workersai

import (
	"context"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/flemzord/wai/internal/telemetry"
)

// TestChatCompletionInstrumentation installs a global tracer provider, so it
// does not run in parallel.
func TestChatCompletionInstrumentation(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":false,"errors":[{"code":1,"message":"nope"}]}`))
	})
	c := newTestClient(t, srv, testGatewayBase, nil)

	failures := telemetry.ProviderRequestsTotal.WithLabelValues("chat", "gateway", telemetry.OutcomeProtocol)
	before := testutil.ToFloat64(failures)

	if _, err := c.ChatCompletion(t.Context(), userPayload(false), nil); err == nil {
		t.Fatal("ChatCompletion() succeeded, want a protocol error")
	}

	if got := testutil.ToFloat64(failures) - before; got < 1 {
		t.Errorf("protocol failures counter grew by %v, want at least 1", got)
	}

	var found bool
	for _, span := range recorder.Ended() {
		if span.Name() != "workersai.chat_completion" {
			continue
		}
		attrs := attribute.NewSet(span.Attributes()...)
		if v, ok := attrs.Value("workersai.model"); !ok || v.AsString() != testModel {
			continue
		}
		found = true
		if topo, _ := attrs.Value("workersai.topology"); topo.AsString() != "gateway" {
			t.Errorf("topology attribute = %q", topo.AsString())
		}
		if span.Status().Code != codes.Error {
			t.Errorf("span status = %v, want error", span.Status().Code)
		}
	}
	if !found {
		t.Error("no workersai.chat_completion span recorded")
	}
}
