package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/AltairaLabs/convostream/runtime/version"
)

func TestTracer_NilProvider(t *testing.T) {
	if Tracer(nil) == nil {
		t.Fatal("expected non-nil tracer")
	}
	if Tracer(noop.NewTracerProvider()) == nil {
		t.Fatal("expected non-nil tracer")
	}
}

func TestTracer_ScopeCarriesBuildVersion(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := Tracer(tp).Start(context.Background(), "op")
	span.End()

	ended := sr.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	scope := ended[0].InstrumentationScope()
	if scope.Name != InstrumentationName {
		t.Errorf("scope name = %q", scope.Name)
	}
	if scope.Version != version.Get().Version {
		t.Errorf("scope version = %q, want %q", scope.Version, version.Get().Version)
	}
}

func TestResource(t *testing.T) {
	res, err := Resource("chat-cli")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	set := res.Set()
	if v, ok := set.Value("service.name"); !ok || v.AsString() != "chat-cli" {
		t.Errorf("service.name = %v", v.AsString())
	}
	if v, ok := set.Value("service.version"); !ok || v.AsString() != version.Get().Version {
		t.Errorf("service.version = %v", v.AsString())
	}

	res, err = Resource("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := res.Set().Value("service.name"); v.AsString() != defaultServiceName {
		t.Errorf("default service.name = %v", v.AsString())
	}
}

func TestSetupPropagation(t *testing.T) {
	orig := otel.GetTextMapPropagator()
	defer otel.SetTextMapPropagator(orig)

	SetupPropagation()

	want := map[string]bool{"traceparent": false, "baggage": false, "X-Amzn-Trace-Id": false}
	for _, f := range otel.GetTextMapPropagator().Fields() {
		if _, ok := want[f]; ok {
			want[f] = true
		}
	}
	for f, found := range want {
		if !found {
			t.Errorf("expected propagator to handle %q", f)
		}
	}
}

func TestNewTracerProvider(t *testing.T) {
	tp, err := NewTracerProvider(t.Context(), "http://localhost:0/v1/traces", "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = tp.Shutdown(t.Context()) }()

	var _ trace.TracerProvider = tp
}

func TestNewTracerProvider_RequiresEndpoint(t *testing.T) {
	if _, err := NewTracerProvider(t.Context(), "", "test-service"); err == nil {
		t.Fatal("expected an error for an empty endpoint")
	}
}
