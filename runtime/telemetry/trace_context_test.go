package telemetry

import (
	"context"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func withPropagation(t *testing.T) {
	t.Helper()
	orig := otel.GetTextMapPropagator()
	t.Cleanup(func() { otel.SetTextMapPropagator(orig) })
	SetupPropagation()
}

func TestInjectHeaders_NoSpan(t *testing.T) {
	withPropagation(t)

	h := http.Header{}
	InjectHeaders(context.Background(), h)
	if h.Get("traceparent") != "" {
		t.Errorf("expected no traceparent, got %q", h.Get("traceparent"))
	}
}

func TestInjectHeaders_WithSpan(t *testing.T) {
	withPropagation(t)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := Tracer(tp).Start(context.Background(), "parent")
	defer span.End()

	h := http.Header{}
	InjectHeaders(ctx, h)
	if h.Get("traceparent") == "" {
		t.Fatal("expected traceparent header")
	}
	if h.Get("X-Amzn-Trace-Id") == "" {
		t.Error("expected X-Ray trace header")
	}
}
