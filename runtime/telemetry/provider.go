// Package telemetry provides OpenTelemetry integration for convostream,
// including TracerProvider management and an event-to-span listener.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/convostream/runtime/version"
)

// InstrumentationName is the OTel instrumentation scope name.
const InstrumentationName = "github.com/AltairaLabs/convostream"

// defaultServiceName is used when no service name is configured.
const defaultServiceName = "convostream"

// Tracer returns the convostream tracer from tp, versioned with the running
// build. A nil tp means the global provider.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName, trace.WithInstrumentationVersion(version.Get().Version))
}

// Resource describes this process to the trace backend: the service name
// plus the build's version and commit.
func Resource(serviceName string) (*resource.Resource, error) {
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	info := version.Get()
	attrs := []attribute.KeyValue{
		attribute.String("service.name", serviceName),
		attribute.String("service.version", info.Version),
	}
	if info.Commit != "" {
		attrs = append(attrs, attribute.String("vcs.ref.head.revision", info.Commit))
	}
	return resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
}

// NewTracerProvider creates a TracerProvider that batches spans to the OTLP/HTTP
// endpoint. The caller shuts it down to flush.
func NewTracerProvider(ctx context.Context, endpoint, serviceName string) (*sdktrace.TracerProvider, error) {
	if endpoint == "" {
		return nil, errors.New("telemetry: OTLP endpoint is required")
	}
	res, err := Resource(serviceName)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("telemetry: exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// SetupPropagation installs the global propagator. Stream handshakes and REST
// calls carry W3C TraceContext, W3C Baggage and AWS X-Ray headers.
func SetupPropagation() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		xray.Propagator{},
	))
}
