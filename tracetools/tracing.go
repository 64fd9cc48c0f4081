// Package tracetools sets up OpenTelemetry tracing for dagger-pipelines.
package tracetools

import (
	"context"
	"fmt"
	"os"

	"github.com/buildkite/dagger-pipelines/version"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	ddotel "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/opentelemetry"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

const (
	BackendNone          = ""
	BackendOpenTelemetry = "opentelemetry"
	BackendDatadog       = "datadog"

	// InstrumentationName names the tracer jobs create spans with.
	InstrumentationName = "github.com/buildkite/dagger-pipelines"
)

// ValidTracingBackends is the set of values accepted by --tracing-backend.
var ValidTracingBackends = map[string]struct{}{
	BackendNone:          {},
	BackendOpenTelemetry: {},
	BackendDatadog:       {},
}

// Config describes where traces go.
type Config struct {
	Backend     string
	ServiceName string
}

// Stopper flushes and shuts down a tracer provider.
type Stopper func()

func noopStopper() {}

// NewTracer returns the tracer jobs should use for cfg.Backend, and a
// Stopper that must be called before the process exits. BackendNone returns
// a tracer that records nothing. BackendOpenTelemetry exports over OTLP,
// configured with the standard OTEL_EXPORTER_OTLP_* variables, and
// BackendDatadog sends to the Datadog agent configured with DD_*.
func NewTracer(ctx context.Context, cfg Config) (trace.Tracer, Stopper, error) {
	switch cfg.Backend {
	case BackendNone:
		return noop.NewTracerProvider().Tracer(InstrumentationName), noopStopper, nil

	case BackendOpenTelemetry:
		exporter, err := newExporter(ctx)
		if err != nil {
			return nil, noopStopper, err
		}

		tp := NewTracerProvider(cfg.ServiceName, sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

		stop := func() {
			ctx := context.Background()
			_ = tp.ForceFlush(ctx)
			_ = tp.Shutdown(ctx)
		}
		return Tracer(tp), stop, nil

	case BackendDatadog:
		// Newer versions of the tracing libs print diagnostic info on start.
		// Keep it quiet unless it's been asked for.
		if _, has := os.LookupEnv("DD_TRACE_STARTUP_LOGS"); !has {
			os.Setenv("DD_TRACE_STARTUP_LOGS", "false")
		}

		tp := ddotel.NewTracerProvider(
			tracer.WithService(cfg.ServiceName),
			tracer.WithServiceVersion(version.Version()),
			tracer.WithSampler(tracer.NewAllSampler()),
		)
		otel.SetTracerProvider(tp)

		return Tracer(tp), func() { _ = tp.Shutdown() }, nil

	default:
		return nil, noopStopper, fmt.Errorf("invalid tracing backend %q, must be one of: %q, %q, %q", cfg.Backend, BackendNone, BackendOpenTelemetry, BackendDatadog)
	}
}

// NewTracerProvider returns an SDK tracer provider describing this program
// as serviceName.
func NewTracerProvider(serviceName string, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version.Version()),
	)
	return sdktrace.NewTracerProvider(append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)...)
}

// Tracer returns the tracer jobs use from tp.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	return tp.Tracer(InstrumentationName,
		trace.WithInstrumentationVersion(version.Version()),
		trace.WithSchemaURL(semconv.SchemaURL),
	)
}

func newExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	// grpc unless told otherwise, the same default as the OTLP exporters
	protocol := os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL")
	if protocol == "" {
		protocol = "grpc"
	}

	switch protocol {
	case "grpc":
		return otlptracegrpc.New(ctx)
	case "http/protobuf", "http":
		return otlptracehttp.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// ContextWithTraceParent returns ctx carrying the remote span described by
// traceParent, or ctx unchanged when traceParent is empty or malformed.
func ContextWithTraceParent(ctx context.Context, traceParent string) context.Context {
	if traceParent == "" {
		return ctx
	}
	return propagation.TraceContext{}.Extract(ctx, propagation.MapCarrier{
		"traceparent": traceParent,
	})
}

// FinishWithError records err on span, if there is one, and ends it.
func FinishWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
