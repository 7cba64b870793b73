package otel

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/quorum/core"
)

// TracingConfig configures OTLP trace export for the daemon.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector endpoint, e.g. "localhost:4318".
	// Empty disables export.
	Endpoint string

	// ServiceName overrides the reported service name.
	ServiceName string
}

// InitTracing installs a global tracer provider exporting spans over
// OTLP/HTTP. The returned shutdown function flushes and stops the
// provider; callers must invoke it before exit.
func InitTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "quorum"
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otel: create OTLP trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("otel: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// SpanHandler translates optimizer pass events into OpenTelemetry
// spans: one span per pass, opened on pass start and closed on finish.
type SpanHandler struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span // passID -> span
}

// NewSpanHandler creates a SpanHandler using the given tracer.
func NewSpanHandler(tracer trace.Tracer) *SpanHandler {
	return &SpanHandler{
		tracer: tracer,
		spans:  make(map[string]trace.Span),
	}
}

// Handle processes a core event and opens or closes pass spans.
// It satisfies core.EventHandler.
func (h *SpanHandler) Handle(e core.Event) {
	switch e.Kind {
	case core.EventOptimizePassStarted:
		_, span := h.tracer.Start(context.Background(), "optimize.pass",
			trace.WithAttributes(attribute.String("quorum.pass_id", e.PassID)),
			trace.WithTimestamp(e.Time),
		)
		h.mu.Lock()
		h.spans[e.PassID] = span
		h.mu.Unlock()
	case core.EventOptimizePassFinished:
		h.mu.Lock()
		span, ok := h.spans[e.PassID]
		delete(h.spans, e.PassID)
		h.mu.Unlock()
		if !ok {
			return
		}
		if e.Err != nil {
			span.SetStatus(codes.Error, e.Err.Error())
		}
		span.End(trace.WithTimestamp(e.Time))
	}
}
