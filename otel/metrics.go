// Package otel provides OpenTelemetry integration for Quorum core events.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/quorum/core"
)

// MetricsHandler translates Quorum core events into OpenTelemetry
// metrics. It records counters and histograms for score computations,
// execution recording, variant transitions, and optimizer passes.
type MetricsHandler struct {
	scoresComputed     metric.Int64Counter
	scoreWeight        metric.Float64Histogram
	executionsRecorded metric.Int64Counter
	executionsOrphaned metric.Int64Counter
	variantTransitions metric.Int64Counter
	optimizeDuration   metric.Float64Histogram
	initAttempts       metric.Int64Counter
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter
// to create instruments for recording decision-core metrics.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	scores, err := meter.Int64Counter("quorum.scores.computed",
		metric.WithDescription("Number of consensus score computations"),
	)
	if err != nil {
		return nil, err
	}

	weight, err := meter.Float64Histogram("quorum.score.weight",
		metric.WithDescription("Combined trust weight of computed scores"),
	)
	if err != nil {
		return nil, err
	}

	recorded, err := meter.Int64Counter("quorum.executions.recorded",
		metric.WithDescription("Number of execution outcomes recorded"),
	)
	if err != nil {
		return nil, err
	}

	orphaned, err := meter.Int64Counter("quorum.executions.orphaned",
		metric.WithDescription("Number of execution outcomes recorded for unregistered keys"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter("quorum.variants.transitions",
		metric.WithDescription("Number of variant status transitions applied by the optimizer"),
	)
	if err != nil {
		return nil, err
	}

	optDur, err := meter.Float64Histogram("quorum.optimize.duration",
		metric.WithDescription("Duration of optimizer passes in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	attempts, err := meter.Int64Counter("quorum.init.attempts",
		metric.WithDescription("Number of store initialization attempts"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		scoresComputed:     scores,
		scoreWeight:        weight,
		executionsRecorded: recorded,
		executionsOrphaned: orphaned,
		variantTransitions: transitions,
		optimizeDuration:   optDur,
		initAttempts:       attempts,
	}, nil
}

// Handle processes a core event and records the appropriate metrics.
// It satisfies core.EventHandler.
func (h *MetricsHandler) Handle(e core.Event) {
	ctx := context.Background()
	switch e.Kind {
	case core.EventScoreComputed:
		attrs := metric.WithAttributes(
			attribute.String("tool_id", e.Key.ToolID),
			attribute.String("version", e.Key.Version),
		)
		h.scoresComputed.Add(ctx, 1, attrs)
		if w, ok := e.Payload["weight"].(float64); ok {
			h.scoreWeight.Record(ctx, w, attrs)
		}
	case core.EventExecutionRecorded:
		h.executionsRecorded.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool_id", e.Key.ToolID),
			attribute.String("version", e.Key.Version),
		))
	case core.EventExecutionOrphaned:
		h.executionsOrphaned.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool_id", e.Key.ToolID),
		))
	case core.EventVariantActivated:
		h.variantTransitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", core.VariantActive.String()),
		))
	case core.EventVariantRetired:
		h.variantTransitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", core.VariantRetired.String()),
		))
	case core.EventOptimizePassFinished:
		h.optimizeDuration.Record(ctx, e.Elapsed.Seconds())
	case core.EventInitAttempt:
		h.initAttempts.Add(ctx, 1)
	}
}
