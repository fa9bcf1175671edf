package engine

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"coordline/internal/domain"
)

type engineMetrics struct {
	created     metric.Int64Counter
	transitions metric.Int64Counter
	rejected    metric.Int64Counter
	impact      metric.Float64Histogram
}

// newMetrics registers instruments on the global meter provider. Without an
// installed provider they are no-ops.
func newMetrics(logger *slog.Logger) engineMetrics {
	m, err := buildMetrics(otel.Meter("coordline/engine"))
	if err != nil {
		logger.Warn("metric registration failed; using no-op instruments", "error", err)
		m, _ = buildMetrics(noop.NewMeterProvider().Meter("coordline/engine"))
	}
	return m
}

func buildMetrics(meter metric.Meter) (engineMetrics, error) {
	var m engineMetrics
	var err error
	m.created, err = meter.Int64Counter("coordline.work.created",
		metric.WithDescription("Work items admitted"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return m, err
	}
	m.transitions, err = meter.Int64Counter("coordline.work.transitions",
		metric.WithDescription("Status transitions applied"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return m, err
	}
	m.rejected, err = meter.Int64Counter("coordline.work.rejected",
		metric.WithDescription("Creations refused at the active-work ceiling"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return m, err
	}
	m.impact, err = meter.Float64Histogram("coordline.work.impact",
		metric.WithDescription("Impact score assigned at admission"),
	)
	return m, err
}

func (m engineMetrics) recordCreated(ctx context.Context, w domain.WorkItem) {
	attrs := metric.WithAttributes(
		attribute.String("priority", string(w.Priority)),
		attribute.String("category", string(w.Category)),
	)
	m.created.Add(ctx, 1, attrs)
	m.impact.Record(ctx, w.ImpactScore, attrs)
}

func (m engineMetrics) recordTransition(ctx context.Context, from, to domain.Status, forced bool) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
		attribute.Bool("forced", forced),
	))
}

func (m engineMetrics) recordRejected(ctx context.Context) {
	m.rejected.Add(ctx, 1)
}
