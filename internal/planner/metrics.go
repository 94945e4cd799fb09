package planner

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	planDuration    metric.Float64Histogram
	planTotal       metric.Int64Counter
	scoringDuration metric.Float64Histogram
	candidates      metric.Int64Histogram
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	planDuration, err := meter.Float64Histogram(
		"planner.plan.duration",
		metric.WithDescription("End-to-end duration of route planning in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	planTotal, err := meter.Int64Counter(
		"planner.plan.total",
		metric.WithDescription("Number of route plans by outcome"),
		metric.WithUnit("{plan}"),
	)
	if err != nil {
		return nil, err
	}

	scoringDuration, err := meter.Float64Histogram(
		"planner.scoring.duration",
		metric.WithDescription("Duration of safety scoring and selection in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	candidates, err := meter.Int64Histogram(
		"planner.route.candidates",
		metric.WithDescription("Number of route candidates scored per request"),
		metric.WithUnit("{route}"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{
		planDuration:    planDuration,
		planTotal:       planTotal,
		scoringDuration: scoringDuration,
		candidates:      candidates,
	}, nil
}

func (m *metrics) recordPlan(ctx context.Context, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome(err)))
	m.planDuration.Record(ctx, d.Seconds(), attrs)
	m.planTotal.Add(ctx, 1, attrs)
}

func (m *metrics) recordScoring(ctx context.Context, d time.Duration, candidates, selected int) {
	m.scoringDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Int("routes.selected", selected)))
	m.candidates.Record(ctx, int64(candidates))
}

// outcome maps an error to a low-cardinality label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrOriginNotFound), errors.Is(err, ErrDestinationNotFound):
		return "not_found"
	case errors.Is(err, ErrNoRoutes):
		return "no_routes"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	default:
		return "error"
	}
}
