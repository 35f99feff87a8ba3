package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// engineMetrics holds the engine's OpenTelemetry instruments. Queue depth is
// the system's backpressure signal and is exported as an observable gauge.
type engineMetrics struct {
	runsStarted   metric.Int64Counter
	runsFinalized metric.Int64Counter
	stepDuration  metric.Float64Histogram
}

func newEngineMetrics(queueDepth func() int64) (*engineMetrics, error) {
	meter := otel.Meter("workforce-ai-saas/engine")

	runsStarted, err := meter.Int64Counter("engine.runs.started",
		metric.WithDescription("Number of runs accepted for execution"))
	if err != nil {
		return nil, err
	}
	runsFinalized, err := meter.Int64Counter("engine.runs.finalized",
		metric.WithDescription("Number of runs reaching a terminal state"))
	if err != nil {
		return nil, err
	}
	stepDuration, err := meter.Float64Histogram("engine.step.duration",
		metric.WithDescription("Step execution duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	_, err = meter.Int64ObservableGauge("engine.queue.depth",
		metric.WithDescription("Runs waiting for a free worker"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(queueDepth())
			return nil
		}))
	if err != nil {
		return nil, err
	}

	return &engineMetrics{
		runsStarted:   runsStarted,
		runsFinalized: runsFinalized,
		stepDuration:  stepDuration,
	}, nil
}
