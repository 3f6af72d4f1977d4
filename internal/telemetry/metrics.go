package telemetry

import (
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the cadence metric instruments.
type Metrics struct {
	RPCDuration      metric.Float64Histogram
	RPCErrors        metric.Int64Counter
	Sprints          metric.Int64Counter
	SprintDuration   metric.Float64Histogram
	SprintConfidence metric.Float64Histogram
	Checkpoints      metric.Int64Counter
	PhaseTransitions metric.Int64Counter
	CleanupDeleted   metric.Int64Counter
}

// NewMetrics creates all instruments from meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RPCDuration, err = meter.Float64Histogram("cadence.rpc.duration",
		metric.WithDescription("Control call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.RPCErrors, err = meter.Int64Counter("cadence.rpc.errors",
		metric.WithDescription("Control calls that returned an error"),
	)
	if err != nil {
		return nil, err
	}

	m.Sprints, err = meter.Int64Counter("cadence.sprints",
		metric.WithDescription("Sprints run, by final status"),
	)
	if err != nil {
		return nil, err
	}

	m.SprintDuration, err = meter.Float64Histogram("cadence.sprint.duration",
		metric.WithDescription("Executor run time per sprint in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.SprintConfidence, err = meter.Float64Histogram("cadence.sprint.confidence",
		metric.WithDescription("Confidence scored for each sprint"),
	)
	if err != nil {
		return nil, err
	}

	m.Checkpoints, err = meter.Int64Counter("cadence.checkpoints",
		metric.WithDescription("Checkpoints created"),
	)
	if err != nil {
		return nil, err
	}

	m.PhaseTransitions, err = meter.Int64Counter("cadence.phase.transitions",
		metric.WithDescription("Phase advances decided after a sprint"),
	)
	if err != nil {
		return nil, err
	}

	m.CleanupDeleted, err = meter.Int64Counter("cadence.cleanup.deleted",
		metric.WithDescription("Rows removed by retention runs"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// NopMetrics returns instruments that record nothing.
func NopMetrics() *Metrics {
	m, _ := NewMetrics(metricnoop.NewMeterProvider().Meter(ScopeName))
	return m
}
