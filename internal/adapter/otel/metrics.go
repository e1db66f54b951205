package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "vanguard"

// Metrics holds all Vanguard metric instruments.
type Metrics struct {
	HeartbeatsRun     metric.Int64Counter
	TriggersFired     metric.Int64Counter
	OperationsBlocked metric.Int64Counter
	StepsExecuted     metric.Int64Counter
	HeartbeatDuration metric.Float64Histogram
	DailyCost         metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.HeartbeatsRun, err = meter.Int64Counter("vanguard.heartbeats",
		metric.WithDescription("Number of heartbeat cycles executed"))
	if err != nil {
		return nil, err
	}

	m.TriggersFired, err = meter.Int64Counter("vanguard.triggers.fired",
		metric.WithDescription("Number of trigger rules fired"))
	if err != nil {
		return nil, err
	}

	m.OperationsBlocked, err = meter.Int64Counter("vanguard.budget.blocked",
		metric.WithDescription("Number of operations blocked by budget policy"))
	if err != nil {
		return nil, err
	}

	m.StepsExecuted, err = meter.Int64Counter("vanguard.mission.steps",
		metric.WithDescription("Number of mission steps executed"))
	if err != nil {
		return nil, err
	}

	m.HeartbeatDuration, err = meter.Float64Histogram("vanguard.heartbeat.duration_seconds",
		metric.WithDescription("Heartbeat cycle duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.DailyCost, err = meter.Float64Histogram("vanguard.budget.daily_cost_usd",
		metric.WithDescription("Per-agent daily cost at tracking time"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
