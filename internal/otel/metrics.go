package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds the governor's metric instruments.
type Metrics struct {
	TaskDuration   metric.Float64Histogram
	TasksCompleted metric.Int64Counter
	TasksStolen    metric.Int64Counter
	TokensUsed     metric.Int64Counter
	SpendUSD       metric.Float64Counter
	Compactions    metric.Int64Counter
}

// NewMetrics creates all instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.TaskDuration, err = meter.Float64Histogram("governor.task.duration",
		metric.WithDescription("Pool task execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("governor.task.completed",
		metric.WithDescription("Tasks completed across all pools"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksStolen, err = meter.Int64Counter("governor.task.stolen",
		metric.WithDescription("Interactive tasks executed by Background workers"),
	)
	if err != nil {
		return nil, err
	}

	m.TokensUsed, err = meter.Int64Counter("governor.llm.tokens",
		metric.WithDescription("Total tokens consumed"),
	)
	if err != nil {
		return nil, err
	}

	m.SpendUSD, err = meter.Float64Counter("governor.llm.spend",
		metric.WithDescription("Estimated cumulative spend in USD"),
	)
	if err != nil {
		return nil, err
	}

	m.Compactions, err = meter.Int64Counter("governor.compactor.compactions",
		metric.WithDescription("Context compactions performed"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
