package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce         sync.Once
	metricsInitErr      error
	resolutionCounter   metric.Int64Counter
	attemptCounter      metric.Int64Counter
	resolutionHistogram metric.Float64Histogram
)

// Outcome classifies how a resolution ended.
type Outcome string

// Resolution outcomes. A probe hit is OutcomeResolved; a post-create fetch
// hit is OutcomeCreated so dashboards can separate warm and cold paths.
const (
	OutcomeResolved       Outcome = "resolved"
	OutcomeCreated        Outcome = "created"
	OutcomeCreateRejected Outcome = "create_rejected"
	OutcomeExhausted      Outcome = "exhausted"
	OutcomeTimeout        Outcome = "timeout"
)

// Resolution captures the fields needed to record resolution metrics.
// Wallet addresses are deliberately excluded from attributes: they are
// unbounded-cardinality and belong in logs, not metrics.
type Resolution struct {
	Outcome  Outcome
	Attempts int
	Duration time.Duration
}

// RecordResolution emits counters and a histogram describing one resolution.
func RecordResolution(ctx context.Context, res Resolution) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("resolution.outcome", string(res.Outcome)),
	}

	resolutionCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if res.Attempts > 0 {
		attemptCounter.Add(ctx, int64(res.Attempts), metric.WithAttributes(attrs...))
	}

	if res.Duration > 0 {
		resolutionHistogram.Record(ctx, float64(res.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(instrumentationName)

		resolutionCounter, metricsInitErr = meter.Int64Counter(
			"omnikey.resolutions_total",
			metric.WithDescription("Identity resolutions partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		attemptCounter, metricsInitErr = meter.Int64Counter(
			"omnikey.fetch_attempts_total",
			metric.WithDescription("Fetch attempts spent during identity resolutions"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		resolutionHistogram, metricsInitErr = meter.Float64Histogram(
			"omnikey.resolution_duration_ms",
			metric.WithDescription("End-to-end identity resolution latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}
