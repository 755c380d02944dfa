package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type marketMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	rounds   prometheus.Gauge
}

var (
	marketMetricsOnce sync.Once
	marketRegistry    *marketMetrics
)

// MarketMetrics returns the lazily-initialised metrics registry used to
// record market operation activity.
func MarketMetrics() *marketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &marketMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "relic",
				Subsystem: "market",
				Name:      "operations_total",
				Help:      "Total market operations segmented by command and outcome.",
			}, []string{"command", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "relic",
				Subsystem: "market",
				Name:      "errors_total",
				Help:      "Total rejected market operations segmented by command and reason.",
			}, []string{"command", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "relic",
				Subsystem: "market",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for market operation execution.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"command"}),
			rounds: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "relic",
				Subsystem: "market",
				Name:      "current_round",
				Help:      "Current ledger round as seen by the node.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.requests,
			marketRegistry.errors,
			marketRegistry.latency,
			marketRegistry.rounds,
		)
	})
	return marketRegistry
}

// ObserveOperation records one executed operation with its duration and
// outcome.
func (m *marketMetrics) ObserveOperation(command string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.errors.WithLabelValues(command, errorReason(err)).Inc()
	}
	m.requests.WithLabelValues(command, outcome).Inc()
	m.latency.WithLabelValues(command).Observe(duration.Seconds())
}

// SetRound updates the exported ledger round gauge.
func (m *marketMetrics) SetRound(round uint64) {
	if m == nil {
		return
	}
	m.rounds.Set(float64(round))
}
