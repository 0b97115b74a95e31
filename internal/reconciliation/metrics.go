package reconciliation

import "github.com/prometheus/client_golang/prometheus"

var (
	reconcileDriftUSDC = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bazaar",
		Subsystem: "reconciliation",
		Name:      "drift_usdc",
		Help:      "Chain balance minus ledger volume, in USDC, from the last run.",
	})

	reconcileMismatch = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bazaar",
		Subsystem: "reconciliation",
		Name:      "mismatch",
		Help:      "1 when the last run's drift exceeded the alert threshold.",
	})

	reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bazaar",
		Subsystem: "reconciliation",
		Name:      "run_duration_seconds",
		Help:      "Duration of reconciliation runs in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	reconcileErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "reconciliation",
		Name:      "errors_total",
		Help:      "Total reconciliation check errors.",
	})
)

func init() {
	prometheus.MustRegister(
		reconcileDriftUSDC,
		reconcileMismatch,
		reconcileDuration,
		reconcileErrors,
	)
}
