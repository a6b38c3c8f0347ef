// Package monitoring exposes Prometheus metrics for the backtest service:
//   - grid_runs_total{grid_type,status}   – completed/failed runs
//   - grid_run_duration_seconds{grid_type} – run wall time
//   - grid_trades_total{grid_type}        – trades produced by finished runs
//   - grid_active_runs                    – runs currently executing
//   - grid_bars_processed_total           – bars consumed across all runs
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's instrument set on its own registry, so tests
// and parallel services never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	runs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	trades     *prometheus.CounterVec
	activeRuns prometheus.Gauge
	bars       prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grid_runs_total",
				Help: "Backtest runs by grid type and outcome",
			},
			[]string{"grid_type", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grid_run_duration_seconds",
				Help:    "Wall time of backtest runs",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"grid_type"},
		),
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grid_trades_total",
				Help: "Round-trip trades produced by finished runs",
			},
			[]string{"grid_type"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "grid_active_runs",
				Help: "Runs currently executing",
			},
		),
		bars: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "grid_bars_processed_total",
				Help: "Bars consumed across all runs",
			},
		),
	}
	m.registry.MustRegister(m.runs, m.duration, m.trades, m.activeRuns, m.bars)
	return m
}

// Handler serves the registry in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RunStarted() { m.activeRuns.Inc() }

func (m *Metrics) RunFinished(gridType string, dur time.Duration, trades, bars int) {
	m.activeRuns.Dec()
	m.runs.WithLabelValues(gridType, "ok").Inc()
	m.duration.WithLabelValues(gridType).Observe(dur.Seconds())
	m.trades.WithLabelValues(gridType).Add(float64(trades))
	m.bars.Add(float64(bars))
}

func (m *Metrics) RunFailed(gridType string, dur time.Duration) {
	m.activeRuns.Dec()
	m.runs.WithLabelValues(gridType, "error").Inc()
	m.duration.WithLabelValues(gridType).Observe(dur.Seconds())
}
