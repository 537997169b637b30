// Package monitoring exposes sweep metrics to Prometheus.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"backtest-sweep/services/config"
)

// Metrics implements engine.Recorder. Each Metrics owns its registry so
// several instances can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	combinations *prometheus.CounterVec
	sweeps       prometheus.Counter
	duration     prometheus.Histogram
	barsPerSec   prometheus.Gauge
	barsTotal    prometheus.Counter
}

func NewMetrics(cfg config.MonitoringConfig) (*Metrics, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	f := promauto.With(reg)
	ns := cfg.Namespace

	return &Metrics{
		registry: reg,
		combinations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "combinations_total",
				Help:      "Simulated parameter combinations by validity",
			},
			[]string{"valid"},
		),
		sweeps: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "sweeps_total",
			Help:      "Completed sweeps",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of a whole sweep",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 1200},
		}),
		barsPerSec: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "bars_per_second",
			Help:      "Simulated bars per second of the last sweep (bars x combinations)",
		}),
		barsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "simulated_bars_total",
			Help:      "Bars stepped across all combinations",
		}),
	}, nil
}

func (m *Metrics) ObserveCombination(valid bool) {
	label := "false"
	if valid {
		label = "true"
	}
	m.combinations.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration, combinations, bars int) {
	work := float64(combinations) * float64(bars)
	m.sweeps.Inc()
	m.duration.Observe(d.Seconds())
	m.barsTotal.Add(work)
	if s := d.Seconds(); s > 0 {
		m.barsPerSec.Set(work / s)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
