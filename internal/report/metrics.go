package report

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/cartoncaps/analytics/internal/errors"
)

const namespace = "datagen"

// Metrics holds the generation metrics of a run on a dedicated registry
type Metrics struct {
	registry    *prometheus.Registry
	rows        *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	conversion  prometheus.Gauge
	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// NewMetrics creates and registers the generation metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows generated per table.",
		}, []string{"table"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Records dropped per stage and reason.",
		}, []string{"stage", "reason"}),
		conversion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversion_ratio",
			Help:      "Converted referrals over sent referrals.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}

	m.registry.MustRegister(m.rows, m.dropped, m.conversion, m.duration, m.lastSuccess)
	return m
}

// Registry returns the metrics registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe records the counts of r
func (m *Metrics) Observe(r *Report) {
	for table, n := range r.RowCounts {
		m.rows.WithLabelValues(table).Add(float64(n))
	}
	for stage, reasons := range r.Dropped {
		for reason, n := range reasons {
			m.dropped.WithLabelValues(stage, reason).Add(float64(n))
		}
	}
	m.conversion.Set(r.Funnel.NetConversion)
}

// ObserveRun records the run duration and, for a successful run, its end time
func (m *Metrics) ObserveRun(duration time.Duration, success bool, endedAt time.Time) {
	m.duration.Set(duration.Seconds())
	if success {
		m.lastSuccess.Set(float64(endedAt.Unix()))
	}
}

// WriteTextfile writes the metrics in the node exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return apperrors.NewIOError("write metrics", path, err)
	}
	return nil
}
