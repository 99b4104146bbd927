package dashboard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated while serving scans:
//   - arb_scans_total{right}        – scans run through the API
//   - arb_scan_pairs_total          – strike pairs evaluated across scans
//   - arb_scan_partial_total        – scans that returned partial output
//   - arb_scan_duration_seconds     – scan wall time
//
// Served at /metrics in Prometheus text exposition format.
type Metrics struct {
	registry     *prometheus.Registry
	scans        *prometheus.CounterVec
	pairs        prometheus.Counter
	partials     prometheus.Counter
	scanDuration prometheus.Histogram
}

// NewMetrics builds and registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_scans_total",
				Help: "Scans run, split by option right.",
			},
			[]string{"right"},
		),
		pairs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arb_scan_pairs_total",
				Help: "Strike pairs evaluated across all scans.",
			},
		),
		partials: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arb_scan_partial_total",
				Help: "Scans that ended early and returned partial output.",
			},
		),
		scanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arb_scan_duration_seconds",
				Help:    "Wall time of one scan.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
	}
	m.registry.MustRegister(m.scans, m.pairs, m.partials, m.scanDuration)
	return m
}

// RecordScan updates the collectors for one completed scan.
func (m *Metrics) RecordScan(right string, pairsConsidered int, partial bool, d time.Duration) {
	m.scans.WithLabelValues(right).Inc()
	m.pairs.Add(float64(pairsConsidered))
	if partial {
		m.partials.Inc()
	}
	m.scanDuration.Observe(d.Seconds())
}
