package experiment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus instruments updated by the Runner and Sweep.
type Metrics struct {
	// Replications counts completed replications
	Replications prometheus.Counter
	// Events counts simulation events fired across all replications
	Events prometheus.Counter
	// ReplicationDuration tracks wall-clock time per replication
	ReplicationDuration prometheus.Histogram
	// Rows counts closed sweep rows
	Rows prometheus.Counter
}

// NewMetrics creates the instruments and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Replications: f.NewCounter(prometheus.CounterOpts{
			Name: "faultsim_replications_total",
			Help: "Total completed replications",
		}),
		Events: f.NewCounter(prometheus.CounterOpts{
			Name: "faultsim_events_processed_total",
			Help: "Total simulation events fired",
		}),
		ReplicationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "faultsim_replication_duration_seconds",
			Help:    "Wall-clock duration of one replication in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 12), // 10µs to ~42s
		}),
		Rows: f.NewCounter(prometheus.CounterOpts{
			Name: "faultsim_sweep_rows_total",
			Help: "Total closed statistics rows",
		}),
	}
}
