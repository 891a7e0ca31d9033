package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chart_consensus"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// consensus service.
type Metrics struct {
	JobsConsumed    prometheus.Counter
	JobsCompleted   prometheus.Counter
	JobErrors       prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Consensus metrics.
	JobDuration    prometheus.Histogram
	KeysReconciled prometheus.Counter
	Disagreements  *prometheus.CounterVec // labels: reason={missing_runs,location_mismatch,...}
	SeriesRejected *prometheus.CounterVec // labels: reason={empty_hours,wrong_length,all_zero_series}
	Repairs        *prometheus.CounterVec // labels: outcome={patched,invalid,error,unavailable}

	// Re-reader metrics.
	RereaderCache    *prometheus.CounterVec // labels: result={hit,miss}
	RereaderDuration prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		JobsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_consumed_total",
			Help:      "Total reconciliation jobs read from the source.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Total job results written to the sinks.",
		}),
		JobErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_errors_total",
			Help:      "Total jobs skipped because they could not be decoded or reconciled.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of jobs per batch extracted from Kafka.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of one consensus pass, repair included.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 120},
		}),
		KeysReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_reconciled_total",
			Help:      "Total data points merged across runs.",
		}),
		Disagreements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disagreements_total",
			Help:      "Disagreement issues by reason.",
		}, []string{"reason"}),
		SeriesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_rejected_total",
			Help:      "Series kept out of reconciliation by the validity filter, by reason.",
		}, []string{"reason"}),
		Repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repairs_total",
			Help:      "Flagged charts processed by the repair loop, by outcome.",
		}, []string{"outcome"}),
		RereaderCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rereader_cache_total",
			Help:      "Re-read cache lookups by result.",
		}, []string{"result"}),
		RereaderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rereader_duration_seconds",
			Help:      "Re-read service request duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all metrics and registers them with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(
		m.JobsConsumed,
		m.JobsCompleted,
		m.JobErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.JobDuration,
		m.KeysReconciled,
		m.Disagreements,
		m.SeriesRejected,
		m.Repairs,
		m.RereaderCache,
		m.RereaderDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
