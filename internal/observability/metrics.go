package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// archive's batch pipelines.
type Metrics struct {
	FilesUploaded   prometheus.Counter
	UploadFailures  prometheus.Counter
	IndexesBuilt    prometheus.Counter
	IndexFailures   prometheus.Counter
	EventsMapped    prometheus.Counter
	MappingFailures prometheus.Counter
	CombinedBuilt   prometheus.Counter
	RunActive       prometheus.Gauge

	// Batch processing metrics.
	RegistryFlushSize prometheus.Histogram
	RunDuration       *prometheus.HistogramVec // label: job={check,upload,index,map,combine}
}

// NewMetrics creates and registers all archive metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.FilesUploaded,
		m.UploadFailures,
		m.IndexesBuilt,
		m.IndexFailures,
		m.EventsMapped,
		m.MappingFailures,
		m.CombinedBuilt,
		m.RunActive,
		m.RegistryFlushSize,
		m.RunDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_archive",
			Name:      "files_uploaded_total",
			Help:      "Product files copied from the origin server to object storage.",
		}),
		UploadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_archive",
			Name:      "upload_failures_total",
			Help:      "Uploads that exhausted their retries and were recorded as failed.",
		}),
		IndexesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_archive",
			Name:      "indexes_built_total",
			Help:      "Individual reference files built and stored.",
		}),
		IndexFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_archive",
			Name:      "index_failures_total",
			Help:      "Individual reference builds that failed.",
		}),
		EventsMapped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_archive",
			Name:      "events_mapped_total",
			Help:      "NOAA events linked to their overlapping product files.",
		}),
		MappingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_archive",
			Name:      "mapping_failures_total",
			Help:      "Event mapping transactions rolled back.",
		}),
		CombinedBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_archive",
			Name:      "combined_refs_built_total",
			Help:      "Combined per-event reference files built and stored.",
		}),
		RunActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "storm_archive",
			Name:      "run_active",
			Help:      "1 while a batch run is in progress, 0 otherwise.",
		}),
		RegistryFlushSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storm_archive",
			Name:      "registry_flush_size",
			Help:      "Rows written per registry flush transaction.",
			Buckets:   []float64{1, 10, 25, 50, 100, 200, 400},
		}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storm_archive",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete batch run by job.",
			Buckets:   []float64{0.1, 1, 10, 60, 300, 1800, 7200},
		}, []string{"job"}),
	}
}
