// Package metrics provides Prometheus metrics for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "calllive_pipeline"

// Metrics holds every collector the pipeline updates. One instance is built
// at startup and handed to each component.
type Metrics struct {
	// Flow
	TranscriptsIngested  prometheus.Counter
	TranscriptsProcessed prometheus.Counter
	TranscriptsFailed    *prometheus.CounterVec

	// Enrichment
	StageDuration  *prometheus.HistogramVec
	StageFallbacks *prometheus.CounterVec

	// Queue and workers
	QueueDepth  prometheus.Gauge
	WorkersBusy prometheus.Gauge

	// Submission
	RateLimitWait prometheus.Histogram
	Submissions   *prometheus.CounterVec

	StorageWrites *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TranscriptsIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_ingested_total",
			Help:      "Transcripts received from the source and enqueued",
		}),
		TranscriptsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_processed_total",
			Help:      "Transcripts that reached the end of the worker sequence",
		}),
		TranscriptsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_failed_total",
			Help:      "Error records written, by failing stage",
		}, []string{"stage"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Per-stage latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"stage"}),
		StageFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_fallbacks_total",
			Help:      "Enrichment calls that degraded to the stage default",
		}, []string{"stage"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Transcripts waiting in the work queue",
		}),
		WorkersBusy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_busy",
			Help:      "Workers currently processing a transcript",
		}),
		RateLimitWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for a submission permit",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10},
		}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Submissions to downstream sinks by sink and result",
		}, []string{"sink", "result"}),
		StorageWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_writes_total",
			Help:      "Storage writes by backend, record kind and result",
		}, []string{"backend", "kind", "result"}),
	}
}

// Discard returns collectors bound to a private registry nobody scrapes.
func Discard() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// ResultLabel maps an error onto the "result" label value.
func ResultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
