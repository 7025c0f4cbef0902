package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds all Prometheus metrics for the activity pipeline.
type PipelineMetrics struct {
	RunsTotal            *prometheus.CounterVec
	FilesDownloadedTotal prometheus.Counter
	FileFailuresTotal    prometheus.Counter
	ParseFailuresTotal   prometheus.Counter
	LookupFailuresTotal  prometheus.Counter
	RunDuration          prometheus.Histogram
}

// NewPipelineMetrics initializes and registers the Prometheus metrics.
func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse_ops",
			Subsystem: "activity",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by terminal status.",
		}, []string{"status"}), // status: succeeded, partial, failed
		FilesDownloadedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse_ops",
			Subsystem: "activity",
			Name:      "files_downloaded_total",
			Help:      "Total number of activity log files downloaded.",
		}),
		FileFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse_ops",
			Subsystem: "activity",
			Name:      "file_failures_total",
			Help:      "Total number of per-file download or resolution failures.",
		}),
		ParseFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse_ops",
			Subsystem: "activity",
			Name:      "parse_failures_total",
			Help:      "Total number of log lines that failed to parse as events.",
		}),
		LookupFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse_ops",
			Subsystem: "activity",
			Name:      "lookup_failures_total",
			Help:      "Total number of IDs that could not be resolved to names.",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pulse_ops",
			Subsystem: "activity",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}
