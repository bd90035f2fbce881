package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts worker outcomes. Optional; a nil *Metrics disables
// recording.
type Metrics struct {
	processed prometheus.Counter
	failed    *prometheus.CounterVec
	duration  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		processed: factory.NewCounter(prometheus.CounterOpts{
			Name: "extraction_jobs_completed_total",
			Help: "Jobs that ran the full pipeline and were committed remotely.",
		}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "extraction_jobs_failed_total",
			Help: "Jobs marked failed, by stage.",
		}, []string{"stage"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "extraction_job_duration_seconds",
			Help:    "Wall time for one job, load to commit.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
}

func (m *Metrics) jobCompleted(seconds float64) {
	if m == nil {
		return
	}
	m.processed.Inc()
	m.duration.Observe(seconds)
}

func (m *Metrics) jobFailed(stage string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(stage).Inc()
}
