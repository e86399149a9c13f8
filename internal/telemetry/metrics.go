package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the intrusion-detection service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PredictionTotal          *prometheus.CounterVec
	PredictionDurationMs     *prometheus.HistogramVec
	PredictionErrorTotal     *prometheus.CounterVec
	NormalizeFallbackTotal   *prometheus.CounterVec
	CacheErrorTotal          *prometheus.CounterVec
	SubscriberMessageTotal   *prometheus.CounterVec
	SubscriberReconnectTotal prometheus.Counter
	QueueJobTotal            *prometheus.CounterVec
	QueueWaitMs              prometheus.Histogram
	RejectionTotal           *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates and registers all metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PredictionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ids_prediction_total",
			Help: "Total predictions produced, by label.",
		}, []string{"label", "cache_hit", "source"}),

		PredictionDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ids_prediction_duration_ms",
			Help:    "Pipeline duration in milliseconds from normalization to verdict.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}, []string{"source"}),

		PredictionErrorTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ids_prediction_error_total",
			Help: "Total predictions that failed or were skipped.",
		}, []string{"source", "reason"}),

		NormalizeFallbackTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ids_normalize_fallback_total",
			Help: "Total payload decode attempts that fell back to a simpler interpretation.",
		}, []string{"stage"}),

		CacheErrorTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ids_cache_error_total",
			Help: "Total prediction cache operations that failed.",
		}, []string{"op"}),

		SubscriberMessageTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ids_subscriber_message_total",
			Help: "Total log messages received from the pub/sub channel.",
		}, []string{"outcome"}),

		SubscriberReconnectTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "ids_subscriber_reconnect_total",
			Help: "Total pub/sub reconnect attempts.",
		}),

		QueueJobTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ids_queue_job_total",
			Help: "Total queued prediction jobs by final status.",
		}, []string{"status"}),

		QueueWaitMs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ids_queue_wait_ms",
			Help:    "Time a job spent queued before a worker picked it up.",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000},
		}),

		RejectionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ids_rejection_total",
			Help: "Total HTTP requests rejected before reaching the pipeline.",
		}, []string{"reason"}),
	}
}

// PredictionLabels holds the label values for recording a prediction.
type PredictionLabels struct {
	Label      string
	CacheHit   bool
	Source     string
	DurationMs float64
}

// RecordPrediction records metrics for a completed prediction.
func (m *Metrics) RecordPrediction(labels PredictionLabels) {
	if m == nil {
		return
	}
	m.PredictionTotal.WithLabelValues(
		labels.Label, strconv.FormatBool(labels.CacheHit), labels.Source,
	).Inc()

	m.PredictionDurationMs.WithLabelValues(labels.Source).Observe(labels.DurationMs)
}

// RecordPredictionError records a failed or skipped prediction.
func (m *Metrics) RecordPredictionError(source, reason string) {
	if m == nil {
		return
	}
	m.PredictionErrorTotal.WithLabelValues(source, reason).Inc()
}

func (m *Metrics) RecordNormalizeFallback(stage string) {
	if m == nil {
		return
	}
	m.NormalizeFallbackTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordCacheError(op string) {
	if m == nil {
		return
	}
	m.CacheErrorTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) RecordSubscriberMessage(outcome string) {
	if m == nil {
		return
	}
	m.SubscriberMessageTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordSubscriberReconnect() {
	if m == nil {
		return
	}
	m.SubscriberReconnectTotal.Inc()
}

// RecordQueueJob records a finished job and how long it waited in the queue.
func (m *Metrics) RecordQueueJob(status string, waitMs float64) {
	if m == nil {
		return
	}
	m.QueueJobTotal.WithLabelValues(status).Inc()
	m.QueueWaitMs.Observe(waitMs)
}

// RecordRejection records a request rejected by auth, validation or rate limiting.
func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.RejectionTotal.WithLabelValues(reason).Inc()
}
