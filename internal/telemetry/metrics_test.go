package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("failed to read metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestNewMetricsWith(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	if m.PredictionTotal == nil {
		t.Error("PredictionTotal should not be nil")
	}
	if m.PredictionDurationMs == nil {
		t.Error("PredictionDurationMs should not be nil")
	}
	if m.SubscriberReconnectTotal == nil {
		t.Error("SubscriberReconnectTotal should not be nil")
	}
	if m.QueueWaitMs == nil {
		t.Error("QueueWaitMs should not be nil")
	}

	// A second registration on the same registry must fail.
	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	NewMetricsWith(reg)
}

func TestRecordPrediction(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordPrediction(PredictionLabels{
		Label:      "XSS",
		CacheHit:   true,
		Source:     "http",
		DurationMs: 3,
	})
	m.RecordPrediction(PredictionLabels{Label: "XSS", CacheHit: true, Source: "http"})

	counter, err := m.PredictionTotal.GetMetricWithLabelValues("XSS", "true", "http")
	if err != nil {
		t.Fatalf("failed to get metric: %v", err)
	}
	if got := counterValue(t, counter); got != 2 {
		t.Errorf("expected prediction count 2, got %v", got)
	}

	miss, _ := m.PredictionTotal.GetMetricWithLabelValues("XSS", "false", "http")
	if got := counterValue(t, miss); got != 0 {
		t.Errorf("expected no cache-miss predictions, got %v", got)
	}
}

func TestRecordCounters(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordPredictionError("subscriber", "empty")
	m.RecordNormalizeFallback("json")
	m.RecordNormalizeFallback("json")
	m.RecordCacheError("lookup")
	m.RecordSubscriberMessage("duplicate")
	m.RecordSubscriberReconnect()
	m.RecordQueueJob("finished", 12)
	m.RecordRejection("rate_limit")

	tests := []struct {
		name string
		c    prometheus.Counter
		want float64
	}{
		{"prediction error", m.PredictionErrorTotal.WithLabelValues("subscriber", "empty"), 1},
		{"normalize fallback", m.NormalizeFallbackTotal.WithLabelValues("json"), 2},
		{"cache error", m.CacheErrorTotal.WithLabelValues("lookup"), 1},
		{"subscriber message", m.SubscriberMessageTotal.WithLabelValues("duplicate"), 1},
		{"reconnect", m.SubscriberReconnectTotal, 1},
		{"queue job", m.QueueJobTotal.WithLabelValues("finished"), 1},
		{"rejection", m.RejectionTotal.WithLabelValues("rate_limit"), 1},
	}
	for _, tt := range tests {
		if got := counterValue(t, tt.c); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordPrediction(PredictionLabels{Label: "Normal"})
	m.RecordPredictionError("http", "internal")
	m.RecordNormalizeFallback("raw")
	m.RecordCacheError("store")
	m.RecordSubscriberMessage("processed")
	m.RecordSubscriberReconnect()
	m.RecordQueueJob("failed", 1)
	m.RecordRejection("auth")
}
