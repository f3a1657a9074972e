// Package metrics defines the Prometheus instruments exported by the encoder
// server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Label names
	LabelStatus = "status"

	// Status values
	StatusOK          = "ok"
	StatusBadRequest  = "bad_request"
	StatusTooLarge    = "too_large"
	StatusInitFailed  = "init_failed"
	StatusEncodeError = "encode_error"
)

// Metrics holds all Prometheus metrics for the encoder.
type Metrics struct {
	RequestsTotal *prometheus.CounterVec

	EncodeDuration prometheus.Histogram

	TokensTotal prometheus.Counter

	CacheHits prometheus.Counter

	LoadDuration prometheus.Histogram
}

// New creates the encoder metrics and registers them with reg. A nil reg
// creates unregistered instruments, which is useful in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nowledge_encode_requests_total",
				Help: "Total number of encode requests by outcome",
			},
			[]string{LabelStatus},
		),

		EncodeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nowledge_encode_duration_seconds",
				Help:    "Latency of a single encode call, including the first-use tokenizer load",
				Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 5},
			},
		),

		TokensTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nowledge_encode_tokens_total",
				Help: "Total token ids returned to callers",
			},
		),

		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nowledge_encode_cache_hits_total",
				Help: "Encode requests answered from the in-memory cache",
			},
		),

		LoadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nowledge_tokenizer_load_duration_seconds",
				Help:    "Time spent constructing the tokenizer handle",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
	}
}

// RecordEncode records a completed encode request.
func (m *Metrics) RecordEncode(status string, tokens int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(status).Inc()
	if status == StatusOK {
		m.EncodeDuration.Observe(duration.Seconds())
		m.TokensTotal.Add(float64(tokens))
	}
}

// RecordCacheHit counts a request served without touching the tokenizer.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// ObserveLoad matches the encoder's load observer signature.
func (m *Metrics) ObserveLoad(d time.Duration, err error) {
	if m == nil || err != nil {
		return
	}
	m.LoadDuration.Observe(d.Seconds())
}
