package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are optional; a nil *Metrics records nothing.
type Metrics struct {
	chunks  *prometheus.CounterVec
	retries prometheus.Counter
	latency prometheus.Histogram
	runs    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "infinitran",
			Name:      "chunks_total",
			Help:      "Translated chunks by outcome.",
		}, []string{"result"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "infinitran",
			Name:      "chunk_retries_total",
			Help:      "Completion attempts that were retried.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "infinitran",
			Name:      "chunk_latency_seconds",
			Help:      "Wall-clock time per chunk including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "infinitran",
			Name:      "runs_total",
			Help:      "Document runs by final state.",
		}, []string{"state"}),
	}
	reg.MustRegister(m.chunks, m.retries, m.latency, m.runs)
	return m
}

func (m *Metrics) chunk(state ChunkState, latency time.Duration) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues(string(state)).Inc()
	m.latency.Observe(latency.Seconds())
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) run(state RunState) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(state)).Inc()
}
