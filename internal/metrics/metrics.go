// Package metrics holds the Prometheus collectors for ingestion and sync.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry    *prometheus.Registry
	handler     http.Handler
	extraction  *prometheus.CounterVec
	ingest      *prometheus.CounterVec
	ingestTime  prometheus.Histogram
	syncEvents  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	extraction := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "syllabus_extraction_attempts_total",
		Help: "Extraction capability attempts by outcome",
	}, []string{"outcome"})

	ingest := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "syllabus_ingest_total",
		Help: "Ingest requests by result code",
	}, []string{"result"})

	ingestTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "syllabus_ingest_duration_seconds",
		Help:    "End to end ingest latency",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	syncEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calendar_sync_events_total",
		Help: "Calendar events processed by result",
	}, []string{"result"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calendar_state_transitions_total",
		Help: "Calendar connection state transitions",
	}, []string{"from", "to"})

	rpcDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rpc_duration_seconds",
		Help:    "Duration of RPC calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "code"})

	registry.MustRegister(extraction, ingest, ingestTime, syncEvents, transitions, rpcDuration,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Metrics{
		registry:    registry,
		handler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		extraction:  extraction,
		ingest:      ingest,
		ingestTime:  ingestTime,
		syncEvents:  syncEvents,
		transitions: transitions,
		rpcDuration: rpcDuration,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) ExtractionAttempt(outcome string) {
	if m == nil {
		return
	}
	m.extraction.WithLabelValues(outcome).Inc()
}

// Ingest records one finished ingest. result is "ok" or an error code.
func (m *Metrics) Ingest(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ingest.WithLabelValues(result).Inc()
	m.ingestTime.Observe(elapsed.Seconds())
}

func (m *Metrics) SyncEvent(result string) {
	if m == nil {
		return
	}
	m.syncEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveRPC(method, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.rpcDuration.WithLabelValues(method, code).Observe(elapsed.Seconds())
}
