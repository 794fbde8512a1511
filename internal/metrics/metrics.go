package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SuppressionReason identifies which rule skipped a lookup.
type SuppressionReason string

const (
	// SuppressedExact marks identifiers present in the exact-match blocklist.
	SuppressedExact SuppressionReason = "exact"
	// SuppressedDomain marks identifiers whose domain matched the blocklist pattern.
	SuppressedDomain SuppressionReason = "domain"
)

// BatchOutcome captures how a batch finished.
type BatchOutcome string

const (
	// BatchOK indicates every accepted identifier produced a result entry.
	BatchOK BatchOutcome = "ok"
	// BatchFailed indicates a fail-fast batch aborted on a fatal outcome.
	BatchFailed BatchOutcome = "failed"
	// BatchInvalid indicates the options were rejected before any lookup ran.
	BatchInvalid BatchOutcome = "invalid"
)

// Recorder publishes Prometheus metrics for lookup activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	lookups       *prometheus.CounterVec
	lookupLatency *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	suppressed    *prometheus.CounterVec
	batches       *prometheus.CounterVec
	batchLatency  *prometheus.HistogramVec
	quota         *prometheus.GaugeVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "emailrep",
		Subsystem: "lookup",
		Name:      "requests_total",
		Help:      "Reputation lookups issued, by classified outcome.",
	}, []string{"outcome"})

	lookupLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "emailrep",
		Subsystem: "lookup",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for individual reputation lookups.",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"outcome"})

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "emailrep",
		Subsystem: "lookup",
		Name:      "in_flight",
		Help:      "Reputation lookups currently awaiting a response.",
	})

	suppressed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "emailrep",
		Name:      "suppressed_total",
		Help:      "Identifiers skipped by suppression rules.",
	}, []string{"reason"})

	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "emailrep",
		Subsystem: "batch",
		Name:      "total",
		Help:      "Lookup batches processed, by result.",
	}, []string{"result"})

	batchLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "emailrep",
		Subsystem: "batch",
		Name:      "duration_seconds",
		Help:      "Latency distribution for complete lookup batches.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"result"})

	quota := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "emailrep",
		Subsystem: "quota",
		Name:      "remaining",
		Help:      "Most recent remaining lookup quota reported by the upstream service.",
	}, []string{"window"})

	reg.MustRegister(lookups, lookupLatency, inFlight, suppressed, batches, batchLatency, quota)

	return &Recorder{
		gatherer:      reg,
		handler:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		lookups:       lookups,
		lookupLatency: lookupLatency,
		inFlight:      inFlight,
		suppressed:    suppressed,
		batches:       batches,
		batchLatency:  batchLatency,
		quota:         quota,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveLookup records the classified outcome and latency of one lookup.
func (r *Recorder) ObserveLookup(outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	label := normalizeLabel(outcome)
	r.lookups.WithLabelValues(label).Inc()
	r.lookupLatency.WithLabelValues(label).Observe(duration.Seconds())
}

// LookupStarted increments the in-flight gauge; pair it with LookupFinished.
func (r *Recorder) LookupStarted() {
	if r == nil {
		return
	}
	r.inFlight.Inc()
}

// LookupFinished decrements the in-flight gauge.
func (r *Recorder) LookupFinished() {
	if r == nil {
		return
	}
	r.inFlight.Dec()
}

// ObserveSuppressed counts one skipped identifier.
func (r *Recorder) ObserveSuppressed(reason SuppressionReason) {
	if r == nil {
		return
	}
	r.suppressed.WithLabelValues(normalizeLabel(string(reason))).Inc()
}

// ObserveBatch records how a batch finished and how long it took.
func (r *Recorder) ObserveBatch(result BatchOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	label := normalizeLabel(string(result))
	r.batches.WithLabelValues(label).Inc()
	r.batchLatency.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveQuota publishes the remaining quota for a window such as "daily".
func (r *Recorder) ObserveQuota(window string, remaining float64) {
	if r == nil {
		return
	}
	r.quota.WithLabelValues(normalizeLabel(window)).Set(remaining)
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
