// Package metrics exposes the Prometheus collectors shared by the session
// and story packages. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "safetale"

// Collaborator names
const (
	Retrieval  = "retrieval"
	Generation = "generation"
)

// Collaborator call results
const (
	ResultOK    = "ok"
	ResultEmpty = "empty"
	ResultError = "error"
)

// Pipeline outcomes
const (
	OutcomeGenerated = "generated"
	OutcomeFallback  = "fallback"
	OutcomeApology   = "apology"
	OutcomePrompt    = "prompt"
)

// Metrics owns a private registry so tests and multiple servers never collide
// on the global default registerer.
type Metrics struct {
	registry *prometheus.Registry

	pipelineRuns      *prometheus.CounterVec
	collaboratorCalls *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	deliveries        prometheus.Counter
	deliveryFailures  prometheus.Counter
	prunes            prometheus.Counter
	sessions          prometheus.Gauge
	peers             prometheus.Gauge
}

// New creates the collectors and registers them, along with the Go runtime
// and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "story",
			Name:      "requests_total",
			Help:      "Story generation requests by terminal outcome.",
		}, []string{"outcome"}),
		collaboratorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "story",
			Name:      "collaborator_calls_total",
			Help:      "Calls to the retrieval and generation backends by result.",
		}, []string{"collaborator", "result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "story",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{.001, .01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "deliveries_total",
			Help:      "Payloads handed to peers during broadcasts.",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "delivery_failures_total",
			Help:      "Broadcast deliveries that failed.",
		}),
		prunes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "peers_pruned_total",
			Help:      "Peers removed from a session after a failed delivery.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions with at least one connected peer.",
		}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "peers",
			Help:      "Peer memberships across all sessions.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.pipelineRuns,
		m.collaboratorCalls,
		m.stageDuration,
		m.deliveries,
		m.deliveryFailures,
		m.prunes,
		m.sessions,
		m.peers,
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PipelineRun counts one finished request.
func (m *Metrics) PipelineRun(outcome string) {
	if m == nil {
		return
	}
	m.pipelineRuns.WithLabelValues(outcome).Inc()
}

// CollaboratorCall counts one retrieval or generation call.
func (m *Metrics) CollaboratorCall(collaborator, result string) {
	if m == nil {
		return
	}
	m.collaboratorCalls.WithLabelValues(collaborator, result).Inc()
}

// ObserveStage records the duration of a pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Delivered counts successful deliveries.
func (m *Metrics) Delivered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deliveries.Add(float64(n))
}

// DeliveryFailed counts failed deliveries.
func (m *Metrics) DeliveryFailed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deliveryFailures.Add(float64(n))
}

// PeerPruned counts a peer evicted after a failed delivery.
func (m *Metrics) PeerPruned() {
	if m == nil {
		return
	}
	m.prunes.Inc()
}

// SetMembership updates the session and peer gauges.
func (m *Metrics) SetMembership(sessions, peers int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(sessions))
	m.peers.Set(float64(peers))
}
