// Package metrics holds the Prometheus collectors for the mention pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codi"

// Mention outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeNoTask = "no_task"
	OutcomeError  = "error"
)

// Attachment staging results.
const (
	StageOK             = "ok"
	StageHTTPError      = "http_error"
	StageTransportError = "transport_error"
	StageWriteError     = "write_error"
)

type Metrics struct {
	registry       *prometheus.Registry
	mentions       *prometheus.CounterVec
	attachments    *prometheus.CounterVec
	urlFetches     *prometheus.CounterVec
	agentDurations prometheus.Histogram
}

// New registers the pipeline collectors plus the Go and process collectors on
// a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		mentions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mentions_total",
			Help:      "Mention events handled, by outcome.",
		}, []string{"outcome"}),
		attachments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachments_staged_total",
			Help:      "Thread attachments staged for the agent, by result.",
		}, []string{"result"}),
		urlFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "url_fetches_total",
			Help:      "Linked pages fetched while augmenting messages, by result.",
		}, []string{"result"}),
		agentDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_session_seconds",
			Help:      "Wall time of agent sessions from open to close.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
	m.registry.MustRegister(
		m.mentions,
		m.attachments,
		m.urlFetches,
		m.agentDurations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) MentionHandled(outcome string) {
	if m == nil {
		return
	}
	m.mentions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AttachmentStaged(result string) {
	if m == nil {
		return
	}
	m.attachments.WithLabelValues(result).Inc()
}

func (m *Metrics) URLFetched(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.urlFetches.WithLabelValues(result).Inc()
}

func (m *Metrics) AgentSession(d time.Duration) {
	if m == nil {
		return
	}
	m.agentDurations.Observe(d.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
