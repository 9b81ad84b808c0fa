package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	listPages        *prometheus.CounterVec

	interviewsStarted   prometheus.Counter
	interviewsCompleted prometheus.Counter
	answersSaved        prometheus.Counter
	saveFailures        prometheus.Counter
	enrichedFields      *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_upstream_requests_total",
			Help: "Requests sent to the tabular backend, by operation and status code",
		}, []string{"backend", "operation", "status"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "concierge_upstream_request_seconds",
			Help:    "Latency of tabular backend requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		listPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_list_pages_total",
			Help: "Pages fetched while resolving list calls",
		}, []string{"table"}),
		interviewsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "concierge_interviews_started_total",
			Help: "Interview flows started",
		}),
		interviewsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "concierge_interviews_completed_total",
			Help: "Interview flows that saved their last answer",
		}),
		answersSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "concierge_answers_saved_total",
			Help: "Answers written to the responses table",
		}),
		saveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "concierge_answer_save_failures_total",
			Help: "Answer submissions that failed",
		}),
		enrichedFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_enriched_fields_total",
			Help: "AI fields generated by the enricher",
		}, []string{"field"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.upstreamRequests,
		m.upstreamLatency,
		m.listPages,
		m.interviewsStarted,
		m.interviewsCompleted,
		m.answersSaved,
		m.saveFailures,
		m.enrichedFields,
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveUpstream records one backend request. status 0 means transport error.
func (m *Metrics) ObserveUpstream(backend, operation string, status int, started time.Time) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(backend, operation, strconv.Itoa(status)).Inc()
	m.upstreamLatency.WithLabelValues(backend, operation).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ListPage(table string) {
	if m == nil {
		return
	}
	m.listPages.WithLabelValues(table).Inc()
}

func (m *Metrics) InterviewStarted() {
	if m == nil {
		return
	}
	m.interviewsStarted.Inc()
}

func (m *Metrics) InterviewCompleted() {
	if m == nil {
		return
	}
	m.interviewsCompleted.Inc()
}

func (m *Metrics) AnswerSaved() {
	if m == nil {
		return
	}
	m.answersSaved.Inc()
}

func (m *Metrics) SaveFailed() {
	if m == nil {
		return
	}
	m.saveFailures.Inc()
}

func (m *Metrics) FieldEnriched(field string) {
	if m == nil {
		return
	}
	m.enrichedFields.WithLabelValues(field).Inc()
}
