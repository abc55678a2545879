package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reserva"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	Requests    *prometheus.CounterVec
	LatencyMS   *prometheus.HistogramVec
	Commits     *prometheus.CounterVec
	Validations *prometheus.CounterVec
	Integrity   *prometheus.CounterVec
	Expired     prometheus.Counter
	Events      *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A *prometheus.Registry is also used
// as the gatherer for Handler; any other registerer falls back to the default
// gatherer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		Commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "commits_total",
			Help:      "Reconciliation and payment commits by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "validation_errors_total",
			Help:      "Rejected confirmations by offending field.",
		}, []string{"field"}),
		Integrity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "integrity_issues_total",
			Help:      "Revision entries clamped or ignored during a commit.",
		}, []string{"kind"}),
		Expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "expired_total",
			Help:      "Orders cancelled because the reservation window closed.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Order events handed to the broker by outcome.",
		}, []string{"outcome"}),
		gatherer: prometheus.DefaultGatherer,
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	reg.MustRegister(m.Requests, m.LatencyMS, m.Commits, m.Validations, m.Integrity, m.Expired, m.Events)
	return m
}

func (m *Metrics) ObserveRequest(route string, status int, ms float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(route).Observe(ms)
}

func (m *Metrics) Commit(kind, outcome string) {
	if m == nil {
		return
	}
	m.Commits.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ValidationFailed(field string) {
	if m == nil {
		return
	}
	if field == "" {
		field = "unknown"
	}
	m.Validations.WithLabelValues(field).Inc()
}

func (m *Metrics) IntegrityIssue(kind string) {
	if m == nil {
		return
	}
	m.Integrity.WithLabelValues(kind).Inc()
}

func (m *Metrics) OrderExpired() {
	if m == nil {
		return
	}
	m.Expired.Inc()
}

func (m *Metrics) EventPublished(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.Events.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
