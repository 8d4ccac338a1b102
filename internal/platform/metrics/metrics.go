// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	Logins             *prometheus.CounterVec
	Submissions        *prometheus.CounterVec
	RedirectRejections prometheus.Counter
	AIRequests         *prometheus.CounterVec
	StatsRefreshes     *prometheus.CounterVec
}

// New registers every collector on a private registry so tests can build
// as many instances as they need.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "preecode_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "preecode_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "preecode_logins_total",
			Help: "Login attempts by method (password, google, google_id_token, dev) and outcome.",
		}, []string{"method", "outcome"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "preecode_submissions_total",
			Help: "Recorded submissions by difficulty and status.",
		}, []string{"difficulty", "status"}),
		RedirectRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "preecode_redirect_rejections_total",
			Help: "OAuth redirect targets rejected by the scheme allow-list or undecodable state.",
		}),
		AIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "preecode_ai_requests_total",
			Help: "AI assistant requests by kind (chat, hint, review) and outcome.",
		}, []string{"kind", "outcome"}),
		StatsRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "preecode_stats_refreshes_total",
			Help: "Background stats recomputations by outcome (ok, error, contended).",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.Logins,
		m.Submissions,
		m.RedirectRejections,
		m.AIRequests,
		m.StatsRefreshes,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// The Observe helpers are no-ops on a nil *Metrics so services can run
// without a registry in tests and CLI commands.

func (m *Metrics) ObserveLogin(method string, err error) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(method, Outcome(err)).Inc()
}

func (m *Metrics) ObserveSubmission(difficulty, status string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(difficulty, status).Inc()
}

func (m *Metrics) ObserveRedirectRejected() {
	if m == nil {
		return
	}
	m.RedirectRejections.Inc()
}

func (m *Metrics) ObserveAI(kind string, err error) {
	if m == nil {
		return
	}
	m.AIRequests.WithLabelValues(kind, Outcome(err)).Inc()
}

// ObserveStatsRefresh takes the outcome label directly since lock contention
// is neither success nor failure.
func (m *Metrics) ObserveStatsRefresh(outcome string) {
	if m == nil {
		return
	}
	m.StatsRefreshes.WithLabelValues(outcome).Inc()
}
