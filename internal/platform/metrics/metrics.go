// Package metrics holds the Prometheus collectors for the fetch gateway.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	selections     *prometheus.CounterVec
	fetches        *prometheus.CounterVec
	tokenRefreshes prometheus.Counter
}

// New builds a private registry so tests can create as many instances as
// they like.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "endpoint_selections_total",
			Help:      "Endpoint selections by pool and outcome (hit or empty).",
		}, []string{"pool", "outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Fetches by adapter mode and status code (\"error\" on failure).",
		}, []string{"mode", "code"}),
		tokenRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_token_refreshes_total",
			Help:      "Responses that carried a refreshed X-Token.",
		}),
	}
	reg.MustRegister(
		m.selections, m.fetches, m.tokenRefreshes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Selection records one selector call. Safe on a nil receiver.
func (m *Metrics) Selection(pool string, ok bool) {
	if m == nil {
		return
	}
	outcome := "hit"
	if !ok {
		outcome = "empty"
	}
	m.selections.WithLabelValues(pool, outcome).Inc()
}

// Fetch records one adapter call; code <= 0 means the call failed.
func (m *Metrics) Fetch(mode string, code int) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.fetches.WithLabelValues(mode, label).Inc()
}

func (m *Metrics) TokenRefreshed() {
	if m == nil {
		return
	}
	m.tokenRefreshes.Inc()
}
