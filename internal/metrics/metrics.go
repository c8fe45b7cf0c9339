// Package metrics provides Prometheus metrics for the proxy and tunnel.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handshake results used as the "result" label.
const (
	ResultOK             = "ok"
	ResultClosed         = "closed"
	ResultTooLarge       = "too_large"
	ResultAuthFailed     = "auth_failed"
	ResultUpstreamFailed = "upstream_failed"
	ResultProxyStatus    = "proxy_status"
	ResultError          = "error"
)

// Relay directions used as the "direction" label.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsTotal  *prometheus.CounterVec
	ConnectionsActive *prometheus.GaugeVec
	HandshakesTotal   *prometheus.CounterVec
	TokensTotal       *prometheus.CounterVec
	RetriesTotal      prometheus.Counter
	BytesTotal        *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors
// registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_negotiate_connections_total",
			Help: "Accepted client connections by listener.",
		}, []string{"listener"}),

		ConnectionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proxy_negotiate_connections_active",
			Help: "Client connections currently being handled by listener.",
		}, []string{"listener"}),

		HandshakesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_negotiate_handshakes_total",
			Help: "Completed handshakes by listener and result.",
		}, []string{"listener", "result"}),

		TokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_negotiate_tokens_total",
			Help: "Negotiate token requests by result.",
		}, []string{"result"}),

		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_negotiate_tunnel_auth_retries_total",
			Help: "CONNECT requests resent with credentials after a 407.",
		}),

		BytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_negotiate_relayed_bytes_total",
			Help: "Bytes relayed by listener and direction.",
		}, []string{"listener", "direction"}),
	}

	reg.MustRegister(
		m.ConnectionsTotal,
		m.ConnectionsActive,
		m.HandshakesTotal,
		m.TokensTotal,
		m.RetriesTotal,
		m.BytesTotal,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ConnOpened records an accepted connection and returns a func that marks it
// closed.
func (m *Metrics) ConnOpened(listener string) func() {
	if m == nil {
		return func() {}
	}
	m.ConnectionsTotal.WithLabelValues(listener).Inc()
	g := m.ConnectionsActive.WithLabelValues(listener)
	g.Inc()
	return g.Dec
}

// Handshake records the outcome of one handshake.
func (m *Metrics) Handshake(listener, result string) {
	if m == nil {
		return
	}
	m.HandshakesTotal.WithLabelValues(listener, result).Inc()
}

// Token records a token request.
func (m *Metrics) Token(err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultAuthFailed
	}
	m.TokensTotal.WithLabelValues(result).Inc()
}

// Retry records a CONNECT resent after a 407.
func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// Relayed records bytes copied in each direction.
func (m *Metrics) Relayed(listener string, up, down int64) {
	if m == nil {
		return
	}
	m.BytesTotal.WithLabelValues(listener, DirectionUp).Add(float64(up))
	m.BytesTotal.WithLabelValues(listener, DirectionDown).Add(float64(down))
}
