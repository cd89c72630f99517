// Package metrics exposes Prometheus collectors for presence, push delivery
// and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Push results.
const (
	PushDelivered = "delivered"
	PushOffline   = "offline"
	PushDropped   = "dropped"
)

type Metrics struct {
	OnlineUsers prometheus.Gauge
	Connections prometheus.Counter
	Pushes      *prometheus.CounterVec
	Requests    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatline",
			Name:      "online_users",
			Help:      "Users with a registered live connection.",
		}),
		Connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatline",
			Name:      "ws_connections_total",
			Help:      "Accepted real-time connections.",
		}),
		Pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatline",
			Name:      "pushes_total",
			Help:      "Events pushed to clients by event name and result.",
		}, []string{"event", "result"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatline",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		gatherer: reg,
	}
	reg.MustRegister(m.OnlineUsers, m.Connections, m.Pushes, m.Requests)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Gatherer is exposed for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// GinMiddleware counts requests by matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
