// Package metrics holds the Prometheus instrumentation for the
// fcgiproto-gateway demo server, following server/src/metrics.go's
// promauto registration style.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mevdschee/fcgiproto/pkg/fastcgi"
)

// Metrics holds all Prometheus collectors exposed by the gateway.
type Metrics struct {
	ConnectionsTotal  prometheus.Counter
	ProtocolErrors    prometheus.Counter
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ActiveConnections prometheus.Gauge
	BytesInTotal      prometheus.Counter
	BytesOutTotal     prometheus.Counter
}

// New creates and registers the gateway's metrics against the default
// registry.
func New() *Metrics {
	return &Metrics{
		ConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fcgiproto_connections_total",
			Help: "Total FastCGI connections accepted",
		}),
		ProtocolErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fcgiproto_protocol_errors_total",
			Help: "Total ProtocolError results returned by FeedData",
		}),
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fcgiproto_requests_total",
			Help: "Total FastCGI requests served, by role",
		}, []string{"role"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fcgiproto_request_duration_seconds",
			Help:    "Time from RequestBegin to EndRequest",
			Buckets: prometheus.DefBuckets,
		}, []string{"role"}),
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "fcgiproto_active_connections",
			Help: "Number of currently open FastCGI connections",
		}),
		BytesInTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fcgiproto_bytes_in_total",
			Help: "Total bytes read from FastCGI connections",
		}),
		BytesOutTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fcgiproto_bytes_out_total",
			Help: "Total bytes written to FastCGI connections",
		}),
	}
}

// RoleName returns the metric label for a role, avoiding numeric role
// values leaking into label cardinality.
func RoleName(role fastcgi.Role) string {
	switch role {
	case fastcgi.RoleResponder:
		return "responder"
	case fastcgi.RoleAuthorizer:
		return "authorizer"
	case fastcgi.RoleFilter:
		return "filter"
	default:
		return "unknown"
	}
}

// ObserveRequest records a completed request's duration, bucketed by role.
func (m *Metrics) ObserveRequest(role fastcgi.Role, start time.Time) {
	m.RequestsTotal.WithLabelValues(RoleName(role)).Inc()
	m.RequestDuration.WithLabelValues(RoleName(role)).Observe(time.Since(start).Seconds())
}
