// Package monitoring exposes Prometheus metrics for channel operations.
// Metrics live in a private registry so tests can build isolated instances.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates all instrumented values, labeled by mechanism.
type Metrics struct {
	registry *prometheus.Registry

	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	OperationErrors  *prometheus.CounterVec
	ActiveMechanisms prometheus.Gauge
	SendDuration     *prometheus.HistogramVec
}

// New builds a metrics set backed by a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipclab",
			Name:      "messages_sent_total",
			Help:      "Messages sent per mechanism.",
		}, []string{"mechanism"}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipclab",
			Name:      "messages_received_total",
			Help:      "Messages received per mechanism.",
		}, []string{"mechanism"}),
		OperationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipclab",
			Name:      "operation_errors_total",
			Help:      "Failed channel operations per mechanism.",
		}, []string{"mechanism"}),
		ActiveMechanisms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ipclab",
			Name:      "active_mechanisms",
			Help:      "Number of mechanisms currently active.",
		}),
		SendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ipclab",
			Name:      "send_duration_ms",
			Help:      "Send latency in milliseconds per mechanism.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50},
		}, []string{"mechanism"}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
