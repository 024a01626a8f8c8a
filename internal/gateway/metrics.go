package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks purgarr-level counters on a private prometheus registry.
// All record methods are nil-safe so collaborators can hold an optional
// reference.
type Metrics struct {
	registry   *prometheus.Registry
	inbound    prometheus.Counter
	reconnects *prometheus.CounterVec
	reminders  prometheus.Counter
	webhooks   *prometheus.CounterVec
}

// NewMetrics creates the registry and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inbound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "purgarr_inbound_messages_total",
			Help: "Inbound chat messages delivered to the router.",
		}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "purgarr_channel_reconnects_total",
			Help: "Channel session drops by classification.",
		}, []string{"kind"}),
		reminders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "purgarr_reminders_sent_total",
			Help: "Reminder prompts delivered to users.",
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "purgarr_webhook_requests_total",
			Help: "Webhook deliveries by source and outcome.",
		}, []string{"source", "outcome"}),
	}
	m.registry.MustRegister(m.inbound, m.reconnects, m.reminders, m.webhooks)
	return m
}

// RecordInbound counts one routed inbound message.
func (m *Metrics) RecordInbound() {
	if m == nil {
		return
	}
	m.inbound.Inc()
}

// RecordReconnect counts one session drop. It implements the transport's
// MetricsRecorder.
func (m *Metrics) RecordReconnect(fatal bool) {
	if m == nil {
		return
	}
	kind := "transient"
	if fatal {
		kind = "fatal"
	}
	m.reconnects.WithLabelValues(kind).Inc()
}

// RecordReminder counts one delivered reminder prompt.
func (m *Metrics) RecordReminder() {
	if m == nil {
		return
	}
	m.reminders.Inc()
}

// RecordWebhook counts one webhook delivery.
func (m *Metrics) RecordWebhook(source string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.webhooks.WithLabelValues(source, outcome).Inc()
}

// Handler exposes the registry in prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
