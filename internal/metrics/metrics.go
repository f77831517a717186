// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

type Metrics struct {
	WebhookEvents        *prometheus.CounterVec
	NotificationsCreated prometheus.Counter
	NotificationsUpdated prometheus.Counter
	StaleEventsSkipped   prometheus.Counter
	RequestLatency       *prometheus.HistogramVec
}

// New registers and returns the service metrics. Re-registration (tests
// constructing multiple instances) reuses the existing collectors.
func New() *Metrics {
	m := &Metrics{
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deploybeacon",
			Name:      "webhook_events_total",
			Help:      "Inbound webhook events by kind and outcome",
		}, []string{"kind", "outcome"}),
		NotificationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deploybeacon",
			Name:      "notifications_created_total",
			Help:      "New deploy notification messages posted",
		}),
		NotificationsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deploybeacon",
			Name:      "notifications_updated_total",
			Help:      "In-place updates applied to existing notifications",
		}),
		StaleEventsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "deploybeacon",
			Name:      "stale_events_skipped_total",
			Help:      "Deploy stage events dropped by the monotonicity guard",
		}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "deploybeacon",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "path", "status"}),
	}

	m.WebhookEvents = registerCounterVec(m.WebhookEvents)
	m.NotificationsCreated = registerCounter(m.NotificationsCreated)
	m.NotificationsUpdated = registerCounter(m.NotificationsUpdated)
	m.StaleEventsSkipped = registerCounter(m.StaleEventsSkipped)
	m.RequestLatency = registerHistogramVec(m.RequestLatency)
	return m
}

func registerCounterVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return c
}

func registerCounter(c prometheus.Counter) prometheus.Counter {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Counter)
		}
	}
	return c
}

func registerHistogramVec(h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.HistogramVec)
		}
	}
	return h
}
