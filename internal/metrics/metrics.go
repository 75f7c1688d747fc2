// Package metrics defines the Prometheus collectors exported by the
// trigger service and a handler to serve them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's collectors. The poller updates
// EventsReceived and the reaper updates ReaperQueueDepth; EventsFiltered,
// ActionsDispatched, PollDuration and OutstandingActions are registered and
// exported but nothing in the service updates them.
type Metrics struct {
	EventsReceived    prometheus.Counter
	EventsFiltered    prometheus.Counter
	ActionsDispatched prometheus.Counter

	PollDuration prometheus.Histogram

	OutstandingActions prometheus.Gauge
	ReaperQueueDepth   prometheus.Gauge
}

// New registers and returns a Metrics bound to reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the default
// global registry; pass prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "triggers",
			Name:      "events_received_total",
			Help:      "Queue messages received across all pollers.",
		}),
		EventsFiltered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "triggers",
			Name:      "events_filtered_total",
			Help:      "Events that did not pass a trigger's event_filter.",
		}),
		ActionsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "triggers",
			Name:      "actions_dispatched_total",
			Help:      "Action invocations dispatched to action providers.",
		}),
		PollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "triggers",
			Name:      "poll_duration_seconds",
			Help:      "Wall-clock duration of one poller tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		OutstandingActions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "triggers",
			Name:      "outstanding_actions",
			Help:      "Action invocations not yet complete, summed across pollers.",
		}),
		ReaperQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "triggers",
			Name:      "reaper_queue_depth",
			Help:      "Finished pollers buffered in the reaper's channel.",
		}),
	}
}

// Handler returns the HTTP handler that serves the registry's metrics in
// the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
