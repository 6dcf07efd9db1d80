// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package metrics defines the Prometheus collectors of the auth core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeClient  = "rejected"
	OutcomeError   = "error"
)

// AuthEvents counts auth operations by event and outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var AuthEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authcore_auth_events_total",
		Help: "Total number of auth operations by event and outcome",
	},
	[]string{"event", "outcome"},
)

// AuthDuration observes how long auth operations take, hashing included.
var AuthDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "authcore_auth_duration_seconds",
		Help:    "Auth operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"event"},
)

// MailFailures counts mails that could not be delivered.
var MailFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "authcore_mail_failures_total",
		Help: "Total number of mails that failed to send",
	},
	[]string{"kind"},
)

// RegisterMetrics registers the package collectors with reg.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AuthEvents)
	reg.MustRegister(AuthDuration)
	reg.MustRegister(MailFailures)
}

// NewRegistry returns a registry with the package collectors plus the Go
// runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	RegisterMetrics(reg)
	return reg
}

// Handler serves the metrics of reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// RecordAuthEvent increments the counter for event with the given outcome.
func RecordAuthEvent(event, outcome string) {
	AuthEvents.WithLabelValues(event, outcome).Inc()
}

// RecordAuthDuration observes the duration of event.
func RecordAuthDuration(event string, d time.Duration) {
	AuthDuration.WithLabelValues(event).Observe(d.Seconds())
}

// RecordMailFailure increments the failed mail counter for kind.
func RecordMailFailure(kind string) {
	MailFailures.WithLabelValues(kind).Inc()
}
