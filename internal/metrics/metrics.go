// Package metrics holds the Prometheus collectors of the booking service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the collectors.  Each instance owns its registry so tests
// can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	Quotes           *prometheus.CounterVec
	Bookings         *prometheus.CounterVec
	PhaseTransitions *prometheus.CounterVec
	Unassigned       prometheus.Counter
	RequestDuration  *prometheus.HistogramVec
}

// New registers every collector on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "journeys",
			Name:      "quotes_total",
			Help:      "Quotes served, by availability outcome.",
		}, []string{"availability"}),
		Bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "journeys",
			Name:      "bookings_total",
			Help:      "Booking confirmations, by result status.",
		}, []string{"status"}),
		PhaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "journeys",
			Name:      "phase_transitions_total",
			Help:      "Departure policy phase transitions.",
		}, []string{"from", "to"}),
		Unassigned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "journeys",
			Name:      "unassigned_parties_total",
			Help:      "Parties the lock step could not place.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "journeys",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Quotes,
		m.Bookings,
		m.PhaseTransitions,
		m.Unassigned,
		m.RequestDuration,
	)
	return m
}

// ObserveQuote counts one quote outcome.  Nil receivers are ignored so
// callers without metrics need no guards.
func (m *Metrics) ObserveQuote(availability string) {
	if m == nil {
		return
	}
	m.Quotes.WithLabelValues(availability).Inc()
}

// ObserveBooking counts one confirmation attempt.
func (m *Metrics) ObserveBooking(status string) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(status).Inc()
}

// ObserveTransition counts a phase change and the parties it left out.
func (m *Metrics) ObserveTransition(from, to string, unassigned int) {
	if m == nil {
		return
	}
	m.PhaseTransitions.WithLabelValues(from, to).Inc()
	m.Unassigned.Add(float64(unassigned))
}
