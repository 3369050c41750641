package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Booking outcomes used as the "outcome" label.
const (
	OutcomeSuccess      = "success"
	OutcomeConflict     = "conflict"
	OutcomeInsufficient = "insufficient"
	OutcomeInvalid      = "invalid"
	OutcomeNotFound     = "not_found"
	OutcomeForbidden    = "forbidden"
	OutcomeRateLimited  = "rate_limited"
	OutcomeError        = "error"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// BookingsTotal counts engine operations (operation: reserve/cancel).
	BookingsTotal *prometheus.CounterVec

	// SeatTransitions counts seat transitions (transition: booked/released).
	SeatTransitions *prometheus.CounterVec
}

// New registers the metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		BookingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seatbook_booking_operations_total",
				Help: "Booking engine operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		SeatTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seatbook_seat_transitions_total",
				Help: "Seat state transitions committed by the booking engine",
			},
			[]string{"transition"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.BookingsTotal,
		m.SeatTransitions,
	)

	return m
}

func (m *Metrics) ObserveBooking(operation, outcome string) {
	m.BookingsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveSeats counts n seats moving free->booked (booked) or back (released).
func (m *Metrics) ObserveSeats(transition string, n int) {
	m.SeatTransitions.WithLabelValues(transition).Add(float64(n))
}
