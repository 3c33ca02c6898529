package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sportclub"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	bookingOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_attempts_total",
			Help:      "Booking admission outcomes.",
		},
		[]string{"outcome"},
	)

	sweepTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_transitions_total",
			Help:      "Reservations changed by time-based sweeps.",
		},
		[]string{"kind"},
	)

	sheetsTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheets_tasks_total",
			Help:      "Sheets sync tasks by result.",
		},
		[]string{"result"},
	)
)

const (
	OutcomeCreated   = "created"
	OutcomeSlotTaken = "slot_taken"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingOutcomes, sweepTransitions, sheetsTasks)
	})
}

func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

func IncBooking(outcome string) {
	bookingOutcomes.WithLabelValues(outcome).Inc()
}

// AddSweep adds n to the counter of a sweep kind (expired, auto_accepted, purged, reminded).
func AddSweep(kind string, n int) {
	if n <= 0 {
		return
	}
	sweepTransitions.WithLabelValues(kind).Add(float64(n))
}

func IncSheets(result string) {
	sheetsTasks.WithLabelValues(result).Inc()
}
