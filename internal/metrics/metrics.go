package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clinic"

// Metrics holds all application metrics. A nil *Metrics is valid and
// records nothing, which keeps tests and tools free of registry setup.
type Metrics struct {
	BookingsTotal   *prometheus.CounterVec
	BookingDuration prometheus.Histogram

	SlotsGenerated *prometheus.CounterVec

	CacheLookups *prometheus.CounterVec

	Notifications *prometheus.CounterVec

	StatusTransitions *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BookingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "submissions_total",
			Help:      "Booking submissions by outcome and error kind",
		}, []string{"outcome", "kind"}),
		BookingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "submission_duration_seconds",
			Help:      "Time spent handling a booking submission",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		SlotsGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slots",
			Name:      "generated_total",
			Help:      "Empty slots produced by the generator and how many were new rows",
		}, []string{"result"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Query cache lookups by result (hit, stale, miss)",
		}, []string{"result"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "messages_total",
			Help:      "Notifications sent by channel and status",
		}, []string{"channel", "status"}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointment",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions by target status",
		}, []string{"to"}),
	}
}

func (m *Metrics) ObserveBooking(outcome, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BookingsTotal.WithLabelValues(outcome, kind).Inc()
	m.BookingDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveSlots(generated, inserted int) {
	if m == nil {
		return
	}
	m.SlotsGenerated.WithLabelValues("generated").Add(float64(generated))
	m.SlotsGenerated.WithLabelValues("inserted").Add(float64(inserted))
}

func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveNotification(channel, status string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(channel, status).Inc()
}

func (m *Metrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(to).Inc()
}
