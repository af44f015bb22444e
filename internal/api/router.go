package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/clinic"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/internal/slots"
	"github.com/hackgods/clinic-scheduling/internal/waitlist"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Clinics      *clinic.Service
	Slots        *slots.Service
	Waitlist     *waitlist.Service
	Schedule     *schedule.Validator

	Postgres Pinger
	Redis    Pinger
	Gatherer prometheus.Gatherer

	// BookingLimiter throttles POST /appointments; nil disables it.
	BookingLimiter *rate.Limiter

	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	validate := appointment.NewValidator()

	r.Group(func(r chi.Router) {
		r.Use(ClinicMiddleware)

		// Doctor endpoints
		r.Post("/doctors", createDoctorHandler(cfg.Clinics, validate))
		r.Route("/doctors/{id}", func(r chi.Router) {
			r.Get("/", getDoctorHandler(cfg.Clinics))
			r.Post("/deactivate", deactivateDoctorHandler(cfg.Clinics))
			r.Get("/availability", availabilityHandler(cfg.Clinics, cfg.Schedule))
			r.Get("/next-dates", nextDatesHandler(cfg.Clinics, cfg.Schedule))
			r.Post("/slots/generate", generateSlotsHandler(cfg.Slots, cfg.Schedule))
			r.Get("/slots", listSlotsHandler(cfg.Slots, cfg.Schedule))
			r.Post("/blocks", createBlockHandler(cfg.Appointments, cfg.Schedule))
		})

		// Appointment endpoints
		r.With(RateLimitMiddleware(cfg.BookingLimiter)).
			Post("/appointments", createAppointmentHandler(cfg.Appointments))
		r.Get("/appointments", listAppointmentsHandler(cfg.Appointments, cfg.Schedule))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
		r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Appointments))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))

		// Waiting list endpoints
		r.Post("/waitlist", addWaitlistHandler(cfg.Waitlist))
		r.Get("/waitlist", listWaitlistHandler(cfg.Waitlist))
		r.Post("/waitlist/{id}/cancel", cancelWaitlistHandler(cfg.Waitlist))
	})

	return r
}
