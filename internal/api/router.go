package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hackgods/slot-reservation/internal/appointment"
	"github.com/hackgods/slot-reservation/internal/patient"
)

type RouterConfig struct {
	Service  *appointment.Service
	Patients patient.Resolver
	PgPool   Pinger
	Redis    *redis.Client
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
	Env      string
	Version  string

	// ExposeCodes echoes confirmation codes in responses. Dev only.
	ExposeCodes bool

	// Per-client limit on the code and verify endpoints. Zero disables it.
	RateLimit rate.Limit
	RateBurst int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	h := &handlers{svc: cfg.Service, patients: cfg.Patients, exposeCodes: cfg.ExposeCodes}

	// Availability
	r.Get("/providers/{id}/slots", h.listSlots)

	// Appointment endpoints
	r.Post("/appointments", h.createAppointment)
	r.Get("/appointments", h.listAppointments)
	r.Route("/appointments/{id}", func(r chi.Router) {
		r.Get("/", h.getAppointment)
		r.Get("/status", h.getStatus)
		r.Post("/cancel", h.cancelAppointment)
		r.Post("/complete", h.completeAppointment)

		r.Group(func(r chi.Router) {
			if cfg.RateLimit > 0 {
				r.Use(NewRateLimiter(cfg.RateLimit, cfg.RateBurst).Middleware)
			}
			r.Post("/code", h.reissueCode)
			r.Post("/verify", h.verifyAppointment)
		})
	})

	return r
}
