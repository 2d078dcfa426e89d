package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lalithlochan/bloodlink/internal/metrics"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Handler  *Handler
	Verifier TokenVerifier
	Logger   *zap.Logger

	// Optional; leave nil when Redis is not configured.
	Limiter     RateLimiter
	Idempotency Idempotency

	Health         map[string]HealthCheck
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	h := cfg.Handler
	idem := IdempotencyMiddleware(cfg.Idempotency, cfg.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(metrics.Middleware)
	r.Use(RequestLogger(cfg.Logger))

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(cfg.Verifier, cfg.Logger))
		r.Use(RateLimitMiddleware(cfg.Limiter, cfg.Logger, CallerKeyFunc))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", h.Signup)
			r.Post("/login", h.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireCaller)

			r.Route("/blood-request", func(r chi.Router) {
				r.With(idem).Post("/", h.CreateRequest)
				r.Get("/match-from-request", h.MatchFromRequest)
				r.With(idem).Post("/send-donor-request", h.SendDonorRequest)
				r.Get("/donor-requests", h.DonorRequests)
				r.Post("/donor-requests/respond", h.RespondToRequest)
				r.Post("/mark-matched", h.MarkMatched)
				r.Post("/mark-complete", h.MarkComplete)
				r.Get("/latest-status", h.LatestStatus)
				r.Get("/active", h.ActiveCount)
				r.Get("/last-request-coords", h.LastRequestCoords)
				r.Get("/timeline", h.Timeline)
				r.Get("/all", h.AllRequests)
			})

			r.Get("/matches/donor", h.DonorMatch)
			r.Get("/constituencies", h.ListConstituencies)
			r.Get("/hospitals/{constituency}", h.ListHospitals)
			r.Get("/notifications", h.ListNotifications)

			r.Get("/users/me", h.GetMe)
			r.Patch("/users/me", h.UpdateMe)

			r.Route("/appointments", func(r chi.Router) {
				r.With(idem).Post("/", h.CreateAppointment)
				r.Get("/", h.ListAppointments)
				r.Get("/all", h.ListAllAppointments)
				r.Put("/{id}", h.UpdateAppointment)
			})
		})
	})

	r.Get("/health", healthHandler(cfg.Health, cfg.Logger))
	r.Handle("/metrics", metrics.Handler())

	return r
}

func healthHandler(checks map[string]HealthCheck, logger *zap.Logger) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(name + " unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}
