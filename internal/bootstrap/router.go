package bootstrap

import (
	"net/http"

	"github.com/cvperfect/SessionService/internal/handlers"
	"github.com/cvperfect/SessionService/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the HTTP API on top of an App.
//
// Routes:
//
//	GET    /health, /ready, /metrics
//	POST   /api/v1/sessions                       save (rate limited)
//	POST   /api/v1/sessions/recover               recover by email (strict rate limit)
//	GET    /api/v1/sessions/{sessionID}           load
//	DELETE /api/v1/sessions/{sessionID}           delete
//	POST   /api/v1/cv/extract                     CV upload to text (rate limited)
//	POST   /api/v1/admin/sessions/cleanup         admin
//	GET    /api/v1/admin/sessions/metrics         admin
//	GET    /api/v1/admin/sessions                 admin, paginated
//	GET    /api/v1/admin/sessions/recover?email=  admin, includes the session
//	POST   /api/v1/admin/tokens/revoke            admin
func NewRouter(app *App) http.Handler {
	cfg := app.Config

	sessionHandler := handlers.NewSessionHandler(app.Sessions, app.Recovery, &cfg.Upload)
	adminHandler := handlers.NewAdminHandler(app.Sessions, app.Recovery, app.Cleanup, app.Reporter, app.JWT, &cfg.Retention)
	healthHandler := handlers.NewHealthHandler(app.Dependencies())

	apiLimiter := middleware.NewRateLimiter(app.Redis, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.WindowDuration)
	recoveryLimiter := middleware.NewRateLimiter(app.Redis, cfg.RateLimit.RecoveryPerMinute, cfg.RateLimit.WindowDuration)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))
	r.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", middleware.MetricsHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.With(apiLimiter.Limit("save")).Post("/", sessionHandler.Save)
			r.With(recoveryLimiter.Limit("recover")).Post("/recover", sessionHandler.Recover)
			r.Get("/{sessionID}", sessionHandler.Get)
			r.Delete("/{sessionID}", sessionHandler.Delete)
		})

		r.With(apiLimiter.Limit("extract")).Post("/cv/extract", sessionHandler.Extract)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(app.JWT))

			r.Get("/sessions", adminHandler.List)
			r.Post("/sessions/cleanup", adminHandler.Cleanup)
			r.Get("/sessions/metrics", adminHandler.Metrics)
			r.Get("/sessions/recover", adminHandler.Recover)
			r.Post("/tokens/revoke", adminHandler.RevokeToken)
		})
	})

	return r
}
