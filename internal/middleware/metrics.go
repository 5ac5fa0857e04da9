package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cvperfect/SessionService/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records request count, latency and body size for every request.
//
// Requests are labelled with the chi route pattern
// ("/api/v1/sessions/{sessionID}") rather than the raw path, so session IDs
// never become label values. Unmatched requests are labelled "unmatched".
//
// Usage:
//
//	r.Use(middleware.Metrics())
//	r.Handle("/metrics", middleware.MetricsHandler())
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			metrics.ObserveHTTP(r.Method, routePattern(r), strconv.Itoa(status), r.ContentLength, time.Since(start))
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// MetricsHandler returns the Prometheus scrape handler.
//
// Example:
//
//	r.Handle("/metrics", middleware.MetricsHandler())
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
