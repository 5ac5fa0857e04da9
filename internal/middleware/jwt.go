// Package middleware provides HTTP middleware components for the API.
// Middleware functions wrap HTTP handlers to provide cross-cutting concerns
// like authentication, logging, metrics, and rate limiting.
//
// Middleware in this package:
//   - Admin bearer token authentication
//   - Structured request/response logging with correlation IDs
//   - Prometheus metrics collection
//   - Rate limiting per IP address
//
// All middleware is designed to be composable with Chi router.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cvperfect/SessionService/internal/services"
	"github.com/cvperfect/SessionService/pkg/utils"
	"github.com/rs/zerolog/log"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// OperatorKey is the context key holding the authenticated admin operator.
// Set by AdminAuth after successful token validation.
const OperatorKey contextKey = "operator"

// TokenValidator validates admin bearer tokens. *services.JWTService
// implements it.
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (*services.Claims, error)
}

// AdminAuth creates middleware that guards the admin endpoints.
//
// The token is read from the Authorization header only:
//
//	Authorization: Bearer <token>
//
// The validator checks signature, expiry, the admin role and the
// revocation blacklist. On success the operator name is stored in the
// request context; on failure 401 is returned with the standard error body.
//
// Example:
//
//	r.Route("/api/v1/admin", func(r chi.Router) {
//	    r.Use(middleware.AdminAuth(jwtService))
//	    r.Post("/cleanup", adminHandler.Cleanup)
//	})
func AdminAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := BearerToken(r)
			if !ok {
				utils.RespondWithError(w, r, http.StatusUnauthorized, "unauthorized", "Missing admin token")
				return
			}

			claims, err := validator.ValidateToken(r.Context(), tokenString)
			if err != nil {
				log.Warn().
					Err(err).
					Str("request_id", utils.GetRequestID(r.Context())).
					Str("path", r.URL.Path).
					Msg("Admin token rejected")
				utils.RespondWithError(w, r, http.StatusUnauthorized, "unauthorized", "Invalid or expired admin token")
				return
			}

			ctx := context.WithValue(r.Context(), OperatorKey, claims.Operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// GetOperator returns the authenticated operator stored by AdminAuth.
//
// Example:
//
//	operator, ok := middleware.GetOperator(r.Context())
func GetOperator(ctx context.Context) (string, bool) {
	operator, ok := ctx.Value(OperatorKey).(string)
	return operator, ok
}
