package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/cvperfect/SessionService/internal/services"
	"github.com/cvperfect/SessionService/pkg/utils"
	"github.com/rs/zerolog/log"
)

// Client-facing messages for each error kind. Storage details stay in logs.
const (
	msgNoSessionFound = "We could not find a session for this email. Please contact support."
	msgSessionExpired = "Your session has expired. Please contact support."
	msgNotFound       = "Session not found"
	msgStorageFailure = "Failed to access session storage"
	msgTimeout        = "Request timed out"
)

// respondWithServiceError maps a services error to an HTTP response:
//
//	ErrInvalidInput              400 invalid_input (or the reason, e.g. invalid_email)
//	ErrRecoveryFailed            404 no_session_found | session_expired
//	ErrNotFound                  404 not_found
//	context.DeadlineExceeded     408 request_timeout
//	ErrStorageFailure and others 500 storage_failure
func respondWithServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	reason := services.ReasonOf(err)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn().
			Err(err).
			Str("request_id", utils.GetRequestID(r.Context())).
			Str("operation", op).
			Msg("Request deadline exceeded")
		utils.RespondWithError(w, r, http.StatusRequestTimeout, "request_timeout", msgTimeout)

	case errors.Is(err, services.ErrInvalidInput):
		code := reason
		if code == "" {
			code = "invalid_input"
		}
		utils.RespondWithError(w, r, http.StatusBadRequest, code, detailOf(err))

	case errors.Is(err, services.ErrRecoveryFailed):
		message := msgNoSessionFound
		if reason == services.ReasonSessionExpired {
			message = msgSessionExpired
		} else {
			reason = services.ReasonNoSessionFound
		}
		utils.RespondWithError(w, r, http.StatusNotFound, reason, message)

	case errors.Is(err, services.ErrNotFound):
		utils.RespondWithError(w, r, http.StatusNotFound, "not_found", msgNotFound)

	default:
		log.Error().
			Err(err).
			Str("request_id", utils.GetRequestID(r.Context())).
			Str("operation", op).
			Msg("Session operation failed")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "storage_failure", msgStorageFailure)
	}
}

func detailOf(err error) string {
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		return svcErr.Detail()
	}
	return err.Error()
}
