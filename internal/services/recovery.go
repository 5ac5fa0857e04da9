package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cvperfect/SessionService/internal/events"
	"github.com/cvperfect/SessionService/internal/models"
	"github.com/cvperfect/SessionService/pkg/metrics"
	"github.com/rs/zerolog/log"
)

// RecoveryResult is what a user gets back when recovering by email.
// Session is only filled for admin callers.
type RecoveryResult struct {
	SessionID string          `json:"sessionId"`
	Plan      models.Plan     `json:"plan"`
	CreatedAt time.Time       `json:"createdAt"`
	Session   *models.Session `json:"session,omitempty"`
}

// RecoveryService finds a user's latest session from their email alone,
// for users who closed the browser before reaching the success page.
type RecoveryService struct {
	index  *EmailIndex
	store  SessionStore
	events events.Publisher
	now    func() time.Time
}

// NewRecoveryService creates a recovery service.
func NewRecoveryService(index *EmailIndex, store SessionStore, publisher events.Publisher) *RecoveryService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &RecoveryService{
		index:  index,
		store:  store,
		events: publisher,
		now:    time.Now,
	}
}

// RecoverByEmail looks up the email index and loads the session it points
// at. Neither step is retried.
//
// Outcomes:
//   - malformed email: ErrInvalidInput with reason invalid_email
//   - no index entry: ErrRecoveryFailed with reason no_session_found
//   - index entry but no session: ErrRecoveryFailed with reason
//     session_expired; the dangling entry is removed
//   - session now saved under another email: treated the same as a
//     missing session
//   - backend error: ErrStorageFailure
//
// Both recovery failures also match ErrNotFound.
//
// Example:
//
//	result, err := recoverySvc.RecoverByEmail(ctx, "jan@example.com", false)
//	if errors.Is(err, services.ErrRecoveryFailed) {
//	    // "We could not find your session, please contact support."
//	}
func (r *RecoveryService) RecoverByEmail(ctx context.Context, email string, includeSession bool) (*RecoveryResult, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		metrics.RecordRecovery(ReasonInvalidEmail)
		var svcErr *Error
		errors.As(err, &svcErr)
		return nil, &Error{Op: "recover", Kind: ErrInvalidInput, Reason: ReasonInvalidEmail, Err: errors.New(svcErr.Detail())}
	}
	hash := HashEmail(normalized)

	entry, err := r.index.Lookup(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.RecordRecovery(ReasonNoSessionFound)
			log.Info().Str("email_hash", hash).Msg("Recovery failed: no indexed session")
			return nil, &Error{Op: "recover", Key: hash, Kind: ErrRecoveryFailed, Reason: ReasonNoSessionFound, Err: err}
		}
		metrics.RecordRecovery("error")
		return nil, err
	}

	session, err := r.store.GetSession(ctx, entry.SessionID)
	if err != nil {
		classified := classify("recover", entry.SessionID, err)
		if !errors.Is(classified, ErrNotFound) {
			metrics.RecordRecovery("error")
			return nil, classified
		}

		if _, rmErr := r.index.RemoveIfPointsTo(ctx, hash, entry.SessionID); rmErr != nil {
			log.Warn().Err(rmErr).Str("email_hash", hash).Msg("Failed to remove dangling email index entry")
		}

		metrics.RecordRecovery(ReasonSessionExpired)
		log.Info().
			Str("email_hash", hash).
			Str("session_id", entry.SessionID).
			Msg("Recovery failed: indexed session no longer exists")
		return nil, &Error{Op: "recover", Key: hash, Kind: ErrRecoveryFailed, Reason: ReasonSessionExpired, Err: classified}
	}

	if emailKey(session.Email) != hash {
		if _, rmErr := r.index.RemoveIfPointsTo(ctx, hash, entry.SessionID); rmErr != nil {
			log.Warn().Err(rmErr).Str("email_hash", hash).Msg("Failed to remove stale email index entry")
		}

		metrics.RecordRecovery(ReasonSessionExpired)
		log.Info().
			Str("email_hash", hash).
			Str("session_id", entry.SessionID).
			Msg("Recovery failed: indexed session belongs to another email")
		return nil, &Error{Op: "recover", Key: hash, Kind: ErrRecoveryFailed, Reason: ReasonSessionExpired,
			Err: fmt.Errorf("session %s no longer carries this email: %w", entry.SessionID, ErrNotFound)}
	}

	metrics.RecordRecovery("success")
	if err := r.events.Publish(ctx, events.Event{
		Type:      events.SessionRecovered,
		SessionID: session.SessionID,
		Plan:      string(session.Plan),
		HasEmail:  true,
		Timestamp: r.now().UTC(),
	}); err != nil {
		log.Warn().Err(err).Str("session_id", session.SessionID).Msg("Failed to publish session event")
	}

	log.Info().
		Str("email_hash", hash).
		Str("session_id", session.SessionID).
		Msg("Session recovered")

	result := &RecoveryResult{
		SessionID: session.SessionID,
		Plan:      session.Plan,
		CreatedAt: session.CreatedAt,
	}
	if includeSession {
		result.Session = session
	}
	return result, nil
}
