package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cvperfect/SessionService/internal/database"
	"github.com/cvperfect/SessionService/internal/events"
	"github.com/cvperfect/SessionService/internal/models"
	"github.com/cvperfect/SessionService/pkg/metrics"
	"github.com/mileusna/useragent"
	"github.com/rs/zerolog/log"
)

const maxJobPostingLength = 10000

// sessionIDPattern accepts generated ids (sess_...), checkout ids
// (cs_test_..., cs_live_...) and short test ids.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// SessionStore is the session side of a storage backend.
type SessionStore interface {
	SaveSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) ([]*models.Session, error)
}

// SessionService saves and loads CV sessions and keeps the email index
// pointing at the latest session for each address.
//
// A save and its index update are two independent writes. If the index
// write fails the session is still saved and the failure is only logged;
// recovery then reports a normal not-found for that email.
type SessionService struct {
	store  SessionStore
	index  *EmailIndex
	events events.Publisher
	now    func() time.Time
}

// NewSessionService creates a session service.
//
// Example:
//
//	index := services.NewEmailIndex(backend)
//	sessionSvc := services.NewSessionService(backend, index, events.NopPublisher{})
func NewSessionService(store SessionStore, index *EmailIndex, publisher events.Publisher) *SessionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &SessionService{
		store:  store,
		index:  index,
		events: publisher,
		now:    time.Now,
	}
}

// ValidateSession checks the fields a caller supplies and normalizes the
// plan. It does not touch storage.
func ValidateSession(session *models.Session) error {
	if session == nil {
		return invalidInput("save", "", "session is required")
	}
	if session.SessionID == "" {
		return invalidInput("save", "", "sessionId is required")
	}
	if !sessionIDPattern.MatchString(session.SessionID) {
		return invalidInput("save", "", "sessionId format is invalid")
	}
	if session.CVData == "" {
		return invalidInput("save", session.SessionID, "cvData is required")
	}
	if utf8.RuneCountInString(session.JobPosting) > maxJobPostingLength {
		return invalidInput("save", session.SessionID, fmt.Sprintf("jobPosting exceeds %d characters", maxJobPostingLength))
	}

	plan, ok := models.ParsePlan(string(session.Plan))
	if !ok {
		return invalidInput("save", session.SessionID, fmt.Sprintf("plan %q is not one of basic, gold, premium", session.Plan))
	}
	session.Plan = plan

	if session.Template != "" && !slices.Contains(models.Templates, session.Template) {
		return invalidInput("save", session.SessionID, fmt.Sprintf("template %q is not supported", session.Template))
	}

	if session.Email != "" {
		if _, err := NormalizeEmail(session.Email); err != nil {
			var svcErr *Error
			errors.As(err, &svcErr)
			return invalidInput("save", session.SessionID, svcErr.Detail())
		}
	}

	return nil
}

// Save creates or replaces the session stored under session.SessionID and
// returns the byte length of cvData as persisted.
//
// The whole record is replaced; fields are never merged with a previous
// version. CreatedAt is carried over from the stored record when one
// exists, and UpdatedAt is set to now. session is updated in place with
// the normalized plan and both timestamps.
//
// When the stored record carried a different email, the old email's index
// entry is dropped if it still points at this session.
//
// After writing, the record is read back and compared with the input so
// that a truncated cvData or photo is reported as a storage failure rather
// than discovered on the success page.
//
// Example:
//
//	n, err := sessionSvc.Save(ctx, session)
//	if err != nil {
//	    return err
//	}
//	log.Info().Int("data_length", n).Msg("CV stored")
func (s *SessionService) Save(ctx context.Context, session *models.Session) (int, error) {
	if err := ValidateSession(session); err != nil {
		return 0, err
	}

	now := s.now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	existing, err := s.store.GetSession(ctx, session.SessionID)
	switch {
	case err == nil:
		session.CreatedAt = existing.CreatedAt
	case !errors.Is(err, database.ErrNotFound):
		log.Warn().
			Err(err).
			Str("session_id", session.SessionID).
			Msg("Could not read existing session, saving as new")
	}

	if err := s.store.SaveSession(ctx, session); err != nil {
		return 0, storageFailure("save", session.SessionID, err)
	}

	saved, err := s.store.GetSession(ctx, session.SessionID)
	if err != nil {
		return 0, storageFailure("verify", session.SessionID, err)
	}
	if len(saved.CVData) != len(session.CVData) || saved.Photo != session.Photo {
		return 0, storageFailure("verify", session.SessionID, fmt.Errorf(
			"persisted record differs from input: cvData %d/%d bytes, photo %d/%d bytes",
			len(saved.CVData), len(session.CVData), len(saved.Photo), len(session.Photo)))
	}

	if session.Email != "" {
		if err := s.index.Upsert(ctx, session.Email, session.SessionID, session.Plan, session.CreatedAt); err != nil {
			log.Warn().
				Err(err).
				Str("session_id", session.SessionID).
				Msg("Session saved without email index entry")
		}
	}

	if existing != nil {
		if oldKey := emailKey(existing.Email); oldKey != "" && oldKey != emailKey(session.Email) {
			if _, err := s.index.RemoveIfPointsTo(ctx, oldKey, session.SessionID); err != nil {
				log.Warn().
					Err(err).
					Str("session_id", session.SessionID).
					Msg("Failed to remove email index entry of previous owner")
			}
		}
	}

	metrics.RecordSessionSaved(string(session.Plan))
	s.publish(ctx, events.Event{
		Type:      events.SessionSaved,
		SessionID: session.SessionID,
		Plan:      string(session.Plan),
		HasEmail:  session.Email != "",
		CVLength:  len(saved.CVData),
		Timestamp: now,
	})

	log.Info().
		Str("session_id", session.SessionID).
		Str("plan", string(session.Plan)).
		Int("cv_length", len(saved.CVData)).
		Bool("has_photo", saved.Photo != "").
		Msg("Session saved")

	return len(saved.CVData), nil
}

// Get returns the session exactly as saved, or ErrNotFound.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, invalidInput("get", "", "sessionId is required")
	}
	if !sessionIDPattern.MatchString(sessionID) {
		return nil, invalidInput("get", "", "sessionId format is invalid")
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, classify("get", sessionID, err)
	}
	return session, nil
}

// Delete removes a session and, when the email index still points at it,
// the index entry. Deleting a missing session succeeds.
func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" || !sessionIDPattern.MatchString(sessionID) {
		return invalidInput("delete", "", "sessionId format is invalid")
	}

	existing, err := s.store.GetSession(ctx, sessionID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Could not read session before delete")
	}

	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return storageFailure("delete", sessionID, err)
	}

	if existing == nil {
		return nil
	}

	if existing.Email != "" {
		if normalized, err := NormalizeEmail(existing.Email); err == nil {
			if _, err := s.index.RemoveIfPointsTo(ctx, HashEmail(normalized), sessionID); err != nil {
				log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to remove email index entry")
			}
		}
	}

	s.publish(ctx, events.Event{
		Type:      events.SessionDeleted,
		SessionID: sessionID,
		Plan:      string(existing.Plan),
		HasEmail:  existing.Email != "",
		Timestamp: s.now().UTC(),
	})

	log.Info().Str("session_id", sessionID).Msg("Session deleted")
	return nil
}

// List returns every stored session.
func (s *SessionService) List(ctx context.Context) ([]*models.Session, error) {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, storageFailure("list", "", err)
	}
	return sessions, nil
}

func (s *SessionService) publish(ctx context.Context, event events.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", event.SessionID).
			Str("event", string(event.Type)).
			Msg("Failed to publish session event")
	}
}

// ExtractDeviceInfo turns a User-Agent header into a short description
// stored in the session metadata, such as "Chrome 120.0 · Windows 10 · Desktop".
// Returns "Unknown Device" for an empty header.
//
// Example:
//
//	session.Metadata.DeviceInfo = services.ExtractDeviceInfo(r.UserAgent())
func ExtractDeviceInfo(userAgent string) string {
	if userAgent == "" {
		return "Unknown Device"
	}

	ua := useragent.Parse(userAgent)

	var parts []string

	if ua.Name != "" {
		browser := ua.Name
		if ua.Version != "" {
			browser += " " + ua.Version
		}
		parts = append(parts, browser)
	}

	if ua.OS != "" {
		os := ua.OS
		if ua.OSVersion != "" {
			os += " " + ua.OSVersion
		}
		parts = append(parts, os)
	}

	switch {
	case ua.Mobile:
		parts = append(parts, "Mobile")
	case ua.Tablet:
		parts = append(parts, "Tablet")
	case ua.Desktop:
		parts = append(parts, "Desktop")
	}

	if len(parts) == 0 {
		if len(userAgent) > 100 {
			return userAgent[:100] + "..."
		}
		return userAgent
	}

	return strings.Join(parts, " · ")
}
