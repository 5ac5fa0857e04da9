package cache

import (
	"context"
	"time"

	"github.com/cvperfect/SessionService/internal/models"
	"github.com/rs/zerolog/log"
)

// SessionDatabase is the session side of a storage backend.
type SessionDatabase interface {
	SaveSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) ([]*models.Session, error)
}

// SessionCache is a read-through, write-through cache in front of a
// session backend that is slower than Redis. Writes go to the backend
// first; the cached copy is refreshed only after the backend succeeded,
// so a cache entry never holds data the backend does not.
type SessionCache struct {
	cache *Cache
	db    SessionDatabase
	ttl   time.Duration
}

// NewSessionCache creates a new session cache
func NewSessionCache(cache *Cache, db SessionDatabase, ttl time.Duration) *SessionCache {
	return &SessionCache{
		cache: cache,
		db:    db,
		ttl:   ttl,
	}
}

// SaveSession writes through to the backend and refreshes the cached copy
// from what the backend returns, never from the caller's record. If the
// backend cannot be read back the cached copy is dropped.
func (sc *SessionCache) SaveSession(ctx context.Context, session *models.Session) error {
	if err := sc.db.SaveSession(ctx, session); err != nil {
		return err
	}

	key := CachedSessionKey(session.SessionID)
	stored, err := sc.db.GetSession(ctx, session.SessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", session.SessionID).Msg("Failed to read back saved session")
		_ = sc.cache.Delete(ctx, key)
		return nil
	}

	if err := sc.cache.Set(ctx, key, stored, sc.ttl); err != nil {
		// A stale entry would outlive the write, drop it instead
		log.Warn().Err(err).Str("session_id", session.SessionID).Msg("Failed to refresh cached session")
		_ = sc.cache.Delete(ctx, key)
	}

	return nil
}

// GetSession returns the cached session or loads it from the backend.
// Backend errors, including not-found, are returned unchanged. When Redis
// itself fails the backend is read directly.
func (sc *SessionCache) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	var loadErr error

	err := sc.cache.GetOrSet(ctx, CachedSessionKey(sessionID), sc.ttl, &session, func() (interface{}, error) {
		s, err := sc.db.GetSession(ctx, sessionID)
		loadErr = err
		return s, err
	})
	if loadErr != nil {
		return nil, loadErr
	}
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Session cache unavailable, reading backend")
		return sc.db.GetSession(ctx, sessionID)
	}

	return &session, nil
}

// DeleteSession removes the session from the backend and the cache.
func (sc *SessionCache) DeleteSession(ctx context.Context, sessionID string) error {
	if err := sc.db.DeleteSession(ctx, sessionID); err != nil {
		return err
	}

	if err := sc.cache.Delete(ctx, CachedSessionKey(sessionID)); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to invalidate cached session")
	}

	return nil
}

// ListSessions always reads the backend; listings are never cached.
func (sc *SessionCache) ListSessions(ctx context.Context) ([]*models.Session, error) {
	return sc.db.ListSessions(ctx)
}
