package database

import (
	"context"
	"errors"
	"time"

	"github.com/cvperfect/SessionService/internal/models"
	"github.com/cvperfect/SessionService/pkg/metrics"
)

// Store is the full surface of a storage backend. FileStore, RedisDB,
// PostgresDB and SQLiteDB all implement it.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	SaveSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) ([]*models.Session, error)

	SetEmailIndex(ctx context.Context, entry *models.EmailIndexEntry) error
	GetEmailIndex(ctx context.Context, emailHash string) (*models.EmailIndexEntry, error)
	DeleteEmailIndex(ctx context.Context, emailHash string) error
	ListEmailIndexes(ctx context.Context) ([]*models.EmailIndexEntry, error)
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*RedisDB)(nil)
	_ Store = (*PostgresDB)(nil)
	_ Store = (*SQLiteDB)(nil)
)

// InstrumentedStore records the count and latency of every backend call
// in the session_storage_operations metrics, labelled with the backend
// name. A not-found result counts as a successful call.
type InstrumentedStore struct {
	next    Store
	backend string
}

// NewInstrumentedStore wraps a backend.
//
// Example:
//
//	store := database.NewInstrumentedStore(database.NewFileStore(".sessions"), "file")
func NewInstrumentedStore(next Store, backend string) *InstrumentedStore {
	return &InstrumentedStore{next: next, backend: backend}
}

// Unwrap returns the wrapped backend.
func (s *InstrumentedStore) Unwrap() Store {
	return s.next
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	metrics.RecordStorageOp(s.backend, op, err, time.Since(start))
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.observe("ping", start, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.next.Close()
}

func (s *InstrumentedStore) SaveSession(ctx context.Context, session *models.Session) error {
	start := time.Now()
	err := s.next.SaveSession(ctx, session)
	s.observe("save", start, err)
	return err
}

func (s *InstrumentedStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	start := time.Now()
	session, err := s.next.GetSession(ctx, sessionID)
	s.observe("get", start, err)
	return session, err
}

func (s *InstrumentedStore) DeleteSession(ctx context.Context, sessionID string) error {
	start := time.Now()
	err := s.next.DeleteSession(ctx, sessionID)
	s.observe("delete", start, err)
	return err
}

func (s *InstrumentedStore) ListSessions(ctx context.Context) ([]*models.Session, error) {
	start := time.Now()
	sessions, err := s.next.ListSessions(ctx)
	s.observe("list", start, err)
	return sessions, err
}

func (s *InstrumentedStore) SetEmailIndex(ctx context.Context, entry *models.EmailIndexEntry) error {
	start := time.Now()
	err := s.next.SetEmailIndex(ctx, entry)
	s.observe("index_set", start, err)
	return err
}

func (s *InstrumentedStore) GetEmailIndex(ctx context.Context, emailHash string) (*models.EmailIndexEntry, error) {
	start := time.Now()
	entry, err := s.next.GetEmailIndex(ctx, emailHash)
	s.observe("index_get", start, err)
	return entry, err
}

func (s *InstrumentedStore) DeleteEmailIndex(ctx context.Context, emailHash string) error {
	start := time.Now()
	err := s.next.DeleteEmailIndex(ctx, emailHash)
	s.observe("index_delete", start, err)
	return err
}

func (s *InstrumentedStore) ListEmailIndexes(ctx context.Context) ([]*models.EmailIndexEntry, error) {
	start := time.Now()
	entries, err := s.next.ListEmailIndexes(ctx)
	s.observe("index_list", start, err)
	return entries, err
}
