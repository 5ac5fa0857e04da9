package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cvperfect/SessionService/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"
)

// schema is portable between PostgreSQL and SQLite. Timestamps are stored
// as Unix nanoseconds so both drivers round-trip them exactly.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS cv_sessions (
		session_id  VARCHAR(128) PRIMARY KEY,
		email       TEXT NOT NULL DEFAULT '',
		cv_data     TEXT NOT NULL,
		job_posting TEXT NOT NULL DEFAULT '',
		plan        VARCHAR(16) NOT NULL,
		template    VARCHAR(32) NOT NULL DEFAULT '',
		photo       TEXT NOT NULL DEFAULT '',
		metadata    TEXT NOT NULL DEFAULT '{}',
		created_at  BIGINT NOT NULL,
		updated_at  BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cv_sessions_updated_at ON cv_sessions (updated_at)`,
	`CREATE TABLE IF NOT EXISTS email_index (
		email_hash  VARCHAR(64) PRIMARY KEY,
		session_id  VARCHAR(128) NOT NULL,
		plan        VARCHAR(16) NOT NULL,
		created_at  BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_email_index_session_id ON email_index (session_id)`,
}

// TxFunc is a function that runs within a database transaction.
// The transaction is committed when it returns nil and rolled back otherwise.
type TxFunc func(tx *sql.Tx) error

// sqlStore implements session and email index storage on database/sql.
// Queries are written with '?' placeholders and rebound for PostgreSQL.
type sqlStore struct {
	db      *sql.DB
	dialect string
}

// q rebinds '?' placeholders to the dialect's style.
func (s *sqlStore) q(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close closes the database connection and releases all resources.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

// Ping checks if the database connection is alive.
// Used by the readiness endpoint.
func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the session and email index tables if they are missing.
// Statements are idempotent and applied in a single transaction.
func (s *sqlStore) Migrate(ctx context.Context) error {
	err := s.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Str("dialect", s.dialect).Msg("Database migrations completed successfully")
	return nil
}

// WithTransaction executes fn within a database transaction.
// Commits on success, rolls back on error or panic (re-panicking afterwards).
func (s *sqlStore) WithTransaction(ctx context.Context, fn TxFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("Failed to rollback transaction after panic")
			}
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// SaveSession inserts the session or replaces every column of the existing
// row. Nothing is merged.
func (s *sqlStore) SaveSession(ctx context.Context, session *models.Session) error {
	metadata, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode session metadata: %w", err)
	}

	query := s.q(`
		INSERT INTO cv_sessions (session_id, email, cv_data, job_posting, plan, template, photo, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id)
		DO UPDATE SET
			email = excluded.email,
			cv_data = excluded.cv_data,
			job_posting = excluded.job_posting,
			plan = excluded.plan,
			template = excluded.template,
			photo = excluded.photo,
			metadata = excluded.metadata,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`)

	_, err = s.db.ExecContext(ctx, query,
		session.SessionID,
		session.Email,
		session.CVData,
		session.JobPosting,
		string(session.Plan),
		session.Template,
		session.Photo,
		string(metadata),
		session.CreatedAt.UnixNano(),
		session.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

const sessionColumns = `session_id, email, cv_data, job_posting, plan, template, photo, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session              models.Session
		plan, metadata       string
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&session.SessionID,
		&session.Email,
		&session.CVData,
		&session.JobPosting,
		&plan,
		&session.Template,
		&session.Photo,
		&metadata,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.Plan = models.Plan(plan)
	session.CreatedAt = time.Unix(0, createdAt).UTC()
	session.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &session.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode session metadata: %w", err)
		}
	}

	return &session, nil
}

// GetSession retrieves a session by id. Returns ErrNotFound if absent.
func (s *sqlStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	query := s.q(`SELECT ` + sessionColumns + ` FROM cv_sessions WHERE session_id = ?`)

	session, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// DeleteSession removes a session. Deleting a missing id is not an error.
func (s *sqlStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM cv_sessions WHERE session_id = ?`), sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListSessions returns every stored session, oldest write first.
func (s *sqlStore) ListSessions(ctx context.Context) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM cv_sessions ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}

// SetEmailIndex creates or overwrites the entry for entry.EmailHash.
func (s *sqlStore) SetEmailIndex(ctx context.Context, entry *models.EmailIndexEntry) error {
	query := s.q(`
		INSERT INTO email_index (email_hash, session_id, plan, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (email_hash)
		DO UPDATE SET
			session_id = excluded.session_id,
			plan = excluded.plan,
			created_at = excluded.created_at
	`)

	_, err := s.db.ExecContext(ctx, query, entry.EmailHash, entry.SessionID, string(entry.Plan), entry.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to set email index: %w", err)
	}
	return nil
}

func scanIndexEntry(row rowScanner) (*models.EmailIndexEntry, error) {
	var (
		entry     models.EmailIndexEntry
		plan      string
		createdAt int64
	)
	if err := row.Scan(&entry.EmailHash, &entry.SessionID, &plan, &createdAt); err != nil {
		return nil, err
	}
	entry.Plan = models.Plan(plan)
	entry.CreatedAt = time.Unix(0, createdAt).UTC()
	return &entry, nil
}

// GetEmailIndex returns the entry for a hash or ErrNotFound.
func (s *sqlStore) GetEmailIndex(ctx context.Context, emailHash string) (*models.EmailIndexEntry, error) {
	query := s.q(`SELECT email_hash, session_id, plan, created_at FROM email_index WHERE email_hash = ?`)

	entry, err := scanIndexEntry(s.db.QueryRowContext(ctx, query, emailHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email index %s: %w", emailHash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email index: %w", err)
	}
	return entry, nil
}

// DeleteEmailIndex removes the entry for a hash; missing entries are ignored.
func (s *sqlStore) DeleteEmailIndex(ctx context.Context, emailHash string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM email_index WHERE email_hash = ?`), emailHash)
	if err != nil {
		return fmt.Errorf("failed to delete email index: %w", err)
	}
	return nil
}

// ListEmailIndexes returns every email index entry.
func (s *sqlStore) ListEmailIndexes(ctx context.Context) ([]*models.EmailIndexEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT email_hash, session_id, plan, created_at FROM email_index`)
	if err != nil {
		return nil, fmt.Errorf("failed to list email indexes: %w", err)
	}
	defer rows.Close()

	var entries []*models.EmailIndexEntry
	for rows.Next() {
		entry, err := scanIndexEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email index: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate email indexes: %w", err)
	}

	return entries, nil
}
