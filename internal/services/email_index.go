package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cvperfect/SessionService/internal/database"
	"github.com/cvperfect/SessionService/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	// emailHashLength is the number of hex characters of the SHA-256 digest
	// kept as the index key.
	emailHashLength = 16
	maxEmailLength  = 254
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// EmailIndexStore is the email index side of a storage backend.
type EmailIndexStore interface {
	SetEmailIndex(ctx context.Context, entry *models.EmailIndexEntry) error
	GetEmailIndex(ctx context.Context, emailHash string) (*models.EmailIndexEntry, error)
	DeleteEmailIndex(ctx context.Context, emailHash string) error
	ListEmailIndexes(ctx context.Context) ([]*models.EmailIndexEntry, error)
}

// NormalizeEmail trims and lowercases an address and checks its format.
func NormalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", invalidInput("normalize", "", "email is required")
	}
	if len(normalized) > maxEmailLength {
		return "", invalidInput("normalize", "", fmt.Sprintf("email exceeds %d characters", maxEmailLength))
	}
	if !emailPattern.MatchString(normalized) {
		return "", invalidInput("normalize", "", "email format is invalid")
	}
	return normalized, nil
}

// emailKey returns the index key a session's email would be stored
// under, or "" when the email is empty or malformed.
func emailKey(email string) string {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return ""
	}
	return HashEmail(normalized)
}

// HashEmail returns the index key for an already normalized address: the
// first 16 hex characters of its SHA-256 digest.
//
// Example:
//
//	email, _ := services.NormalizeEmail("  Jan@Example.com ")
//	key := services.HashEmail(email) // same key as for "jan@example.com"
func HashEmail(normalizedEmail string) string {
	sum := sha256.Sum256([]byte(normalizedEmail))
	return hex.EncodeToString(sum[:])[:emailHashLength]
}

// EmailIndex maps a hashed email to the most recently saved session for
// that address. Writes are last-writer-wins; the index is never an
// append log.
type EmailIndex struct {
	store EmailIndexStore
}

// NewEmailIndex creates an email index over a backend.
func NewEmailIndex(store EmailIndexStore) *EmailIndex {
	return &EmailIndex{store: store}
}

// Upsert points the email's entry at sessionID, replacing any previous entry.
func (x *EmailIndex) Upsert(ctx context.Context, email, sessionID string, plan models.Plan, createdAt time.Time) error {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	if sessionID == "" {
		return invalidInput("index", "", "sessionId is required")
	}

	hash := HashEmail(normalized)
	entry := &models.EmailIndexEntry{
		EmailHash: hash,
		SessionID: sessionID,
		Plan:      plan,
		CreatedAt: createdAt,
	}

	if err := x.store.SetEmailIndex(ctx, entry); err != nil {
		return storageFailure("index", hash, err)
	}

	log.Debug().
		Str("email_hash", hash).
		Str("session_id", sessionID).
		Msg("Email index updated")

	return nil
}

// Lookup returns the entry for an email. A missing entry is ErrNotFound.
func (x *EmailIndex) Lookup(ctx context.Context, email string) (*models.EmailIndexEntry, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	hash := HashEmail(normalized)

	entry, err := x.store.GetEmailIndex(ctx, hash)
	if err != nil {
		return nil, classify("lookup", hash, err)
	}
	return entry, nil
}

// Remove deletes the entry for an email. Removing a missing entry succeeds.
func (x *EmailIndex) Remove(ctx context.Context, email string) error {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	return x.RemoveHash(ctx, HashEmail(normalized))
}

// RemoveHash deletes the entry stored under an already computed hash.
func (x *EmailIndex) RemoveHash(ctx context.Context, hash string) error {
	if err := x.store.DeleteEmailIndex(ctx, hash); err != nil {
		return storageFailure("unindex", hash, err)
	}
	return nil
}

// RemoveIfPointsTo deletes the entry under hash only while it still points
// at sessionID, so a newer session for the same email keeps its entry.
// Reports whether an entry was removed.
func (x *EmailIndex) RemoveIfPointsTo(ctx context.Context, hash, sessionID string) (bool, error) {
	entry, err := x.store.GetEmailIndex(ctx, hash)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storageFailure("unindex", hash, err)
	}
	if entry.SessionID != sessionID {
		return false, nil
	}
	if err := x.RemoveHash(ctx, hash); err != nil {
		return false, err
	}
	return true, nil
}

// List returns every entry, including corrupted ones that carry only a hash.
func (x *EmailIndex) List(ctx context.Context) ([]*models.EmailIndexEntry, error) {
	entries, err := x.store.ListEmailIndexes(ctx)
	if err != nil {
		return nil, storageFailure("list_index", "", err)
	}
	return entries, nil
}
