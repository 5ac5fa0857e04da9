package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cvperfect/SessionService/internal/database"
	"github.com/cvperfect/SessionService/internal/events"
	"github.com/cvperfect/SessionService/internal/models"
	"github.com/cvperfect/SessionService/pkg/metrics"
	"github.com/rs/zerolog/log"
)

// DefaultMaxAge is the retention window used when none is configured.
const DefaultMaxAge = 48 * time.Hour

// maxAgeHoursLimit is the largest window, in hours, a time.Duration holds.
const maxAgeHoursLimit = float64(math.MaxInt64 / int64(time.Hour))

// MaxAgeFromHours converts a caller-supplied window in hours. Values a
// time.Duration cannot hold are rejected; non-positive values pass through
// and are rejected by Cleanup.
func MaxAgeFromHours(hours float64) (time.Duration, error) {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours > maxAgeHoursLimit {
		return 0, invalidInput("cleanup", "", fmt.Sprintf("maxAgeHours must not exceed %.0f", maxAgeHoursLimit))
	}
	return time.Duration(hours * float64(time.Hour)), nil
}

// Archiver copies a session somewhere durable before cleanup deletes it.
type Archiver interface {
	Archive(ctx context.Context, session *models.Session) error
}

// CleanupOptions controls one cleanup run.
type CleanupOptions struct {
	MaxAge time.Duration // sessions with now-updatedAt > MaxAge are expired
	DryRun bool          // report only, mutate nothing
	Backup bool          // archive each expired session before deleting it
}

// CleanupService removes sessions past the retention window together with
// the email index entries that point at them.
type CleanupService struct {
	store    SessionStore
	index    *EmailIndex
	archiver Archiver
	events   events.Publisher
	now      func() time.Time
}

// NewCleanupService creates a cleanup service. archiver may be nil, in
// which case backup runs are rejected.
func NewCleanupService(store SessionStore, index *EmailIndex, archiver Archiver, publisher events.Publisher) *CleanupService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &CleanupService{
		store:    store,
		index:    index,
		archiver: archiver,
		events:   publisher,
		now:      time.Now,
	}
}

// Cleanup scans every session and deletes the expired ones.
//
// Per-record failures (archive, delete, index removal) are collected in
// the report and never stop the scan. When any occurred, the report is
// returned together with an ErrPartialCleanup error. A failure to list the
// sessions at all returns ErrStorageFailure and no report.
//
// After the sessions, every email index entry is checked and entries whose
// session no longer exists are removed (or, in a dry run, counted).
//
// Example:
//
//	report, err := cleanupSvc.Cleanup(ctx, services.CleanupOptions{MaxAge: 48 * time.Hour, DryRun: true})
//	if err != nil && !errors.Is(err, services.ErrPartialCleanup) {
//	    return err
//	}
//	fmt.Printf("would delete %d of %d sessions\n", report.Expired, report.Scanned)
func (c *CleanupService) Cleanup(ctx context.Context, opts CleanupOptions) (*models.CleanupReport, error) {
	if opts.MaxAge <= 0 {
		return nil, invalidInput("cleanup", "", "maxAgeHours must be positive")
	}
	if opts.Backup && !opts.DryRun && c.archiver == nil {
		return nil, invalidInput("cleanup", "", "backup requested but no archive is configured")
	}

	now := c.now().UTC()
	report := &models.CleanupReport{
		Timestamp:   now,
		Cutoff:      now.Add(-opts.MaxAge),
		MaxAgeHours: opts.MaxAge.Hours(),
		DryRun:      opts.DryRun,
		Backup:      opts.Backup,
		Candidates:  []string{},
		Errors:      []string{},
	}

	sessions, err := c.store.ListSessions(ctx)
	if err != nil {
		return nil, storageFailure("cleanup", "", err)
	}
	report.Scanned = len(sessions)

	var expired []*models.Session
	live := make(map[string]bool, len(sessions))
	for _, session := range sessions {
		if session.Age(now) > opts.MaxAge {
			expired = append(expired, session)
			continue
		}
		live[session.SessionID] = true
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].SessionID < expired[j].SessionID })

	report.Expired = len(expired)
	for _, session := range expired {
		report.Candidates = append(report.Candidates, session.SessionID)
	}

	if !opts.DryRun {
		for _, session := range expired {
			if err := ctx.Err(); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("cleanup interrupted: %v", err))
				break
			}
			if !c.expire(ctx, session, opts.Backup, report) {
				// Not deleted; its index entry is still valid.
				live[session.SessionID] = true
			}
		}
	} else {
		for _, session := range expired {
			live[session.SessionID] = true
		}
	}

	if ctx.Err() == nil {
		c.sweepIndexes(ctx, live, opts.DryRun, report)
	}

	report.Remaining = report.Scanned - report.Deleted

	metrics.RecordCleanup(opts.DryRun, report.Deleted, len(report.Errors))

	log.Info().
		Bool("dry_run", opts.DryRun).
		Float64("max_age_hours", report.MaxAgeHours).
		Int("scanned", report.Scanned).
		Int("expired", report.Expired).
		Int("deleted", report.Deleted).
		Int("archived", report.Archived).
		Int("indexes_deleted", report.IndexesDeleted).
		Int("errors", len(report.Errors)).
		Msg("Session cleanup finished")

	if len(report.Errors) > 0 {
		return report, &Error{
			Op:   "cleanup",
			Kind: ErrPartialCleanup,
			Err:  fmt.Errorf("%d record operations failed", len(report.Errors)),
		}
	}
	return report, nil
}

// expire archives (optionally) and deletes one session, then removes its
// email index entry if the entry still points at it. Reports whether the
// session was deleted.
func (c *CleanupService) expire(ctx context.Context, session *models.Session, backup bool, report *models.CleanupReport) bool {
	id := session.SessionID

	if backup {
		if err := c.archiver.Archive(ctx, session); err != nil {
			log.Error().Err(err).Str("session_id", id).Msg("Failed to archive session, keeping it")
			report.Errors = append(report.Errors, fmt.Sprintf("archive %s: %v", id, err))
			return false
		}
		report.Archived++
	}

	if err := c.store.DeleteSession(ctx, id); err != nil {
		log.Error().Err(err).Str("operation", "delete").Str("key", id).Msg("Failed to delete expired session")
		report.Errors = append(report.Errors, fmt.Sprintf("delete %s: %v", id, err))
		return false
	}
	report.Deleted++

	if session.Email != "" {
		if normalized, err := NormalizeEmail(session.Email); err == nil {
			removed, err := c.index.RemoveIfPointsTo(ctx, HashEmail(normalized), id)
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("unindex %s: %v", id, err))
			} else if removed {
				report.IndexesDeleted++
			}
		}
	}

	if err := c.events.Publish(ctx, events.Event{
		Type:      events.SessionExpired,
		SessionID: id,
		Plan:      string(session.Plan),
		HasEmail:  session.Email != "",
		Timestamp: report.Timestamp,
	}); err != nil {
		log.Warn().Err(err).Str("session_id", id).Msg("Failed to publish session event")
	}

	return true
}

// sweepIndexes removes index entries whose session is gone. An entry that
// points outside the scanned set is checked against the store first, since
// the session may have been saved after the scan started.
func (c *CleanupService) sweepIndexes(ctx context.Context, live map[string]bool, dryRun bool, report *models.CleanupReport) {
	entries, err := c.index.List(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("list email index: %v", err))
		return
	}
	report.IndexesScanned = len(entries)

	for _, entry := range entries {
		if entry.SessionID != "" && live[entry.SessionID] {
			continue
		}
		if entry.SessionID != "" {
			_, err := c.store.GetSession(ctx, entry.SessionID)
			if err == nil {
				continue
			}
			if !errors.Is(err, database.ErrNotFound) {
				report.Errors = append(report.Errors, fmt.Sprintf("check index %s: %v", entry.EmailHash, err))
				continue
			}
		}

		report.IndexesOrphaned++
		if dryRun {
			continue
		}
		if err := c.index.RemoveHash(ctx, entry.EmailHash); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("unindex %s: %v", entry.EmailHash, err))
			continue
		}
		report.IndexesDeleted++
	}
}
