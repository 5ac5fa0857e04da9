package services

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/cvperfect/SessionService/internal/models"
	"github.com/cvperfect/SessionService/pkg/cache"
	"github.com/rs/zerolog/log"
)

// Locker is the distributed lock used so that only one replica cleans up
// at a time. *cache.Cache implements it.
type Locker interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// CleanupScheduler runs cleanup on a fixed interval, off the request path.
type CleanupScheduler struct {
	cleanup  *CleanupService
	reporter *MetricsReporter // optional, invalidated after each run
	locker   Locker           // optional
	interval time.Duration
	opts     CleanupOptions
	lockTTL  time.Duration
	holderID string
}

// NewCleanupScheduler creates a scheduler running cleanup every interval
// with the given options.
//
// Example:
//
//	scheduler := services.NewCleanupScheduler(cleanupSvc, reporter, cacheInstance, time.Hour,
//	    services.CleanupOptions{MaxAge: cfg.Retention.MaxAge, Backup: cfg.Retention.BackupBeforeCleanup})
//	go scheduler.Run(ctx)
func NewCleanupScheduler(cleanup *CleanupService, reporter *MetricsReporter, locker Locker, interval time.Duration, opts CleanupOptions) *CleanupScheduler {
	holder, err := os.Hostname()
	if err != nil || holder == "" {
		holder = "session-service"
	}
	return &CleanupScheduler{
		cleanup:  cleanup,
		reporter: reporter,
		locker:   locker,
		interval: interval,
		opts:     opts,
		lockTTL:  10 * time.Minute,
		holderID: holder,
	}
}

// Run blocks until ctx is cancelled, running one cleanup per tick.
func (s *CleanupScheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		log.Info().Msg("Scheduled cleanup disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", s.interval).
		Float64("max_age_hours", s.opts.MaxAge.Hours()).
		Msg("Scheduled cleanup started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduled cleanup stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrPartialCleanup) {
				log.Error().Err(err).Msg("Scheduled cleanup failed")
			}
		}
	}
}

// RunOnce runs a single cleanup if the lock can be taken. It returns a nil
// report when another replica holds the lock.
func (s *CleanupScheduler) RunOnce(ctx context.Context) (*models.CleanupReport, error) {
	if s.locker != nil {
		acquired, err := s.locker.SetNX(ctx, cache.CleanupLockKey(), s.holderID, s.lockTTL)
		if err != nil {
			return nil, err
		}
		if !acquired {
			log.Debug().Msg("Cleanup lock held elsewhere, skipping run")
			return nil, nil
		}
		defer func() {
			if err := s.locker.Delete(context.WithoutCancel(ctx), cache.CleanupLockKey()); err != nil {
				log.Warn().Err(err).Msg("Failed to release cleanup lock")
			}
		}()
	}

	report, err := s.cleanup.Cleanup(ctx, s.opts)
	if report != nil && s.reporter != nil && !report.DryRun && report.Deleted+report.IndexesDeleted > 0 {
		s.reporter.Invalidate(ctx)
	}
	return report, err
}
