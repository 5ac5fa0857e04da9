package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cvperfect/SessionService/internal/models"
	"github.com/cvperfect/SessionService/pkg/cache"
	"github.com/cvperfect/SessionService/pkg/metrics"
	"github.com/rs/zerolog/log"
)

const (
	highStorageBytes     = 10 * 1024 * 1024
	orphanedIndexWarning = 5
)

// MetricsReporter aggregates health signals over the stored sessions.
// It never mutates storage.
type MetricsReporter struct {
	store        SessionStore
	index        *EmailIndex
	cache        *cache.Cache // optional
	cacheTTL     time.Duration
	activeWindow time.Duration
	maxAge       time.Duration
	now          func() time.Time
}

// NewMetricsReporter creates a reporter. activeWindow decides which
// sessions count as active and maxAge which count as expired. A nil cache
// computes every snapshot from storage.
//
// Example:
//
//	reporter := services.NewMetricsReporter(backend, index, cacheInstance,
//	    30*time.Second, 48*time.Hour, 48*time.Hour)
func NewMetricsReporter(store SessionStore, index *EmailIndex, c *cache.Cache, cacheTTL, activeWindow, maxAge time.Duration) *MetricsReporter {
	return &MetricsReporter{
		store:        store,
		index:        index,
		cache:        c,
		cacheTTL:     cacheTTL,
		activeWindow: activeWindow,
		maxAge:       maxAge,
		now:          time.Now,
	}
}

// Snapshot returns the current health snapshot, served from the cache when
// a fresh one exists. Cache failures fall back to computing directly.
func (m *MetricsReporter) Snapshot(ctx context.Context) (*models.MetricsSnapshot, error) {
	if m.cache == nil || m.cacheTTL <= 0 {
		return m.compute(ctx)
	}

	var snapshot models.MetricsSnapshot
	var loadErr error
	err := m.cache.GetOrSet(ctx, cache.MetricsSnapshotKey(), m.cacheTTL, &snapshot, func() (interface{}, error) {
		s, err := m.compute(ctx)
		loadErr = err
		return s, err
	})
	if loadErr != nil {
		return nil, loadErr
	}
	if err != nil {
		log.Warn().Err(err).Msg("Metrics cache unavailable, computing snapshot directly")
		return m.compute(ctx)
	}
	return &snapshot, nil
}

// Invalidate drops the cached snapshot, e.g. after a cleanup run.
func (m *MetricsReporter) Invalidate(ctx context.Context) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Delete(ctx, cache.MetricsSnapshotKey()); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate metrics snapshot")
	}
}

func (m *MetricsReporter) compute(ctx context.Context) (*models.MetricsSnapshot, error) {
	sessions, err := m.store.ListSessions(ctx)
	if err != nil {
		return nil, storageFailure("metrics", "", err)
	}
	entries, err := m.index.List(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	snapshot := &models.MetricsSnapshot{
		Timestamp: now,
		Sessions: models.SessionStats{
			ByPlan: map[string]int{
				string(models.PlanBasic):   0,
				string(models.PlanGold):    0,
				string(models.PlanPremium): 0,
				"unknown":                  0,
			},
		},
		Recommendations: []string{},
	}

	stats := &snapshot.Sessions
	ids := make(map[string]bool, len(sessions))
	for _, session := range sessions {
		ids[session.SessionID] = true
		stats.Total++
		stats.TotalBytes += int64(session.SizeBytes())
		if session.Photo != "" {
			stats.WithPhoto++
		}

		age := session.Age(now)
		if age <= m.activeWindow {
			stats.Active++
		}
		if age > m.maxAge {
			stats.Expired++
		}

		switch {
		case age < time.Hour:
			stats.ByAge.Last1Hour++
		case age < 6*time.Hour:
			stats.ByAge.Last6Hours++
		case age < 24*time.Hour:
			stats.ByAge.Last24Hours++
		case age < 48*time.Hour:
			stats.ByAge.Last48Hours++
		default:
			stats.ByAge.Older++
		}

		if plan, ok := models.ParsePlan(string(session.Plan)); ok && session.Plan != "" {
			stats.ByPlan[string(plan)]++
		} else {
			stats.ByPlan["unknown"]++
		}
	}
	if stats.Total > 0 {
		stats.AvgSessionBytes = stats.TotalBytes / int64(stats.Total)
	}

	idx := &snapshot.EmailIndexes
	for _, entry := range entries {
		idx.Total++
		if entry.SessionID != "" && ids[entry.SessionID] {
			idx.Valid++
		} else {
			idx.Orphaned++
		}
	}

	snapshot.Health = healthScore(stats.Total, stats.Active, idx.Total, idx.Valid)
	snapshot.Recommendations = recommendations(stats, idx)

	metrics.SetSessionGauges(stats.Total, stats.Active, snapshot.Health.Score)

	return snapshot, nil
}

// healthScore averages the share of active sessions and the share of valid
// index entries. No index entries counts as a perfect index; no sessions
// at all counts as zero, which always lands in critical.
func healthScore(total, active, indexes, valid int) models.HealthScore {
	var h models.HealthScore
	if total > 0 {
		h.SessionScore = float64(active) / float64(total)
	}
	h.IndexScore = 1
	if indexes > 0 {
		h.IndexScore = float64(valid) / float64(indexes)
	}
	h.Score = math.Round((h.SessionScore+h.IndexScore)/2*1000) / 1000
	h.Status = healthStatus(h.Score)
	return h
}

func healthStatus(score float64) string {
	switch {
	case score > 0.8:
		return models.HealthHealthy
	case score > 0.5:
		return models.HealthWarning
	default:
		return models.HealthCritical
	}
}

func recommendations(stats *models.SessionStats, idx *models.IndexStats) []string {
	recs := []string{}
	if stats.Expired > stats.Active {
		recs = append(recs, fmt.Sprintf("Run session cleanup: %d expired sessions outnumber %d active ones", stats.Expired, stats.Active))
	}
	if idx.Orphaned > orphanedIndexWarning {
		recs = append(recs, fmt.Sprintf("Run index cleanup: %d email index entries point at missing sessions", idx.Orphaned))
	}
	if stats.TotalBytes > highStorageBytes {
		recs = append(recs, fmt.Sprintf("High storage usage: %.1f MB across %d sessions", float64(stats.TotalBytes)/(1024*1024), stats.Total))
	}
	recent := stats.ByAge.Last1Hour + stats.ByAge.Last6Hours + stats.ByAge.Last24Hours
	if stats.Total > 0 && recent == 0 {
		recs = append(recs, "No sessions saved in the last 24 hours: check the upload and checkout flow")
	}
	return recs
}
