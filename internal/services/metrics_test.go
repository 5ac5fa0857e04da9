package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cvperfect/SessionService/internal/models"
	"github.com/cvperfect/SessionService/internal/testutil"
	"github.com/cvperfect/SessionService/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupReporter(t *testing.T, env *testEnv, c *cache.Cache) *MetricsReporter {
	t.Helper()
	return NewMetricsReporter(env.store, env.index, c, time.Minute, 48*time.Hour, 48*time.Hour)
}

func TestHealthStatus(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{1, models.HealthHealthy},
		{0.81, models.HealthHealthy},
		{0.8, models.HealthWarning},
		{0.51, models.HealthWarning},
		{0.5, models.HealthCritical},
		{0, models.HealthCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, healthStatus(tt.score), "score %v", tt.score)
	}
}

func TestHealthScore(t *testing.T) {
	t.Run("no indexes counts as a perfect index", func(t *testing.T) {
		h := healthScore(4, 4, 0, 0)
		assert.Equal(t, 1.0, h.IndexScore)
		assert.Equal(t, 1.0, h.Score)
		assert.Equal(t, models.HealthHealthy, h.Status)
	})

	t.Run("empty store is critical", func(t *testing.T) {
		h := healthScore(0, 0, 0, 0)
		assert.Equal(t, 0.5, h.Score)
		assert.Equal(t, models.HealthCritical, h.Status)
	})

	t.Run("rounds to three decimals", func(t *testing.T) {
		h := healthScore(3, 2, 3, 2)
		assert.Equal(t, 0.667, h.Score)
		assert.Equal(t, models.HealthWarning, h.Status)
	})
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("counts sessions by age and plan", func(t *testing.T) {
		env := setupServices(t)
		reporter := setupReporter(t, env, nil)

		seedAged(t, env, "sess_30m", "a@example.com", 30*time.Minute)
		seedAged(t, env, "sess_3h", "", 3*time.Hour)
		seedAged(t, env, "sess_12h", "", 12*time.Hour)
		seedAged(t, env, "sess_30h", "", 30*time.Hour)
		seedAged(t, env, "sess_100h", "b@example.com", 100*time.Hour)

		snapshot, err := reporter.Snapshot(ctx)
		require.NoError(t, err)

		stats := snapshot.Sessions
		assert.Equal(t, 5, stats.Total)
		assert.Equal(t, 4, stats.Active)
		assert.Equal(t, 1, stats.Expired)
		assert.Equal(t, 5, stats.WithPhoto)
		assert.Equal(t, models.AgeBuckets{Last1Hour: 1, Last6Hours: 1, Last24Hours: 1, Last48Hours: 1, Older: 1}, stats.ByAge)
		assert.Equal(t, 5, stats.ByPlan["premium"])
		assert.Equal(t, 0, stats.ByPlan["basic"])
		assert.Positive(t, stats.AvgSessionBytes)

		assert.Equal(t, 2, snapshot.EmailIndexes.Total)
		assert.Equal(t, 2, snapshot.EmailIndexes.Valid)
		assert.Equal(t, 0.9, snapshot.Health.Score)
		assert.Equal(t, models.HealthHealthy, snapshot.Health.Status)
	})

	t.Run("empty store", func(t *testing.T) {
		env := setupServices(t)
		reporter := setupReporter(t, env, nil)

		snapshot, err := reporter.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, snapshot.Sessions.Total)
		assert.Equal(t, models.HealthCritical, snapshot.Health.Status)
		assert.NotNil(t, snapshot.Recommendations)
		assert.Empty(t, snapshot.Recommendations)
	})

	t.Run("counts orphaned index entries", func(t *testing.T) {
		env := setupServices(t)
		reporter := setupReporter(t, env, nil)

		seedAged(t, env, "sess_live", "live@example.com", time.Hour)
		for _, email := range []string{"g1@example.com", "g2@example.com", "g3@example.com", "g4@example.com", "g5@example.com", "g6@example.com"} {
			require.NoError(t, env.index.Upsert(ctx, email, "sess_missing", models.PlanBasic, time.Now()))
		}

		snapshot, err := reporter.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7, snapshot.EmailIndexes.Total)
		assert.Equal(t, 1, snapshot.EmailIndexes.Valid)
		assert.Equal(t, 6, snapshot.EmailIndexes.Orphaned)
		assert.True(t, hasRecommendation(snapshot.Recommendations, "index cleanup"))
	})

	t.Run("recommends cleanup when expired outnumber active", func(t *testing.T) {
		env := setupServices(t)
		reporter := setupReporter(t, env, nil)

		seedAged(t, env, "sess_a", "", 100*time.Hour)
		seedAged(t, env, "sess_b", "", 120*time.Hour)

		snapshot, err := reporter.Snapshot(ctx)
		require.NoError(t, err)
		assert.True(t, hasRecommendation(snapshot.Recommendations, "session cleanup"))
		assert.True(t, hasRecommendation(snapshot.Recommendations, "last 24 hours"))
		assert.Equal(t, models.HealthCritical, snapshot.Health.Status)
	})

	t.Run("does not modify storage", func(t *testing.T) {
		env := setupServices(t)
		reporter := setupReporter(t, env, nil)

		seedAged(t, env, "sess_old", "old@example.com", 100*time.Hour)

		_, err := reporter.Snapshot(ctx)
		require.NoError(t, err)

		_, err = env.sessions.Get(ctx, "sess_old")
		assert.NoError(t, err)
	})

	t.Run("serves cached snapshot until invalidated", func(t *testing.T) {
		env := setupServices(t)
		mr, cleanup := testutil.SetupMiniRedis(t)
		defer cleanup()
		c := cache.NewCache(testutil.NewTestRedisClient(t, mr))
		reporter := setupReporter(t, env, c)

		seedAged(t, env, "sess_1", "", time.Hour)
		first, err := reporter.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, first.Sessions.Total)
		assert.True(t, mr.Exists(cache.MetricsSnapshotKey()))

		seedAged(t, env, "sess_2", "", time.Hour)
		cached, err := reporter.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, cached.Sessions.Total)

		reporter.Invalidate(ctx)
		fresh, err := reporter.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, fresh.Sessions.Total)
	})

	t.Run("falls back to computing when the cache is down", func(t *testing.T) {
		env := setupServices(t)
		mr, cleanup := testutil.SetupMiniRedis(t)
		defer cleanup()
		c := cache.NewCache(testutil.NewTestRedisClient(t, mr))
		reporter := setupReporter(t, env, c)

		seedAged(t, env, "sess_1", "", time.Hour)
		mr.Close()

		snapshot, err := reporter.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, snapshot.Sessions.Total)
	})
}

func hasRecommendation(recs []string, substr string) bool {
	for _, r := range recs {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}
