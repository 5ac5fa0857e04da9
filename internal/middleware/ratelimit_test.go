package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cvperfect/SessionService/internal/testutil"
	"github.com/stretchr/testify/assert"
)

type failingCounter struct{}

func (failingCounter) IncrementRateLimit(ctx context.Context, ip, endpoint string, window time.Duration) (int64, error) {
	return 0, errors.New("redis down")
}

func setupRateLimiter(t *testing.T, limit int) *RateLimiter {
	t.Helper()

	mr, cleanup := testutil.SetupMiniRedis(t)
	t.Cleanup(cleanup)

	return NewRateLimiter(testutil.NewTestRedisDB(t, mr), limit, time.Minute)
}

func limitedRequest(handler http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/recover", nil)
	req.RemoteAddr = ip + ":51234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("allows requests under the limit", func(t *testing.T) {
		handler := setupRateLimiter(t, 3).Limit("recover")(ok)

		for i := 0; i < 3; i++ {
			rec := limitedRequest(handler, "203.0.113.10")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		}
	})

	t.Run("remaining counts down", func(t *testing.T) {
		handler := setupRateLimiter(t, 3).Limit("recover")(ok)

		assert.Equal(t, "2", limitedRequest(handler, "203.0.113.10").Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "1", limitedRequest(handler, "203.0.113.10").Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("blocks over the limit", func(t *testing.T) {
		handler := setupRateLimiter(t, 2).Limit("recover")(ok)

		limitedRequest(handler, "203.0.113.10")
		limitedRequest(handler, "203.0.113.10")
		rec := limitedRequest(handler, "203.0.113.10")

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		assert.Contains(t, rec.Body.String(), `"error":"rate_limited"`)
	})

	t.Run("clients are counted separately", func(t *testing.T) {
		handler := setupRateLimiter(t, 1).Limit("recover")(ok)

		assert.Equal(t, http.StatusOK, limitedRequest(handler, "203.0.113.10").Code)
		assert.Equal(t, http.StatusOK, limitedRequest(handler, "203.0.113.11").Code)
		assert.Equal(t, http.StatusTooManyRequests, limitedRequest(handler, "203.0.113.10").Code)
	})

	t.Run("endpoints are counted separately", func(t *testing.T) {
		limiter := setupRateLimiter(t, 1)
		recoverHandler := limiter.Limit("recover")(ok)
		saveHandler := limiter.Limit("save")(ok)

		assert.Equal(t, http.StatusOK, limitedRequest(recoverHandler, "203.0.113.10").Code)
		assert.Equal(t, http.StatusOK, limitedRequest(saveHandler, "203.0.113.10").Code)
	})

	t.Run("fails open when the counter errors", func(t *testing.T) {
		handler := NewRateLimiter(failingCounter{}, 1, time.Minute).Limit("recover")(ok)

		for i := 0; i < 3; i++ {
			assert.Equal(t, http.StatusOK, limitedRequest(handler, "203.0.113.10").Code)
		}
	})

	t.Run("nil limiter passes through", func(t *testing.T) {
		var limiter *RateLimiter
		handler := limiter.Limit("recover")(ok)

		assert.Equal(t, http.StatusOK, limitedRequest(handler, "203.0.113.10").Code)
	})
}
