package utils

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), fastRetry(3), func() error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		transient := errors.New("timeout")
		calls := 0
		err := Retry(context.Background(), fastRetry(2), func() error {
			calls++
			return transient
		})

		assert.ErrorIs(t, err, transient)
		assert.Equal(t, 2, calls)
	})

	t.Run("stops on non-retryable error", func(t *testing.T) {
		retryable := errors.New("busy")
		cfg := fastRetry(5)
		cfg.RetryableErrors = []error{retryable}

		calls := 0
		_, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
			calls++
			return 0, errors.New("access denied")
		})

		assert.ErrorContains(t, err, "non-retryable")
		assert.Equal(t, 1, calls)
	})

	t.Run("returns value", func(t *testing.T) {
		v, err := RetryWithResult(context.Background(), fastRetry(1), func() (string, error) {
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
	})
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.42, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.42"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.7 "}, "10.0.0.2:1234", "198.51.100.7"},
		{"remote ipv4", nil, "192.0.2.1:8080", "192.0.2.1"},
		{"remote ipv6", nil, "[::1]:8080", "::1"},
		{"no port", nil, "192.0.2.1", "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ExtractClientIP(req))
		})
	}
}

func TestPagination(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	t.Run("clamps page size", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?page=0&page_size=1000", nil)
		p := ParsePageParams(req)
		assert.Equal(t, 1, p.Page)
		assert.Equal(t, MaxPageSize, p.PageSize)
	})

	t.Run("second page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?page=2&page_size=2", nil)
		p := ParsePageParams(req)
		assert.Equal(t, []int{3, 4}, Paginate(items, p))

		meta := p.CalculateMeta(int64(len(items)))
		assert.Equal(t, 3, meta.TotalPages)
		assert.True(t, meta.HasNext)
		assert.True(t, meta.HasPrevious)
	})

	t.Run("past the end", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?page=9&page_size=2", nil)
		assert.Empty(t, Paginate(items, ParsePageParams(req)))
	})
}

func TestRespondWithError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithRequestID(req.Context(), "req-1"))
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, http.StatusTooManyRequests, "", "slow down")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"too_many_requests","message":"slow down","request_id":"req-1"}`, rec.Body.String())
}
