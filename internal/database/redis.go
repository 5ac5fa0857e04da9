package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cvperfect/SessionService/internal/models"
	"github.com/cvperfect/SessionService/pkg/cache"
	"github.com/cvperfect/SessionService/pkg/config"
	"github.com/cvperfect/SessionService/pkg/utils"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisDB wraps a Redis client. It is always connected, because it serves
// rate limiting, admin token revocation and caching, and it doubles as a
// session backend when STORAGE_BACKEND=redis.
//
// Key patterns (see pkg/cache):
//   - cvsession:{sessionID}   session record as JSON
//   - email_index:{emailHash} email index entry as JSON
//   - blacklist:{jti}         revoked admin token
//   - ratelimit:{ip}:{group}  request counter
//
// Session keys carry no TTL: expiry is the cleanup job's decision, so
// dry runs and backups see every record.
type RedisDB struct {
	client *redis.Client
}

// NewRedisDB creates a new Redis connection with automatic retry.
//
// Retry configuration:
//   - Max attempts: 5
//   - Initial delay: 100ms
//   - Max delay: 3 seconds
//   - Total timeout: 30 seconds
//
// Example:
//
//	redisDB, err := database.NewRedisDB(&cfg.Redis)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("Redis connection failed")
//	}
//	defer redisDB.Close()
func NewRedisDB(cfg *config.RedisConfig) (*RedisDB, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	retryConfig := utils.DatabaseRetryConfig()
	retryConfig.MaxAttempts = 5
	retryConfig.InitialDelay = 100 * time.Millisecond
	retryConfig.MaxDelay = 3 * time.Second

	var lastErr error
	err := utils.Retry(ctx, retryConfig, func() error {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()

		if err := client.Ping(pingCtx).Err(); err != nil {
			lastErr = err
			log.Warn().Err(err).Msg("Failed to ping Redis, retrying...")
			return err
		}
		return nil
	})

	if err != nil {
		client.Close()
		if lastErr != nil {
			return nil, fmt.Errorf("failed to connect to Redis after retries: %w", lastErr)
		}
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Str("addr", cfg.Address()).Msg("Successfully connected to Redis")

	return &RedisDB{client: client}, nil
}

// Close closes the Redis connection and releases all resources.
func (r *RedisDB) Close() error {
	return r.client.Close()
}

// Client returns the underlying Redis client, used to build the cache.
func (r *RedisDB) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is alive and responsive.
func (r *RedisDB) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// SaveSession stores the whole session as one JSON value, replacing any
// previous value under the same id.
func (r *RedisDB) SaveSession(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := r.client.Set(ctx, cache.SessionKey(session.SessionID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id. Returns ErrNotFound if absent.
func (r *RedisDB) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	data, err := r.client.Get(ctx, cache.SessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return &session, nil
}

// DeleteSession removes a session. DEL on a missing key is a no-op.
func (r *RedisDB) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, cache.SessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListSessions loads every session using SCAN, never KEYS, in batches of
// 100 keys. Undecodable values are logged and skipped.
func (r *RedisDB) ListSessions(ctx context.Context) ([]*models.Session, error) {
	var sessions []*models.Session
	err := r.scanJSON(ctx, cache.SessionPattern(), func(key string, data []byte) {
		var session models.Session
		if err := json.Unmarshal(data, &session); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Skipping undecodable session")
			return
		}
		sessions = append(sessions, &session)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// SetEmailIndex creates or overwrites the entry for entry.EmailHash.
func (r *RedisDB) SetEmailIndex(ctx context.Context, entry *models.EmailIndexEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode email index: %w", err)
	}

	if err := r.client.Set(ctx, cache.EmailIndexKey(entry.EmailHash), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set email index: %w", err)
	}
	return nil
}

// GetEmailIndex returns the entry for a hash or ErrNotFound.
func (r *RedisDB) GetEmailIndex(ctx context.Context, emailHash string) (*models.EmailIndexEntry, error) {
	data, err := r.client.Get(ctx, cache.EmailIndexKey(emailHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("email index %s: %w", emailHash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email index: %w", err)
	}

	var entry models.EmailIndexEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode email index %s: %w", emailHash, err)
	}
	return &entry, nil
}

// DeleteEmailIndex removes the entry for a hash; missing entries are ignored.
func (r *RedisDB) DeleteEmailIndex(ctx context.Context, emailHash string) error {
	if err := r.client.Del(ctx, cache.EmailIndexKey(emailHash)).Err(); err != nil {
		return fmt.Errorf("failed to delete email index: %w", err)
	}
	return nil
}

// ListEmailIndexes returns every email index entry.
// Corrupted entries are returned with only EmailHash set so that cleanup
// treats them as orphans and removes them.
func (r *RedisDB) ListEmailIndexes(ctx context.Context) ([]*models.EmailIndexEntry, error) {
	var entries []*models.EmailIndexEntry
	err := r.scanJSON(ctx, cache.EmailIndexPattern(), func(key string, data []byte) {
		var entry models.EmailIndexEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Corrupted email index entry")
			entry = models.EmailIndexEntry{}
		}
		entry.EmailHash = key[len(cache.EmailIndexPrefix):]
		entries = append(entries, &entry)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list email indexes: %w", err)
	}
	return entries, nil
}

// scanJSON iterates keys matching pattern with SCAN and hands each value
// to fn. Keys deleted between SCAN and MGET are skipped.
func (r *RedisDB) scanJSON(ctx context.Context, pattern string, fn func(key string, data []byte)) error {
	var cursor uint64

	for {
		var keys []string
		var err error

		keys, cursor, err = r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", pattern, err)
		}

		if len(keys) > 0 {
			values, err := r.client.MGet(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", pattern, err)
			}
			for i, v := range values {
				s, ok := v.(string)
				if !ok {
					continue
				}
				fn(keys[i], []byte(s))
			}
		}

		if cursor == 0 {
			break
		}
	}

	return nil
}

// BlacklistToken revokes an admin token until its natural expiry.
//
// Example:
//
//	ttl := time.Until(claims.ExpiresAt.Time)
//	if ttl > 0 {
//	    err := redisDB.BlacklistToken(ctx, claims.ID, ttl)
//	}
func (r *RedisDB) BlacklistToken(ctx context.Context, jti string, expiry time.Duration) error {
	if err := r.client.Set(ctx, cache.BlacklistKey(jti), "true", expiry).Err(); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

// IsTokenBlacklisted checks if a token has been revoked.
func (r *RedisDB) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	exists, err := r.client.Exists(ctx, cache.BlacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists > 0, nil
}

// IncrementRateLimit increments the fixed-window counter for an IP and
// endpoint group and returns the count including this request. The window
// starts with the first request.
//
// Example:
//
//	count, err := redisDB.IncrementRateLimit(ctx, "203.0.113.42", "recover", time.Minute)
//	if count > 10 {
//	    return errors.New("rate limit exceeded")
//	}
func (r *RedisDB) IncrementRateLimit(ctx context.Context, ip, endpoint string, window time.Duration) (int64, error) {
	key := cache.RateLimitKey(ip, endpoint)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("failed to set rate limit expiry: %w", err)
		}
	}

	return count, nil
}
