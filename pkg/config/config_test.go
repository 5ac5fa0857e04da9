package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-that-is-at-least-32-bytes-long"

func TestLoad(t *testing.T) {
	t.Run("defaults to file backend with 48h retention", func(t *testing.T) {
		t.Setenv("JWT_SECRET", testSecret)
		t.Setenv("STORAGE_BACKEND", "")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, BackendFile, cfg.Storage.Backend)
		assert.Equal(t, ".sessions", cfg.Storage.Dir)
		assert.Equal(t, 48*time.Hour, cfg.Retention.MaxAge)
		assert.Equal(t, 48*time.Hour, cfg.Retention.ActiveWindow)
		assert.Equal(t, "session_updates", cfg.Events.Exchange)
		assert.True(t, cfg.Cache.Enabled)
	})

	t.Run("missing JWT secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")

		_, err := Load()
		assert.ErrorContains(t, err, "JWT_SECRET")
	})

	t.Run("postgres backend requires a password", func(t *testing.T) {
		t.Setenv("JWT_SECRET", testSecret)
		t.Setenv("STORAGE_BACKEND", "POSTGRES")
		t.Setenv("POSTGRES_PASSWORD", "")

		_, err := Load()
		assert.ErrorContains(t, err, "database password")
	})

	t.Run("parses origins and booleans", func(t *testing.T) {
		t.Setenv("JWT_SECRET", testSecret)
		t.Setenv("ALLOWED_ORIGINS", "https://cvperfect.pl, ,http://localhost:3000")
		t.Setenv("CACHE_ENABLED", "0")
		t.Setenv("SESSION_MAX_AGE", "72h")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, []string{"https://cvperfect.pl", "http://localhost:3000"}, cfg.CORS.AllowedOrigins)
		assert.False(t, cfg.Cache.Enabled)
		assert.Equal(t, 72*time.Hour, cfg.Retention.MaxAge)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: "8080"},
			Storage:   StorageConfig{Backend: BackendFile, Dir: "/tmp/sessions"},
			Redis:     RedisConfig{Port: "6379"},
			JWT:       JWTConfig{Secret: []byte(testSecret)},
			Retention: RetentionConfig{MaxAge: 48 * time.Hour, ActiveWindow: 48 * time.Hour},
		}
	}

	t.Run("valid configuration", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := valid()
		cfg.Storage.Backend = "mongo"
		assert.ErrorContains(t, cfg.Validate(), "unknown storage backend")
	})

	t.Run("short secret", func(t *testing.T) {
		cfg := valid()
		cfg.JWT.Secret = []byte("short")
		assert.ErrorContains(t, cfg.Validate(), "at least 32 bytes")
	})

	t.Run("backup without archive", func(t *testing.T) {
		cfg := valid()
		cfg.Retention.BackupBeforeCleanup = true
		assert.ErrorContains(t, cfg.Validate(), "ARCHIVE_ENABLED")
	})

	t.Run("archive requires bucket", func(t *testing.T) {
		cfg := valid()
		cfg.Archive.Enabled = true
		assert.ErrorContains(t, cfg.Validate(), "ARCHIVE_BUCKET")
	})

	t.Run("non-positive retention", func(t *testing.T) {
		cfg := valid()
		cfg.Retention.MaxAge = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", Database: "cv", SSLMode: "require"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=cv sslmode=require", cfg.DSN())
}
