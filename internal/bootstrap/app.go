// Package bootstrap wires configuration, storage backends and services into
// a running application. Both the HTTP server and the sessionctl CLI build
// their dependencies here so that they operate on the same store the same
// way.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cvperfect/SessionService/internal/archive"
	"github.com/cvperfect/SessionService/internal/database"
	"github.com/cvperfect/SessionService/internal/events"
	"github.com/cvperfect/SessionService/internal/handlers"
	"github.com/cvperfect/SessionService/internal/services"
	"github.com/cvperfect/SessionService/pkg/cache"
	"github.com/cvperfect/SessionService/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// App holds every long-lived dependency of the service.
type App struct {
	Config *config.Config

	Redis     *database.RedisDB
	Store     database.Store // instrumented backend
	Cache     *cache.Cache
	Archiver  *archive.S3Archiver // nil unless ARCHIVE_ENABLED
	Publisher events.Publisher

	Index     *services.EmailIndex
	Sessions  *services.SessionService
	Recovery  *services.RecoveryService
	Cleanup   *services.CleanupService
	Reporter  *services.MetricsReporter
	JWT       *services.JWTService
	Scheduler *services.CleanupScheduler

	closers []func() error
}

// SetupLogger configures the global zerolog logger: human-readable console
// output in development, JSON lines in production.
func SetupLogger(environment string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if environment == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// New connects to Redis and the configured session backend and builds the
// services on top of them. Optional integrations (archive bucket, AMQP
// events) are only dialled when enabled. On error everything opened so far
// is closed.
//
// Example:
//
//	app, err := bootstrap.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("Failed to start")
//	}
//	defer app.Close()
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}
	if err := app.build(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) build(ctx context.Context) error {
	cfg := app.Config

	var err error
	app.Redis, err = database.NewRedisDB(&cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	app.closers = append(app.closers, app.Redis.Close)

	backend, err := openBackend(cfg, app.Redis)
	if err != nil {
		return err
	}
	if backend != database.Store(app.Redis) {
		app.closers = append(app.closers, backend.Close)
	}
	app.Store = database.NewInstrumentedStore(backend, cfg.Storage.Backend)

	app.Cache = cache.NewCache(app.Redis.Client())

	// Sessions go through the Redis cache unless Redis already is the backend.
	var sessionStore services.SessionStore = app.Store
	cached := cfg.Cache.Enabled && cfg.Storage.Backend != config.BackendRedis
	if cached {
		sessionStore = cache.NewSessionCache(app.Cache, app.Store, cfg.Cache.SessionTTL)
	}

	app.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		pub, err := events.NewAMQPPublisher(&cfg.Events)
		if err != nil {
			return err
		}
		app.Publisher = pub
		app.closers = append(app.closers, pub.Close)
	}

	var archiver services.Archiver
	if cfg.Archive.Enabled {
		app.Archiver, err = archive.NewS3Archiver(ctx, &cfg.Archive)
		if err != nil {
			return err
		}
		archiver = app.Archiver
	}

	app.Index = services.NewEmailIndex(app.Store)
	app.Sessions = services.NewSessionService(sessionStore, app.Index, app.Publisher)
	app.Recovery = services.NewRecoveryService(app.Index, sessionStore, app.Publisher)
	app.Cleanup = services.NewCleanupService(sessionStore, app.Index, archiver, app.Publisher)
	app.Reporter = services.NewMetricsReporter(sessionStore, app.Index, app.Cache,
		cfg.Cache.MetricsTTL, cfg.Retention.ActiveWindow, cfg.Retention.MaxAge)
	app.JWT = services.NewJWTService(&cfg.JWT, app.Redis)
	app.Scheduler = services.NewCleanupScheduler(app.Cleanup, app.Reporter, app.Cache,
		cfg.Retention.CleanupInterval, services.CleanupOptions{
			MaxAge: cfg.Retention.MaxAge,
			Backup: cfg.Retention.BackupBeforeCleanup && app.Archiver != nil,
		})

	log.Info().
		Str("backend", cfg.Storage.Backend).
		Bool("session_cache", cached).
		Bool("archive", app.Archiver != nil).
		Bool("events", cfg.Events.Enabled).
		Msg("Session store ready")

	return nil
}

func openBackend(cfg *config.Config, redisDB *database.RedisDB) (database.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendFile:
		return database.NewFileStore(cfg.Storage.Dir), nil
	case config.BackendRedis:
		return redisDB, nil
	case config.BackendPostgres:
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		return db, nil
	case config.BackendSQLite:
		db, err := database.NewSQLiteDB(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// Dependencies returns the readiness checks for /ready.
func (app *App) Dependencies() map[string]handlers.Pinger {
	deps := map[string]handlers.Pinger{
		"storage": app.Store,
		"redis":   app.Redis,
	}
	if app.Archiver != nil {
		deps["archive"] = app.Archiver
	}
	return deps
}

// Close releases connections in reverse order of opening.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}
