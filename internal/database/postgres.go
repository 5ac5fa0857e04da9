// Package database provides the storage backends for CV sessions and the
// email recovery index: a directory of JSON files, Redis, PostgreSQL and
// SQLite. Every backend implements the same set of methods and reports
// missing records with ErrNotFound.
//
// Connections to network backends are established with automatic retry so
// the service survives starting before its dependencies are ready.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cvperfect/SessionService/pkg/config"
	"github.com/cvperfect/SessionService/pkg/utils"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// PostgresDB stores sessions and email index entries in PostgreSQL.
//
// Features:
//   - Automatic connection retry with exponential backoff
//   - Connection pooling (configurable max connections)
//   - Idempotent schema migration on startup
//   - Upserts that replace the whole row (last write wins)
type PostgresDB struct {
	sqlStore
}

// NewPostgresDB creates a new PostgreSQL connection with automatic retry
// and runs the schema migration.
//
// Connection pool settings:
//   - MaxOpenConns: From configuration (default: 25)
//   - MaxIdleConns: Half of MaxOpenConns
//   - ConnMaxLifetime: 1 hour
//
// Example:
//
//	db, err := database.NewPostgresDB(&cfg.Database)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("Database connection failed")
//	}
//	defer db.Close()
func NewPostgresDB(cfg *config.DatabaseConfig) (*PostgresDB, error) {
	var db *sql.DB
	var connErr error

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	retryConfig := utils.DatabaseRetryConfig()
	retryConfig.MaxAttempts = 5
	retryConfig.InitialDelay = 100 * time.Millisecond
	retryConfig.MaxDelay = 3 * time.Second

	err := utils.Retry(ctx, retryConfig, func() error {
		var err error
		db, err = sql.Open("postgres", cfg.DSN())
		if err != nil {
			connErr = err
			log.Warn().Err(err).Msg("Failed to open database connection, retrying...")
			return err
		}

		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns / 2)
		db.SetConnMaxLifetime(time.Hour)

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()

		if err := db.PingContext(pingCtx); err != nil {
			connErr = err
			log.Warn().Err(err).Msg("Failed to ping database, retrying...")
			db.Close()
			return err
		}

		return nil
	})

	if err != nil {
		if connErr != nil {
			return nil, fmt.Errorf("failed to connect to database after retries: %w", connErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("Successfully connected to PostgreSQL")

	p := &PostgresDB{sqlStore{db: db, dialect: dialectPostgres}}
	if err := p.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return p, nil
}
