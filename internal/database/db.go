package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"solana-pulse-backend/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
	log  *logging.Logger
}

// NewDB creates a new database connection pool from a connection URL
func NewDB(databaseURL string, poolSize int) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	if poolSize <= 0 {
		poolSize = 25
	}
	poolConfig.MaxConns = int32(poolSize)
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logging.WithComponent("database")
	log.Info("connected to PostgreSQL", "max_conns", poolSize)

	return &DB{Pool: pool, log: log}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.log.Info("database connection closed")
	}
}

// Ping checks database connectivity
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.log.Info("running database migrations")

	migrations := []string{
		// Curated dashboard tokens. Written only by the dashboard sync loop.
		`CREATE TABLE IF NOT EXISTS token (
			id SERIAL PRIMARY KEY,
			address VARCHAR(64) NOT NULL UNIQUE,
			symbol VARCHAR(32) NOT NULL,
			name VARCHAR(128) NOT NULL DEFAULT '',
			decimals INT NOT NULL DEFAULT 9,
			logo_uri TEXT NOT NULL DEFAULT '',
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			price_change_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
			volume_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
			market_cap DOUBLE PRECISION NOT NULL DEFAULT 0,
			liquidity DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_token_symbol ON token(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_token_market_cap ON token(market_cap DESC)`,

		// Pulse feed tokens, one row per mint across all categories
		`CREATE TABLE IF NOT EXISTS pulse_token (
			id SERIAL PRIMARY KEY,
			address VARCHAR(64) NOT NULL UNIQUE,
			symbol VARCHAR(32) NOT NULL DEFAULT '',
			name VARCHAR(128) NOT NULL DEFAULT '',
			decimals INT NOT NULL DEFAULT 6,
			logo_uri TEXT NOT NULL DEFAULT '',
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			price_change_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
			volume_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
			market_cap DOUBLE PRECISION NOT NULL DEFAULT 0,
			liquidity DOUBLE PRECISION NOT NULL DEFAULT 0,
			category VARCHAR(16) NOT NULL,
			bonding_progress DOUBLE PRECISION NOT NULL DEFAULT 0,
			graduated_at TIMESTAMPTZ,
			token_created_at TIMESTAMPTZ,
			description TEXT NOT NULL DEFAULT '',
			twitter TEXT NOT NULL DEFAULT '',
			telegram TEXT NOT NULL DEFAULT '',
			website TEXT NOT NULL DEFAULT '',
			reply_count INT NOT NULL DEFAULT 0,
			tx_count INT NOT NULL DEFAULT 0,
			source VARCHAR(32) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pulse_token_category_created ON pulse_token(category, token_created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_pulse_token_category_graduated ON pulse_token(category, graduated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_pulse_token_updated ON pulse_token(updated_at)`,

		// Persisted swaps, written by the live ingester and the swap sync
		// engine under the same unique constraint
		`CREATE TABLE IF NOT EXISTS token_swap (
			id BIGSERIAL PRIMARY KEY,
			token_address VARCHAR(64) NOT NULL,
			tx_hash VARCHAR(128) NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			type VARCHAR(4) NOT NULL,
			wallet_address VARCHAR(64) NOT NULL DEFAULT '',
			token_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			sol_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			price_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_value_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (token_address, tx_hash)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_token_swap_addr_time ON token_swap(token_address, timestamp DESC)`,

		// Per-token swap sync bookkeeping, single writer is the sync engine
		`CREATE TABLE IF NOT EXISTS token_sync_status (
			token_address VARCHAR(64) PRIMARY KEY,
			swaps_synced BOOLEAN NOT NULL DEFAULT FALSE,
			oldest_swap_time TIMESTAMPTZ,
			newest_swap_time TIMESTAMPTZ,
			total_swaps BIGINT NOT NULL DEFAULT 0,
			last_swap_sync TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// OHLCV cache for dashboard tokens; historical rows are immutable
		`CREATE TABLE IF NOT EXISTS candle_cache (
			id BIGSERIAL PRIMARY KEY,
			token_address VARCHAR(64) NOT NULL,
			timeframe VARCHAR(4) NOT NULL,
			timestamp BIGINT NOT NULL,
			open DOUBLE PRECISION NOT NULL,
			high DOUBLE PRECISION NOT NULL,
			low DOUBLE PRECISION NOT NULL,
			close DOUBLE PRECISION NOT NULL,
			volume DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (token_address, timeframe, timestamp)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candle_cache_lookup ON candle_cache(token_address, timeframe, timestamp)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.log.Info("database migrations completed", "count", len(migrations))
	return nil
}
