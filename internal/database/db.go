// Package database persists engine snapshots and the sweep ledger to
// PostgreSQL. The engine core never touches this package directly; it sees
// only the persister interface.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mesh-trading-engine/config"
	"mesh-trading-engine/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger *logging.Logger
}

// NewDB creates a new database connection
func NewDB(cfg config.DatabaseConfig, logger *logging.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
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
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.WithComponent("database")
	log.Info("connected to PostgreSQL", "database", cfg.Database)

	return &DB{Pool: pool, logger: log}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info("database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info("running database migrations")

	migrations := []string{
		// Versioned snapshot documents. The document schema is owned by
		// the engine, not these tables.
		`CREATE TABLE IF NOT EXISTS engine_snapshots (
			id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL,
			cycle BIGINT NOT NULL,
			taken_at TIMESTAMP NOT NULL,
			document JSONB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_engine_snapshots_cycle ON engine_snapshots(cycle)`,
		`CREATE INDEX IF NOT EXISTS idx_engine_snapshots_taken_at ON engine_snapshots(taken_at)`,

		// Sweep ledger for the accounting layer.
		`CREATE TABLE IF NOT EXISTS sweep_results (
			id UUID PRIMARY KEY,
			instance_id INTEGER NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(8) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			close_price DECIMAL(20, 8) NOT NULL,
			pnl_value DECIMAL(20, 8) NOT NULL,
			pnl_pct DECIMAL(10, 6) NOT NULL,
			swept_at TIMESTAMP NOT NULL,
			elapsed_us BIGINT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sweep_results_symbol ON sweep_results(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_sweep_results_swept_at ON sweep_results(swept_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sweep_results_instance ON sweep_results(instance_id)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	db.logger.Info("database migrations completed")
	return nil
}
