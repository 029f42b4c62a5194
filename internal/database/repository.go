package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mesh-trading-engine/internal/engine"
	"mesh-trading-engine/internal/sweeper"
)

// Repository implements the engine's persister against PostgreSQL.
type Repository struct {
	db *DB
}

// NewRepository creates a repository over the given connection pool.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck verifies database connectivity
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// SaveSnapshot stores one versioned state document.
func (r *Repository) SaveSnapshot(ctx context.Context, snap *engine.StateSnapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO engine_snapshots (version, cycle, taken_at, document)
		VALUES ($1, $2, $3, $4)`,
		snap.Version, snap.Cycle, snap.TakenAt, doc,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent state document, or nil when none
// has been stored.
func (r *Repository) LatestSnapshot(ctx context.Context) (*engine.StateSnapshot, error) {
	var doc []byte
	err := r.db.Pool.QueryRow(ctx, `
		SELECT document FROM engine_snapshots
		ORDER BY cycle DESC LIMIT 1`,
	).Scan(&doc)
	if err != nil {
		return nil, nil // no rows is not an error for restore
	}

	var snap engine.StateSnapshot
	if err := json.Unmarshal(doc, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// RecordSweeps appends executed sweeps to the ledger.
func (r *Repository) RecordSweeps(ctx context.Context, results []*sweeper.Result) error {
	for _, res := range results {
		_, err := r.db.Pool.Exec(ctx, `
			INSERT INTO sweep_results
				(id, instance_id, symbol, side, entry_price, close_price, pnl_value, pnl_pct, swept_at, elapsed_us)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			res.ID, res.InstanceID, res.Symbol, res.Side,
			res.EntryPrice, res.ClosePrice, res.PnLValue, res.PnLPct,
			res.SweptAt, res.Elapsed.Microseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to record sweep %s: %w", res.ID, err)
		}
	}
	return nil
}

// SweepHistory returns recent sweeps, newest first.
func (r *Repository) SweepHistory(ctx context.Context, limit int) ([]*sweeper.Result, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, instance_id, symbol, side, entry_price, close_price, pnl_value, pnl_pct, swept_at, elapsed_us
		FROM sweep_results
		ORDER BY swept_at DESC
		LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweep history: %w", err)
	}
	defer rows.Close()

	var results []*sweeper.Result
	for rows.Next() {
		var res sweeper.Result
		var elapsedUS int64
		if err := rows.Scan(
			&res.ID, &res.InstanceID, &res.Symbol, &res.Side,
			&res.EntryPrice, &res.ClosePrice, &res.PnLValue, &res.PnLPct,
			&res.SweptAt, &elapsedUS,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sweep row: %w", err)
		}
		res.Elapsed = time.Duration(elapsedUS) * time.Microsecond
		results = append(results, &res)
	}
	return results, rows.Err()
}
