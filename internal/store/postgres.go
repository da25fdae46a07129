package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayush/truth-engine/internal/models"
)

// PostgresStore keeps the pipeline run ledger in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the pipeline_runs table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pipeline_runs (
			id          UUID PRIMARY KEY,
			niche       TEXT        NOT NULL,
			cache_key   TEXT        NOT NULL,
			cache_hit   BOOLEAN     NOT NULL DEFAULT FALSE,
			status      VARCHAR(16) NOT NULL,
			error       TEXT        NOT NULL DEFAULT '',
			duration_ms BIGINT      NOT NULL,
			created_at  TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_pipeline_runs_created ON pipeline_runs (created_at DESC);
	`)
	return err
}

func (s *PostgresStore) RecordRun(ctx context.Context, run *models.Run) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO pipeline_runs (id, niche, cache_key, cache_hit, status, error, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		run.ID, run.Niche, run.CacheKey, run.CacheHit, run.Status, run.Error, run.DurationMS,
	).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, niche, cache_key, cache_hit, status, error, duration_ms, created_at
		 FROM pipeline_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var r models.Run
		if err := rows.Scan(&r.ID, &r.Niche, &r.CacheKey, &r.CacheHit, &r.Status, &r.Error, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
