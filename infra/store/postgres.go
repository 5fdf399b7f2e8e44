package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/xuwkk/power-system-operation/core/calibrate"
)

const schema = `
CREATE TABLE IF NOT EXISTS calibration_runs (
	run_id       TEXT PRIMARY KEY,
	case_name    TEXT NOT NULL,
	formulation  TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	horizon      INTEGER NOT NULL,
	stride       INTEGER NOT NULL,
	windows      INTEGER NOT NULL,
	scale_factor DOUBLE PRECISION NOT NULL,
	min_limit    DOUBLE PRECISION NOT NULL,
	observed_pu  DOUBLE PRECISION[] NOT NULL,
	limits_pu    DOUBLE PRECISION[] NOT NULL,
	limits_mw    DOUBLE PRECISION[] NOT NULL
);
CREATE INDEX IF NOT EXISTS calibration_runs_case_created ON calibration_runs (case_name, created_at DESC);
`

// PostgresStore keeps records in the calibration_runs table.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects with dsn and creates the table if needed.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	s, err := NewPostgresStore(context.Background(), db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore uses an existing connection pool and creates the table
// if needed. Close closes db.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Save inserts r, replacing an earlier record with the same run id.
func (s *PostgresStore) Save(ctx context.Context, r *calibrate.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO calibration_runs (
			run_id,
			case_name,
			formulation,
			created_at,
			horizon,
			stride,
			windows,
			scale_factor,
			min_limit,
			observed_pu,
			limits_pu,
			limits_mw
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (run_id) DO UPDATE SET
			case_name = EXCLUDED.case_name,
			formulation = EXCLUDED.formulation,
			created_at = EXCLUDED.created_at,
			horizon = EXCLUDED.horizon,
			stride = EXCLUDED.stride,
			windows = EXCLUDED.windows,
			scale_factor = EXCLUDED.scale_factor,
			min_limit = EXCLUDED.min_limit,
			observed_pu = EXCLUDED.observed_pu,
			limits_pu = EXCLUDED.limits_pu,
			limits_mw = EXCLUDED.limits_mw
	`,
		r.RunID,
		r.Case,
		r.Formulation,
		r.CreatedAt,
		r.Horizon,
		r.Stride,
		r.Windows,
		r.ScaleFactor,
		r.MinLimit,
		pq.Array(r.Observed),
		pq.Array(r.Limits),
		pq.Array(r.LimitsMW),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert run %s: %w", r.RunID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Latest returns the newest record for caseName.
func (s *PostgresStore) Latest(ctx context.Context, caseName string) (*calibrate.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			run_id,
			case_name,
			formulation,
			created_at,
			horizon,
			stride,
			windows,
			scale_factor,
			min_limit,
			observed_pu,
			limits_pu,
			limits_mw
		FROM calibration_runs
		WHERE case_name = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, caseName)
	var r calibrate.Record
	err := row.Scan(
		&r.RunID,
		&r.Case,
		&r.Formulation,
		&r.CreatedAt,
		&r.Horizon,
		&r.Stride,
		&r.Windows,
		&r.ScaleFactor,
		&r.MinLimit,
		(*pq.Float64Array)(&r.Observed),
		(*pq.Float64Array)(&r.Limits),
		(*pq.Float64Array)(&r.LimitsMW),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for case %q", ErrNoRecord, caseName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest run for %s: %w", caseName, err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }
