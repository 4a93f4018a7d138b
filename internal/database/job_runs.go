package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetJobRun returns when the named job last ran.
func (db *DB) GetJobRun(ctx context.Context, name string) (time.Time, bool, error) {
	var lastRun int64
	err := db.QueryRowContext(ctx, `SELECT last_run_at FROM job_runs WHERE name = ?`, name).Scan(&lastRun)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get job run: %w", err)
	}
	return fromUnix(lastRun), true, nil
}

func (db *DB) SetJobRun(ctx context.Context, name string, at time.Time) error {
	query := `INSERT INTO job_runs (name, last_run_at) VALUES (?, ?)
              ON CONFLICT(name) DO UPDATE SET last_run_at = excluded.last_run_at`
	if _, err := db.ExecContext(ctx, query, name, unix(at)); err != nil {
		return fmt.Errorf("failed to record job run: %w", err)
	}
	return nil
}
