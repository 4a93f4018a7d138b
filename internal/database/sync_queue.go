package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sessionbook/internal/models"
)

const syncTaskColumns = `id, task_type, booking_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (db *DB) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	return createSyncTask(ctx, db, task)
}

// CreateSyncTask writes an outbox row in the same transaction as the change it describes.
func (tx *Tx) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	return createSyncTask(ctx, tx.tx, task)
}

func createSyncTask(ctx context.Context, q querier, task *models.SyncTask) error {
	query := `INSERT INTO sync_queue (task_type, booking_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC().Truncate(time.Second)
	if task.Status == "" {
		task.Status = models.SyncStatusPending
	}
	result, err := q.ExecContext(ctx, query,
		task.TaskType,
		task.BookingID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		unix(now),
		nullUnix(task.NextRetryAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create sync task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now
	return nil
}

func (db *DB) GetSyncTask(ctx context.Context, id int64) (*models.SyncTask, error) {
	query := `SELECT ` + syncTaskColumns + ` FROM sync_queue WHERE id = ?`
	return scanSyncTask(db.QueryRowContext(ctx, query, id))
}

func (db *DB) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	query := `SELECT ` + syncTaskColumns + `
              FROM sync_queue
              WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC, id ASC LIMIT ?`
	return db.querySyncTasks(ctx, query, models.SyncStatusPending, models.SyncStatusRetry, unix(time.Now()), limit)
}

func (db *DB) GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error) {
	query := `SELECT ` + syncTaskColumns + ` FROM sync_queue WHERE status = ? ORDER BY created_at DESC, id DESC`
	return db.querySyncTasks(ctx, query, models.SyncStatusFailed)
}

// ClaimSyncTask marks a runnable task as processing. It reports false when
// another consumer already claimed it or it is not due yet.
func (db *DB) ClaimSyncTask(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE sync_queue SET status = ?
              WHERE id = ? AND status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)`
	res, err := db.ExecContext(ctx, query,
		models.SyncStatusProcessing, id, models.SyncStatusPending, models.SyncStatusRetry, unix(time.Now()))
	if err != nil {
		return false, fmt.Errorf("failed to claim sync task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// ReleaseStaleSyncTasks returns tasks left in processing (for example by a crash) to pending.
func (db *DB) ReleaseStaleSyncTasks(ctx context.Context) (int64, error) {
	query := `UPDATE sync_queue SET status = ? WHERE status = ?`
	res, err := db.ExecContext(ctx, query, models.SyncStatusPending, models.SyncStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale sync tasks: %w", err)
	}
	return res.RowsAffected()
}

func (db *DB) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now()

	var lastError interface{}
	if errMsg != "" {
		lastError = errMsg
	}

	switch status {
	case models.SyncStatusRetry:
		query = `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, lastError, nullUnix(nextRetryAt), id}
	case models.SyncStatusCompleted, models.SyncStatusFailed:
		query = `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []interface{}{status, lastError, nullUnix(nextRetryAt), unix(now), id}
	default:
		query = `UPDATE sync_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, lastError, nullUnix(nextRetryAt), id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update sync task status: %w", err)
	}
	return nil
}

func (db *DB) querySyncTasks(ctx context.Context, query string, args ...interface{}) ([]models.SyncTask, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		t, err := scanSyncTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync tasks: %w", err)
	}
	return tasks, nil
}

func scanSyncTask(row rowScanner) (*models.SyncTask, error) {
	var (
		t           models.SyncTask
		lastError   sql.NullString
		createdAt   int64
		processedAt sql.NullInt64
		nextRetryAt sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.TaskType, &t.BookingID, &t.Payload, &t.Status, &t.RetryCount,
		&lastError, &createdAt, &processedAt, &nextRetryAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync task: %w", err)
	}
	if lastError.Valid {
		msg := lastError.String
		t.LastError = &msg
	}
	t.CreatedAt = fromUnix(createdAt)
	t.ProcessedAt = fromNullUnix(processedAt)
	t.NextRetryAt = fromNullUnix(nextRetryAt)
	return &t, nil
}
