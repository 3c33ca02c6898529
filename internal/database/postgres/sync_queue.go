package postgres

import (
	"context"
	"fmt"
	"time"

	"sportclub/internal/models"
)

const syncTaskColumns = `id, task_type, reservation_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (s *Store) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	now := s.clock.Now().UTC()
	if task.Status == "" {
		task.Status = models.SyncStatusPending
	}
	err := s.pool.QueryRow(ctx, `INSERT INTO sync_queue (task_type, reservation_id, payload, status, retry_count, last_error, created_at, next_retry_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		task.TaskType, task.ReservationID, task.Payload, task.Status, task.RetryCount, task.LastError, now, task.NextRetryAt,
	).Scan(&task.ID)
	if err != nil {
		return mapError("failed to create sync task", err)
	}
	task.CreatedAt = now
	return nil
}

func (s *Store) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	return s.querySyncTasks(ctx, `SELECT `+syncTaskColumns+` FROM sync_queue
        WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= $1)
        ORDER BY created_at LIMIT $2`, s.clock.Now().UTC(), limit)
}

func (s *Store) GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error) {
	return s.querySyncTasks(ctx, `SELECT `+syncTaskColumns+` FROM sync_queue WHERE status = 'failed' ORDER BY created_at DESC`)
}

func (s *Store) querySyncTasks(ctx context.Context, query string, args ...any) ([]models.SyncTask, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("failed to query sync tasks", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		if err := rows.Scan(&t.ID, &t.TaskType, &t.ReservationID, &t.Payload, &t.Status, &t.RetryCount,
			&t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, mapError("failed to query sync tasks", rows.Err())
}

func (s *Store) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var err error
	switch status {
	case models.SyncStatusRetry:
		_, err = s.pool.Exec(ctx, `UPDATE sync_queue SET status = $1, last_error = $2, next_retry_at = $3,
            retry_count = retry_count + 1 WHERE id = $4`, status, errMsg, nextRetryAt, id)
	case models.SyncStatusCompleted, models.SyncStatusFailed:
		_, err = s.pool.Exec(ctx, `UPDATE sync_queue SET status = $1, last_error = $2, next_retry_at = $3,
            processed_at = $4 WHERE id = $5`, status, errMsg, nextRetryAt, s.clock.Now().UTC(), id)
	default:
		_, err = s.pool.Exec(ctx, `UPDATE sync_queue SET status = $1, last_error = $2, next_retry_at = $3 WHERE id = $4`,
			status, errMsg, nextRetryAt, id)
	}
	return mapError("failed to update sync task status", err)
}

func (s *Store) RequeueFailedSyncTasks(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE sync_queue SET status = 'pending', retry_count = 0, next_retry_at = NULL WHERE status = 'failed'`)
	if err != nil {
		return 0, mapError("failed to requeue sync tasks", err)
	}
	return tag.RowsAffected(), nil
}
