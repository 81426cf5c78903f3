package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/openclock/worklog/internal/worklog/domain/event"
	"github.com/openclock/worklog/internal/worklog/storage"
)

const (
	outboxDeadLetterThreshold = 8
	outboxProcessingLease     = 2 * time.Minute
)

func (s *Store) enqueueOutbox(ctx context.Context, tx *sql.Tx, evt event.Event) error {
	if !s.outboxEnabled {
		return nil
	}
	enqueuedAt := time.Now().UTC()
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO projection_apply_outbox (
		    aggregate_id, seq, event_type, status, attempt_count, next_attempt_at, last_error, updated_at
		) VALUES (?, ?, ?, 'pending', 0, ?, '', ?)
		ON CONFLICT(aggregate_id, seq) DO NOTHING`,
		evt.AggregateID,
		int64(evt.Seq),
		string(evt.Type),
		toMillis(enqueuedAt),
		toMillis(enqueuedAt),
	); err != nil {
		return fmt.Errorf("enqueue projection apply outbox: %w", err)
	}
	return nil
}

// LeasePendingOutbox claims up to limit due rows for processing. Claimed
// rows move to processing; rows stuck in processing past the lease are
// reclaimed so a crashed worker cannot wedge the queue.
func (s *Store) LeasePendingOutbox(ctx context.Context, limit int) ([]storage.OutboxEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	staleBefore := now.Add(-outboxProcessingLease)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin outbox claim tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(
		ctx,
		`SELECT aggregate_id, seq, event_type, attempt_count, next_attempt_at, last_error, updated_at
		 FROM projection_apply_outbox
		 WHERE (
		     status IN ('pending', 'failed') AND next_attempt_at <= ?
		 ) OR (
		     status = 'processing' AND updated_at <= ?
		 )
		 ORDER BY next_attempt_at, seq
		 LIMIT ?`,
		toMillis(now),
		toMillis(staleBefore),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due outbox rows: %w", err)
	}
	defer rows.Close()

	candidates := make([]storage.OutboxEntry, 0, limit)
	for rows.Next() {
		var (
			entry       storage.OutboxEntry
			seq         int64
			eventType   string
			nextAttempt int64
			updatedAt   int64
		)
		if err := rows.Scan(&entry.AggregateID, &seq, &eventType, &entry.AttemptCount, &nextAttempt, &entry.LastError, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan due outbox row: %w", err)
		}
		entry.Seq = uint64(seq)
		entry.EventType = event.Type(eventType)
		entry.NextAttemptAt = fromMillis(nextAttempt)
		entry.UpdatedAt = fromMillis(updatedAt)
		entry.Status = "processing"
		candidates = append(candidates, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due outbox rows: %w", err)
	}

	claimed := make([]storage.OutboxEntry, 0, len(candidates))
	for _, candidate := range candidates {
		result, err := tx.ExecContext(
			ctx,
			`UPDATE projection_apply_outbox
			 SET status = 'processing', updated_at = ?
			 WHERE aggregate_id = ? AND seq = ?
			   AND (
			       (status IN ('pending', 'failed') AND next_attempt_at <= ?)
			       OR (status = 'processing' AND updated_at <= ?)
			   )`,
			toMillis(now),
			candidate.AggregateID,
			int64(candidate.Seq),
			toMillis(now),
			toMillis(staleBefore),
		)
		if err != nil {
			return nil, fmt.Errorf("claim outbox row %s/%d: %w", candidate.AggregateID, candidate.Seq, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim outbox row rows affected %s/%d: %w", candidate.AggregateID, candidate.Seq, err)
		}
		if affected == 1 {
			claimed = append(claimed, candidate)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit outbox claim tx: %w", err)
	}
	return claimed, nil
}

// MarkOutboxApplied removes a successfully applied outbox row.
func (s *Store) MarkOutboxApplied(ctx context.Context, aggregateID string, seq uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return fmt.Errorf("aggregate id is required")
	}
	if seq == 0 {
		return fmt.Errorf("event sequence must be greater than zero")
	}

	if _, err := s.q().ExecContext(
		ctx,
		`DELETE FROM projection_apply_outbox WHERE aggregate_id = ? AND seq = ?`,
		aggregateID,
		int64(seq),
	); err != nil {
		return fmt.Errorf("complete outbox row %s/%d: %w", aggregateID, seq, err)
	}
	return nil
}

// MarkOutboxFailed records a failed apply attempt and schedules a retry with
// exponential backoff. Rows past the dead-letter threshold stop retrying
// until an operator requeues them.
func (s *Store) MarkOutboxFailed(ctx context.Context, aggregateID string, seq uint64, cause string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return fmt.Errorf("aggregate id is required")
	}
	if seq == 0 {
		return fmt.Errorf("event sequence must be greater than zero")
	}

	now := time.Now().UTC()
	var attemptCount int
	err := s.q().QueryRowContext(
		ctx,
		`SELECT attempt_count FROM projection_apply_outbox WHERE aggregate_id = ? AND seq = ?`,
		aggregateID,
		int64(seq),
	).Scan(&attemptCount)
	if err != nil {
		return fmt.Errorf("load outbox attempt count %s/%d: %w", aggregateID, seq, err)
	}

	attempt := attemptCount + 1
	status := "failed"
	if attempt >= outboxDeadLetterThreshold {
		status = "dead"
	}
	nextAttempt := now.Add(outboxRetryBackoff(attempt))

	if _, err := s.q().ExecContext(
		ctx,
		`UPDATE projection_apply_outbox
		 SET status = ?,
		     attempt_count = ?,
		     next_attempt_at = ?,
		     last_error = ?,
		     updated_at = ?
		 WHERE aggregate_id = ? AND seq = ?`,
		status,
		attempt,
		toMillis(nextAttempt),
		cause,
		toMillis(now),
		aggregateID,
		int64(seq),
	); err != nil {
		return fmt.Errorf("mark outbox retry for row %s/%d: %w", aggregateID, seq, err)
	}
	return nil
}

// RequeueDeadOutbox transitions every dead-lettered outbox row back to
// pending and returns how many rows were moved.
func (s *Store) RequeueDeadOutbox(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	now := time.Now().UTC()
	result, err := s.q().ExecContext(
		ctx,
		`UPDATE projection_apply_outbox
		 SET status = 'pending',
		     attempt_count = 0,
		     next_attempt_at = ?,
		     last_error = '',
		     updated_at = ?
		 WHERE status = 'dead'`,
		toMillis(now),
		toMillis(now),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue dead outbox rows: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue dead outbox rows affected: %w", err)
	}
	return int(affected), nil
}

// OutboxSummary reports queue depth by status.
type OutboxSummary struct {
	PendingCount    int
	ProcessingCount int
	FailedCount     int
	DeadCount       int
}

// GetOutboxSummary returns queue depth grouped by status for monitoring.
func (s *Store) GetOutboxSummary(ctx context.Context) (OutboxSummary, error) {
	if err := ctx.Err(); err != nil {
		return OutboxSummary{}, err
	}
	if s == nil || s.sqlDB == nil {
		return OutboxSummary{}, fmt.Errorf("storage is not configured")
	}

	rows, err := s.q().QueryContext(
		ctx,
		`SELECT status, COUNT(*)
		 FROM projection_apply_outbox
		 GROUP BY status`,
	)
	if err != nil {
		return OutboxSummary{}, fmt.Errorf("query outbox summary counts: %w", err)
	}
	defer rows.Close()

	summary := OutboxSummary{}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return OutboxSummary{}, fmt.Errorf("scan outbox summary count: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(status)) {
		case "pending":
			summary.PendingCount = count
		case "processing":
			summary.ProcessingCount = count
		case "failed":
			summary.FailedCount = count
		case "dead":
			summary.DeadCount = count
		}
	}
	if err := rows.Err(); err != nil {
		return OutboxSummary{}, fmt.Errorf("iterate outbox summary counts: %w", err)
	}
	return summary, nil
}

func outboxRetryBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	backoff := time.Second << (attempt - 1)
	if backoff > 5*time.Minute {
		return 5 * time.Minute
	}
	return backoff
}
