package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openclock/worklog/internal/worklog/storage"
)

// SnapshotStore methods

// SaveSnapshot stores a snapshot. Saving the same aggregate/version pair
// again overwrites the previous row, which keeps retried post-commit
// snapshotting idempotent.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot storage.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(snapshot.AggregateID) == "" {
		return fmt.Errorf("aggregate id is required")
	}
	if snapshot.Version == 0 {
		return fmt.Errorf("snapshot version must be greater than zero")
	}
	if len(snapshot.StateJSON) == 0 {
		return fmt.Errorf("snapshot state is required")
	}
	createdAt := snapshot.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := s.q().ExecContext(
		ctx,
		`INSERT INTO snapshots (aggregate_id, version, state_json, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(aggregate_id, version) DO UPDATE SET
		     state_json = excluded.state_json,
		     created_at = excluded.created_at`,
		snapshot.AggregateID,
		int64(snapshot.Version),
		string(snapshot.StateJSON),
		toMillis(createdAt),
	); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// GetLatestSnapshot retrieves the most recent snapshot for an aggregate.
func (s *Store) GetLatestSnapshot(ctx context.Context, aggregateID string) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Snapshot{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return storage.Snapshot{}, fmt.Errorf("aggregate id is required")
	}

	var (
		snapshot  storage.Snapshot
		version   int64
		stateJSON string
		createdAt int64
	)
	err := s.q().QueryRowContext(
		ctx,
		`SELECT aggregate_id, version, state_json, created_at
		 FROM snapshots
		 WHERE aggregate_id = ?
		 ORDER BY version DESC
		 LIMIT 1`,
		aggregateID,
	).Scan(&snapshot.AggregateID, &version, &stateJSON, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Snapshot{}, storage.ErrNotFound
		}
		return storage.Snapshot{}, fmt.Errorf("get latest snapshot: %w", err)
	}

	snapshot.Version = uint64(version)
	snapshot.StateJSON = []byte(stateJSON)
	snapshot.CreatedAt = fromMillis(createdAt)
	return snapshot, nil
}

// PruneSnapshots deletes all but the newest keep snapshots for an aggregate.
func (s *Store) PruneSnapshots(ctx context.Context, aggregateID string, keep int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return fmt.Errorf("aggregate id is required")
	}
	if keep < 0 {
		return fmt.Errorf("keep must not be negative")
	}

	if _, err := s.q().ExecContext(
		ctx,
		`DELETE FROM snapshots
		 WHERE aggregate_id = ?
		   AND version NOT IN (
		       SELECT version FROM snapshots
		       WHERE aggregate_id = ?
		       ORDER BY version DESC
		       LIMIT ?
		   )`,
		aggregateID,
		aggregateID,
		keep,
	); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}

// CompactSnapshots prunes every aggregate down to its newest keep snapshots
// and returns the number of aggregates visited.
func (s *Store) CompactSnapshots(ctx context.Context, keep int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if keep < 1 {
		return 0, fmt.Errorf("keep must be at least 1, got %d", keep)
	}

	aggregateIDs, err := s.ListAggregateIDs(ctx)
	if err != nil {
		return 0, err
	}
	for _, aggregateID := range aggregateIDs {
		if err := s.PruneSnapshots(ctx, aggregateID, keep); err != nil {
			return 0, err
		}
	}
	return len(aggregateIDs), nil
}

// DeleteSnapshots removes every snapshot for an aggregate. Snapshots are a
// cache over the journal, so this is always safe.
func (s *Store) DeleteSnapshots(ctx context.Context, aggregateID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return fmt.Errorf("aggregate id is required")
	}

	if _, err := s.q().ExecContext(
		ctx,
		`DELETE FROM snapshots WHERE aggregate_id = ?`,
		aggregateID,
	); err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}
	return nil
}
