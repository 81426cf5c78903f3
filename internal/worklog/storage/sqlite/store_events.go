package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openclock/worklog/internal/worklog/domain/event"
	"github.com/openclock/worklog/internal/worklog/storage"
)

// EventStore methods (append-only journal)

// AppendEvents atomically appends a batch of events for one aggregate.
//
// The caller supplies the aggregate version its decisions were based on; when
// another writer got there first the append fails with
// storage.ErrVersionConflict and nothing is written. On success every event
// receives a gapless sequence number continuing from expectedVersion and the
// new version is returned.
func (s *Store) AppendEvents(ctx context.Context, aggregateID, aggregateType string, events []event.Event, expectedVersion uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return 0, fmt.Errorf("aggregate id is required")
	}
	if strings.TrimSpace(aggregateType) == "" {
		return 0, fmt.Errorf("aggregate type is required")
	}
	if len(events) == 0 {
		return 0, fmt.Errorf("at least one event is required")
	}
	for i, evt := range events {
		if !evt.Type.IsValid() {
			return 0, fmt.Errorf("event %d: type is required", i)
		}
		if evt.ActorType == "" {
			return 0, fmt.Errorf("event %d: actor type is required", i)
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", busyAsConflict(err))
	}
	defer tx.Rollback()

	// The version row is claimed first so concurrent appenders serialize on
	// it and the compare-and-set below decides the race. A busy/locked
	// failure anywhere in this transaction means another writer held the
	// database past the busy timeout, which is the same race the
	// compare-and-set exists to detect, so it surfaces as a version conflict.
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO aggregate_versions (aggregate_id, aggregate_type, version)
		 VALUES (?, ?, 0)
		 ON CONFLICT(aggregate_id) DO NOTHING`,
		aggregateID,
		aggregateType,
	); err != nil {
		return 0, fmt.Errorf("init aggregate version: %w", busyAsConflict(err))
	}

	var current int64
	if err := tx.QueryRowContext(
		ctx,
		`SELECT version FROM aggregate_versions WHERE aggregate_id = ?`,
		aggregateID,
	).Scan(&current); err != nil {
		return 0, fmt.Errorf("get aggregate version: %w", busyAsConflict(err))
	}
	if uint64(current) != expectedVersion {
		return 0, fmt.Errorf("append events for %s: expected version %d, current %d: %w",
			aggregateID, expectedVersion, current, storage.ErrVersionConflict)
	}

	newVersion := expectedVersion + uint64(len(events))
	result, err := tx.ExecContext(
		ctx,
		`UPDATE aggregate_versions SET version = ? WHERE aggregate_id = ? AND version = ?`,
		int64(newVersion),
		aggregateID,
		int64(expectedVersion),
	)
	if err != nil {
		return 0, fmt.Errorf("advance aggregate version: %w", busyAsConflict(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("advance aggregate version rows affected: %w", err)
	}
	if affected != 1 {
		return 0, fmt.Errorf("append events for %s: version moved during append: %w",
			aggregateID, storage.ErrVersionConflict)
	}

	seq := expectedVersion
	for i := range events {
		seq++
		evt := events[i]
		evt.AggregateID = aggregateID
		evt.AggregateType = aggregateType
		evt.Seq = seq
		if evt.Timestamp.IsZero() {
			evt.Timestamp = time.Now().UTC()
		}
		evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)

		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO events (
			    aggregate_id, seq, aggregate_type, event_type, actor_type, actor_id, timestamp, payload_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			evt.AggregateID,
			int64(evt.Seq),
			evt.AggregateType,
			string(evt.Type),
			string(evt.ActorType),
			evt.ActorID,
			toMillis(evt.Timestamp),
			string(evt.PayloadJSON),
		); err != nil {
			return 0, fmt.Errorf("append event %s/%d: %w", evt.AggregateID, evt.Seq, busyAsConflict(err))
		}

		if err := s.enqueueOutbox(ctx, tx, evt); err != nil {
			return 0, busyAsConflict(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append tx: %w", busyAsConflict(err))
	}

	return newVersion, nil
}

// ListEvents returns events for an aggregate ordered by sequence ascending,
// starting after afterSeq. A non-positive limit returns all remaining events.
func (s *Store) ListEvents(ctx context.Context, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return nil, fmt.Errorf("aggregate id is required")
	}

	query := `SELECT aggregate_id, seq, aggregate_type, event_type, actor_type, actor_id, timestamp, payload_json
	          FROM events
	          WHERE aggregate_id = ? AND seq > ?
	          ORDER BY seq ASC`
	args := []any{aggregateID, int64(afterSeq)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// GetEventBySeq retrieves a single event by aggregate and sequence.
func (s *Store) GetEventBySeq(ctx context.Context, aggregateID string, seq uint64) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return event.Event{}, fmt.Errorf("aggregate id is required")
	}
	if seq == 0 {
		return event.Event{}, fmt.Errorf("event sequence must be greater than zero")
	}

	row := s.q().QueryRowContext(
		ctx,
		`SELECT aggregate_id, seq, aggregate_type, event_type, actor_type, actor_id, timestamp, payload_json
		 FROM events
		 WHERE aggregate_id = ? AND seq = ?`,
		aggregateID,
		int64(seq),
	)
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, storage.ErrNotFound
		}
		return event.Event{}, err
	}
	return evt, nil
}

// GetVersion returns the aggregate's current version, zero for aggregates
// that have never been appended to.
func (s *Store) GetVersion(ctx context.Context, aggregateID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return 0, fmt.Errorf("aggregate id is required")
	}

	var version int64
	err := s.q().QueryRowContext(
		ctx,
		`SELECT version FROM aggregate_versions WHERE aggregate_id = ?`,
		aggregateID,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get aggregate version: %w", err)
	}
	return uint64(version), nil
}

// ListAggregateIDs returns every aggregate id known to the journal ordered
// lexicographically. Used by projection rebuilds.
func (s *Store) ListAggregateIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.q().QueryContext(
		ctx,
		`SELECT aggregate_id FROM aggregate_versions ORDER BY aggregate_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list aggregate ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan aggregate id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate ids: %w", err)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (event.Event, error) {
	var (
		evt       event.Event
		seq       int64
		eventType string
		actorType string
		timestamp int64
		payload   string
	)
	if err := row.Scan(
		&evt.AggregateID,
		&seq,
		&evt.AggregateType,
		&eventType,
		&actorType,
		&evt.ActorID,
		&timestamp,
		&payload,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, err
		}
		return event.Event{}, fmt.Errorf("scan event: %w", err)
	}
	evt.Seq = uint64(seq)
	evt.Type = event.Type(eventType)
	evt.ActorType = event.ActorType(actorType)
	evt.Timestamp = fromMillis(timestamp)
	if payload != "" {
		evt.PayloadJSON = []byte(payload)
	}
	return evt, nil
}
