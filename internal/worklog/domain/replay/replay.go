// Package replay rebuilds aggregate state by folding journal events in order.
package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openclock/worklog/internal/worklog/domain/aggregate"
	"github.com/openclock/worklog/internal/worklog/domain/event"
)

const defaultPageSize = 200

var (
	// ErrEventStoreRequired indicates a missing event store.
	ErrEventStoreRequired = errors.New("event store is required")
	// ErrFolderRequired indicates a missing folder.
	ErrFolderRequired = errors.New("folder is required")
	// ErrAggregateIDRequired indicates a missing aggregate id.
	ErrAggregateIDRequired = errors.New("aggregate id is required")
)

// EventStore lists events for replay.
type EventStore interface {
	ListEvents(ctx context.Context, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error)
}

// Folder folds a single event into aggregate state.
type Folder interface {
	Fold(state aggregate.State, evt event.Event) (aggregate.State, error)
}

// Options configures replay behavior.
type Options struct {
	// AfterSeq skips events at or below this sequence (e.g., a snapshot version).
	AfterSeq uint64
	// UntilSeq stops replay after this sequence when non-zero.
	UntilSeq uint64
	// PageSize bounds each storage read.
	PageSize int
}

// Result captures replay outcomes.
type Result struct {
	State   aggregate.State
	LastSeq uint64
	Applied int
}

// Replay folds events in strictly increasing sequence order onto state.
//
// Replay fails on any sequence gap: the journal guarantees contiguous
// sequences, so a gap means a truncated read rather than valid history.
func Replay(ctx context.Context, store EventStore, folder Folder, aggregateID string, state aggregate.State, options Options) (Result, error) {
	if store == nil {
		return Result{}, ErrEventStoreRequired
	}
	if folder == nil {
		return Result{}, ErrFolderRequired
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return Result{}, ErrAggregateIDRequired
	}

	pageSize := options.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	result := Result{State: state, LastSeq: options.AfterSeq}
	for {
		events, err := store.ListEvents(ctx, aggregateID, result.LastSeq, pageSize)
		if err != nil {
			return result, err
		}
		if len(events) == 0 {
			return result, nil
		}
		for _, evt := range events {
			if options.UntilSeq > 0 && evt.Seq > options.UntilSeq {
				return result, nil
			}
			expectedSeq := result.LastSeq + 1
			if evt.Seq != expectedSeq {
				return result, fmt.Errorf("event sequence gap: expected %d got %d", expectedSeq, evt.Seq)
			}
			nextState, err := folder.Fold(result.State, evt)
			if err != nil {
				return result, err
			}
			result.State = nextState
			result.LastSeq = evt.Seq
			result.Applied++
		}
	}
}
