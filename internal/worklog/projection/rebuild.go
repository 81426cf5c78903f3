package projection

import (
	"context"
	"fmt"

	"github.com/openclock/worklog/internal/worklog/domain/aggregate"
	"github.com/openclock/worklog/internal/worklog/storage"
)

const rebuildPageSize = 200

// Rebuild drops every read model and reprojects the full journal. The
// journal is the source of truth, so a rebuild converges on the same rows a
// live apply stream would have produced.
//
// Returns the number of events reprojected.
func (a *Applier) Rebuild(ctx context.Context) (int, error) {
	if a == nil || a.Events == nil {
		return 0, fmt.Errorf("event source is not configured")
	}
	if a.Projections == nil {
		return 0, fmt.Errorf("projection store is not configured")
	}

	if err := a.Projections.InTx(ctx, func(tx storage.ProjectionStore) error {
		return tx.ResetProjections(ctx)
	}); err != nil {
		return 0, fmt.Errorf("reset projections: %w", err)
	}

	aggregateIDs, err := a.Events.ListAggregateIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list aggregates: %w", err)
	}

	total := 0
	for _, aggregateID := range aggregateIDs {
		applied, err := a.rebuildAggregate(ctx, aggregateID)
		if err != nil {
			return total, fmt.Errorf("rebuild %s: %w", aggregateID, err)
		}
		total += applied
	}
	return total, nil
}

// rebuildAggregate reprojects one aggregate's history in a single
// transaction, folding state forward so each event is applied against the
// same pre/post states the live path sees.
func (a *Applier) rebuildAggregate(ctx context.Context, aggregateID string) (int, error) {
	memberID, month, err := aggregate.ParseID(aggregateID)
	if err != nil {
		return 0, err
	}

	applied := 0
	state := aggregate.NewState(memberID, month)
	lastSeq := uint64(0)

	err = a.Projections.InTx(ctx, func(tx storage.ProjectionStore) error {
		for {
			events, err := a.Events.ListEvents(ctx, aggregateID, lastSeq, rebuildPageSize)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				break
			}
			for _, evt := range events {
				if evt.Seq != lastSeq+1 {
					return fmt.Errorf("event sequence gap: expected %d got %d", lastSeq+1, evt.Seq)
				}
				next, err := a.folder.Fold(state, evt)
				if err != nil {
					return err
				}
				if err := a.applyEvent(ctx, tx, evt, state, next); err != nil {
					return err
				}
				state = next
				lastSeq = evt.Seq
				applied++
			}
		}
		if lastSeq == 0 {
			return nil
		}
		return tx.SaveProjectionWatermark(ctx, storage.ProjectionWatermark{
			AggregateID: aggregateID,
			AppliedSeq:  lastSeq,
		})
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}
