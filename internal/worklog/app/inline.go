package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/openclock/worklog/internal/worklog/domain/aggregate"
	"github.com/openclock/worklog/internal/worklog/domain/command"
	"github.com/openclock/worklog/internal/worklog/engine"
	"github.com/openclock/worklog/internal/worklog/projection"
)

// inlineApplyRunner applies projections on the request path right after a
// successful append. The command itself has already committed, so a failed
// apply is logged rather than surfaced; the projections catch up on the next
// rebuild.
type inlineApplyRunner struct {
	engine  *engine.Engine
	applier *projection.Applier
	logger  zerolog.Logger
}

func (r *inlineApplyRunner) Execute(ctx context.Context, cmd command.Command) (engine.Result, error) {
	result, err := r.engine.Execute(ctx, cmd)
	if err != nil {
		return result, err
	}
	for _, evt := range result.Decision.Events {
		if applyErr := r.applier.Apply(ctx, evt); applyErr != nil {
			r.logger.Warn().
				Err(applyErr).
				Str("aggregate_id", evt.AggregateID).
				Uint64("seq", evt.Seq).
				Msg("inline projection apply failed")
			break
		}
	}
	return result, nil
}

func (r *inlineApplyRunner) Reconstruct(ctx context.Context, memberID, month string) (aggregate.State, uint64, error) {
	return r.engine.Reconstruct(ctx, memberID, month)
}
