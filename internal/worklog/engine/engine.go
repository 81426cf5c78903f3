// Package engine executes timesheet commands against the event journal.
//
// The engine owns the impure edge of the domain: it loads state (snapshot
// plus tail replay), hands the pure decider a command, appends the resulting
// events under optimistic concurrency, and retries on version conflicts.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	platformerrors "github.com/openclock/worklog/internal/platform/errors"
	"github.com/openclock/worklog/internal/worklog/domain/aggregate"
	"github.com/openclock/worklog/internal/worklog/domain/command"
	"github.com/openclock/worklog/internal/worklog/domain/decider"
	"github.com/openclock/worklog/internal/worklog/domain/event"
	"github.com/openclock/worklog/internal/worklog/domain/replay"
	"github.com/openclock/worklog/internal/worklog/domain/timesheet"
	"github.com/openclock/worklog/internal/worklog/storage"
)

const (
	// snapshotInterval is the number of events between snapshots.
	snapshotInterval = 20
	// snapshotKeep bounds snapshots retained per aggregate.
	snapshotKeep = 3
	// maxConflictAttempts bounds optimistic concurrency retries per command.
	maxConflictAttempts = 3
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worklog_commands_total",
		Help: "Commands executed, by type and outcome.",
	}, []string{"type", "outcome"})
	conflictRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worklog_version_conflict_retries_total",
		Help: "Append retries caused by optimistic concurrency conflicts.",
	})
	snapshotSavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worklog_snapshot_saves_total",
		Help: "Aggregate snapshots persisted after command execution.",
	})
	appendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "worklog_event_append_duration_seconds",
		Help:    "Latency of journal appends.",
		Buckets: prometheus.DefBuckets,
	})
)

var tracer = otel.Tracer("worklog/engine")

// Engine coordinates command execution for timesheet aggregates.
type Engine struct {
	Events    storage.EventStore
	Snapshots storage.SnapshotStore
	Directory storage.ReviewerDirectory
	Logger    zerolog.Logger
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	decider decider.Decider
	folder  aggregate.Folder
}

// Result captures execution outcomes.
type Result struct {
	Decision command.Decision
	State    aggregate.State
	Version  uint64
}

// Execute runs one command end to end: resolve the reviewer, load state,
// decide, append, and snapshot. A concurrent writer triggers a reload and
// re-decide up to maxConflictAttempts times before the conflict surfaces to
// the caller.
func (e *Engine) Execute(ctx context.Context, cmd command.Command) (Result, error) {
	if e == nil || e.Events == nil {
		return Result{}, platformerrors.New(platformerrors.CodeInternal, "engine is not configured")
	}

	ctx, span := tracer.Start(ctx, "engine.Execute")
	span.SetAttributes(
		attribute.String("command.type", string(cmd.Type)),
		attribute.String("timesheet.member_id", cmd.MemberID),
		attribute.String("timesheet.month", cmd.Month),
	)
	defer span.End()

	if cmd.ReviewerID == "" && e.Directory != nil && cmd.MemberID != "" {
		reviewerID, err := e.Directory.ReviewerOf(ctx, cmd.MemberID)
		switch {
		case err == nil:
			cmd.ReviewerID = reviewerID
		case errors.Is(err, storage.ErrNotFound):
			// No reviewer on record; deciders reject the commands that need one.
		default:
			return Result{}, platformerrors.Wrap(platformerrors.CodeStorageFailure, "resolve reviewer", err)
		}
	}

	aggregateID := command.AggregateID(cmd.MemberID, cmd.Month)
	now := e.Now
	if now == nil {
		now = time.Now
	}

	var lastErr error
	for attempt := 1; attempt <= maxConflictAttempts; attempt++ {
		state, version, err := e.load(ctx, aggregateID, cmd.MemberID, cmd.Month)
		if err != nil {
			return Result{}, err
		}

		decision := e.decider.Decide(state, cmd, now)
		if len(decision.Rejections) > 0 {
			commandsTotal.WithLabelValues(string(cmd.Type), "rejected").Inc()
			return Result{Decision: decision, State: state, Version: version}, rejectionError(decision.Rejections[0])
		}
		if len(decision.Events) == 0 {
			commandsTotal.WithLabelValues(string(cmd.Type), "noop").Inc()
			return Result{Decision: decision, State: state, Version: version}, nil
		}

		appendStart := time.Now()
		newVersion, err := e.Events.AppendEvents(ctx, aggregateID, event.AggregateTypeTimesheet, decision.Events, version)
		appendLatency.Observe(time.Since(appendStart).Seconds())
		if err != nil {
			if errors.Is(err, storage.ErrVersionConflict) {
				conflictRetriesTotal.Inc()
				lastErr = err
				e.Logger.Debug().
					Str("aggregate_id", aggregateID).
					Str("command", string(cmd.Type)).
					Int("attempt", attempt).
					Msg("version conflict, retrying")
				continue
			}
			commandsTotal.WithLabelValues(string(cmd.Type), "error").Inc()
			return Result{}, platformerrors.Wrap(platformerrors.CodeStorageFailure, "append events", err)
		}

		for i := range decision.Events {
			decision.Events[i].AggregateID = aggregateID
			decision.Events[i].AggregateType = event.AggregateTypeTimesheet
			decision.Events[i].Seq = version + uint64(i) + 1
		}
		for _, evt := range decision.Events {
			state, err = e.folder.Fold(state, evt)
			if err != nil {
				// The events are committed; a fold failure here is a bug,
				// not a user error.
				return Result{}, platformerrors.Wrap(platformerrors.CodeInternal, "fold appended events", err)
			}
		}

		e.maybeSnapshot(ctx, aggregateID, version, newVersion, state)
		commandsTotal.WithLabelValues(string(cmd.Type), "accepted").Inc()
		return Result{Decision: decision, State: state, Version: newVersion}, nil
	}

	commandsTotal.WithLabelValues(string(cmd.Type), "conflict").Inc()
	return Result{}, platformerrors.Wrap(platformerrors.CodeVersionConflict,
		fmt.Sprintf("command %s lost %d optimistic concurrency races", cmd.Type, maxConflictAttempts), lastErr)
}

// Reconstruct rebuilds current aggregate state for reads.
func (e *Engine) Reconstruct(ctx context.Context, memberID, month string) (aggregate.State, uint64, error) {
	if e == nil || e.Events == nil {
		return aggregate.State{}, 0, platformerrors.New(platformerrors.CodeInternal, "engine is not configured")
	}
	return e.load(ctx, command.AggregateID(memberID, month), memberID, month)
}

// load reconstructs state from the newest snapshot plus the journal tail.
// Snapshots are a pure cache: any failure to use one falls back to a full
// replay instead of failing the command.
func (e *Engine) load(ctx context.Context, aggregateID, memberID, month string) (aggregate.State, uint64, error) {
	state := aggregate.NewState(memberID, month)
	afterSeq := uint64(0)

	if e.Snapshots != nil {
		snapshot, err := e.Snapshots.GetLatestSnapshot(ctx, aggregateID)
		switch {
		case err == nil:
			var seeded aggregate.State
			if err := json.Unmarshal(snapshot.StateJSON, &seeded); err != nil {
				e.Logger.Warn().Err(err).
					Str("aggregate_id", aggregateID).
					Uint64("snapshot_version", snapshot.Version).
					Msg("snapshot unreadable, replaying from scratch")
			} else {
				state = normalizeState(seeded, memberID, month)
				afterSeq = snapshot.Version
			}
		case errors.Is(err, storage.ErrNotFound):
		default:
			e.Logger.Warn().Err(err).
				Str("aggregate_id", aggregateID).
				Msg("snapshot load failed, replaying from scratch")
		}
	}

	result, err := replay.Replay(ctx, e.Events, &e.folder, aggregateID, state, replay.Options{AfterSeq: afterSeq})
	if err != nil {
		return aggregate.State{}, 0, platformerrors.Wrap(platformerrors.CodeStorageFailure, "replay "+aggregateID, err)
	}
	return result.State, result.LastSeq, nil
}

// maybeSnapshot persists a snapshot when the append crossed an interval
// boundary. Snapshotting happens after commit and is best-effort: a failure
// costs replay time, never correctness.
func (e *Engine) maybeSnapshot(ctx context.Context, aggregateID string, oldVersion, newVersion uint64, state aggregate.State) {
	if e.Snapshots == nil {
		return
	}
	if newVersion/snapshotInterval == oldVersion/snapshotInterval {
		return
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		e.Logger.Warn().Err(err).Str("aggregate_id", aggregateID).Msg("marshal snapshot state")
		return
	}
	snapshot := storage.Snapshot{
		AggregateID: aggregateID,
		Version:     newVersion,
		StateJSON:   stateJSON,
	}
	if err := e.Snapshots.SaveSnapshot(ctx, snapshot); err != nil {
		e.Logger.Warn().Err(err).
			Str("aggregate_id", aggregateID).
			Uint64("version", newVersion).
			Msg("save snapshot")
		return
	}
	snapshotSavesTotal.Inc()
	if err := e.Snapshots.PruneSnapshots(ctx, aggregateID, snapshotKeep); err != nil {
		e.Logger.Warn().Err(err).Str("aggregate_id", aggregateID).Msg("prune snapshots")
	}
}

// normalizeState guards against stale or foreign snapshot payloads.
func normalizeState(state aggregate.State, memberID, month string) aggregate.State {
	if state.MemberID == "" {
		state.MemberID = memberID
	}
	if state.Month == "" {
		state.Month = month
	}
	if state.Entries == nil {
		state.Entries = map[string]timesheet.Entry{}
	}
	if state.Absences == nil {
		state.Absences = map[string]timesheet.Absence{}
	}
	return state
}

func rejectionError(rejection command.Rejection) error {
	return platformerrors.New(platformerrors.Code(rejection.Code), rejection.Message)
}
