package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openclock/worklog/internal/worklog/projection"
	storagesqlite "github.com/openclock/worklog/internal/worklog/storage/sqlite"
)

// Maintenance bundles the offline operations run by the maintenance CLI:
// projection rebuilds, snapshot compaction, and dead-letter recovery.
type Maintenance struct {
	Events      *storagesqlite.Store
	Projections *storagesqlite.Store
	Logger      zerolog.Logger
}

// NewMaintenance opens both stores for offline maintenance. The outbox stays
// disabled: maintenance never appends events.
func NewMaintenance(cfg Config, logger zerolog.Logger) (*Maintenance, error) {
	events, err := storagesqlite.OpenEvents(cfg.EventsDBPath)
	if err != nil {
		return nil, fmt.Errorf("open events store: %w", err)
	}
	projections, err := storagesqlite.OpenProjections(cfg.ProjectionsDBPath)
	if err != nil {
		_ = events.Close()
		return nil, fmt.Errorf("open projections store: %w", err)
	}
	return &Maintenance{
		Events:      events,
		Projections: projections,
		Logger:      logger,
	}, nil
}

// Close releases both store handles.
func (m *Maintenance) Close() {
	if m == nil {
		return
	}
	if m.Events != nil {
		if err := m.Events.Close(); err != nil {
			m.Logger.Warn().Err(err).Msg("close events store")
		}
	}
	if m.Projections != nil {
		if err := m.Projections.Close(); err != nil {
			m.Logger.Warn().Err(err).Msg("close projections store")
		}
	}
}

// RebuildProjections resets every read model and replays the full journal.
// It returns the number of events applied.
func (m *Maintenance) RebuildProjections(ctx context.Context) (int, error) {
	applier := &projection.Applier{
		Events:      m.Events,
		Projections: m.Projections,
	}
	return applier.Rebuild(ctx)
}

// CompactSnapshots prunes each aggregate down to its newest keep snapshots
// and returns the number of aggregates visited.
func (m *Maintenance) CompactSnapshots(ctx context.Context, keep int) (int, error) {
	return m.Events.CompactSnapshots(ctx, keep)
}

// RequeueDeadOutbox moves dead-lettered projection apply rows back to pending
// so the worker retries them.
func (m *Maintenance) RequeueDeadOutbox(ctx context.Context) (int, error) {
	return m.Events.RequeueDeadOutbox(ctx)
}

// OutboxStatus reports queue depth per status.
func (m *Maintenance) OutboxStatus(ctx context.Context) (storagesqlite.OutboxSummary, error) {
	return m.Events.GetOutboxSummary(ctx)
}
