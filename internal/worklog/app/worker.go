package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var outboxEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "worklog_outbox_events_total",
	Help: "Outbox rows processed by the projection apply worker.",
}, []string{"outcome"})

// runOutboxWorker drains the projection apply outbox on a fixed interval
// until the context ends.
func (s *Server) runOutboxWorker(ctx context.Context) {
	interval := s.cfg.OutboxWorkerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("outbox worker started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("outbox worker stopped")
			return
		case <-ticker.C:
			processed, err := s.drainOutbox(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("drain outbox")
			}
			if processed > 0 {
				s.logger.Debug().Int("processed", processed).Msg("outbox drained")
			}
		}
	}
}

// drainOutbox claims one batch of due rows and applies each event to the
// projections. A row that fails stays queued for retry; the batch keeps going.
func (s *Server) drainOutbox(ctx context.Context) (int, error) {
	batch := s.cfg.OutboxWorkerBatch
	if batch <= 0 {
		batch = 64
	}
	entries, err := s.events.LeasePendingOutbox(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("lease outbox: %w", err)
	}

	processed := 0
	for _, entry := range entries {
		evt, loadErr := s.events.GetEventBySeq(ctx, entry.AggregateID, entry.Seq)
		if loadErr != nil {
			if err := s.events.MarkOutboxFailed(ctx, entry.AggregateID, entry.Seq, fmt.Sprintf("load event: %v", loadErr)); err != nil {
				return processed, err
			}
			outboxEventsTotal.WithLabelValues("failed").Inc()
			processed++
			continue
		}

		if applyErr := s.applier.Apply(ctx, evt); applyErr != nil {
			if err := s.events.MarkOutboxFailed(ctx, entry.AggregateID, entry.Seq, fmt.Sprintf("apply projection: %v", applyErr)); err != nil {
				return processed, err
			}
			outboxEventsTotal.WithLabelValues("failed").Inc()
			s.logger.Warn().
				Err(applyErr).
				Str("aggregate_id", entry.AggregateID).
				Uint64("seq", entry.Seq).
				Msg("projection apply failed")
			processed++
			continue
		}

		if err := s.events.MarkOutboxApplied(ctx, entry.AggregateID, entry.Seq); err != nil {
			return processed, err
		}
		outboxEventsTotal.WithLabelValues("applied").Inc()
		processed++
	}
	return processed, nil
}
