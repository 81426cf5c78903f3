// Package main provides offline maintenance for the worklog stores: full
// projection rebuilds, snapshot compaction, and outbox recovery.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openclock/worklog/internal/platform/config"
	"github.com/openclock/worklog/internal/worklog/app"
)

type flags struct {
	rebuild          bool
	compactSnapshots bool
	keep             int
	outboxReport     bool
	outboxRequeue    bool
	timeout          time.Duration
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		config.Exitf("Error: %v", err)
	}

	var f flags
	fs := flag.NewFlagSet("maintenance", flag.ExitOnError)
	fs.BoolVar(&f.rebuild, "rebuild", false, "reset all projections and replay the full journal")
	fs.BoolVar(&f.compactSnapshots, "compact-snapshots", false, "prune old snapshots for every aggregate")
	fs.IntVar(&f.keep, "keep", 3, "snapshots to keep per aggregate with -compact-snapshots")
	fs.BoolVar(&f.outboxReport, "outbox-report", false, "report projection apply outbox depth per status")
	fs.BoolVar(&f.outboxRequeue, "outbox-requeue-dead", false, "requeue dead-lettered projection apply rows")
	fs.StringVar(&cfg.EventsDBPath, "events-db-path", cfg.EventsDBPath, "path to the events sqlite database")
	fs.StringVar(&cfg.ProjectionsDBPath, "projections-db-path", cfg.ProjectionsDBPath, "path to the projections sqlite database")
	fs.DurationVar(&f.timeout, "timeout", 10*time.Minute, "overall timeout")
	if err := fs.Parse(os.Args[1:]); err != nil {
		config.Exitf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := run(ctx, cfg, f); err != nil {
		config.Exitf("Error: %v", err)
	}
}

func run(ctx context.Context, cfg app.Config, f flags) error {
	if !f.rebuild && !f.compactSnapshots && !f.outboxReport && !f.outboxRequeue {
		return errors.New("no operation selected; pass -rebuild, -compact-snapshots, -outbox-report, or -outbox-requeue-dead")
	}

	logger := app.NewLogger(cfg.LogLevel)
	m, err := app.NewMaintenance(cfg, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	if f.rebuild {
		applied, err := m.RebuildProjections(ctx)
		if err != nil {
			return fmt.Errorf("rebuild projections: %w", err)
		}
		fmt.Printf("rebuilt projections from %d events\n", applied)
	}
	if f.compactSnapshots {
		visited, err := m.CompactSnapshots(ctx, f.keep)
		if err != nil {
			return fmt.Errorf("compact snapshots: %w", err)
		}
		fmt.Printf("compacted snapshots for %d aggregates (keep %d)\n", visited, f.keep)
	}
	if f.outboxRequeue {
		requeued, err := m.RequeueDeadOutbox(ctx)
		if err != nil {
			return fmt.Errorf("requeue dead outbox: %w", err)
		}
		fmt.Printf("requeued %d dead outbox rows\n", requeued)
	}
	if f.outboxReport {
		summary, err := m.OutboxStatus(ctx)
		if err != nil {
			return fmt.Errorf("outbox report: %w", err)
		}
		fmt.Printf("outbox: pending=%d processing=%d failed=%d dead=%d\n",
			summary.PendingCount, summary.ProcessingCount, summary.FailedCount, summary.DeadCount)
	}
	return nil
}
