package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/gridfn/pkg/persistence"
	"github.com/dukex/gridfn/pkg/server"
	"github.com/robfig/cron/v3"
)

// statsSource is the part of the server the stats job reads.
type statsSource interface {
	Stats() server.Stats
}

// startJobs schedules history pruning and connection stats logging.
func startJobs(ctx context.Context, logger *slog.Logger, opts options, history persistence.History, stats statsSource) (*cron.Cron, error) {
	logger = logger.With("module", "jobs")

	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if opts.historyRetention > 0 {
		_, err := scheduler.AddFunc(opts.pruneSchedule, pruneJob(ctx, logger, history, opts.historyRetention, time.Now))
		if err != nil {
			return nil, fmt.Errorf("invalid prune schedule %q: %w", opts.pruneSchedule, err)
		}
	}

	if opts.statsSchedule != "" {
		_, err := scheduler.AddFunc(opts.statsSchedule, statsJob(logger, stats))
		if err != nil {
			return nil, fmt.Errorf("invalid stats schedule %q: %w", opts.statsSchedule, err)
		}
	}

	scheduler.Start()
	logger.Info("Jobs scheduled", "entries", len(scheduler.Entries()))

	return scheduler, nil
}

func pruneJob(ctx context.Context, logger *slog.Logger, history persistence.History, retention time.Duration, now func() time.Time) func() {
	return func() {
		cutoff := now().Add(-retention)

		n, err := history.Prune(ctx, cutoff)
		if err != nil {
			logger.Error("Failed to prune execution history", "error", err)

			return
		}

		logger.Debug("Pruned execution history", "before", cutoff, "deleted", n)
	}
}

func statsJob(logger *slog.Logger, stats statsSource) func() {
	return func() {
		s := stats.Stats()
		logger.Info("Connection stats", "active", s.Active, "accepted", s.Accepted, "processed", s.Processed)
	}
}
