package jobs

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultRunsPerTick bounds how many replay runs one poll may drain.
const DefaultRunsPerTick = 5

// ReplayExecutor claims and executes the oldest pending replay run.
// It reports false when nothing was pending.
type ReplayExecutor interface {
	ExecuteNext(ctx context.Context) (bool, error)
}

// ReplayWorker drains asynchronous replay runs.
type ReplayWorker struct {
	executor    ReplayExecutor
	runsPerTick int
	logger      *slog.Logger
}

// NewReplayWorker creates a ReplayWorker; runsPerTick <= 0 uses DefaultRunsPerTick.
func NewReplayWorker(executor ReplayExecutor, runsPerTick int, logger *slog.Logger) *ReplayWorker {
	if runsPerTick <= 0 {
		runsPerTick = DefaultRunsPerTick
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayWorker{executor: executor, runsPerTick: runsPerTick, logger: logger}
}

// ProcessJobs implements the JobProcessor interface
func (w *ReplayWorker) ProcessJobs(ctx context.Context) error {
	for i := 0; i < w.runsPerTick; i++ {
		if err := ctx.Err(); err != nil {
			return nil
		}
		worked, err := w.executor.ExecuteNext(ctx)
		if err != nil {
			return fmt.Errorf("failed to execute replay run: %w", err)
		}
		if !worked {
			return nil
		}
		w.logger.Debug("replay run executed", "tick_index", i)
	}
	return nil
}
