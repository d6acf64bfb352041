// Package jobs runs background processors on a poll loop.
package jobs

import (
	"context"
	"log/slog"
	"time"
)

// JobProcessor defines the interface for processing jobs
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker polls a JobProcessor until stopped or its context ends. It also runs once at
// start, which picks up work left pending by a previous process, and whenever Wake is called.
type Worker struct {
	name         string
	processor    JobProcessor
	pollInterval time.Duration
	logger       *slog.Logger
	wake         chan struct{}
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// NewWorker creates a new Worker instance. A nil logger uses slog.Default().
func NewWorker(name string, processor JobProcessor, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		name:         name,
		processor:    processor,
		pollInterval: pollInterval,
		logger:       logger.With("worker", name),
		wake:         make(chan struct{}, 1),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Wake asks for a pass ahead of the next tick. It never blocks; wakes that arrive while
// one is already queued collapse into it.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Start runs the polling loop and blocks until the worker stops.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	w.logger.Info("worker started", "poll_interval", w.pollInterval)

	failures := 0
	process := func(cause string) {
		err := w.processor.ProcessJobs(ctx)
		switch {
		case err != nil:
			failures++
			w.logger.Error("processing jobs failed", "cause", cause, "consecutive_failures", failures, "error", err)
		case failures > 0:
			w.logger.Info("processing recovered", "after_failures", failures)
			failures = 0
		}
	}

	process("start")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", "reason", "context cancelled")
			return
		case <-w.stopChan:
			w.logger.Info("worker stopped", "reason", "stop signal")
			return
		case <-w.wake:
			process("wake")
			ticker.Reset(w.pollInterval)
		case <-ticker.C:
			process("tick")
		}
	}
}

// Stop signals the loop and waits for the in-flight pass to finish.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
}
