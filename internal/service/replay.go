package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const defaultReplayWorkers = 4

// ReplayRunRepository persists replay runs.
type ReplayRunRepository interface {
	Create(ctx context.Context, run *domain.ReplayRun) error
	GetByID(ctx context.Context, id string) (*domain.ReplayRun, error)
	Update(ctx context.Context, run *domain.ReplayRun) error
	// ClaimPending moves the oldest pending run to running and returns it, or nil when
	// no run is pending. Concurrent claimers never receive the same run.
	ClaimPending(ctx context.Context) (*domain.ReplayRun, error)
}

// DocumentIngester is the ingestion entry point replay drives.
type DocumentIngester interface {
	Ingest(ctx context.Context, input IngestInput) (*IngestResult, error)
}

// ReplayInput selects what to replay: a run to re-execute, one document, or the whole
// organization when both are empty.
type ReplayInput struct {
	OrgID string
	DocID string
	RunID string
	Force bool
	Async bool
}

// ReplayService re-runs ingestion from archived sources.
type ReplayService struct {
	runs     ReplayRunRepository
	docs     DocumentRepository
	sources  SourceStore
	ingester DocumentIngester
	workers  int
	uuidGen  UUIDGenerator
	now      func() time.Time
	logger   *slog.Logger
	enqueued func()
}

// NewReplayService creates a new ReplayService instance
func NewReplayService(runs ReplayRunRepository, docs DocumentRepository, sources SourceStore, ingester DocumentIngester, workers int, logger *slog.Logger) *ReplayService {
	if workers <= 0 {
		workers = defaultReplayWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayService{
		runs:     runs,
		docs:     docs,
		sources:  sources,
		ingester: ingester,
		workers:  workers,
		uuidGen:  &DefaultUUIDGenerator{},
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// OnEnqueue registers fn to be called after an asynchronous run is left pending.
func (s *ReplayService) OnEnqueue(fn func()) {
	s.enqueued = fn
}

// Replay creates a run for in and executes it, or leaves it pending for the worker when
// in.Async is set. Naming a pending run executes it; naming a finished run starts a new
// run over the same documents.
func (s *ReplayService) Replay(ctx context.Context, in ReplayInput) (*domain.ReplayRun, error) {
	if in.OrgID == "" {
		return nil, domain.NewValidationError("org_id is required")
	}

	var run *domain.ReplayRun
	if in.RunID != "" {
		prior, err := s.Get(ctx, in.OrgID, in.RunID)
		if err != nil {
			return nil, err
		}
		if prior.Status == domain.ReplayStatusPending {
			run = prior
		} else {
			in.DocID = prior.DocID
		}
	}

	if run == nil {
		if in.DocID != "" {
			doc, err := s.docs.GetByID(ctx, in.DocID)
			if err != nil {
				return nil, err
			}
			if doc.OrgID != in.OrgID {
				return nil, domain.ErrDocumentNotFound
			}
		}
		run = &domain.ReplayRun{
			ID:        s.uuidGen.NewString(),
			OrgID:     in.OrgID,
			DocID:     in.DocID,
			Force:     in.Force,
			Status:    domain.ReplayStatusPending,
			CreatedAt: s.now(),
		}
		if err := s.runs.Create(ctx, run); err != nil {
			return nil, err
		}
	}

	if in.Async {
		if s.enqueued != nil {
			s.enqueued()
		}
		return run, nil
	}
	if err := s.Execute(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

// Get returns a run owned by orgID.
func (s *ReplayService) Get(ctx context.Context, orgID, runID string) (*domain.ReplayRun, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.OrgID != orgID {
		return nil, domain.ErrReplayRunNotFound
	}
	return run, nil
}

// ExecuteNext claims and executes the oldest pending run. It reports false when there
// was nothing to do.
func (s *ReplayService) ExecuteNext(ctx context.Context) (bool, error) {
	run, err := s.runs.ClaimPending(ctx)
	if err != nil {
		return false, err
	}
	if run == nil {
		return false, nil
	}
	return true, s.Execute(ctx, run)
}

// Execute re-ingests every document of run with a bounded pool and records the counts.
// Per-document failures are counted, not returned; the run fails only when its document
// list cannot be loaded or its status cannot be saved.
func (s *ReplayService) Execute(ctx context.Context, run *domain.ReplayRun) error {
	ctx, span := telemetry.StartSpan(ctx, "ReplayService.Execute", telemetry.SpanAttributes{
		OrgID:     run.OrgID,
		DocID:     run.DocID,
		RunID:     run.ID,
		Operation: "replay",
	})
	defer span.End()

	started := s.now()
	run.Status = domain.ReplayStatusRunning
	run.StartedAt = &started
	if err := s.runs.Update(ctx, run); err != nil {
		span.SetError(err)
		return err
	}

	docIDs, err := s.targets(ctx, run)
	if err != nil {
		span.SetError(err)
		return s.finish(ctx, run, err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, docID := range docIDs {
		g.Go(func() error {
			changed, err := s.replayDocument(gctx, run, docID)

			mu.Lock()
			defer mu.Unlock()
			run.Scanned++
			switch {
			case err != nil:
				run.Errored++
				s.logger.Warn("replay of document failed", "run_id", run.ID, "doc_id", docID, "error", err)
			case changed:
				run.Changed++
			default:
				run.Unchanged++
			}
			return gctx.Err()
		})
	}
	err = g.Wait()
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return s.finish(ctx, run, err)
}

func (s *ReplayService) targets(ctx context.Context, run *domain.ReplayRun) ([]string, error) {
	if run.DocID != "" {
		return []string{run.DocID}, nil
	}
	return s.docs.ListIDs(ctx, run.OrgID)
}

func (s *ReplayService) replayDocument(ctx context.Context, run *domain.ReplayRun, docID string) (bool, error) {
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return false, err
	}
	src, err := s.sources.Get(ctx, docID)
	if err != nil {
		return false, err
	}

	res, err := s.ingester.Ingest(ctx, IngestInput{
		OrgID:          doc.OrgID,
		DocID:          doc.ID,
		Title:          doc.Title,
		Source:         doc.Source,
		Data:           src.Data,
		Filename:       src.Filename,
		ContentType:    src.ContentType,
		Classification: string(doc.Classification),
		Retention:      doc.Retention,
		Tags:           doc.Tags,
		Contract:       src.Contract,
		Force:          run.Force,
		Trigger:        run.Trigger(),
		ReplayRunID:    run.ID,
	})
	if err != nil {
		return false, err
	}
	return res.Changed, nil
}

func (s *ReplayService) finish(ctx context.Context, run *domain.ReplayRun, runErr error) error {
	finished := s.now()
	run.FinishedAt = &finished
	run.Status = domain.ReplayStatusCompleted
	if runErr != nil {
		run.Status = domain.ReplayStatusFailed
		run.Error = runErr.Error()
	}

	// The run's own context may be cancelled; the final status still has to land.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.runs.Update(saveCtx, run); err != nil {
		return errors.Join(runErr, err)
	}

	s.logger.Info("replay finished",
		"run_id", run.ID,
		"status", run.Status,
		"scanned", run.Scanned,
		"changed", run.Changed,
		"unchanged", run.Unchanged,
		"errored", run.Errored,
	)
	return runErr
}
