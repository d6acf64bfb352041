package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/telemetry"
)

// EvidenceRetriever is the retrieval step of a query.
type EvidenceRetriever interface {
	Retrieve(ctx context.Context, in RetrieveInput) ([]domain.Evidence, error)
}

// AskInput is one question.
type AskInput struct {
	Question string
	Scope    domain.AccessScope
	TopK     int
	Debug    bool
}

// QueryService answers questions from retrieved evidence or refuses.
type QueryService struct {
	retriever  EvidenceRetriever
	answerer   Answerer
	gate       *SafetyGate
	allowDebug bool
	queryLog   QueryLogRepository
	uuidGen    UUIDGenerator
	logger     *slog.Logger
}

// NewQueryService creates a new QueryService instance
func NewQueryService(retriever EvidenceRetriever, answerer Answerer, gate *SafetyGate, allowDebug bool, logger *slog.Logger) *QueryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{
		retriever:  retriever,
		answerer:   answerer,
		gate:       gate,
		allowDebug: allowDebug,
		uuidGen:    &DefaultUUIDGenerator{},
		logger:     logger,
	}
}

// WithQueryLog records every answered or refused question in repo.
func (s *QueryService) WithQueryLog(repo QueryLogRepository) *QueryService {
	s.queryLog = repo
	return s
}

// Ask answers in.Question. Only malformed questions return an error; every other
// outcome is a QueryResult, refused or not. Refusals never carry citations or chunk text.
func (s *QueryService) Ask(ctx context.Context, in AskInput) (result *domain.QueryResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "QueryService.Ask", telemetry.SpanAttributes{
		OrgID:     in.Scope.OrgID,
		Operation: "ask",
	})
	defer span.End()

	if err := s.gate.ValidateQuestion(in.Question); err != nil {
		return nil, err
	}

	start := time.Now()
	var evidence []domain.Evidence
	defer func() {
		if result != nil && result.Refused {
			span.SetData("refusal_reason", string(result.RefusalReason))
		}
		s.record(ctx, in, result, evidence, time.Since(start))
	}()

	defer func() {
		if r := recover(); r != nil {
			span.SetError(fmt.Errorf("panic: %v", r))
			s.logger.Error("query panicked", "org_id", in.Scope.OrgID, "panic", r)
			result, err = domain.Refusal(in.Question, domain.RefusalInternalError), nil
		}
	}()

	if s.gate.Blocked(in.Question) {
		s.logger.Info("question refused", "org_id", in.Scope.OrgID, "reason", domain.RefusalSafetyBlock)
		return domain.Refusal(in.Question, domain.RefusalSafetyBlock), nil
	}

	evidence, err = s.retriever.Retrieve(ctx, RetrieveInput{
		Query: in.Question,
		Scope: in.Scope,
		TopK:  in.TopK,
	})
	if err != nil {
		span.SetError(err)
		s.logger.Error("retrieval failed", "org_id", in.Scope.OrgID, "error", err)
		return domain.Refusal(in.Question, domain.RefusalInternalError), nil
	}

	if !s.gate.Sufficient(evidence) {
		return domain.Refusal(in.Question, domain.RefusalInsufficientEvidence), nil
	}

	answer, err := s.answerer.Answer(ctx, in.Question, evidence)
	if err != nil {
		span.SetError(err)
		s.logger.Error("answering failed", "org_id", in.Scope.OrgID, "error", err)
		return domain.Refusal(in.Question, domain.RefusalInternalError), nil
	}

	citations := filterCitations(answer.Citations, evidence)
	if len(citations) != len(answer.Citations) {
		s.logger.Warn("answer cited text outside the evidence pack",
			"org_id", in.Scope.OrgID,
			"citations", len(answer.Citations),
			"valid", len(citations),
		)
		return domain.Refusal(in.Question, domain.RefusalInsufficientEvidence), nil
	}
	if len(citations) == 0 || answer.Text == "" {
		return domain.Refusal(in.Question, domain.RefusalInsufficientEvidence), nil
	}

	result = &domain.QueryResult{
		Question:  in.Question,
		Answer:    answer.Text,
		Citations: citations,
	}
	if in.Debug && s.allowDebug {
		result.Retrieval = evidence
	}
	return result, nil
}

func (s *QueryService) record(ctx context.Context, in AskInput, result *domain.QueryResult, evidence []domain.Evidence, elapsed time.Duration) {
	if s.queryLog == nil || result == nil {
		return
	}

	entry := QueryLogEntry{
		ID:            s.uuidGen.NewString(),
		OrgID:         in.Scope.OrgID,
		Question:      in.Question,
		Refused:       result.Refused,
		RefusalReason: string(result.RefusalReason),
		CitedChunkIDs: make([]string, 0, len(result.Citations)),
		EvidenceCount: len(evidence),
		DurationMs:    int(elapsed.Milliseconds()),
	}
	for _, c := range result.Citations {
		entry.CitedChunkIDs = append(entry.CitedChunkIDs, c.ChunkID)
	}
	if len(evidence) > 0 {
		entry.TopScore = evidence[0].Score
	}

	if err := s.queryLog.CreateQueryLog(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("failed to record query log", "org_id", in.Scope.OrgID, "error", err)
	}
}

// filterCitations keeps citations that resolve to a chunk of the evidence pack and whose
// quote is non-empty.
func filterCitations(citations []domain.Citation, evidence []domain.Evidence) []domain.Citation {
	out := make([]domain.Citation, 0, len(citations))
	for _, c := range citations {
		if c.Quote == "" || !domain.CitationsWithin([]domain.Citation{c}, evidence) {
			continue
		}
		out = append(out, c)
	}
	return out
}
