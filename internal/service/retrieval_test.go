package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSearchRepository struct {
	mock.Mock
}

func (m *MockSearchRepository) SearchLexical(ctx context.Context, terms []string, filter SearchFilter, limit int) ([]ChunkCandidate, error) {
	args := m.Called(ctx, terms, filter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ChunkCandidate), args.Error(1)
}

func (m *MockSearchRepository) SearchVector(ctx context.Context, vector []float32, filter SearchFilter, limit int) ([]ChunkCandidate, error) {
	args := m.Called(ctx, vector, filter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ChunkCandidate), args.Error(1)
}

type stubQueryEmbedder struct {
	vec []float32
	err error
}

func (s stubQueryEmbedder) Embed(context.Context, string) (embedding.Vector, error) {
	return embedding.Vector{Values: s.vec}, s.err
}

func (s stubQueryEmbedder) Dim() int { return 3 }

func TestMergeCandidates_WeightsAndMissingScores(t *testing.T) {
	lexical := []ChunkCandidate{
		{ChunkID: "c1", DocID: "d1", Score: 0.8},
		{ChunkID: "c2", DocID: "d1", Score: 0.4},
	}
	vector := []ChunkCandidate{
		{ChunkID: "c2", DocID: "d1", Score: 0.9},
		{ChunkID: "c3", DocID: "d2", Score: 0.5},
	}

	got := mergeCandidates(lexical, vector, Weights{Lexical: 0.5, Vector: 0.5})
	require.Len(t, got, 3)
	assert.Equal(t, "c2", got[0].ChunkID)
	assert.InDelta(t, 0.65, got[0].Score, 1e-9)
	assert.Equal(t, "c1", got[1].ChunkID)
	assert.InDelta(t, 0.4, got[1].Score, 1e-9)
	assert.Equal(t, 0.0, got[1].VectorScore)
	assert.Equal(t, "c3", got[2].ChunkID)
	assert.Equal(t, 0.0, got[2].LexicalScore)
}

func TestMergeCandidates_TieBreakOrder(t *testing.T) {
	// All four score 0.5 overall.
	lexical := []ChunkCandidate{
		{ChunkID: "b", DocID: "d2", Score: 0.5},
		{ChunkID: "a", DocID: "d2", Score: 0.5},
		{ChunkID: "z", DocID: "d1", Score: 0.5},
		{ChunkID: "hi", DocID: "d9", Score: 1.0},
	}
	vector := []ChunkCandidate{
		{ChunkID: "b", DocID: "d2", Score: 0.5},
		{ChunkID: "a", DocID: "d2", Score: 0.5},
		{ChunkID: "z", DocID: "d1", Score: 0.5},
	}

	got := mergeCandidates(lexical, vector, Weights{Lexical: 0.5, Vector: 0.5})
	ids := make([]string, len(got))
	for i, ev := range got {
		ids[i] = ev.ChunkID
	}
	// "hi" ties on score but wins on lexical; the rest fall back to doc_id then chunk_id.
	assert.Equal(t, []string{"hi", "z", "a", "b"}, ids)

	again := mergeCandidates(lexical, vector, Weights{Lexical: 0.5, Vector: 0.5})
	assert.Equal(t, got, again)
}

func TestMergeCandidates_NonFiniteScores(t *testing.T) {
	got := mergeCandidates(nil, []ChunkCandidate{{ChunkID: "c1", Score: math.NaN()}}, Weights{Lexical: 0.5, Vector: 0.5})
	require.Len(t, got, 1)
	assert.Equal(t, 0.0, got[0].Score)
}

func TestLexicalTerms(t *testing.T) {
	assert.Equal(t, []string{"cloud", "run", "scale", "zero"}, lexicalTerms("Does Cloud Run scale to zero? cloud"))
	assert.Equal(t, []string{"dont", "oneill"}, lexicalTerms("don't O'Neill's"))
	assert.Empty(t, lexicalTerms("what is the"))
}

func TestMakeSnippet(t *testing.T) {
	text := "Pricing is per request. Cloud Run scales to zero when idle. Logs go to Cloud Logging."
	snippet, start, end := makeSnippet(text, []string{"scal", "zero"}, 40)
	assert.Equal(t, "Cloud Run scales to zero when idle.", snippet)
	assert.Equal(t, snippet, string([]rune(text)[start:end]))

	long, start, end := makeSnippet(text, []string{"pric"}, 10)
	assert.Equal(t, 10, end-start)
	assert.Equal(t, long, string([]rune(text)[start:end]))

	extended, _, _ := makeSnippet(text, []string{"pric"}, 1000)
	assert.Equal(t, text, extended)
}

func TestRetriever_ScopeAndRetentionFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	public := textInput("pub", "The office opens at nine.")
	public.Classification = "public"
	secret := textInput("sec", "The office vault opens at midnight.")
	secret.Classification = "restricted"
	other := textInput("oth", "The office of org two opens at ten.")
	other.OrgID = "org-2"
	for _, in := range []IngestInput{public, secret, other} {
		_, err := f.ingest.Ingest(ctx, in)
		require.NoError(t, err)
	}

	internalOnly := domain.AccessScope{OrgID: "org-1", Clearance: domain.ClassificationInternal}
	ev, err := f.retriever.Retrieve(ctx, RetrieveInput{Query: "When does the office open?", Scope: internalOnly})
	require.NoError(t, err)
	require.Len(t, ev, 1)
	assert.Equal(t, "pub", ev[0].DocID)

	ev, err = f.retriever.Retrieve(ctx, RetrieveInput{Query: "When does the office open?", Scope: testScope})
	require.NoError(t, err)
	assert.Len(t, ev, 2)

	// Expire the public document.
	f.store.mu.Lock()
	d := f.store.docs["pub"]
	past := time.Now().Add(-time.Hour)
	d.ExpiresAt = &past
	f.store.docs["pub"] = d
	f.store.mu.Unlock()
	f.cache.Invalidate()

	ev, err = f.retriever.Retrieve(ctx, RetrieveInput{Query: "When does the office open?", Scope: internalOnly})
	require.NoError(t, err)
	assert.Empty(t, ev)
}

func TestRetriever_CachedEvidenceDropsAtRetentionExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.ingest.Ingest(ctx, textInput("d1", "The office opens at nine."))
	require.NoError(t, err)

	now := time.Now().UTC()
	clock := func() time.Time { return now }
	f.cache.now = clock
	f.retriever.now = clock

	f.store.mu.Lock()
	d := f.store.docs["d1"]
	expiry := now.Add(30 * time.Second)
	d.ExpiresAt = &expiry
	f.store.docs["d1"] = d
	f.store.mu.Unlock()

	in := RetrieveInput{Query: "When does the office open?", Scope: testScope}
	ev, err := f.retriever.Retrieve(ctx, in)
	require.NoError(t, err)
	require.Len(t, ev, 1)

	// No write happens, so only the expiry can retire the cached entry.
	now = expiry.Add(time.Second)
	ev, err = f.retriever.Retrieve(ctx, in)
	require.NoError(t, err)
	assert.Empty(t, ev)
}

func TestRetriever_DeterministicAndTopK(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		_, err := f.ingest.Ingest(ctx, textInput(id, "Backups run nightly for service "+id+"."))
		require.NoError(t, err)
	}

	in := RetrieveInput{Query: "When do backups run?", Scope: testScope, TopK: 4}
	first, err := f.retriever.Retrieve(ctx, in)
	require.NoError(t, err)
	require.Len(t, first, 4)

	f.cache.Invalidate()
	second, err := f.retriever.Retrieve(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for i := 1; i < len(first); i++ {
		assert.GreaterOrEqual(t, first[i-1].Score, first[i].Score)
	}
}

func TestRetriever_ReadAfterWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.ingest.Ingest(ctx, textInput("d1", "The launch is on Monday."))
	require.NoError(t, err)
	ev, err := f.retriever.Retrieve(ctx, RetrieveInput{Query: "When is the launch?", Scope: testScope})
	require.NoError(t, err)
	require.Len(t, ev, 1)
	assert.Contains(t, ev[0].Text, "Monday")

	_, err = f.ingest.Ingest(ctx, textInput("d1", "The launch moved to Friday."))
	require.NoError(t, err)
	ev, err = f.retriever.Retrieve(ctx, RetrieveInput{Query: "When is the launch?", Scope: testScope})
	require.NoError(t, err)
	require.Len(t, ev, 1)
	assert.Contains(t, ev[0].Text, "Friday")
}

func TestRetriever_EmbeddingFailureDegradesToLexical(t *testing.T) {
	ctx := context.Background()
	repo := new(MockSearchRepository)
	repo.On("SearchLexical", mock.Anything, []string{"backups"}, mock.Anything, defaultLexicalLimit).
		Return([]ChunkCandidate{{ChunkID: "c1", DocID: "d1", Text: "Backups run nightly.", Score: 0.4}}, nil)

	r := NewRetriever(repo, stubQueryEmbedder{err: errors.New("backend down")}, RetrievalConfig{}, nil, nil, nil)
	ev, err := r.Retrieve(ctx, RetrieveInput{Query: "backups", Scope: testScope})
	require.NoError(t, err)
	require.Len(t, ev, 1)
	assert.InDelta(t, 0.2, ev[0].Score, 1e-9)
	repo.AssertNotCalled(t, "SearchVector", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetriever_ZeroQueryVectorSkipsVectorSearch(t *testing.T) {
	ctx := context.Background()
	repo := new(MockSearchRepository)
	r := NewRetriever(repo, stubQueryEmbedder{vec: []float32{0, 0, 0}}, RetrievalConfig{}, nil, nil, nil)

	ev, err := r.Retrieve(ctx, RetrieveInput{Query: "the of and", Scope: testScope})
	require.NoError(t, err)
	assert.Empty(t, ev)
	repo.AssertNotCalled(t, "SearchLexical", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "SearchVector", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetriever_StorageErrorIsRetrievalError(t *testing.T) {
	ctx := context.Background()
	repo := new(MockSearchRepository)
	repo.On("SearchLexical", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	r := NewRetriever(repo, stubQueryEmbedder{vec: []float32{1, 0, 0}}, RetrievalConfig{}, nil, nil, nil)
	_, err := r.Retrieve(ctx, RetrieveInput{Query: "backups", Scope: testScope})
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeRetrieval, domain.ErrorCode(err))
}

func TestRetriever_FilterCarriesScope(t *testing.T) {
	ctx := context.Background()
	repo := new(MockSearchRepository)
	scope := domain.AccessScope{OrgID: "org-9", Clearance: domain.ClassificationConfidential}
	matchFilter := mock.MatchedBy(func(f SearchFilter) bool {
		return f.OrgID == "org-9" && f.Dim == 3 &&
			assert.ObjectsAreEqual([]string{"public", "internal", "confidential"}, f.Classifications)
	})
	repo.On("SearchLexical", mock.Anything, mock.Anything, matchFilter, 7).Return([]ChunkCandidate{}, nil)
	repo.On("SearchVector", mock.Anything, mock.Anything, matchFilter, 9).Return([]ChunkCandidate{}, nil)

	r := NewRetriever(repo, stubQueryEmbedder{vec: []float32{1, 0, 0}}, RetrievalConfig{}, nil, nil, nil)
	_, err := r.Retrieve(ctx, RetrieveInput{Query: "backups", Scope: scope, LexicalLimit: 7, VectorLimit: 9})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestRetriever_RejectsNegativeWeights(t *testing.T) {
	r := NewRetriever(new(MockSearchRepository), stubQueryEmbedder{}, RetrievalConfig{}, nil, nil, nil)
	_, err := r.Retrieve(context.Background(), RetrieveInput{Query: "x", Scope: testScope, Weights: &Weights{Lexical: -1, Vector: 1}})
	assert.Equal(t, domain.ErrCodeValidation, domain.ErrorCode(err))
}
