package service

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/embedding"
	"github.com/cloo-solutions/groundwork/internal/pagination"
	"github.com/cloo-solutions/groundwork/internal/textproc"
)

type MockUUIDGenerator struct {
	mu        sync.Mutex
	uuids     []string
	callCount int
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.callCount < len(m.uuids) {
		uuid := m.uuids[m.callCount]
		m.callCount++
		return uuid
	}
	return "default-uuid"
}

// memStore is an in-memory stand-in for the Postgres repositories. Transactions are
// serialized and roll back by restoring a snapshot.
type memStore struct {
	mu         sync.Mutex
	txMu       sync.Mutex
	docs       map[string]domain.Document
	chunks     map[string][]domain.Chunk
	embeddings map[string]domain.Embedding
	events     []domain.IngestEvent
	sig        *domain.IndexSignature
	sources    map[string]domain.DocumentSource
	runs       map[string]domain.ReplayRun

	// beforeTx runs at the start of the next transaction only.
	beforeTx  func(s *memStore)
	txCount   int
	putSrcErr error
}

func newMemStore() *memStore {
	return &memStore{
		docs:       make(map[string]domain.Document),
		chunks:     make(map[string][]domain.Chunk),
		embeddings: make(map[string]domain.Embedding),
		sources:    make(map[string]domain.DocumentSource),
		runs:       make(map[string]domain.ReplayRun),
	}
}

type memSnapshot struct {
	docs       map[string]domain.Document
	chunks     map[string][]domain.Chunk
	embeddings map[string]domain.Embedding
	events     []domain.IngestEvent
	sig        *domain.IndexSignature
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		docs:       maps.Clone(s.docs),
		chunks:     maps.Clone(s.chunks),
		embeddings: maps.Clone(s.embeddings),
		events:     slices.Clone(s.events),
	}
	if s.sig != nil {
		sig := *s.sig
		snap.sig = &sig
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs, s.chunks, s.embeddings, s.events, s.sig = snap.docs, snap.chunks, snap.embeddings, snap.events, snap.sig
}

func (s *memStore) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.txCount++
	if hook := s.beforeTx; hook != nil {
		s.beforeTx = nil
		hook(s)
	}

	snap := s.snapshot()
	if err := fn(memTxRepos{s}); err != nil {
		s.restore(snap)
		return err
	}
	if err := ctx.Err(); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memTxRepos struct{ s *memStore }

func (r memTxRepos) Documents() DocumentRepository        { return memDocs{r.s} }
func (r memTxRepos) Chunks() ChunkRepository              { return memChunks{r.s} }
func (r memTxRepos) Events() IngestEventRepository        { return memEvents{r.s} }
func (r memTxRepos) Signature() IndexSignatureRepository { return memSig{r.s} }

type memDocs struct{ s *memStore }

func (m memDocs) GetByID(_ context.Context, docID string) (*domain.Document, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	d, ok := m.s.docs[docID]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	d.Tags = slices.Clone(d.Tags)
	return &d, nil
}

func (m memDocs) Lock(context.Context, string) error { return nil }

func (m memDocs) Insert(_ context.Context, doc *domain.Document) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.docs[doc.ID]; ok {
		return domain.ErrVersionConflict
	}
	m.s.docs[doc.ID] = *doc
	return nil
}

func (m memDocs) UpdateContent(_ context.Context, doc *domain.Document, expectedVersion int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cur, ok := m.s.docs[doc.ID]
	if !ok || cur.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	m.s.docs[doc.ID] = *doc
	return nil
}

func (m memDocs) UpdateMetadata(_ context.Context, doc *domain.Document) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cur, ok := m.s.docs[doc.ID]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	cur.Title, cur.Source, cur.Classification = doc.Title, doc.Source, doc.Classification
	cur.Retention, cur.ExpiresAt, cur.Tags, cur.UpdatedAt = doc.Retention, doc.ExpiresAt, doc.Tags, doc.UpdatedAt
	m.s.docs[doc.ID] = cur
	return nil
}

func (m memDocs) Delete(_ context.Context, docID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.docs[docID]; !ok {
		return domain.ErrDocumentNotFound
	}
	for _, c := range m.s.chunks[docID] {
		delete(m.s.embeddings, c.ID)
	}
	delete(m.s.chunks, docID)
	delete(m.s.docs, docID)
	return nil
}

func (m memDocs) ListIDs(_ context.Context, orgID string) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var ids []string
	for id, d := range m.s.docs {
		if d.OrgID == orgID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type memChunks struct{ s *memStore }

func (m memChunks) ReplaceForDocument(_ context.Context, docID string, chunks []domain.Chunk, backend, model string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, c := range m.s.chunks[docID] {
		delete(m.s.embeddings, c.ID)
	}
	m.s.chunks[docID] = slices.Clone(chunks)
	for _, c := range chunks {
		m.s.embeddings[c.ID] = domain.Embedding{
			ChunkID: c.ID,
			Backend: backend,
			Model:   model,
			Dim:     len(c.Embedding),
			Vector:  c.Embedding,
		}
	}
	return nil
}

func (m memChunks) CountAll(context.Context) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, cs := range m.s.chunks {
		n += int64(len(cs))
	}
	return n, nil
}

func (m memChunks) ListAfter(_ context.Context, afterChunkID string, limit int) ([]domain.Chunk, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var all []domain.Chunk
	for _, cs := range m.s.chunks {
		all = append(all, cs...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	var out []domain.Chunk
	for _, c := range all {
		if c.ID > afterChunkID && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m memChunks) UpsertEmbeddings(_ context.Context, embeddings []domain.Embedding) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, e := range embeddings {
		if _, ok := m.s.embeddings[e.ChunkID]; ok {
			m.s.embeddings[e.ChunkID] = e
		}
	}
	return nil
}

type memEvents struct{ s *memStore }

func (m memEvents) Create(_ context.Context, ev *domain.IngestEvent) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.events = append(m.s.events, *ev)
	return nil
}

func (m memEvents) Latest(_ context.Context, docID string) (*domain.IngestEvent, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for i := len(m.s.events) - 1; i >= 0; i-- {
		if m.s.events[i].DocID == docID {
			ev := m.s.events[i]
			return &ev, nil
		}
	}
	return nil, nil
}

func (m memEvents) ListByDoc(_ context.Context, docID string, cursor *pagination.Cursor, limit int) (*IngestEventPage, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var all []*domain.IngestEvent
	for i := len(m.s.events) - 1; i >= 0; i-- {
		if m.s.events[i].DocID == docID {
			ev := m.s.events[i]
			all = append(all, &ev)
		}
	}
	if cursor != nil {
		for i, ev := range all {
			if ev.ID == cursor.LastID {
				all = all[i+1:]
				break
			}
		}
	}
	page := &IngestEventPage{Items: all}
	if len(all) > limit {
		page.Items = all[:limit]
		page.HasMore = true
		last := page.Items[limit-1]
		page.NextCursor = pagination.EncodeCursor(last.ID, last.IngestedAt)
	}
	return page, nil
}

type memSig struct{ s *memStore }

func (m memSig) Get(context.Context) (*domain.IndexSignature, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.sig == nil {
		return nil, domain.ErrIndexSignatureNotFound
	}
	sig := *m.s.sig
	return &sig, nil
}

func (m memSig) GetForUpdate(ctx context.Context) (*domain.IndexSignature, error) {
	return m.Get(ctx)
}

func (m memSig) Insert(_ context.Context, sig *domain.IndexSignature) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.sig != nil {
		return domain.ErrSignatureChanged
	}
	stored := *sig
	m.s.sig = &stored
	return nil
}

func (m memSig) Update(_ context.Context, sig *domain.IndexSignature, expectedVersion int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.sig == nil || m.s.sig.Version != expectedVersion {
		return domain.ErrSignatureChanged
	}
	stored := *sig
	m.s.sig = &stored
	return nil
}

type memSources struct{ s *memStore }

func (m memSources) Put(_ context.Context, src *domain.DocumentSource) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.putSrcErr != nil {
		return m.s.putSrcErr
	}
	m.s.sources[src.DocID] = *src
	return nil
}

func (m memSources) Get(_ context.Context, docID string) (*domain.DocumentSource, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	src, ok := m.s.sources[docID]
	if !ok {
		return nil, domain.ErrSourceNotFound
	}
	return &src, nil
}

func (m memSources) Delete(_ context.Context, docID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.sources[docID]; !ok {
		return domain.ErrSourceNotFound
	}
	delete(m.s.sources, docID)
	return nil
}

type memRuns struct{ s *memStore }

func (m memRuns) Create(_ context.Context, run *domain.ReplayRun) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.runs[run.ID] = *run
	return nil
}

func (m memRuns) GetByID(_ context.Context, id string) (*domain.ReplayRun, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	run, ok := m.s.runs[id]
	if !ok {
		return nil, domain.ErrReplayRunNotFound
	}
	return &run, nil
}

func (m memRuns) Update(_ context.Context, run *domain.ReplayRun) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.runs[run.ID]; !ok {
		return domain.ErrReplayRunNotFound
	}
	m.s.runs[run.ID] = *run
	return nil
}

func (m memRuns) ClaimPending(context.Context) (*domain.ReplayRun, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var next *domain.ReplayRun
	for _, run := range m.s.runs {
		if run.Status != domain.ReplayStatusPending {
			continue
		}
		if next == nil || run.CreatedAt.Before(next.CreatedAt) {
			r := run
			next = &r
		}
	}
	if next == nil {
		return nil, nil
	}
	now := time.Now().UTC()
	next.Status = domain.ReplayStatusRunning
	next.StartedAt = &now
	m.s.runs[next.ID] = *next
	return next, nil
}

// memSearch approximates the SQL candidate queries: the same scope filter, a saturating
// term-match score for lexical, and cosine similarity for vector.
type memSearch struct{ s *memStore }

func (m memSearch) visible(doc domain.Document, f SearchFilter) bool {
	if doc.OrgID != f.OrgID || !slices.Contains(f.Classifications, string(doc.Classification)) {
		return false
	}
	return !doc.IsExpired(f.Now)
}

func (m memSearch) SearchLexical(_ context.Context, terms []string, f SearchFilter, limit int) ([]ChunkCandidate, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []ChunkCandidate
	for docID, cs := range m.s.chunks {
		doc := m.s.docs[docID]
		if !m.visible(doc, f) {
			continue
		}
		for _, c := range cs {
			have := make(map[string]struct{})
			for _, t := range textproc.Terms(c.Text) {
				have[t] = struct{}{}
			}
			hits := 0
			for _, t := range terms {
				if _, ok := have[textproc.Stem(t)]; ok {
					hits++
				}
			}
			if hits == 0 {
				continue
			}
			rank := float64(hits) / 10
			out = append(out, ChunkCandidate{ChunkID: c.ID, DocID: docID, Idx: c.Idx, Title: doc.Title, Text: c.Text, Score: rank / (rank + 1), ExpiresAt: doc.ExpiresAt})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memSearch) SearchVector(_ context.Context, vector []float32, f SearchFilter, limit int) ([]ChunkCandidate, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []ChunkCandidate
	for docID, cs := range m.s.chunks {
		doc := m.s.docs[docID]
		if !m.visible(doc, f) {
			continue
		}
		for _, c := range cs {
			e, ok := m.s.embeddings[c.ID]
			if !ok || e.Dim != f.Dim {
				continue
			}
			out = append(out, ChunkCandidate{ChunkID: c.ID, DocID: docID, Idx: c.Idx, Title: doc.Title, Text: c.Text, Score: embedding.Cosine(vector, e.Vector), ExpiresAt: doc.ExpiresAt})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

const testDim = 64

type fixture struct {
	store      *memStore
	cache      *RetrievalCache
	signatures *SignatureService
	ingest     *IngestService
	retriever  *Retriever
	query      *QueryService
	replay     *ReplayService
}

type fixtureOptions struct {
	embedder embedding.Embedder
	fallback bool
	chunking ChunkConfig
	store    *memStore
}

func newFixture(t *testing.T, opts ...func(*fixtureOptions)) *fixture {
	t.Helper()
	o := fixtureOptions{
		embedder: embedding.NewHashEmbedder(testDim),
		fallback: true,
		chunking: DefaultChunkConfig(),
		store:    newMemStore(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	chunkEmbedder := embedding.NewResilient(o.embedder, embedding.ResilientConfig{
		Timeout:   time.Second,
		RetryWait: time.Millisecond,
		Fallback:  o.fallback,
	}, nil)
	queryEmbedder := embedding.NewResilient(o.embedder, embedding.ResilientConfig{
		Timeout:   time.Second,
		RetryWait: time.Millisecond,
	}, nil)

	cache := NewRetrievalCache(time.Minute, 100)
	sigs := NewSignatureService(memSig{store}, memChunks{store}, store, chunkEmbedder, o.chunking, nil)
	ingest := NewIngestService(IngestDeps{
		Documents:  memDocs{store},
		Events:     memEvents{store},
		TxRunner:   store,
		Signatures: sigs,
		Sources:    memSources{store},
		Embedder:   chunkEmbedder,
		Chunking:   o.chunking,
		Cache:      cache,
	})
	retriever := NewRetriever(memSearch{store}, queryEmbedder, DefaultRetrievalConfig(), cache, sigs, nil)
	query := NewQueryService(retriever, NewExtractiveAnswerer(), NewSafetyGate(0, 0), true, nil)
	replay := NewReplayService(memRuns{store}, memDocs{store}, memSources{store}, ingest, 2, nil)

	return &fixture{
		store:      store,
		cache:      cache,
		signatures: sigs,
		ingest:     ingest,
		retriever:  retriever,
		query:      query,
		replay:     replay,
	}
}

func withEmbedder(e embedding.Embedder, fallback bool) func(*fixtureOptions) {
	return func(o *fixtureOptions) {
		o.embedder = e
		o.fallback = fallback
	}
}

func withChunking(cfg ChunkConfig) func(*fixtureOptions) {
	return func(o *fixtureOptions) { o.chunking = cfg }
}

func withStore(s *memStore) func(*fixtureOptions) {
	return func(o *fixtureOptions) { o.store = s }
}

var testScope = domain.AccessScope{OrgID: "org-1", Clearance: domain.ClassificationRestricted}

func textInput(docID, text string) IngestInput {
	return IngestInput{
		OrgID:  "org-1",
		DocID:  docID,
		Title:  "Title " + docID,
		Source: "test://" + docID,
		Data:   []byte(text),
	}
}

func (s *memStore) eventsFor(docID string) []domain.IngestEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.IngestEvent
	for _, ev := range s.events {
		if ev.DocID == docID {
			out = append(out, ev)
		}
	}
	return out
}
