//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/groundwork/internal/api/handlers"
	"github.com/cloo-solutions/groundwork/internal/cli/client"
	"github.com/cloo-solutions/groundwork/internal/embedding"
	"github.com/cloo-solutions/groundwork/internal/jobs"
	"github.com/cloo-solutions/groundwork/internal/repository"
	"github.com/cloo-solutions/groundwork/internal/server"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/cloo-solutions/groundwork/internal/storage"
	"github.com/cloo-solutions/groundwork/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

// evidenceThreshold is lower than the production default so hash embeddings over tiny
// test corpora still clear the gate for on-topic questions.
const evidenceThreshold = 0.05

// The e2e suite talks to the server through the same client the CLI uses.
type (
	APIResponse = client.APIResponse
	HTTPError   = client.APIError
)

// E2ETestEnv is one Postgres, one RustFS bucket and one in-process server.
type E2ETestEnv struct {
	T           *testing.T
	Ctx         context.Context
	Pool        *pgxpool.Pool
	ServerURL   string
	BinaryDir   string
	OrgID       string
	APIKeyToken string

	closers []func()
}

func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()
	e := &E2ETestEnv{T: t, Ctx: ctx}

	pg := testutil.NewPostgresContainer(ctx, t)
	e.onCleanup(func() { _ = pg.Terminate(ctx) })
	fs := testutil.NewRustFSContainer(ctx, t)
	e.onCleanup(func() { _ = fs.Terminate(ctx) })

	e.Pool = testutil.NewTestPool(ctx, t, pg, "../../migrations")
	e.onCleanup(e.Pool.Close)

	sources, err := storage.NewS3SourceStore(ctx, storage.S3ClientConfig{
		Endpoint:        fs.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSAccessKey,
		SecretAccessKey: testutil.RustFSSecretKey,
		Bucket:          "e2e-sources",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("source store: %v", err)
	}
	if err := sources.EnsureBucket(ctx); err != nil {
		t.Fatalf("source bucket: %v", err)
	}

	e.ServerURL = e.startServer(sources)
	return e
}

func (e *E2ETestEnv) onCleanup(fn func()) {
	e.closers = append(e.closers, fn)
}

// Cleanup stops the server and worker, then the containers, in reverse start order.
func (e *E2ETestEnv) Cleanup() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// Bootstrap creates an organization and a restricted-clearance ingest key through the
// unauthenticated admin routes.
func (e *E2ETestEnv) Bootstrap() {
	var org struct {
		ID string `json:"id"`
	}
	resp, err := e.Post("/orgs", map[string]string{"name": "E2E Test Org"}, "")
	e.mustData(resp, err, &org)
	e.OrgID = org.ID
	e.APIKeyToken = e.CreateKey("e2e-admin", "restricted", true)
}

func (e *E2ETestEnv) CreateKey(name, clearance string, canIngest bool) string {
	var key struct {
		Token string `json:"token"`
	}
	resp, err := e.Post("/apikeys", map[string]any{
		"org_id":     e.OrgID,
		"name":       name,
		"clearance":  clearance,
		"can_ingest": canIngest,
	}, "")
	e.mustData(resp, err, &key)
	return key.Token
}

func (e *E2ETestEnv) mustData(resp *APIResponse, err error, into any) {
	e.T.Helper()
	if err != nil {
		e.T.Fatalf("request failed: %v", err)
	}
	if err := json.Unmarshal(resp.Data, into); err != nil {
		e.T.Fatalf("unexpected response %s: %v", resp.Data, err)
	}
}

// BuildBinaries compiles both commands into a temp dir removed on Cleanup.
func (e *E2ETestEnv) BuildBinaries() {
	dir, err := os.MkdirTemp("", "groundwork-e2e-*")
	if err != nil {
		e.T.Fatalf("binary dir: %v", err)
	}
	e.BinaryDir = dir
	e.onCleanup(func() { _ = os.RemoveAll(dir) })

	for _, name := range []string{"groundworkd", "groundwork"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(dir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("go build %s: %v\n%s", name, err, out)
		}
	}
}

func (e *E2ETestEnv) RunGroundwork(workDir string, args ...string) (string, error) {
	return e.RunGroundworkWithInput(workDir, "", args...)
}

// RunGroundworkWithInput runs the client binary with workDir as its config home, so a
// saved profile never leaks between tests.
func (e *E2ETestEnv) RunGroundworkWithInput(workDir string, input string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "groundwork"), args...)
	cmd.Dir = workDir
	cmd.Stdin = strings.NewReader(input)
	cmd.Env = append(os.Environ(),
		"GROUNDWORK_API_KEY="+e.APIKeyToken,
		"GROUNDWORK_API_URL="+e.ServerURL,
		"XDG_CONFIG_HOME="+workDir,
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func (e *E2ETestEnv) api(token string) *client.APIClient {
	return client.NewAPIClientWithConfig(token, e.ServerURL)
}

func (e *E2ETestEnv) Get(path, token string) (*APIResponse, error) {
	return e.api(token).Get(path)
}

func (e *E2ETestEnv) Post(path string, body any, token string) (*APIResponse, error) {
	return e.api(token).Post(path, body)
}

func (e *E2ETestEnv) Delete(path, token string) (*APIResponse, error) {
	return e.api(token).Delete(path)
}

// startServer wires the services the way groundworkd serve does, with hash embeddings,
// the extractive answerer and a fast-polling replay worker.
func (e *E2ETestEnv) startServer(sources service.SourceStore) string {
	pool := e.Pool
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	orgRepo := repository.NewOrgRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	docs := repository.NewDocumentRepository(pool)
	chunks := repository.NewChunkRepository(pool)
	txRunner := repository.NewTxRunner(pool, 10*time.Second)
	cache := service.NewRetrievalCache(30*time.Second, 128)
	chunking := service.DefaultChunkConfig()

	embedder := embedding.NewResilient(embedding.NewHashEmbedder(embedding.DefaultHashDim), embedding.ResilientConfig{
		Timeout:  5 * time.Second,
		Fallback: true,
	}, logger)

	authSvc := service.NewAuthService(orgRepo, apiKeyRepo, &service.DefaultUUIDGenerator{})
	signatures := service.NewSignatureService(repository.NewIndexSignatureRepository(pool), chunks, txRunner, embedder, chunking, logger)
	ingestSvc := service.NewIngestService(service.IngestDeps{
		Documents:  docs,
		Events:     repository.NewIngestEventRepository(pool),
		TxRunner:   txRunner,
		Signatures: signatures,
		Sources:    sources,
		Embedder:   embedder,
		Chunking:   chunking,
		Cache:      cache,
		Logger:     logger,
	})
	retriever := service.NewRetriever(repository.NewSearchRepository(pool), embedder, service.DefaultRetrievalConfig(), cache, signatures, logger)
	querySvc := service.NewQueryService(retriever, service.NewExtractiveAnswerer(), service.NewSafetyGate(evidenceThreshold, 0), true, logger).
		WithQueryLog(repository.NewQueryLogRepository(pool))
	replaySvc := service.NewReplayService(repository.NewReplayRunRepository(pool), docs, sources, ingestSvc, 2, logger)

	if _, err := signatures.Ensure(e.Ctx); err != nil {
		e.T.Fatalf("index signature: %v", err)
	}

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:   authSvc,
		DocumentHandler: handlers.NewDocumentHandler(ingestSvc),
		QueryHandler:    handlers.NewQueryHandler(querySvc),
		ReplayHandler:   handlers.NewReplayHandler(replaySvc),
		AuthHandler:     handlers.NewAuthHandler(authSvc),
	})

	workerCtx, stopWorker := context.WithCancel(e.Ctx)
	worker := jobs.NewWorker("replay", jobs.NewReplayWorker(replaySvc, jobs.DefaultRunsPerTick, logger), 200*time.Millisecond, logger)
	replaySvc.OnEnqueue(worker.Wake)
	go worker.Start(workerCtx)
	e.onCleanup(stopWorker)

	srv := httptest.NewServer(router)
	e.onCleanup(srv.Close)
	return srv.URL
}
