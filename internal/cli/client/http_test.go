package client

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClient_SendsBearerAndJSON(t *testing.T) {
	var gotAuth, gotType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	api := NewAPIClientWithConfig(testAPIKey, srv.URL)
	resp, err := api.Post("/query", map[string]string{"question": "why"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer "+testAPIKey, gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "why", gotBody["question"])
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Data))
}

func TestAPIClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"embedding backend unavailable","code":"UPSTREAM_UNAVAILABLE","retryable":true}`))
	}))
	defer srv.Close()

	_, err := fastRetryClient(srv.URL).Get("/documents/x")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", apiErr.Code)
	assert.True(t, apiErr.Retryable)
	assert.Contains(t, err.Error(), "embedding backend unavailable")
}

func TestAPIClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := fastRetryClient(srv.URL).Get("/health")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Empty(t, apiErr.Code)
}

func TestAPIClient_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/documents/doc-1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := NewAPIClientWithConfig(testAPIKey, srv.URL).Delete("/documents/doc-1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, resp.Data)
}

func TestAsk_ParsesRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"question":"q","answer":"","refused":true,"refusal_reason":"insufficient_evidence","citations":[]}}`))
	}))
	defer srv.Close()

	result, err := ask(NewAPIClientWithConfig(testAPIKey, srv.URL), QueryRequest{Question: "q"})
	require.NoError(t, err)
	assert.True(t, result.Refused)
	assert.Equal(t, "insufficient_evidence", result.RefusalReason)
	assert.Empty(t, result.Citations)
}

func TestLineagePath(t *testing.T) {
	assert.Equal(t, "/documents/doc-1/lineage", lineagePath("doc-1", "", 0))
	assert.Equal(t, "/documents/doc-1/lineage?cursor=abc&limit=5", lineagePath("doc-1", "abc", 5))
	assert.Equal(t, "/documents/a%2Fb/lineage", lineagePath("a/b", "", 0))
}

func TestWaitForRun_PollsUntilTerminal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		status := "running"
		if calls >= 3 {
			status = "completed"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"run_id": "run-1", "status": status, "scanned": calls},
		})
	}))
	defer srv.Close()

	run, err := waitForRun(NewAPIClientWithConfig(testAPIKey, srv.URL), "run-1", 0)
	require.NoError(t, err)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 3, run.Scanned)
	assert.Equal(t, 3, calls)
}

func fastRetryClient(url string) *APIClient {
	api := NewAPIClientWithConfig(testAPIKey, url)
	api.retryWait = time.Millisecond
	return api
}

func TestAPIClient_Retries(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		status    int
		body      string
		wantCalls int
	}{
		{"retryable ingest", http.MethodPost, http.StatusServiceUnavailable, `{"error":"embedding timed out","retryable":true}`, 3},
		{"gateway error on read", http.MethodGet, http.StatusBadGateway, `bad gateway`, 3},
		{"gateway error on write", http.MethodPost, http.StatusBadGateway, `bad gateway`, 1},
		{"validation error", http.MethodPost, http.StatusBadRequest, `{"error":"question is required","code":"VALIDATION_ERROR"}`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			api := fastRetryClient(srv.URL)
			var err error
			if tt.method == http.MethodGet {
				_, err = api.Get("/documents/d1")
			} else {
				_, err = api.Post("/ingest", map[string]string{"text": "x"})
			}

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, int32(tt.wantCalls), calls.Load())
		})
	}
}

func TestAPIClient_RetryRecovers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"busy","retryable":true}`))
			return
		}
		assert.Equal(t, "groundwork-cli", r.UserAgent())
		_, _ = w.Write([]byte(`{"data":{"doc_id":"d1","changed":true}}`))
	}))
	defer srv.Close()

	resp, err := fastRetryClient(srv.URL+"/").Post("/ingest", map[string]string{"text": "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"doc_id":"d1","changed":true}`, string(resp.Data))
	assert.Equal(t, int32(2), calls.Load())
}
