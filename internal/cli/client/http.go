package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
)

const (
	envAPIKey = "GROUNDWORK_API_KEY"
	envAPIURL = "GROUNDWORK_API_URL"

	defaultAPIURL = "http://localhost:8080"
	userAgent     = "groundwork-cli"

	defaultRetries   = 2
	defaultRetryWait = 250 * time.Millisecond
)

type APIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retries    uint64
	retryWait  time.Duration
}

// NewAPIClientWithCmd builds a client from --api-key/--api-url, the environment or the
// saved profile (see resolveCredentials). A nil cmd skips the flags.
func NewAPIClientWithCmd(cmd *cobra.Command) (*APIClient, error) {
	var flagKey, flagURL string
	if cmd != nil {
		flagKey, _ = cmd.Flags().GetString("api-key")
		flagURL, _ = cmd.Flags().GetString("api-url")
	}

	creds, err := resolveCredentials(flagKey, flagURL)
	if err != nil {
		return nil, err
	}
	if creds.source == SourceNone {
		return nil, fmt.Errorf("%s not set (run 'groundwork auth login' or set environment variable)", envAPIKey)
	}
	return NewAPIClientWithConfig(creds.apiKey, creds.apiURL), nil
}

// NewAPIClientWithConfig creates an APIClient with explicit config.
func NewAPIClientWithConfig(apiKey, baseURL string) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retries:    defaultRetries,
		retryWait:  defaultRetryWait,
	}
}

// APIResponse represents the standard API response format.
type APIResponse struct {
	StatusCode int             `json:"-"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	Code       string          `json:"code,omitempty"`
	Retryable  bool            `json:"retryable,omitempty"`
}

// APIError represents an error from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Get performs a GET request.
func (c *APIClient) Get(path string) (*APIResponse, error) {
	return c.do(http.MethodGet, path, nil)
}

// Post performs a POST request with JSON body.
func (c *APIClient) Post(path string, body any) (*APIResponse, error) {
	return c.do(http.MethodPost, path, body)
}

// Delete performs a DELETE request.
func (c *APIClient) Delete(path string) (*APIResponse, error) {
	return c.do(http.MethodDelete, path, nil)
}

// do sends the request, retrying errors the server marks retryable and, for GET and
// DELETE, transport failures and gateway errors.
func (c *APIClient) do(method, path string, body any) (*APIResponse, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryWait
	policy.MaxElapsedTime = 0

	var resp *APIResponse
	err := backoff.Retry(func() error {
		var err error
		resp, err = c.send(method, path, payload)
		if err != nil && !retryable(method, err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithMaxRetries(policy, c.retries))
	return resp, err
}

func retryable(method string, err error) bool {
	idempotent := method == http.MethodGet || method == http.MethodDelete

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return idempotent
	}
	if apiErr.Retryable {
		return true
	}
	switch apiErr.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return idempotent
	}
	return false
}

func (c *APIClient) send(method, path string, payload []byte) (*APIResponse, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	apiResp := APIResponse{StatusCode: resp.StatusCode}
	failed := resp.StatusCode >= 400
	switch {
	case len(respBody) == 0 && failed:
		return nil, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	case len(respBody) == 0:
		return &apiResp, nil
	}

	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if failed {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if failed {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       apiResp.Code,
			Message:    apiResp.Error,
			Retryable:  apiResp.Retryable,
		}
	}
	return &apiResp, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
