// Package triage provides a client for the remote triage assistant service.
package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"healthguide-go/internal/config"
	"healthguide-go/internal/model"
)

const (
	sessionPath   = "/api/session"
	triagePath    = "/api/triage"
	providersPath = "/api/providers"

	maxErrorBody    = 4096
	maxResponseBody = 1 << 20
)

// Client defines the three operations the triage backend exposes.
type Client interface {
	// CreateSession asks the backend for a new session identifier.
	CreateSession(ctx context.Context) (string, error)
	// Exchange sends one user turn together with the prior history.
	Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResponse, error)
	// LookupProviders returns nearby providers in backend order.
	LookupProviders(ctx context.Context, loc model.Location) ([]model.Provider, error)
}

// ExchangeRequest is the body of a triage turn.
type ExchangeRequest struct {
	SessionID           string               `json:"session_id"`
	Message             string               `json:"message"`
	ConversationHistory []model.HistoryEntry `json:"conversation_history"`
}

// ExchangeResponse is the backend reply for one turn. TriageResult and
// ConversationComplete are optional and stay nil when the backend omits them.
type ExchangeResponse struct {
	SessionID            string              `json:"session_id,omitempty"`
	Message              string              `json:"message"`
	TriageResult         *model.TriageResult `json:"triage_result,omitempty"`
	ConversationComplete *bool               `json:"conversation_complete,omitempty"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("triage: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// HTTPStatusCode returns the upstream status code.
func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

// Option customises the client.
type Option func(*httpClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(hc *httpClient) {
		if c != nil {
			hc.client = c
		}
	}
}

// NewClient creates a triage client for the configured backend. Per-call
// deadlines come from the caller's context, so the http.Client has no timeout.
func NewClient(cfg config.TriageConfig, opts ...Option) Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BackendURL), "/")
	if base == "" {
		base = config.DefaultBackendURL
	}
	c := &httpClient{
		baseURL: base,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession calls POST /api/session.
func (c *httpClient) CreateSession(ctx context.Context) (string, error) {
	var resp sessionResponse
	if err := c.doJSON(ctx, sessionPath, nil, &resp); err != nil {
		return "", fmt.Errorf("triage: create session: %w", err)
	}
	id := strings.TrimSpace(resp.SessionID)
	if id == "" {
		return "", errors.New("triage: create session: empty session_id in response")
	}
	return id, nil
}

// Exchange calls POST /api/triage.
func (c *httpClient) Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResponse, error) {
	if req.ConversationHistory == nil {
		req.ConversationHistory = []model.HistoryEntry{}
	}
	var resp ExchangeResponse
	if err := c.doJSON(ctx, triagePath, req, &resp); err != nil {
		return nil, fmt.Errorf("triage: exchange: %w", err)
	}
	if err := validateExchangeResponse(&resp); err != nil {
		return nil, fmt.Errorf("triage: exchange: %w", err)
	}
	return &resp, nil
}

// LookupProviders calls POST /api/providers.
func (c *httpClient) LookupProviders(ctx context.Context, loc model.Location) ([]model.Provider, error) {
	var providers []model.Provider
	if err := c.doJSON(ctx, providersPath, loc, &providers); err != nil {
		return nil, fmt.Errorf("triage: lookup providers: %w", err)
	}
	if providers == nil {
		providers = []model.Provider{}
	}
	return providers, nil
}

func validateExchangeResponse(resp *ExchangeResponse) error {
	if strings.TrimSpace(resp.Message) == "" {
		return errors.New("malformed response: empty message")
	}
	if resp.TriageResult != nil && !resp.TriageResult.TriageLevel.Valid() {
		return fmt.Errorf("malformed response: unknown triage_level %q", resp.TriageResult.TriageLevel)
	}
	return nil
}

func (c *httpClient) doJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		reqBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBytes)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPStatusError{StatusCode: resp.StatusCode, URL: url, Body: string(buf)}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
