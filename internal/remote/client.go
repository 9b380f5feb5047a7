// Package remote talks to the central inspection system: submitting
// inspection records and the login and machine-trust calls used by the
// kiosk sign-in screen.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Eskedar21/VIMS-sub000/internal/safety"
)

const (
	syncPath = "/api/inspections/sync"

	maxErrorBody    int64 = 4096
	maxResponseBody int64 = 1 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL  string
	UseMocks bool
	Timeout  time.Duration
}

// Client is the remote API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	useMocks   bool
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string

	mu    sync.RWMutex
	token string
}

// New creates a Client. The base URL is validated unless mocks are enabled.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base != "" {
		u, err := safety.ValidateHTTPURL(base)
		if err != nil {
			return nil, fmt.Errorf("invalid api base url: %w", err)
		}
		if safety.IsPlaintextRemote(u) {
			logger.Warn("remote api uses plain http", "base_url", base)
		}
	} else if !opts.UseMocks {
		return nil, fmt.Errorf("api base url is required")
	}

	return &Client{
		baseURL:    base,
		useMocks:   opts.UseMocks,
		httpClient: safety.NewHTTPClient(opts.Timeout),
		logger:     logger,
		userAgent:  "vims-agent/1.0",
	}, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// UsesMocks reports whether auth calls are answered locally.
func (c *Client) UsesMocks() bool { return c.useMocks }

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SubmitInspection posts one inspection payload. Only 200 and 201 count as
// success; any other status yields an *HTTPError.
func (c *Client) SubmitInspection(ctx context.Context, p Payload) error {
	resp, err := c.post(ctx, syncPath, p)
	if err != nil {
		return fmt.Errorf("failed to submit inspection %s: %w", p.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("failed to submit inspection %s: %w", p.ID, newHTTPError(resp))
	}

	// drain so the connection can be reused
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	c.logger.Debug("inspection submitted", "id", p.ID, "status", resp.StatusCode)
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("api base url is not configured")
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	return resp, nil
}

// postJSON posts body and decodes a 2xx JSON response into out.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	resp, err := c.post(ctx, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newHTTPError(resp)
	}

	data, err := safety.ReadAllWithLimit(resp.Body, maxResponseBody)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// HTTPError is a response with an unexpected status code.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func newHTTPError(resp *http.Response) *HTTPError {
	body, _ := safety.ReadAllWithLimit(resp.Body, maxErrorBody)
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("remote returned %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("remote returned %s", e.Status)
}
