package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/Eskedar21/VIMS-sub000/internal/safety"
)

// DefaultMaxBytes bounds a fetch when FetchOptions.MaxBytes is unset.
const DefaultMaxBytes = 10 << 20

// FetchOptions contains configuration for a single fetch.
type FetchOptions struct {
	URL        string
	MaxBytes   int64 // 0 defaults to DefaultMaxBytes
	RetryCount int   // 0 defaults to 3
}

// FetchResult contains the body of a successful fetch.
type FetchResult struct {
	Data        []byte
	ContentType string
	SHA256      string
	Attempts    int
	Duration    time.Duration
}

// Client fetches remote resources into memory with retries and a size bound.
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	userAgent   string
	backoffFunc func(attempt int) time.Duration
}

// NewClient creates a new fetch client. timeout bounds each attempt.
func NewClient(logger *slog.Logger, timeout time.Duration) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:  safety.NewHTTPClient(timeout),
		logger:      logger,
		userAgent:   "vims-agent/1.0",
		backoffFunc: calculateBackoffDelay,
	}
}

// Fetch downloads opts.URL into memory.
// 4xx responses (except 429) and oversized bodies are not retried.
func (c *Client) Fetch(ctx context.Context, opts FetchOptions) (*FetchResult, error) {
	if _, err := safety.ValidateHTTPURL(opts.URL); err != nil {
		return nil, err
	}
	if opts.RetryCount <= 0 {
		opts.RetryCount = 3
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}

	startTime := time.Now()
	var lastErr error

	for attempt := 1; attempt <= opts.RetryCount; attempt++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch cancelled: %w", ctx.Err())
		default:
		}

		result, err := c.fetchAttempt(ctx, opts)
		if err == nil {
			result.Attempts = attempt
			result.Duration = time.Since(startTime)
			return result, nil
		}

		lastErr = err
		c.logger.Warn("fetch attempt failed", "url", opts.URL, "attempt", attempt, "error", err)

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if shouldNotRetry(err) {
			return nil, err
		}

		if attempt < opts.RetryCount {
			delay := c.backoffFunc(attempt)
			c.logger.Debug("retrying fetch", "url", opts.URL, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch cancelled during retry: %w", ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("fetch failed after %d attempts: %w", opts.RetryCount, lastErr)
}

func (c *Client) fetchAttempt(ctx context.Context, opts FetchOptions) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := safety.ReadAllWithLimit(resp.Body, 4096)
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	if resp.ContentLength > opts.MaxBytes {
		return nil, fmt.Errorf("%w: content length %d exceeds %d", safety.ErrBodyTooLarge, resp.ContentLength, opts.MaxBytes)
	}

	data, err := safety.ReadAllWithLimit(resp.Body, opts.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
		if i := strings.Index(contentType, ";"); i >= 0 {
			contentType = contentType[:i]
		}
	}

	sum := sha256.Sum256(data)
	return &FetchResult{
		Data:        data,
		ContentType: contentType,
		SHA256:      hex.EncodeToString(sum[:]),
	}, nil
}

// calculateBackoffDelay calculates exponential backoff with jitter.
// Base delay is 500ms, doubling each attempt, plus up to half the delay in jitter.
func calculateBackoffDelay(attempt int) time.Duration {
	baseDelay := 500 * time.Millisecond
	exponentialDelay := time.Duration(math.Pow(2, float64(attempt-1))) * baseDelay
	maxJitter := exponentialDelay / 2
	jitter := time.Duration(rand.Int64N(int64(maxJitter)))
	return exponentialDelay + jitter
}

// shouldNotRetry returns true if the error should not trigger a retry.
func shouldNotRetry(err error) bool {
	if errors.Is(err, safety.ErrBodyTooLarge) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 && httpErr.StatusCode != http.StatusTooManyRequests {
			return true
		}
	}
	return false
}

// HTTPError represents a non-2xx response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d: %s", e.StatusCode, e.Status)
}
