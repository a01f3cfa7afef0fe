// Package polymarket is the catalog source adapter for the Polymarket Gamma
// REST API. It fetches the list of open markets, retries transient failures
// with exponential backoff, and admits well-formed records into an immutable
// domain.Snapshot.
package polymarket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polysearch/internal/domain"
	"github.com/alanyoungcy/polysearch/internal/metrics"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 32 << 20

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and metadata.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	attempts       int
	retryBackoff   time.Duration
	attemptTimeout time.Duration

	limit         int
	includeClosed bool
	order         string

	now func() time.Time
}

// ClientOption configures a GammaClient.
type ClientOption func(*GammaClient)

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, opts ...ClientOption) *GammaClient {
	g := &GammaClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		logger:         slog.Default(),
		attempts:       3,
		retryBackoff:   time.Second,
		attemptTimeout: 30 * time.Second,
		limit:          100,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(slog.String("component", "gamma_client"))
	return g
}

// WithTimeout bounds each individual attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(g *GammaClient) {
		g.attemptTimeout = d
	}
}

// WithRetries sets the total number of attempts and the base backoff. The
// wait before attempt n (n >= 2) is backoff * 2^(n-2).
func WithRetries(attempts int, backoff time.Duration) ClientOption {
	return func(g *GammaClient) {
		if attempts < 1 {
			attempts = 1
		}
		g.attempts = attempts
		g.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(g *GammaClient) {
		g.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(g *GammaClient) {
		g.httpClient = hc
	}
}

// WithMarketQuery sets the listing parameters: how many markets to request,
// whether closed markets are included, and an optional sort field.
func WithMarketQuery(limit int, includeClosed bool, order string) ClientOption {
	return func(g *GammaClient) {
		if limit > 0 {
			g.limit = limit
		}
		g.includeClosed = includeClosed
		g.order = order
	}
}

// WithClock overrides the time source used for snapshot timestamps and
// Retry-After dates.
func WithClock(now func() time.Time) ClientOption {
	return func(g *GammaClient) {
		g.now = now
	}
}

// FetchSnapshot retrieves the current market listing and returns it as a
// snapshot. Transient failures (timeouts, 5xx, network errors) are retried up
// to the configured attempt count; rate limiting, other 4xx responses and
// malformed payloads fail immediately.
func (g *GammaClient) FetchSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	start := time.Now()
	defer func() { metrics.FetchDuration.Observe(time.Since(start).Seconds()) }()

	path := g.marketsPath()

	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 1; attempt <= g.attempts; attempt++ {
		if attempt > 1 {
			wait := g.retryBackoff << (attempt - 2)
			g.logger.WarnContext(ctx, "retrying market fetch",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("polymarket/gamma: fetch markets: %w", ctx.Err())
			case <-time.After(wait):
			}
		}

		body, err := g.doGet(ctx, path)
		if err == nil {
			markets, skipped, derr := decodeMarkets(body)
			if derr != nil {
				metrics.FetchAttempts.WithLabelValues("malformed").Inc()
				return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", derr)
			}
			metrics.FetchAttempts.WithLabelValues("ok").Inc()
			if skipped > 0 {
				metrics.RecordsSkipped.Add(float64(skipped))
				g.logger.DebugContext(ctx, "skipped invalid market records", slog.Int("skipped", skipped))
			}
			g.logger.InfoContext(ctx, "fetched markets",
				slog.Int("markets", len(markets)),
				slog.Int("attempt", attempt),
			)
			return domain.NewSnapshot(markets, g.now()), nil
		}

		var te *transientError
		if !errors.As(err, &te) {
			metrics.FetchAttempts.WithLabelValues(outcomeLabel(err)).Inc()
			return nil, fmt.Errorf("polymarket/gamma: fetch markets: %w", err)
		}
		metrics.FetchAttempts.WithLabelValues("transient").Inc()
		lastErr, lastStatus = te.err, te.status
	}

	return nil, fmt.Errorf("polymarket/gamma: fetch markets: %w", &domain.TransientError{
		Attempts: g.attempts,
		Status:   lastStatus,
		Err:      lastErr,
	})
}

func (g *GammaClient) marketsPath() string {
	params := url.Values{}
	params.Set("closed", strconv.FormatBool(g.includeClosed))
	params.Set("limit", strconv.Itoa(g.limit))
	if g.order != "" {
		params.Set("order", g.order)
		params.Set("ascending", "false")
	}
	return "/markets?" + params.Encode()
}

// transientError marks a single failed attempt as worth retrying.
type transientError struct {
	status int
	err    error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// doGet performs one bounded attempt.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		// The caller giving up is final; the attempt deadline or a network
		// failure is not.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transientError{err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transientError{status: resp.StatusCode, err: fmt.Errorf("read response: %w", err)}
	}

	if err := g.checkHTTPStatus(resp, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (g *GammaClient) checkHTTPStatus(resp *http.Response, body []byte) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	bodyStr := truncate(string(body), 256)
	switch {
	case code == http.StatusTooManyRequests:
		return &domain.RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), g.now())}
	case code >= 500:
		return &transientError{status: code, err: fmt.Errorf("HTTP %d: %s", code, bodyStr)}
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrRequestRejected, code, bodyStr)
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP-date. A missing or
// unusable header yields domain.DefaultRetryAfter.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return domain.DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return domain.DefaultRetryAfter
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
		return 0
	}
	return domain.DefaultRetryAfter
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "rejected"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
