package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/alanyoungcy/polysearch/internal/domain"
)

// REST is a client for the handful of Discord HTTP endpoints the bot uses.
type REST struct {
	base   string
	token  string
	http   *http.Client
	logger *slog.Logger
}

// NewREST creates a REST client. A nil httpClient uses a 10s timeout client.
func NewREST(base, token string, httpClient *http.Client, logger *slog.Logger) *REST {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &REST{
		base:   base,
		token:  token,
		http:   httpClient,
		logger: logger.With(slog.String("component", "discord_rest")),
	}
}

// CreateMessage posts a message to a channel.
func (r *REST) CreateMessage(ctx context.Context, channelID string, msg MessageSend) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("discord/rest: marshal message: %w", err)
	}
	return r.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", body)
}

// TriggerTyping shows the typing indicator in a channel for a few seconds.
func (r *REST) TriggerTyping(ctx context.Context, channelID string) error {
	return r.do(ctx, http.MethodPost, "/channels/"+channelID+"/typing", nil)
}

func (r *REST) do(ctx context.Context, method, path string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.base+path, reader)
	if err != nil {
		return fmt.Errorf("discord/rest: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+r.token)
	req.Header.Set("User-Agent", "DiscordBot (https://github.com/alanyoungcy/polysearch, 1.0)")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("discord/rest: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		var rl struct {
			RetryAfter float64 `json:"retry_after"`
		}
		_ = json.Unmarshal(respBody, &rl)
		wait := time.Duration(math.Ceil(rl.RetryAfter*1000)) * time.Millisecond
		if wait <= 0 {
			wait = time.Second
		}
		r.logger.WarnContext(ctx, "discord rate limited", slog.String("path", path), slog.Duration("retry_after", wait))
		return fmt.Errorf("discord/rest: %s: %w", path, &domain.RateLimitError{RetryAfter: wait})
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("discord/rest: %s: status %d: %w", path, resp.StatusCode, domain.ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("discord/rest: %s: %w", path, domain.ErrNotFound)
	default:
		return fmt.Errorf("discord/rest: %s: status %d: %s", path, resp.StatusCode, string(respBody))
	}
}
