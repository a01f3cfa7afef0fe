package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTransientFetch    = errors.New("transient fetch failure")
	ErrMalformedResponse = errors.New("malformed response")
	ErrRequestRejected   = errors.New("request rejected")
	ErrEmptyQuery        = errors.New("empty query")
	ErrWSDisconnect      = errors.New("websocket disconnected")
)

// DefaultRetryAfter is assumed when a rate-limited response carries no usable
// Retry-After header.
const DefaultRetryAfter = 60 * time.Second

// RateLimitError reports that the upstream asked us to back off. It is never
// retried by the source adapter.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

// Unwrap lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// TransientError reports that every attempt of a retried fetch failed with a
// transient condition (timeout, server error, network failure). Status is the
// last HTTP status seen, or zero when no response arrived.
type TransientError struct {
	Attempts int
	Status   int
	Err      error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transient fetch failure after %d attempt(s) (last status %d): %v", e.Attempts, e.Status, e.Err)
	}
	return fmt.Sprintf("transient fetch failure after %d attempt(s): %v", e.Attempts, e.Err)
}

// Unwrap exposes both the sentinel and the last underlying cause.
func (e *TransientError) Unwrap() []error { return []error{ErrTransientFetch, e.Err} }
