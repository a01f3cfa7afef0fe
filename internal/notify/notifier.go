// Package notify sends operator alerts about the catalog and the bot to
// Telegram and Discord webhooks. Alerts are filtered by event type, and a
// repeat of the same event is suppressed for a quiet period so a source that
// stays down does not page on every refresh.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Event types raised by polysearch.
const (
	EventCatalogRefreshFailed = "catalog_refresh_failed"
	EventCatalogRateLimited   = "catalog_rate_limited"
	EventCatalogRecovered     = "catalog_recovered"
	EventBotStarted           = "bot_started"
	EventBotDisconnected      = "bot_disconnected"
)

// DefaultQuietPeriod is how long a repeated event stays suppressed.
const DefaultQuietPeriod = 30 * time.Minute

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Notify only
// forwards events in the allowed set and drops repeats inside the quiet
// period; NotifyAll bypasses both.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	quiet   time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice will be forwarded by Notify.
// If events is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders:  senders,
		events:   allowed,
		quiet:    DefaultQuietPeriod,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "notifier")),
		lastSent: make(map[string]time.Time),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends a notification to all senders if the event type is allowed and
// the same event was not sent within the quiet period. Resetting an event
// with Clear lets the next occurrence through immediately.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}

	n.mu.Lock()
	now := n.now()
	if last, ok := n.lastSent[event]; ok && now.Sub(last) < n.quiet {
		n.mu.Unlock()
		n.logger.DebugContext(ctx, "event suppressed",
			slog.String("event", event),
			slog.Time("last_sent", last),
		)
		return nil
	}
	n.lastSent[event] = now
	n.mu.Unlock()

	return n.dispatch(ctx, title, message)
}

// Clear forgets when event was last sent.
func (n *Notifier) Clear(event string) {
	if n == nil {
		return
	}
	n.mu.Lock()
	delete(n.lastSent, event)
	n.mu.Unlock()
}

// NotifyAll sends a notification to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender. A single sender failure does not prevent
// delivery to the remaining senders; failures are joined.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), err)
	}
	return nil
}
