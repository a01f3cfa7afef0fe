// Package pipeline runs background jobs that keep the catalog warm.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polysearch/internal/domain"
	"github.com/alanyoungcy/polysearch/internal/notify"
)

// CatalogRefresher forces a catalog refresh.
type CatalogRefresher interface {
	Refresh(ctx context.Context) (*domain.Snapshot, error)
}

// Alerter forwards operator alerts.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
	Clear(event string)
}

// CatalogWarmer refreshes the catalog on an interval so that user queries
// rarely wait on a source fetch.
type CatalogWarmer struct {
	catalog  CatalogRefresher
	alerter  Alerter
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	// holdUntil defers warming while the source has asked us to back off.
	holdUntil time.Time
	failing   bool
}

// NewCatalogWarmer creates a CatalogWarmer. alerter may be nil.
func NewCatalogWarmer(catalog CatalogRefresher, alerter Alerter, interval time.Duration, logger *slog.Logger) *CatalogWarmer {
	return &CatalogWarmer{
		catalog:  catalog,
		alerter:  alerter,
		interval: interval,
		logger:   logger.With(slog.String("component", "catalog_warmer")),
		now:      time.Now,
	}
}

// Run performs one warm-up. It is a no-op while a rate-limit backoff is in
// effect.
func (w *CatalogWarmer) Run(ctx context.Context) error {
	if now := w.now(); now.Before(w.holdUntil) {
		w.logger.DebugContext(ctx, "warm skipped during backoff",
			slog.Duration("remaining", w.holdUntil.Sub(now)),
		)
		return nil
	}

	snap, err := w.catalog.Refresh(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("catalog warmer: %w", ctx.Err())
		}
		w.failing = true

		var rl *domain.RateLimitError
		if errors.As(err, &rl) {
			w.holdUntil = w.now().Add(rl.RetryAfter)
			w.alert(ctx, notify.EventCatalogRateLimited, "Polymarket rate limit",
				fmt.Sprintf("Catalog refresh was rate limited; retrying after %s.", rl.RetryAfter))
		} else {
			w.alert(ctx, notify.EventCatalogRefreshFailed, "Catalog refresh failed", err.Error())
		}
		return fmt.Errorf("catalog warmer: %w", err)
	}

	if w.failing {
		w.failing = false
		if w.alerter != nil {
			w.alerter.Clear(notify.EventCatalogRefreshFailed)
			w.alerter.Clear(notify.EventCatalogRateLimited)
		}
		w.alert(ctx, notify.EventCatalogRecovered, "Catalog recovered",
			fmt.Sprintf("Catalog refreshed with %d markets.", snap.Len()))
	}
	w.logger.DebugContext(ctx, "catalog warmed", slog.Int("markets", snap.Len()))
	return nil
}

func (w *CatalogWarmer) alert(ctx context.Context, event, title, message string) {
	if w.alerter == nil {
		return
	}
	if err := w.alerter.Notify(ctx, event, title, message); err != nil {
		w.logger.WarnContext(ctx, "alert delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// RunLoop runs the warmer on a repeating interval until the context is
// cancelled.
func (w *CatalogWarmer) RunLoop(ctx context.Context) error {
	// Run immediately on start.
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		w.logger.ErrorContext(ctx, "catalog warm failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("catalog warmer stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "catalog warm failed", slog.String("error", err.Error()))
			}
		}
	}
}
