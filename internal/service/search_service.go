package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polysearch/internal/domain"
	"github.com/alanyoungcy/polysearch/internal/metrics"
)

// SnapshotProvider returns a catalog snapshot no older than maxAge when it
// can, falling back to an older one when the source is unavailable.
type SnapshotProvider interface {
	Get(ctx context.Context, maxAge time.Duration) (*domain.Snapshot, error)
}

// Matcher scores a query against a snapshot.
type Matcher interface {
	Match(ctx context.Context, query string, snap *domain.Snapshot) []domain.MatchResult
}

// Classifier turns ranked matches into a classification.
type Classifier interface {
	Classify(query string, matches []domain.MatchResult) domain.Classification
}

// SearchService resolves free-text queries to market classifications. It is
// the single entry point used by the bot, the HTTP API and the CLI.
type SearchService struct {
	catalog    SnapshotProvider
	matcher    Matcher
	classifier Classifier
	freshness  time.Duration
	logger     *slog.Logger
}

// NewSearchService creates a SearchService with all required dependencies.
func NewSearchService(
	catalog SnapshotProvider,
	matcher Matcher,
	classifier Classifier,
	freshness time.Duration,
	logger *slog.Logger,
) *SearchService {
	return &SearchService{
		catalog:    catalog,
		matcher:    matcher,
		classifier: classifier,
		freshness:  freshness,
		logger:     logger.With(slog.String("component", "search_service")),
	}
}

// Resolve fetches (or reuses) the catalog, matches query against it and
// classifies the result. An empty catalog resolves to a None classification;
// an error is returned only when no catalog could be obtained at all.
func (s *SearchService) Resolve(ctx context.Context, query string) (domain.Classification, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Classification{}, domain.ErrEmptyQuery
	}

	logger := s.logger.With(slog.String("request_id", uuid.NewString()))
	start := time.Now()

	snap, err := s.catalog.Get(ctx, s.freshness)
	if err != nil {
		logger.WarnContext(ctx, "catalog unavailable",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return domain.Classification{}, fmt.Errorf("search_service: resolve: %w", err)
	}

	matches := s.matcher.Match(ctx, query, snap)
	result := s.classifier.Classify(query, matches)
	metrics.Classifications.WithLabelValues(string(result.Kind)).Inc()

	attrs := []any{
		slog.String("query", query),
		slog.String("kind", string(result.Kind)),
		slog.Int("catalog_size", snap.Len()),
		slog.Int("matches", len(matches)),
		slog.Duration("elapsed", time.Since(start)),
	}
	for i, m := range matches {
		if i == 3 {
			break
		}
		attrs = append(attrs, slog.Group(fmt.Sprintf("top%d", i+1),
			slog.String("question", m.Market.Question),
			slog.Float64("score", math.Round(m.Score*10)/10),
		))
	}
	logger.InfoContext(ctx, "resolved query", attrs...)

	return result, nil
}

// UserMessage translates a Resolve error into a short message that is safe
// to show to an end user. Internal details never leak through it.
func UserMessage(err error) string {
	var rl *domain.RateLimitError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrEmptyQuery):
		return "Please provide a search query."
	case errors.As(err, &rl):
		secs := int(math.Ceil(rl.RetryAfter.Seconds()))
		if secs <= 0 {
			return "Rate limited by Polymarket. Please try again in a moment."
		}
		return fmt.Sprintf("Rate limited by Polymarket. Please try again in %d seconds.", secs)
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out. Please try again."
	case errors.Is(err, domain.ErrTransientFetch):
		return "Polymarket is unavailable right now. Please try again later."
	case errors.Is(err, domain.ErrMalformedResponse):
		return "Received invalid data from Polymarket. Please try again later."
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrRequestRejected), errors.Is(err, domain.ErrNotFound):
		return "Polymarket rejected the request. Please try again later."
	default:
		return "An unexpected error occurred. Please try again later."
	}
}
