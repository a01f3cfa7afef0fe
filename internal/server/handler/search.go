package handler

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/polysearch/internal/domain"
	"github.com/alanyoungcy/polysearch/internal/service"
)

// SearchService defines what the search handler requires from the service
// layer. It is declared locally so the handler package does not depend on the
// concrete service implementation.
type SearchService interface {
	Resolve(ctx context.Context, query string) (domain.Classification, error)
}

// SearchHandler serves query resolution over HTTP.
type SearchHandler struct {
	search SearchService
	logger *slog.Logger
}

// NewSearchHandler creates a SearchHandler.
func NewSearchHandler(search SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{search: search, logger: logHandler(logger, "search")}
}

type matchJSON struct {
	ID       string     `json:"id,omitempty"`
	Slug     string     `json:"slug,omitempty"`
	Question string     `json:"question"`
	URL      string     `json:"url,omitempty"`
	Score    float64    `json:"score"`
	Yes      *float64   `json:"yes"`
	No       *float64   `json:"no"`
	Volume   *float64   `json:"volume"`
	EndDate  *time.Time `json:"end_date"`
}

type searchResponse struct {
	Kind    domain.ClassificationKind `json:"kind"`
	Query   string                    `json:"query"`
	Matches []matchJSON               `json:"matches"`
}

func toMatchJSON(r domain.MatchResult) matchJSON {
	m := r.Market
	out := matchJSON{
		ID:       m.ID,
		Slug:     m.Slug,
		Question: m.Question,
		URL:      m.URL(),
		Score:    math.Round(r.Score*1000) / 1000,
		Volume:   m.Volume,
		EndDate:  m.EndDate,
	}
	if m.Prices.Available {
		yes, no := m.Prices.Yes, m.Prices.No
		out.Yes, out.No = &yes, &no
	}
	return out
}

// Search resolves a free-text query.
// GET /api/search?q=bitcoin+200k
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	result, err := h.search.Resolve(r.Context(), q)
	if err != nil {
		var rl *domain.RateLimitError
		switch {
		case errors.Is(err, domain.ErrEmptyQuery):
			writeError(w, http.StatusBadRequest, service.UserMessage(err))
		case errors.As(err, &rl):
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
			writeError(w, http.StatusServiceUnavailable, service.UserMessage(err))
		default:
			h.logger.ErrorContext(r.Context(), "handler: resolve failed",
				slog.String("query", q),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusServiceUnavailable, service.UserMessage(err))
		}
		return
	}

	resp := searchResponse{Kind: result.Kind, Query: result.Query, Matches: make([]matchJSON, 0, len(result.Matches))}
	for _, m := range result.Matches {
		resp.Matches = append(resp.Matches, toMatchJSON(m))
	}
	writeJSON(w, http.StatusOK, resp)
}
