package handler

import (
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/alanyoungcy/polysearch/internal/catalog"
)

// CatalogStatus reports the state of the market cache.
type CatalogStatus interface {
	Status() catalog.Status
}

// CatalogHandler exposes the market cache state.
type CatalogHandler struct {
	catalog CatalogStatus
	logger  *slog.Logger
}

// NewCatalogHandler creates a CatalogHandler.
func NewCatalogHandler(c CatalogStatus, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: c, logger: logHandler(logger, "catalog")}
}

type catalogResponse struct {
	Markets    int        `json:"markets"`
	FetchedAt  *time.Time `json:"fetched_at"`
	AgeSeconds float64    `json:"age_seconds"`
	LastError  string     `json:"last_error,omitempty"`
}

// Status returns the snapshot size and age.
// GET /api/catalog
func (h *CatalogHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.catalog.Status()
	resp := catalogResponse{
		Markets:    st.Markets,
		AgeSeconds: math.Round(st.Age.Seconds()*10) / 10,
		LastError:  st.LastError,
	}
	if !st.FetchedAt.IsZero() {
		fetched := st.FetchedAt.UTC()
		resp.FetchedAt = &fetched
	}
	writeJSON(w, http.StatusOK, resp)
}
