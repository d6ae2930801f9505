package api

import (
	"context"
	"net/http"
)

// RankDependencies looks up one item's dense rank.
type RankDependencies interface {
	Rank(ctx context.Context, itemID string) (Entry, error)
}

// RankHandler serves single item positions.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler wraps deps.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// HandleGetRank handles GET /rank/{id}; unknown items are 404.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	entry, err := h.deps.Rank(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
