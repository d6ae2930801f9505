package api

import (
	"context"
	"net/http"

	"github.com/okian/lanes/internal/domain/model"
)

// ItemDependencies exposes item reads.
type ItemDependencies interface {
	ListActiveItems(ctx context.Context) (model.Board, error)
	Item(ctx context.Context, itemID string) (model.Item, error)
	ActorClicks(ctx context.Context, actorID string) ([]string, error)
}

// ItemsHandler handles item requests.
type ItemsHandler struct {
	deps ItemDependencies
}

// NewItemsHandler creates a new items handler.
func NewItemsHandler(deps ItemDependencies) *ItemsHandler {
	return &ItemsHandler{deps: deps}
}

// HandleListItems handles GET /items, the poll observers reconcile against.
func (h *ItemsHandler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	board, err := h.deps.ListActiveItems(r.Context())
	if err != nil {
		writeServiceError(w, Wrap("api.list_items", err))
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// HandleGetItem handles GET /items/{id}.
func (h *ItemsHandler) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	it, err := h.deps.Item(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, Wrap("api.get_item", err))
		return
	}
	writeJSON(w, http.StatusOK, it)
}

type actorClicksResponse struct {
	ActorID string   `json:"actor_id"`
	Items   []string `json:"items"`
}

// HandleActorClicks handles GET /actors/{id}/clicks.
func (h *ItemsHandler) HandleActorClicks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	actor := r.PathValue("id")
	ids, err := h.deps.ActorClicks(r.Context(), actor)
	if err != nil {
		writeServiceError(w, Wrap("api.actor_clicks", err))
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, actorClicksResponse{ActorID: actor, Items: ids})
}
