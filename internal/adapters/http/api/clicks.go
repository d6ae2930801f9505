package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/lanes/internal/domain/lane"
	"github.com/okian/lanes/internal/domain/model"
)

const maxClickBody = 4 << 10

// ClickDependencies records clicks.
type ClickDependencies interface {
	RecordClick(ctx context.Context, itemID, actorID string) (model.ClickResult, error)
}

// ClicksHandler handles click requests.
type ClicksHandler struct {
	deps ClickDependencies
}

// NewClicksHandler creates a new clicks handler.
func NewClicksHandler(deps ClickDependencies) *ClicksHandler {
	return &ClicksHandler{deps: deps}
}

type clickRequest struct {
	ItemID  string `json:"item_id"`
	ActorID string `json:"actor_id"`
}

type clickResponse struct {
	Status     string     `json:"status"`
	Accepted   bool       `json:"accepted"`
	Duplicate  bool       `json:"duplicate"`
	NewLane    *lane.Lane `json:"new_lane,omitempty"`
	ClickCount int        `json:"click_count"`
}

// HandlePostClick handles POST /clicks requests. The response is written
// only after the click is durable.
func (h *ClicksHandler) HandlePostClick(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_click"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req clickRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxClickBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.RecordClick(r.Context(), req.ItemID, req.ActorID)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}

	status := "accepted"
	if res.Duplicate {
		status = "duplicate"
	}
	writeJSON(w, http.StatusOK, clickResponse{
		Status:     status,
		Accepted:   res.Accepted,
		Duplicate:  res.Duplicate,
		NewLane:    res.NewLane,
		ClickCount: res.ClickCount,
	})
}
