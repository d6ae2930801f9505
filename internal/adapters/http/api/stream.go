package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/lanes/internal/domain/model"
)

const eventConnected = "connected"

// StreamDependencies exposes change subscriptions and presence.
type StreamDependencies interface {
	Subscribe(ctx context.Context) (<-chan model.Change, func(), error)
	Online() int
}

// StreamHandler serves committed changes as Server-Sent Events.
type StreamHandler struct {
	deps      StreamDependencies
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps StreamDependencies, heartbeat time.Duration) *StreamHandler {
	return &StreamHandler{deps: deps, heartbeat: heartbeat}
}

type presenceResponse struct {
	Online int `json:"online"`
}

// HandlePresence handles GET /presence requests.
func (h *StreamHandler) HandlePresence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, presenceResponse{Online: h.deps.Online()})
}

// HandleStream handles GET /stream. Each change is one event named after
// its type; clients that miss events resynchronize through GET /items.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	const op = "api.stream"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", NewKind(op, ErrStreaming))
		return
	}

	changes, cancel, err := h.deps.Subscribe(r.Context())
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	defer cancel()

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	connected := map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339), "online": h.deps.Online()}
	if writeEvent(w, eventConnected, connected) != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case c, open := <-changes:
			if !open {
				return
			}
			if writeEvent(w, c.Type(), c) != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": heartbeat %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
