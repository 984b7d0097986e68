package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jihoonkim/legisub/internal/livestatus"
)

// sseKeepaliveInterval forces a comment frame through idle proxies that
// would otherwise time out a long-lived SSE connection.
const sseKeepaliveInterval = 20 * time.Second

// StatusStreamHandler streams live-status change batches to browser
// clients over Server-Sent Events (spec.md §6 "status SSE"). Registered
// directly on the chi router for the same reason SubscriberHandler is:
// huma commits headers before Body runs.
type StatusStreamHandler struct {
	poller *livestatus.Poller
	logger *slog.Logger
}

// NewStatusStreamHandler constructs a StatusStreamHandler bound to poller.
func NewStatusStreamHandler(poller *livestatus.Poller, logger *slog.Logger) *StatusStreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusStreamHandler{poller: poller, logger: logger}
}

// Register mounts the handler at /status/stream.
func (h *StatusStreamHandler) Register(router chi.Router) {
	router.Get("/status/stream", h.ServeSSE)
}

// ServeSSE writes the full enriched channel snapshot as the first event,
// then streams each subsequent change batch the poller publishes until the
// client disconnects.
func (h *StatusStreamHandler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	snapshot, err := h.poller.ChannelsWithStatus(r.Context())
	if err != nil {
		h.logger.Warn("status stream initial snapshot failed", slog.String("error", err.Error()))
	} else if writeErr := writeSSEEvent(w, "snapshot", snapshot); writeErr != nil {
		return
	}
	flusher.Flush()

	changes := h.poller.Subscribe()
	defer h.poller.Unsubscribe(changes)

	ticker := time.NewTicker(sseKeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case batch, ok := <-changes:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, "changes", batch); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, body); err != nil {
		return err
	}
	return nil
}
