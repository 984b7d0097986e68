// Package hub implements the Subscriber Hub (spec.md §4.7): per-room
// WebSocket subscriber sets with a short caption history for late joiners.
package hub

import (
	"log/slog"
	"sync"

	"github.com/jihoonkim/legisub/internal/caption"
)

// historyCapacity is the ring buffer size spec.md §3 assigns each room.
const historyCapacity = 200

// Handle is anything the hub can deliver a message to — typically one
// WebSocket connection. Send must be safe to call from the hub's broadcast
// goroutine; a non-nil error means the handle is dead and is dropped.
type Handle interface {
	Send(message any) error
}

// historyEntry is a ring-buffer slot. OriginalText is kept alongside the
// (possibly corrected) Caption.Text so a correction can be reapplied to
// late joiners without losing the pre-correction text (spec.md §4.7).
type historyEntry struct {
	caption      caption.Caption
	originalText string
}

type room struct {
	subscribers map[Handle]struct{}
	history     []historyEntry
}

// Hub is the process-wide Subscriber Hub singleton.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]*room
	logger *slog.Logger
}

// New constructs an empty Hub.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  make(map[string]*room),
		logger: logger,
	}
}

// subtitleHistoryMessage is delivered immediately on Connect.
type subtitleHistoryMessage struct {
	Type    string `json:"type"`
	Payload struct {
		Subtitles []caption.Caption `json:"subtitles"`
	} `json:"payload"`
}

// subtitleInterimMessage is delivered by BroadcastInterim.
type subtitleInterimMessage struct {
	Type    string `json:"type"`
	Payload struct {
		Text      string `json:"text"`
		ChannelID string `json:"channel_id"`
	} `json:"payload"`
}

// subtitleCreatedMessage is delivered by BroadcastCreated.
type subtitleCreatedMessage struct {
	Type    string          `json:"type"`
	Payload struct {
		Subtitle caption.Caption `json:"subtitle"`
	} `json:"payload"`
}

// subtitleCorrectedMessage is delivered by BroadcastCorrected.
type subtitleCorrectedMessage struct {
	Type    string `json:"type"`
	Payload struct {
		ID            string `json:"id"`
		CorrectedText string `json:"corrected_text"`
	} `json:"payload"`
}

// Connect registers handle for roomID and immediately delivers its stored
// history (spec.md §4.7).
func (h *Hub) Connect(roomID string, handle Handle) {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{subscribers: make(map[Handle]struct{})}
		h.rooms[roomID] = r
	}
	r.subscribers[handle] = struct{}{}
	history := make([]caption.Caption, len(r.history))
	for i, e := range r.history {
		history[i] = e.caption
	}
	h.mu.Unlock()

	msg := subtitleHistoryMessage{Type: "subtitle_history"}
	msg.Payload.Subtitles = history
	if err := handle.Send(msg); err != nil {
		h.logger.Warn("failed delivering history to new subscriber",
			slog.String("room_id", roomID), slog.String("error", err.Error()))
	}
}

// Disconnect removes handle from roomID, removing the room entirely once
// it has neither subscribers nor history.
func (h *Hub) Disconnect(roomID string, handle Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(r.subscribers, handle)
	if len(r.subscribers) == 0 && len(r.history) == 0 {
		delete(h.rooms, roomID)
	}
}

// BroadcastCreated appends c to the room's history (trimmed to
// historyCapacity) and delivers it to every subscriber.
func (h *Hub) BroadcastCreated(roomID string, c caption.Caption) {
	msg := subtitleCreatedMessage{Type: "subtitle_created"}
	msg.Payload.Subtitle = c

	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{subscribers: make(map[Handle]struct{})}
		h.rooms[roomID] = r
	}
	r.history = append(r.history, historyEntry{caption: c, originalText: c.Text})
	if len(r.history) > historyCapacity {
		r.history = r.history[len(r.history)-historyCapacity:]
	}
	h.mu.Unlock()

	h.deliver(roomID, msg)
}

// BroadcastInterim delivers a not-yet-final transcript preview. It never
// touches the room's history.
func (h *Hub) BroadcastInterim(roomID, text string) {
	msg := subtitleInterimMessage{Type: "subtitle_interim"}
	msg.Payload.Text = text
	msg.Payload.ChannelID = roomID
	h.deliver(roomID, msg)
}

// BroadcastCorrected patches the history entry matching id, preserving the
// original text in the side field, then delivers the correction.
func (h *Hub) BroadcastCorrected(roomID, id, correctedText string) {
	h.mu.Lock()
	if r, ok := h.rooms[roomID]; ok {
		for i := range r.history {
			if r.history[i].caption.ID == id {
				r.history[i].caption.Text = correctedText
				break
			}
		}
	}
	h.mu.Unlock()

	msg := subtitleCorrectedMessage{Type: "subtitle_corrected"}
	msg.Payload.ID = id
	msg.Payload.CorrectedText = correctedText
	h.deliver(roomID, msg)
}

// ClearHistory drops the room's ring buffer (invoked on worker stop).
func (h *Hub) ClearHistory(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return
	}
	r.history = nil
	if len(r.subscribers) == 0 {
		delete(h.rooms, roomID)
	}
}

// deliver sends msg to every current subscriber of roomID, one by one;
// handles whose Send fails are removed from the room.
func (h *Hub) deliver(roomID string, msg any) {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	handles := make([]Handle, 0, len(r.subscribers))
	for handle := range r.subscribers {
		handles = append(handles, handle)
	}
	h.mu.Unlock()

	var dead []Handle
	for _, handle := range handles {
		if err := handle.Send(msg); err != nil {
			dead = append(dead, handle)
		}
	}
	if len(dead) == 0 {
		return
	}

	h.mu.Lock()
	if r, ok := h.rooms[roomID]; ok {
		for _, handle := range dead {
			delete(r.subscribers, handle)
		}
		if len(r.subscribers) == 0 && len(r.history) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()
}
