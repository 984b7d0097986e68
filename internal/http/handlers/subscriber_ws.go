package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/jihoonkim/legisub/internal/hub"
)

// subscriberPingInterval keeps idle WebSocket connections from being
// reaped by intermediate proxies while a channel has no live captions.
const subscriberPingInterval = 30 * time.Second

var subscriberUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SubscriberHandler upgrades a plain HTTP connection to the subscriber
// WebSocket feed for one room (spec.md §6 "Subscriber WebSocket"). It is
// registered directly on the chi router, not through huma — huma commits
// response headers before Body runs, which breaks the hijack the
// WebSocket upgrade needs.
type SubscriberHandler struct {
	hub    *hub.Hub
	logger *slog.Logger
}

// NewSubscriberHandler constructs a SubscriberHandler bound to hub.
func NewSubscriberHandler(h *hub.Hub, logger *slog.Logger) *SubscriberHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriberHandler{hub: h, logger: logger}
}

// Register mounts the handler at /ws/subtitles/{roomID}.
func (h *SubscriberHandler) Register(router chi.Router) {
	router.Get("/ws/subtitles/{roomID}", h.ServeWS)
}

// ServeWS upgrades the request, connects it to the hub, and pumps
// outbound messages until the client disconnects or the write fails.
func (h *SubscriberHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if roomID == "" {
		http.Error(w, "roomID is required", http.StatusBadRequest)
		return
	}

	conn, err := subscriberUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("subscriber websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	handle := newSubscriberConn(conn)
	h.hub.Connect(roomID, handle)
	defer h.hub.Disconnect(roomID, handle)

	go handle.readLoop()
	handle.writeLoop()
}

// subscriberConn adapts a *websocket.Conn to hub.Handle. Writes are
// serialized through a buffered channel so BroadcastCreated/Interim/
// Corrected calls from the hub's goroutine never block on a slow client
// directly — a full channel drops the handle instead (spec.md §5
// "Back-pressure").
type subscriberConn struct {
	conn   *websocket.Conn
	outbox chan any
	closed chan struct{}
}

func newSubscriberConn(conn *websocket.Conn) *subscriberConn {
	return &subscriberConn{
		conn:   conn,
		outbox: make(chan any, 64),
		closed: make(chan struct{}),
	}
}

// Send implements hub.Handle. It never blocks: a saturated outbox means
// the client is too slow and the message is dropped for it.
func (c *subscriberConn) Send(message any) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	select {
	case c.outbox <- message:
		return nil
	default:
		return errOutboxFull
	}
}

func (c *subscriberConn) writeLoop() {
	ticker := time.NewTicker(subscriberPingInterval)
	defer func() {
		ticker.Stop()
		close(c.closed)
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.outbox:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			body, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop only exists to drain client frames (pong replies, the
// occasional close) so the connection doesn't look stalled; subscribers
// never send meaningful application data.
func (c *subscriberConn) readLoop() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

var (
	errConnClosed = websocketError("subscriber connection closed")
	errOutboxFull = websocketError("subscriber outbox full")
)

type websocketError string

func (e websocketError) Error() string { return string(e) }
