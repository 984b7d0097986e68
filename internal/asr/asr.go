// Package asr wraps the ASR provider's two HTTP surfaces (spec.md §6): a
// realtime websocket session used by the Live Caption Worker, and a
// pre-recorded HTTP endpoint used by the VOD Batch Worker.
package asr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// SessionConfig configures a realtime Session. All feature flags mirror
// spec.md §4.5 "ASR request parameters" and are always on; only the
// provider URL, API key, language, and sample rate vary by deployment.
type SessionConfig struct {
	ProviderURL  string
	APIKey       string
	Language     string
	SampleRateHz int
}

// Session is one realtime websocket connection to the ASR provider. It is
// a thin transport: framing, keepalive cadence, and reconnect policy live
// in internal/worker, which owns a Session's lifetime.
type Session struct {
	conn *websocket.Conn
}

// Dial opens a new realtime session. The caller is responsible for closing
// it via Close.
func Dial(ctx context.Context, cfg SessionConfig) (*Session, error) {
	u, err := buildRealtimeURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("building realtime ASR URL: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+cfg.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u, header)
	if err != nil {
		return nil, fmt.Errorf("dialing realtime ASR endpoint: %w", err)
	}
	return &Session{conn: conn}, nil
}

func buildRealtimeURL(cfg SessionConfig) (string, error) {
	parsed, err := url.Parse(cfg.ProviderURL)
	if err != nil {
		return "", err
	}
	q := parsed.Query()
	q.Set("model", "nova-2-general")
	q.Set("language", cfg.Language)
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("vad_events", "true")
	q.Set("utterance_end_ms", "300")
	q.Set("diarize", "true")
	q.Set("encoding", "mpeg-ts")
	if cfg.SampleRateHz > 0 {
		q.Set("sample_rate", fmt.Sprintf("%d", cfg.SampleRateHz))
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// WriteSegment writes an MPEG-TS segment's bytes as one binary frame.
func (s *Session) WriteSegment(data []byte) error {
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// keepAliveFrame is the provider-specific keepalive payload (spec.md §6).
var keepAliveFrame = []byte(`{"type":"KeepAlive"}`)

// WriteKeepAlive sends the provider-specific keepalive JSON frame.
func (s *Session) WriteKeepAlive() error {
	return s.conn.WriteMessage(websocket.TextMessage, keepAliveFrame)
}

// ReadFrame blocks for the next inbound frame's raw bytes. It returns
// websocket.ErrCloseSent/net errors unwrapped so the caller's reconnect
// loop can distinguish graceful vs abrupt closes.
func (s *Session) ReadFrame() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

// Close performs a best-effort graceful close handshake, then closes the
// underlying connection.
func (s *Session) Close() error {
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

// SetReadDeadline forwards to the underlying connection, letting the
// watchdog force a read timeout on a stalled session.
func (s *Session) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}
