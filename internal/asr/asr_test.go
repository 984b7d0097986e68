package asr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRealtimeURL_SetsFeatureFlags(t *testing.T) {
	u, err := buildRealtimeURL(SessionConfig{
		ProviderURL:  "wss://asr.example/v1/listen",
		Language:     "ko",
		SampleRateHz: 16000,
	})
	require.NoError(t, err)
	assert.Contains(t, u, "language=ko")
	assert.Contains(t, u, "diarize=true")
	assert.Contains(t, u, "interim_results=true")
	assert.Contains(t, u, "utterance_end_ms=300")
	assert.Contains(t, u, "sample_rate=16000")
}

func TestSession_DialWriteReadClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		mt, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, mt)
		assert.Equal(t, []byte{0x47, 0x00, 0x01}, data)

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","is_final":true}`)))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	session, err := Dial(t.Context(), SessionConfig{ProviderURL: wsURL, Language: "ko", APIKey: "k"})
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.WriteSegment([]byte{0x47, 0x00, 0x01}))

	raw, err := session.ReadFrame()
	require.NoError(t, err)

	var frame Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, "Results", frame.Type)
}
