package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/jihoonkim/legisub/internal/caption"
	"github.com/jihoonkim/legisub/internal/hub"
)

func TestSubscriberHandler_DeliversHistoryThenBroadcast(t *testing.T) {
	h := hub.New(nil)
	h.BroadcastCreated("ch14", caption.Caption{ID: "1", RoomID: "ch14", Text: "first"})

	router := chi.NewRouter()
	NewSubscriberHandler(h, nil).Register(router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/subtitles/ch14"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, body, err := conn.ReadMessage()
	require.NoError(t, err)
	var historyMsg struct {
		Type    string `json:"type"`
		Payload struct {
			Subtitles []caption.Caption `json:"subtitles"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(body, &historyMsg))
	require.Equal(t, "subtitle_history", historyMsg.Type)
	require.Len(t, historyMsg.Payload.Subtitles, 1)

	h.BroadcastCreated("ch14", caption.Caption{ID: "2", RoomID: "ch14", Text: "second"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, body, err = conn.ReadMessage()
	require.NoError(t, err)
	var createdMsg struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(body, &createdMsg))
	require.Equal(t, "subtitle_created", createdMsg.Type)
}

func TestSubscriberHandler_MissingRoomIDReturnsNotFound(t *testing.T) {
	h := hub.New(nil)
	router := chi.NewRouter()
	NewSubscriberHandler(h, nil).Register(router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/ws/subtitles/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 404, resp.StatusCode)
}
