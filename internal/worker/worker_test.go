package worker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihoonkim/legisub/internal/catalog"
	"github.com/jihoonkim/legisub/internal/hub"
	"github.com/jihoonkim/legisub/internal/terminology"
	"github.com/jihoonkim/legisub/pkg/httpclient"
)

// fakeASRServer upgrades to a websocket, reads frames until the client
// stops sending, and replies with one Results frame to each binary segment
// it receives.
func fakeASRServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			mt, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(
					`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"안녕하세요.","confidence":0.9,"words":[]}]}}`))
			}
		}
	}))
}

func testCatalogChannel(playlistURL string) catalog.Channel {
	return catalog.Channel{ID: "ch14", DisplayName: "Test Channel", UpstreamCode: "A011", PlaylistURL: playlistURL}
}

func TestManager_StartStop_RunsAndTearsDownCleanly(t *testing.T) {
	playlistSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\n#EXTINF:6.0,\nseg1.ts\n"))
	}))
	defer playlistSrv.Close()

	asrSrv := fakeASRServer(t)
	defer asrSrv.Close()
	wsURL := "ws" + strings.TrimPrefix(asrSrv.URL, "http")

	h := hub.New(nil)
	mgr := NewManager(Config{
		HTTPClient:  httpclient.NewWithDefaults(),
		Hub:         h,
		Dictionary:  terminology.New(nil),
		ASRProvider: wsURL,
		ASRLanguage: "ko",
	})

	channel := testCatalogChannel(playlistSrv.URL)
	mgr.Start(channel)
	assert.True(t, mgr.IsRunning(channel.ID))

	require.Eventually(t, func() bool {
		info, ok := mgr.DebugInfo(channel.ID)
		return ok && info.TaskAlive
	}, time.Second, 10*time.Millisecond)

	mgr.Stop(channel.ID)
	assert.False(t, mgr.IsRunning(channel.ID))
}

func TestManager_Start_ReplacesExistingWorker(t *testing.T) {
	playlistSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\n"))
	}))
	defer playlistSrv.Close()

	asrSrv := fakeASRServer(t)
	defer asrSrv.Close()
	wsURL := "ws" + strings.TrimPrefix(asrSrv.URL, "http")

	h := hub.New(nil)
	mgr := NewManager(Config{
		HTTPClient:  httpclient.NewWithDefaults(),
		Hub:         h,
		Dictionary:  terminology.New(nil),
		ASRProvider: wsURL,
		ASRLanguage: "ko",
	})

	channel := testCatalogChannel(playlistSrv.URL)
	mgr.Start(channel)
	mgr.Start(channel) // must not deadlock or duplicate

	assert.True(t, mgr.IsRunning(channel.ID))
	mgr.StopAll()
	assert.False(t, mgr.IsRunning(channel.ID))
}

func TestManager_DebugInfo_UnknownChannelReportsNotOK(t *testing.T) {
	mgr := NewManager(Config{Hub: hub.New(nil)})
	_, ok := mgr.DebugInfo("nonexistent")
	assert.False(t, ok)
}
