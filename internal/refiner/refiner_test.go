package refiner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihoonkim/legisub/internal/caption"
	"github.com/jihoonkim/legisub/pkg/httpclient"
)

type fakeHub struct {
	mu          sync.Mutex
	corrections []string
}

func (f *fakeHub) BroadcastCorrected(roomID, id, correctedText string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.corrections = append(f.corrections, id+":"+correctedText)
}

func (f *fakeHub) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.corrections)
}

func TestRefiner_Run_BatchesByIntervalAndBroadcastsChangedText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rewriteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		reply := rewriteReply{}
		for _, item := range req.Items {
			corrected := item.Text
			if item.Text == "typo" {
				corrected = "fixed"
			}
			reply.Items = append(reply.Items, rewriteItem{ID: item.ID, CorrectedText: corrected})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(reply))
	}))
	defer srv.Close()

	hub := &fakeHub{}
	r := New(Config{
		HTTPClient:    httpclient.NewWithDefaults(),
		Hub:           hub,
		RewriterURL:   srv.URL,
		BatchInterval: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go r.Run(ctx)

	r.Enqueue(caption.Caption{ID: "1", RoomID: "ch14", Text: "typo"})
	r.Enqueue(caption.Caption{ID: "2", RoomID: "ch14", Text: "already correct"})

	require.Eventually(t, func() bool { return hub.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "1:fixed", hub.corrections[0])
}

func TestRefiner_Run_FlushesAtBatchSizeWithoutWaitingForInterval(t *testing.T) {
	var gotItemCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rewriteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotItemCount = len(req.Items)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(rewriteReply{}))
	}))
	defer srv.Close()

	hub := &fakeHub{}
	r := New(Config{
		HTTPClient:    httpclient.NewWithDefaults(),
		Hub:           hub,
		RewriterURL:   srv.URL,
		BatchSize:     2,
		BatchInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go r.Run(ctx)

	r.Enqueue(caption.Caption{ID: "1", RoomID: "ch14", Text: "a"})
	r.Enqueue(caption.Caption{ID: "2", RoomID: "ch14", Text: "b"})

	require.Eventually(t, func() bool { return gotItemCount == 2 }, time.Second, 10*time.Millisecond)
}

func TestRefiner_RewriteFailure_DropsBatchWithoutBlocking(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hub := &fakeHub{}
	r := New(Config{
		HTTPClient:    httpclient.NewWithDefaults(),
		Hub:           hub,
		RewriterURL:   srv.URL,
		BatchInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go r.Run(ctx)

	r.Enqueue(caption.Caption{ID: "1", RoomID: "ch14", Text: "x"})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, hub.count())
}

func TestRoster_Map_EmptyReturnsNil(t *testing.T) {
	var r Roster
	assert.Nil(t, r.Map())
}
