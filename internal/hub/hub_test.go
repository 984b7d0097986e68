package hub

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihoonkim/legisub/internal/caption"
)

type fakeHandle struct {
	mu       sync.Mutex
	received []any
	fail     bool
}

func (f *fakeHandle) Send(message any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("send failed")
	}
	f.received = append(f.received, message)
	return nil
}

func (f *fakeHandle) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func TestHub_ConnectDeliversHistory(t *testing.T) {
	h := New(nil)
	h.BroadcastCreated("ch8", caption.Caption{ID: "1", Text: "first"})
	h.BroadcastCreated("ch8", caption.Caption{ID: "2", Text: "second"})

	handle := &fakeHandle{}
	h.Connect("ch8", handle)

	require.Equal(t, 1, handle.count())
	msg, ok := handle.received[0].(subtitleHistoryMessage)
	require.True(t, ok)
	require.Len(t, msg.Payload.Subtitles, 2)
	assert.Equal(t, "first", msg.Payload.Subtitles[0].Text)
	assert.Equal(t, "second", msg.Payload.Subtitles[1].Text)
}

func TestHub_BroadcastCreatedTrimsHistory(t *testing.T) {
	h := New(nil)
	for i := 0; i < historyCapacity+10; i++ {
		h.BroadcastCreated("ch8", caption.Caption{ID: string(rune('a' + i%26))})
	}
	r := h.rooms["ch8"]
	require.Len(t, r.history, historyCapacity)
}

func TestHub_DisconnectRemovesHandle(t *testing.T) {
	h := New(nil)
	handle := &fakeHandle{}
	h.Connect("ch8", handle)
	h.Disconnect("ch8", handle)

	h.BroadcastCreated("ch8", caption.Caption{ID: "1"})
	assert.Equal(t, 0, handle.count())
}

func TestHub_FailingHandleIsDroppedNotBlocking(t *testing.T) {
	h := New(nil)
	good := &fakeHandle{}
	bad := &fakeHandle{fail: true}
	h.Connect("ch8", good)
	h.Connect("ch8", bad)

	h.BroadcastCreated("ch8", caption.Caption{ID: "1", Text: "hello"})

	assert.Equal(t, 2, good.count()) // history delivery + created
	r := h.rooms["ch8"]
	_, stillThere := r.subscribers[bad]
	assert.False(t, stillThere)
}

func TestHub_BroadcastCorrectedPatchesHistory(t *testing.T) {
	h := New(nil)
	h.BroadcastCreated("ch8", caption.Caption{ID: "abc", Text: "origial typo"})
	h.BroadcastCorrected("ch8", "abc", "original fixed")

	handle := &fakeHandle{}
	h.Connect("ch8", handle)
	msg := handle.received[0].(subtitleHistoryMessage)
	require.Len(t, msg.Payload.Subtitles, 1)
	assert.Equal(t, "original fixed", msg.Payload.Subtitles[0].Text)
}

func TestHub_ClearHistoryDropsBuffer(t *testing.T) {
	h := New(nil)
	h.BroadcastCreated("ch8", caption.Caption{ID: "1"})
	h.ClearHistory("ch8")

	handle := &fakeHandle{}
	h.Connect("ch8", handle)
	msg := handle.received[0].(subtitleHistoryMessage)
	assert.Empty(t, msg.Payload.Subtitles)
}

func TestHub_BroadcastInterimNeverTouchesHistory(t *testing.T) {
	h := New(nil)
	h.BroadcastInterim("ch8", "partial text")

	handle := &fakeHandle{}
	h.Connect("ch8", handle)
	msg := handle.received[0].(subtitleHistoryMessage)
	assert.Empty(t, msg.Payload.Subtitles)
}
