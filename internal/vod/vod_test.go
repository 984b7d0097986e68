package vod

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihoonkim/legisub/internal/asr"
	"github.com/jihoonkim/legisub/internal/models"
	"github.com/jihoonkim/legisub/internal/terminology"
	"github.com/jihoonkim/legisub/pkg/httpclient"
)

type fakeStore struct {
	mu            sync.Mutex
	captions      []*models.Caption
	meetingStatus map[string]models.MeetingStatus
	meetingDur    map[string]*float64
	taskStates    map[string]models.TaskState
	insertErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		meetingStatus: make(map[string]models.MeetingStatus),
		meetingDur:    make(map[string]*float64),
		taskStates:    make(map[string]models.TaskState),
	}
}

func (f *fakeStore) InsertCaptions(ctx context.Context, captions []*models.Caption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.captions = append(f.captions, captions...)
	return nil
}

func (f *fakeStore) SetMeetingStatus(ctx context.Context, meetingID string, status models.MeetingStatus, durationSeconds *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meetingStatus[meetingID] = status
	f.meetingDur[meetingID] = durationSeconds
	return nil
}

func (f *fakeStore) UpsertTaskState(ctx context.Context, task *models.TaskState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskStates[task.MeetingID] = *task
	return nil
}

func (f *fakeStore) status(meetingID string) models.MeetingStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meetingStatus[meetingID]
}

func (f *fakeStore) taskState(meetingID string) models.TaskState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.taskStates[meetingID]
}

func (f *fakeStore) captionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.captions)
}

func newTestTracker(t *testing.T, mp4Body []byte, transcribeHandler http.HandlerFunc) (*Tracker, *fakeStore, string) {
	t.Helper()

	sourceSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(mp4Body)
	}))
	t.Cleanup(sourceSrv.Close)

	asrSrv := httptest.NewServer(transcribeHandler)
	t.Cleanup(asrSrv.Close)

	client := httpclient.NewWithDefaults()
	asrClient := asr.NewPrerecordedClient(client, asrSrv.URL, "test-key")
	st := newFakeStore()

	tr := NewTracker(Config{
		HTTPClient: client,
		ASR:        asrClient,
		Dictionary: terminology.New(nil),
		Store:      st,
	})
	return tr, st, sourceSrv.URL + "/source.mp4"
}

func TestTracker_Start_RejectsDuplicateWhileRunning(t *testing.T) {
	block := make(chan struct{})
	tr, _, srcURL := newTestTracker(t, []byte("fake-mp4-bytes"), func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":{"utterances":[]}}`))
	})
	defer close(block)

	_, err := tr.Start(t.Context(), "meeting-1", srcURL)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, ok := tr.Status("meeting-1")
		return ok && state.Status == models.TaskStatusRunning
	}, time.Second, 5*time.Millisecond)

	_, err = tr.Start(t.Context(), "meeting-1", srcURL)
	assert.ErrorIs(t, err, ErrTaskAlreadyRunning)
}

func TestTracker_Run_CompletesAndPersistsCaptionsAndStatus(t *testing.T) {
	reply := `{
		"metadata": {"duration": 12.5},
		"results": {
			"utterances": [
				{"start": 0, "end": 2.5, "confidence": 0.9, "transcript": "committee chairman spoke", "speaker": 0}
			]
		}
	}`
	tr, st, srcURL := newTestTracker(t, []byte("fake-mp4-bytes"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	})

	_, err := tr.Start(t.Context(), "meeting-2", srcURL)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, ok := tr.Status("meeting-2")
		return ok && state.Status == models.TaskStatusCompleted
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, st.captionCount())
	assert.Equal(t, models.MeetingStatusEnded, st.status("meeting-2"))
}

func TestTracker_Run_FailureRecordsFailedStatusAndRevertsMeeting(t *testing.T) {
	tr, st, srcURL := newTestTracker(t, []byte("fake-mp4-bytes"), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := tr.Start(t.Context(), "meeting-3", srcURL)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, ok := tr.Status("meeting-3")
		return ok && state.Status == models.TaskStatusFailed
	}, time.Second, 5*time.Millisecond)

	assert.NotEmpty(t, st.taskState("meeting-3").Error)
	assert.Equal(t, models.MeetingStatusEnded, st.status("meeting-3"))
}

func TestTracker_GC_RemovesOldTerminalTasksOnly(t *testing.T) {
	tr := NewTracker(Config{Store: newFakeStore()})
	now := time.Now()

	tr.tasks["done"] = &taskState{
		TaskState:   models.TaskState{MeetingID: "done", Status: models.TaskStatusCompleted},
		completedAt: now.Add(-2 * time.Hour),
	}
	tr.tasks["recent"] = &taskState{
		TaskState:   models.TaskState{MeetingID: "recent", Status: models.TaskStatusCompleted},
		completedAt: now,
	}
	tr.tasks["running"] = &taskState{
		TaskState: models.TaskState{MeetingID: "running", Status: models.TaskStatusRunning},
	}

	removed := tr.GC(time.Hour, now)
	assert.Equal(t, 1, removed)
	_, stillThere := tr.Status("recent")
	assert.True(t, stillThere)
	_, runningThere := tr.Status("running")
	assert.True(t, runningThere)
	_, doneThere := tr.Status("done")
	assert.False(t, doneThere)
}

func TestDownloadProgress_BoundsWithinRange(t *testing.T) {
	assert.InDelta(t, 0.06, downloadProgress(0, 100), 0.001)
	assert.InDelta(t, 0.18, downloadProgress(100, 100), 0.001)
	assert.InDelta(t, 0.06, downloadProgress(0, 0), 0.001)
}

func TestUploadProgress_BoundsWithinRange(t *testing.T) {
	assert.InDelta(t, 0.20, uploadProgress(0, 100), 0.001)
	assert.InDelta(t, 0.40, uploadProgress(100, 100), 0.001)
}
