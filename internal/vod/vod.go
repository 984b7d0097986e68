// Package vod implements the VOD Batch Worker (spec.md §4.9): for a
// persistent MP4, streams it to the ASR provider's pre-recorded endpoint
// and transforms the reply into caption rows, one task per meeting id.
package vod

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jihoonkim/legisub/internal/asr"
	"github.com/jihoonkim/legisub/internal/models"
	"github.com/jihoonkim/legisub/internal/store"
	"github.com/jihoonkim/legisub/internal/terminology"
	"github.com/jihoonkim/legisub/pkg/httpclient"
)

// Default timeouts and chunk sizes from spec.md §4.9 "Timeouts", used when
// Config leaves the corresponding field zero.
const (
	ConnectTimeout           = 60 * time.Second
	defaultWriteTimeout      = 30 * time.Minute
	defaultReadTimeout       = 60 * time.Minute
	defaultDownloadChunkSize = 512 * 1024
	defaultUploadChunkSize   = 1024 * 1024

	maxUtteranceGroupSeconds = 10.0
)

// ErrTaskAlreadyRunning is surfaced at the HTTP boundary as 409 when
// another task for the same meeting id is already pending or running
// (spec.md §4.9 step 1, §3 invariant).
var ErrTaskAlreadyRunning = errors.New("vod: a task for this meeting is already running")

// Tracker owns the in-process VOD task table, keyed by meeting id (spec.md
// §3 "ASR Task State (VOD)"). It is the process-wide source of truth while
// the process is alive; Store is only an optional recovery mirror.
type Tracker struct {
	mu                sync.Mutex
	tasks             map[string]*taskState // keyed by meeting id
	client            *httpclient.Client
	asr               *asr.PrerecordedClient
	dict              *terminology.Dictionary
	store             store.Store
	logger            *slog.Logger
	downloadTimeout   time.Duration
	transcribeTimeout time.Duration
	downloadChunkSize int
	uploadChunkSize   int
}

type taskState struct {
	models.TaskState
	completedAt time.Time
}

// Config bundles a Tracker's dependencies and per-task tuning. Timeouts and
// chunk sizes default to spec.md §4.9's values when left zero (normally
// sourced from config.VODConfig).
type Config struct {
	HTTPClient        *httpclient.Client
	ASR               *asr.PrerecordedClient
	Dictionary        *terminology.Dictionary
	Store             store.Store
	Logger            *slog.Logger
	DownloadTimeout   time.Duration
	TranscribeTimeout time.Duration
	DownloadChunkSize int
	UploadChunkSize   int
}

// NewTracker constructs an empty Tracker.
func NewTracker(cfg Config) *Tracker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	downloadTimeout := cfg.DownloadTimeout
	if downloadTimeout <= 0 {
		downloadTimeout = defaultReadTimeout
	}
	transcribeTimeout := cfg.TranscribeTimeout
	if transcribeTimeout <= 0 {
		transcribeTimeout = defaultWriteTimeout + defaultReadTimeout
	}
	downloadChunkSize := cfg.DownloadChunkSize
	if downloadChunkSize <= 0 {
		downloadChunkSize = defaultDownloadChunkSize
	}
	uploadChunkSize := cfg.UploadChunkSize
	if uploadChunkSize <= 0 {
		uploadChunkSize = defaultUploadChunkSize
	}
	return &Tracker{
		tasks:             make(map[string]*taskState),
		client:            cfg.HTTPClient,
		asr:               cfg.ASR,
		dict:              cfg.Dictionary,
		store:             cfg.Store,
		logger:            logger,
		downloadTimeout:   downloadTimeout,
		transcribeTimeout: transcribeTimeout,
		downloadChunkSize: downloadChunkSize,
		uploadChunkSize:   uploadChunkSize,
	}
}

// Start begins processing meetingID's mp4URL in a new goroutine, returning
// its freshly minted task id. Returns ErrTaskAlreadyRunning if a
// pending/running task already exists for this meeting (spec.md §4.9 step
// 1, surfaced as 409 at the HTTP boundary).
func (t *Tracker) Start(ctx context.Context, meetingID, mp4URL string) (string, error) {
	t.mu.Lock()
	if existing, ok := t.tasks[meetingID]; ok {
		if existing.Status == models.TaskStatusPending || existing.Status == models.TaskStatusRunning {
			t.mu.Unlock()
			return "", ErrTaskAlreadyRunning
		}
	}

	taskID := uuid.NewString()
	state := &taskState{models.TaskState{
		TaskID:    taskID,
		MeetingID: meetingID,
		Status:    models.TaskStatusPending,
	}}
	t.tasks[meetingID] = state
	t.mu.Unlock()

	go t.run(context.WithoutCancel(ctx), state, mp4URL)
	return taskID, nil
}

// Status returns a snapshot of meetingID's current task state.
func (t *Tracker) Status(meetingID string) (models.TaskState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.tasks[meetingID]
	if !ok {
		return models.TaskState{}, false
	}
	return state.TaskState, true
}

// GC removes task states older than retention whose status has reached a
// terminal value (completed/failed). Invoked by the scheduler's backstop
// tick.
func (t *Tracker) GC(retention time.Duration, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for meetingID, state := range t.tasks {
		if state.Status != models.TaskStatusCompleted && state.Status != models.TaskStatusFailed {
			continue
		}
		if now.Sub(state.completedAt) >= retention {
			delete(t.tasks, meetingID)
			removed++
		}
	}
	return removed
}

func (t *Tracker) run(ctx context.Context, state *taskState, mp4URL string) {
	t.setStatus(state, models.TaskStatusRunning, 0, "downloading source")
	if t.store != nil {
		_ = t.store.SetMeetingStatus(ctx, state.MeetingID, models.MeetingStatusProcessing, nil)
	}

	tempPath, err := t.downloadSource(ctx, state, mp4URL)
	if tempPath != "" {
		defer os.Remove(tempPath)
	}
	if err != nil {
		t.fail(ctx, state, fmt.Errorf("downloading source: %w", err))
		return
	}

	reply, err := t.uploadAndTranscribe(ctx, state, tempPath)
	if err != nil {
		t.fail(ctx, state, fmt.Errorf("transcribing: %w", err))
		return
	}

	captions := captionsFromReply(state.MeetingID, reply, t.dict)
	if len(captions) > 0 && t.store != nil {
		if err := t.store.InsertCaptions(ctx, toCaptionPointers(captions)); err != nil {
			t.fail(ctx, state, fmt.Errorf("persisting captions: %w", err))
			return
		}
	}

	var duration *float64
	if reply.Metadata.Duration > 0 {
		d := reply.Metadata.Duration
		duration = &d
	}
	if t.store != nil {
		if err := t.store.SetMeetingStatus(ctx, state.MeetingID, models.MeetingStatusEnded, duration); err != nil {
			t.logger.Warn("failed recording final meeting status", slog.String("meeting_id", state.MeetingID), slog.String("error", err.Error()))
		}
	}

	t.setStatus(state, models.TaskStatusCompleted, 1, "completed")
}

// downloadSource streams mp4URL to a temp file in ~512KiB chunks,
// advancing progress 6%→18% against downloaded/total (spec.md §4.9 step
// 3).
func (t *Tracker) downloadSource(ctx context.Context, state *taskState, mp4URL string) (string, error) {
	dlCtx, cancel := context.WithTimeout(ctx, t.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, mp4URL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Referer", mp4URL)

	resp, err := t.client.DoWithContext(dlCtx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("source fetch returned %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "legisub-vod-*.mp4")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	total := resp.ContentLength
	var downloaded int64
	buf := make([]byte, t.downloadChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				return tmp.Name(), werr
			}
			downloaded += int64(n)
			t.setStatus(state, models.TaskStatusRunning, downloadProgress(downloaded, total), "downloading source")
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return tmp.Name(), readErr
		}
	}
	return tmp.Name(), nil
}

func downloadProgress(downloaded, total int64) float64 {
	const start, end = 0.06, 0.18
	if total <= 0 {
		return start
	}
	frac := float64(downloaded) / float64(total)
	if frac > 1 {
		frac = 1
	}
	return start + frac*(end-start)
}

// uploadAndTranscribe streams tempPath to the ASR provider in ~1MiB
// chunks, advancing progress 20%→40%, then awaits the reply (spec.md
// §4.9 step 4).
func (t *Tracker) uploadAndTranscribe(ctx context.Context, state *taskState, tempPath string) (asr.TranscribeResponse, error) {
	f, err := os.Open(tempPath)
	if err != nil {
		return asr.TranscribeResponse{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return asr.TranscribeResponse{}, err
	}

	uploadCtx, cancel := context.WithTimeout(ctx, t.transcribeTimeout)
	defer cancel()

	reader := &progressReader{
		r:         f,
		total:     info.Size(),
		chunkSize: t.uploadChunkSize,
		onProgress: func(sent, total int64) {
			t.setStatus(state, models.TaskStatusRunning, uploadProgress(sent, total), "uploading to provider")
		},
	}

	t.setStatus(state, models.TaskStatusRunning, 0.20, "uploading to provider")
	reply, err := t.asr.Transcribe(uploadCtx, reader, info.Size())
	if err != nil {
		return asr.TranscribeResponse{}, err
	}
	t.setStatus(state, models.TaskStatusRunning, 0.40, "awaiting provider transcription")
	return reply, nil
}

func uploadProgress(sent, total int64) float64 {
	const start, end = 0.20, 0.40
	if total <= 0 {
		return start
	}
	frac := float64(sent) / float64(total)
	if frac > 1 {
		frac = 1
	}
	return start + frac*(end-start)
}

// progressReader wraps an io.Reader, invoking onProgress after every read
// in ~uploadChunkSize-sized steps so the HTTP client's own buffering
// doesn't hide progress from the caller.
type progressReader struct {
	r          io.Reader
	total      int64
	sent       int64
	chunkSize  int
	onProgress func(sent, total int64)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	if p.chunkSize > 0 && len(buf) > p.chunkSize {
		buf = buf[:p.chunkSize]
	}
	n, err := p.r.Read(buf)
	if n > 0 {
		p.sent += int64(n)
		p.onProgress(p.sent, p.total)
	}
	return n, err
}

func (t *Tracker) fail(ctx context.Context, state *taskState, cause error) {
	t.logger.Warn("vod task failed", slog.String("meeting_id", state.MeetingID), slog.String("error", cause.Error()))
	t.setStatusFailed(state, cause.Error())
	// Best-effort revert so the meeting isn't stuck in "processing".
	if t.store != nil {
		if err := t.store.SetMeetingStatus(ctx, state.MeetingID, models.MeetingStatusEnded, nil); err != nil {
			t.logger.Warn("failed reverting meeting status after task failure",
				slog.String("meeting_id", state.MeetingID), slog.String("error", err.Error()))
		}
	}
}

func (t *Tracker) setStatus(state *taskState, status models.TaskStatus, progress float64, message string) {
	t.mu.Lock()
	state.Status = status
	state.Progress = progress
	state.Message = message
	if status == models.TaskStatusCompleted {
		state.completedAt = time.Now()
	}
	t.mu.Unlock()

	if t.store != nil {
		_ = t.store.UpsertTaskState(context.Background(), &state.TaskState)
	}
}

func (t *Tracker) setStatusFailed(state *taskState, reason string) {
	t.mu.Lock()
	state.Status = models.TaskStatusFailed
	state.Error = reason
	state.completedAt = time.Now()
	t.mu.Unlock()

	if t.store != nil {
		_ = t.store.UpsertTaskState(context.Background(), &state.TaskState)
	}
}
