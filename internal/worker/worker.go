// Package worker implements the Live Caption Worker (spec.md §4.5): one
// instance per live channel, owning one ASR websocket session at a time
// and driving segment fetch, upload, recognition, sentence assembly, and
// broadcast.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jihoonkim/legisub/internal/asr"
	"github.com/jihoonkim/legisub/internal/caption"
	"github.com/jihoonkim/legisub/internal/catalog"
	"github.com/jihoonkim/legisub/internal/hls"
	"github.com/jihoonkim/legisub/internal/hub"
	"github.com/jihoonkim/legisub/internal/observability"
	"github.com/jihoonkim/legisub/internal/spacing"
	"github.com/jihoonkim/legisub/internal/terminology"
	"github.com/jihoonkim/legisub/internal/tsinspect"
	"github.com/jihoonkim/legisub/pkg/httpclient"
)

// Tuning constants from spec.md §4.5 and §5.
const (
	uploadPollInterval = 2 * time.Second
	keepaliveInterval  = 8 * time.Second
	stallTimeout       = 60 * time.Second
	watchdogInterval   = stallTimeout / 2
	segmentFetchTimeout = 10 * time.Second
	playlistFetchTimeout = 10 * time.Second

	backoffInitial = 1 * time.Second
	backoffCap     = 30 * time.Second
)

// Refiner is the subset of the Caption Refiner's API the worker needs;
// defined here to avoid a dependency cycle with internal/refiner.
type Refiner interface {
	Enqueue(c caption.Caption)
}

// Config bundles the worker's fixed dependencies, shared across every
// channel's worker instance.
type Config struct {
	HTTPClient   *httpclient.Client
	Hub          *hub.Hub
	Dictionary   *terminology.Dictionary
	Spacing      *spacing.Corrector
	Refiner      Refiner // may be nil when the Caption Refiner is disabled
	ASRProvider  string
	ASRAPIKey    string
	ASRLanguage  string
	SampleRateHz int
	Logger       *slog.Logger
}

// debugInfo is the worker's introspection snapshot (spec.md §4.5).
type debugInfo struct {
	taskAlive            bool
	lastProviderActivity time.Time
	captionsEmitted      int
	bufferPreview        string
	lastError            string
	reconnectCount       int
}

// Worker owns one channel's ASR session and caption pipeline. Use Run to
// drive its reconnect loop; cancel the context passed to Run to stop it.
type Worker struct {
	channel catalog.Channel
	cfg     Config
	logger  *slog.Logger

	hlsReader *hls.Reader
	buffer    *caption.Buffer

	mu    sync.Mutex
	debug debugInfo
}

// New constructs a Worker for channel. It does not start anything; call
// Run in its own goroutine.
func New(channel catalog.Channel, cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = observability.WithChannel(logger, channel.ID)

	return &Worker{
		channel:   channel,
		cfg:       cfg,
		logger:    logger,
		hlsReader: hls.New(cfg.HTTPClient),
		buffer:    caption.NewBuffer(),
	}
}

// Run drives the reconnect loop until ctx is cancelled: open one ASR
// session, run the four cooperating sub-tasks, wait for the first to exit,
// tear the rest down, close the session, sleep with exponential backoff,
// and repeat. On return, the Sentence Buffer is cleared without emitting
// and the room's caption history is cleared (spec.md §4.5 lifecycle step
// 3).
func (w *Worker) Run(ctx context.Context) {
	w.setTaskAlive(true)
	defer func() {
		w.setTaskAlive(false)
		w.buffer.Clear()
		w.cfg.Hub.ClearHistory(w.channel.ID)
	}()

	backoff := backoffInitial
	for {
		if ctx.Err() != nil {
			return
		}

		err := w.runSession(ctx)
		if ctx.Err() != nil {
			return
		}

		w.recordError(err)
		w.logger.Warn("live caption session ended, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("backoff", backoff))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}

		backoff *= 2
		if backoff > backoffCap {
			backoff = backoffCap
		}
		w.incrementReconnectCount()
	}
}

// runSession opens one ASR session and runs its four sub-tasks until the
// first exits, then tears the rest down. Returns the error the deciding
// sub-task reported (nil on clean shutdown).
func (w *Worker) runSession(ctx context.Context) error {
	session, err := asr.Dial(ctx, asr.SessionConfig{
		ProviderURL:  w.cfg.ASRProvider,
		APIKey:       w.cfg.ASRAPIKey,
		Language:     w.cfg.ASRLanguage,
		SampleRateHz: w.cfg.SampleRateHz,
	})
	if err != nil {
		return fmt.Errorf("dialing ASR session: %w", err)
	}
	defer session.Close()

	w.hlsReader.Reset()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var lastActivity atomicTime
	lastActivity.Store(time.Now())

	errCh := make(chan error, 4)
	go func() { errCh <- w.uploader(sessionCtx, session) }()
	go func() { errCh <- w.receiver(sessionCtx, session, &lastActivity) }()
	go func() { errCh <- w.keepalive(sessionCtx, session) }()
	go func() { errCh <- w.watchdog(sessionCtx, session, &lastActivity) }()

	var first error
	for i := 0; i < 4; i++ {
		if i == 0 {
			first = <-errCh
			cancel()
			continue
		}
		<-errCh
	}
	return first
}

// uploader asks the HLS Reader for new segments every uploadPollInterval
// and forwards each one's bytes to the ASR session (spec.md §4.5
// "Uploader").
func (w *Worker) uploader(ctx context.Context, session *asr.Session) error {
	ticker := time.NewTicker(uploadPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fetchCtx, cancel := context.WithTimeout(ctx, playlistFetchTimeout)
			segments, err := w.hlsReader.FetchNewSegments(fetchCtx, w.channel.PlaylistURL)
			cancel()
			if err != nil {
				w.logger.Warn("playlist fetch failed, retrying next tick", slog.String("error", err.Error()))
				continue
			}

			for _, segURL := range segments {
				if err := w.uploadSegment(ctx, session, segURL); err != nil {
					w.logger.Warn("segment upload failed, skipping segment",
						slog.String("segment", segURL), slog.String("error", err.Error()))
				}
			}
		}
	}
}

func (w *Worker) uploadSegment(ctx context.Context, session *asr.Session, segURL string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, segmentFetchTimeout)
	defer cancel()

	resp, err := w.cfg.HTTPClient.Get(fetchCtx, segURL)
	if err != nil {
		return fmt.Errorf("downloading segment: %w", err)
	}
	defer resp.Body.Close()

	data, err := readAll(resp)
	if err != nil {
		return fmt.Errorf("reading segment body: %w", err)
	}

	if _, err := tsinspect.Check(data); err != nil {
		w.logger.Warn("segment framing check failed, forwarding anyway",
			slog.String("segment", segURL), slog.String("error", err.Error()))
	}

	if err := session.WriteSegment(data); err != nil {
		return fmt.Errorf("writing segment to ASR session: %w", err)
	}
	return nil
}

// receiver reads JSON frames from the ASR session and routes Results
// frames to fragment handling (spec.md §4.5 "Receiver").
func (w *Worker) receiver(ctx context.Context, session *asr.Session, lastActivity *atomicTime) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		raw, err := session.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading ASR frame: %w", err)
		}
		lastActivity.Store(time.Now())
		w.noteProviderActivity()

		var frame asr.Frame
		if err := decodeFrameType(raw, &frame); err != nil {
			w.logger.Warn("malformed ASR frame, skipping", slog.String("error", err.Error()))
			continue
		}
		if frame.Type != "Results" {
			continue
		}

		results, err := asr.DecodeResultsFrame(raw)
		if err != nil {
			w.logger.Warn("malformed Results frame, skipping", slog.String("error", err.Error()))
			continue
		}
		w.handleResults(results)
	}
}

// keepalive sends the provider-specific keepalive frame every
// keepaliveInterval (spec.md §4.5 "Keepalive").
func (w *Worker) keepalive(ctx context.Context, session *asr.Session) error {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := session.WriteKeepAlive(); err != nil {
				return fmt.Errorf("sending keepalive: %w", err)
			}
		}
	}
}

// watchdog forcibly closes the session if the provider has gone silent for
// stallTimeout (spec.md §4.5 "Watchdog").
func (w *Worker) watchdog(ctx context.Context, session *asr.Session, lastActivity *atomicTime) error {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if time.Since(lastActivity.Load()) >= stallTimeout {
				_ = session.Close()
				return errors.New("ASR session stalled past watchdog timeout")
			}
		}
	}
}

// IsRunning reports whether the worker's reconnect loop is currently
// active.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.debug.taskAlive
}

// DebugInfo returns the worker's introspection snapshot (spec.md §4.5
// "Introspection").
type DebugInfo struct {
	TaskAlive               bool
	LastProviderActivityAgo time.Duration
	CaptionsEmitted         int
	BufferPreview           string
	LastError               string
	ReconnectCount          int
}

// DebugInfo snapshots the worker's current state for the HTTP introspection
// surface.
func (w *Worker) DebugInfo() DebugInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	ago := time.Duration(0)
	if !w.debug.lastProviderActivity.IsZero() {
		ago = time.Since(w.debug.lastProviderActivity)
	}
	return DebugInfo{
		TaskAlive:               w.debug.taskAlive,
		LastProviderActivityAgo: ago,
		CaptionsEmitted:         w.debug.captionsEmitted,
		BufferPreview:           w.debug.bufferPreview,
		LastError:               w.debug.lastError,
		ReconnectCount:          w.debug.reconnectCount,
	}
}

func (w *Worker) setTaskAlive(alive bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debug.taskAlive = alive
}

func (w *Worker) recordError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debug.lastError = errString(err)
}

func (w *Worker) incrementReconnectCount() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debug.reconnectCount++
}

func (w *Worker) noteProviderActivity() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debug.lastProviderActivity = time.Now()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
