package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jihoonkim/legisub/internal/catalog"
)

// handle pairs a running Worker with the cancel function for its Run
// goroutine, so Manager can enforce "at most one worker per channel id"
// (spec.md §3 invariant).
type handle struct {
	worker *Worker
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns every channel's Live Caption Worker and enforces the
// single-worker-per-channel invariant. It is the unit the Auto-STT
// Supervisor and HTTP introspection handlers operate on.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	logger  *slog.Logger
	workers map[string]*handle
}

// NewManager constructs an empty Manager sharing cfg across every worker
// it starts.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		logger:  logger,
		workers: make(map[string]*handle),
	}
}

// Start launches a worker for channel, first stopping any existing worker
// for the same id (spec.md §4.5 lifecycle step 1: "idempotent in the
// sense that an existing worker is stopped first").
func (m *Manager) Start(channel catalog.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.workers[channel.ID]; ok {
		existing.cancel()
		<-existing.done
		delete(m.workers, channel.ID)
	}

	w := New(channel, m.cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.workers[channel.ID] = &handle{worker: w, cancel: cancel, done: done}

	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	m.logger.Info("started live caption worker", slog.String("channel_id", channel.ID))
}

// Stop cancels and waits for channelID's worker, if one is running. A
// no-op if no worker is running for that id.
func (m *Manager) Stop(channelID string) {
	m.mu.Lock()
	h, ok := m.workers[channelID]
	if ok {
		delete(m.workers, channelID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	h.cancel()
	<-h.done
	m.logger.Info("stopped live caption worker", slog.String("channel_id", channelID))
}

// IsRunning reports whether a worker is currently tracked for channelID.
func (m *Manager) IsRunning(channelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.workers[channelID]
	return ok
}

// DebugInfo returns channelID's worker's introspection snapshot. The bool
// reports whether a worker is tracked for that id at all.
func (m *Manager) DebugInfo(channelID string) (DebugInfo, bool) {
	m.mu.Lock()
	h, ok := m.workers[channelID]
	m.mu.Unlock()
	if !ok {
		return DebugInfo{}, false
	}
	return h.worker.DebugInfo(), true
}

// StopAll cancels and waits for every currently-running worker (spec.md
// §4.8 "Shutdown").
func (m *Manager) StopAll() {
	m.mu.Lock()
	handles := make([]*handle, 0, len(m.workers))
	for id, h := range m.workers {
		handles = append(handles, h)
		delete(m.workers, id)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.cancel()
		<-h.done
	}
}
