// Package supervisor implements the Auto-STT Supervisor (spec.md §4.8): a
// single process-wide instance reconciling the set of currently
// broadcasting channels with the set of running Live Caption Workers.
package supervisor

import (
	"context"
	"log/slog"

	"github.com/jihoonkim/legisub/internal/catalog"
	"github.com/jihoonkim/legisub/internal/livestatus"
	"github.com/jihoonkim/legisub/internal/worker"
)

// WorkerManager is the subset of *worker.Manager the supervisor depends
// on, so tests can substitute a fake.
type WorkerManager interface {
	Start(channel catalog.Channel)
	Stop(channelID string)
	IsRunning(channelID string) bool
}

// Supervisor starts and stops Live Caption Workers in response to
// broadcast status changes. Enabled iff an ASR provider credential is
// configured and the auto_stt.enabled flag is true. The registry always
// constructs one; the serve command starts it and schedules its reconcile
// tick only when it is enabled.
type Supervisor struct {
	catalog *catalog.Catalog
	poller  *livestatus.Poller
	workers WorkerManager
	logger  *slog.Logger
}

// New constructs a Supervisor. It does nothing until Start is called.
func New(cat *catalog.Catalog, poller *livestatus.Poller, workers WorkerManager, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{catalog: cat, poller: poller, workers: workers, logger: logger}
}

// Start performs the startup reconciliation (spec.md §4.8 "On startup")
// and then runs the monitor loop until ctx is cancelled. Call from its own
// goroutine.
func (s *Supervisor) Start(ctx context.Context) {
	s.EnsureWorkersForLiveChannels(ctx)

	changes := s.poller.Subscribe()
	defer s.poller.Unsubscribe(changes)

	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-changes:
			if !ok {
				return
			}
			s.applyChanges(batch)
		}
	}
}

// applyChanges starts/stops workers for each status transition in batch
// (spec.md §4.8 "Monitor loop"). Unknown codes are ignored. Start/stop
// failures never propagate — the worker manager itself only logs.
func (s *Supervisor) applyChanges(batch []livestatus.Change) {
	for _, change := range batch {
		channel, ok := s.catalog.ByUpstreamCode(change.UpstreamCode)
		if !ok {
			continue
		}

		becameLive := change.New == livestatus.StatusLive && change.Old != livestatus.StatusLive
		leftLive := change.Old == livestatus.StatusLive && change.New != livestatus.StatusLive

		switch {
		case becameLive:
			s.workers.Start(channel)
		case leftLive:
			s.workers.Stop(channel.ID)
		}
	}
}

// EnsureWorkersForLiveChannels starts a worker for every channel currently
// reported live that has none running. It never stops anything (spec.md
// §4.8 "Opportunistic reconciliation"). Start calls it once and the
// scheduler's reconcile tick calls it periodically; no HTTP handler calls
// it.
func (s *Supervisor) EnsureWorkersForLiveChannels(ctx context.Context) {
	rows, err := s.poller.ChannelsWithStatus(ctx)
	if err != nil {
		s.logger.Warn("reconciliation skipped: live-status fetch failed", slog.String("error", err.Error()))
		return
	}

	for _, row := range rows {
		if row.StatusCode != livestatus.StatusLive {
			continue
		}
		channel, ok := s.catalog.ByUpstreamCode(row.UpstreamCode)
		if !ok {
			continue
		}
		if s.workers.IsRunning(channel.ID) {
			continue
		}
		s.workers.Start(channel)
	}
}
