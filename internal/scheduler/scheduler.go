// Package scheduler drives this engine's recurring background ticks: the
// Live-Status Poller's refresh cadence, the Auto-STT Supervisor's
// reconciliation backstop, and the VOD Batch Worker's task-state GC.
// It uses robfig/cron as the timing engine, the same library and
// `@every`-interval pattern the rest of this engine's ancestry uses for
// its own recurring jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jihoonkim/legisub/internal/livestatus"
	"github.com/jihoonkim/legisub/internal/supervisor"
	"github.com/jihoonkim/legisub/internal/vod"
)

// Config configures the Scheduler's recurring ticks. A zero duration
// disables that tick entirely.
type Config struct {
	// LiveStatusPollInterval drives Poller.FetchSnapshot, which refreshes
	// the cached status map and publishes any changes to subscribers
	// (spec.md §4.3 "Cadence").
	LiveStatusPollInterval time.Duration
	// ReconcileInterval drives Supervisor.EnsureWorkersForLiveChannels as
	// a backstop against a missed status transition (spec.md §4.8
	// "Opportunistic reconciliation").
	ReconcileInterval time.Duration
	// VODTaskStateGCPeriod drives Tracker.GC, which evicts completed/failed
	// VOD task-state entries older than VODTaskStateRetention.
	VODTaskStateGCPeriod  time.Duration
	VODTaskStateRetention time.Duration
}

// Scheduler owns the background cron instance and the long-lived
// dependencies its jobs call into.
type Scheduler struct {
	cfg        Config
	cron       *cron.Cron
	poller     *livestatus.Poller
	supervisor *supervisor.Supervisor
	vodTracker *vod.Tracker
	logger     *slog.Logger
}

// New constructs a Scheduler. Call Start to register jobs and begin
// ticking; call Stop to drain.
func New(cfg Config, poller *livestatus.Poller, sup *supervisor.Supervisor, tracker *vod.Tracker, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:        cfg,
		cron:       cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		poller:     poller,
		supervisor: sup,
		vodTracker: tracker,
		logger:     logger,
	}
}

// Start registers every configured tick and starts the cron engine. A job
// whose interval is zero is skipped rather than ticking every second.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.LiveStatusPollInterval > 0 {
		if err := s.addEvery(s.cfg.LiveStatusPollInterval, func() { s.pollLiveStatus(ctx) }); err != nil {
			return fmt.Errorf("scheduling live-status poll: %w", err)
		}
	}
	if s.cfg.ReconcileInterval > 0 && s.supervisor != nil {
		if err := s.addEvery(s.cfg.ReconcileInterval, func() { s.supervisor.EnsureWorkersForLiveChannels(ctx) }); err != nil {
			return fmt.Errorf("scheduling reconciliation: %w", err)
		}
	}
	if s.cfg.VODTaskStateGCPeriod > 0 && s.vodTracker != nil {
		if err := s.addEvery(s.cfg.VODTaskStateGCPeriod, func() { s.gcVODTaskStates() }); err != nil {
			return fmt.Errorf("scheduling VOD task-state GC: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("entries", len(s.cron.Entries())))
	return nil
}

// Stop drains the cron engine, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) addEvery(interval time.Duration, job func()) error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), job)
	return err
}

func (s *Scheduler) pollLiveStatus(ctx context.Context) {
	if _, err := s.poller.FetchSnapshot(ctx); err != nil {
		s.logger.Warn("scheduled live-status poll failed", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) gcVODTaskStates() {
	removed := s.vodTracker.GC(s.cfg.VODTaskStateRetention, time.Now())
	if removed > 0 {
		s.logger.Debug("garbage collected VOD task states", slog.Int("removed", removed))
	}
}
