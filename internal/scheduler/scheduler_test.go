package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihoonkim/legisub/internal/catalog"
	"github.com/jihoonkim/legisub/internal/livestatus"
	"github.com/jihoonkim/legisub/internal/supervisor"
	"github.com/jihoonkim/legisub/internal/vod"
	"github.com/jihoonkim/legisub/pkg/httpclient"
)

type fakeWorkerManager struct {
	started map[string]bool
}

func (f *fakeWorkerManager) Start(channel catalog.Channel) {
	if f.started == nil {
		f.started = make(map[string]bool)
	}
	f.started[channel.ID] = true
}

func (f *fakeWorkerManager) Stop(channelID string) {
	delete(f.started, channelID)
}

func (f *fakeWorkerManager) IsRunning(channelID string) bool {
	return f.started[channelID]
}

func TestScheduler_LiveStatusPollTickRefreshesPoller(t *testing.T) {
	var hits int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`[{"upstream_code":"A011","status_code":"pre"}]`))
	}))
	defer upstream.Close()

	poller := livestatus.New(httpclient.NewWithDefaults(), livestatus.Config{Endpoint: upstream.URL, CacheTTL: 0}, nil)

	s := New(Config{LiveStatusPollInterval: 50 * time.Millisecond}, poller, nil, nil, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return hits >= 2 }, time.Second, 10*time.Millisecond)
}

func TestScheduler_ReconcileTickStartsWorkersForLiveChannels(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"upstream_code":"A011","status_code":"live"}]`))
	}))
	defer upstream.Close()

	cat := catalog.New([]catalog.Channel{{ID: "ch14", UpstreamCode: "A011"}})
	poller := livestatus.New(httpclient.NewWithDefaults(), livestatus.Config{Endpoint: upstream.URL, CacheTTL: 0}, nil)
	workers := &fakeWorkerManager{}
	sup := supervisor.New(cat, poller, workers, nil)

	s := New(Config{ReconcileInterval: 50 * time.Millisecond}, poller, sup, nil, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return workers.IsRunning("ch14") }, time.Second, 10*time.Millisecond)
}

func TestScheduler_VODGCTickRegistersAndRuns(t *testing.T) {
	tracker := vod.NewTracker(vod.Config{})

	s := New(Config{VODTaskStateGCPeriod: 50 * time.Millisecond, VODTaskStateRetention: time.Hour}, nil, nil, tracker, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Len(t, s.cron.Entries(), 1)
	assert.Eventually(t, func() bool { return !s.cron.Entries()[0].Next.IsZero() }, time.Second, 10*time.Millisecond)
}

func TestScheduler_ZeroIntervalsRegisterNoJobs(t *testing.T) {
	s := New(Config{}, nil, nil, nil, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Empty(t, s.cron.Entries())
}
