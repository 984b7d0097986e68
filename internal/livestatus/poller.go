// Package livestatus implements the Live-Status Poller (spec.md §4.3): a
// TTL-cached, coalesced fetch of the broadcaster's "what is on air" feed,
// with diff detection and bounded-queue pub/sub for subscribers.
package livestatus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jihoonkim/legisub/pkg/httpclient"
)

// StatusCode is one of the upstream broadcast states spec.md §3 names.
type StatusCode string

// Known status codes. Unknown codes are passed through verbatim — the
// Auto-STT Supervisor simply ignores anything that isn't "live".
const (
	StatusPre    StatusCode = "pre"
	StatusLive   StatusCode = "live"
	StatusRecess StatusCode = "recess"
	StatusEnded  StatusCode = "ended"
	StatusNone   StatusCode = "none"
)

// upstreamRecord is one element of the broadcaster's JSON array.
type upstreamRecord struct {
	UpstreamCode string  `json:"upstream_code"`
	StatusCode   string  `json:"status_code"`
	SessionNo    *string `json:"session_no,omitempty"`
	SessionOrder *int    `json:"session_order,omitempty"`
}

// Change describes one status transition for an upstream code.
type Change struct {
	UpstreamCode string
	Old          StatusCode
	New          StatusCode
}

// snapshot maps upstream_code to its last-observed record.
type snapshot map[string]upstreamRecord

// Poller is the process-wide Live-Status Poller singleton.
type Poller struct {
	client   *httpclient.Client
	endpoint string
	ttl      time.Duration
	queueCap int
	logger   *slog.Logger

	group singleflight.Group

	mu         sync.Mutex
	cachedAt   time.Time
	current    snapshot
	subs       map[chan []Change]struct{}
}

// Config configures a Poller.
type Config struct {
	Endpoint      string
	CacheTTL      time.Duration
	QueueCapacity int
}

// New constructs a Poller. QueueCapacity defaults to 50 and a negative
// CacheTTL to 5s, matching spec.md §4.3; a zero CacheTTL disables caching,
// so every FetchSnapshot refetches.
func New(client *httpclient.Client, cfg Config, logger *slog.Logger) *Poller {
	if cfg.CacheTTL < 0 {
		cfg.CacheTTL = 5 * time.Second
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:   client,
		endpoint: cfg.Endpoint,
		ttl:      cfg.CacheTTL,
		queueCap: cfg.QueueCapacity,
		logger:   logger,
		current:  make(snapshot),
		subs:     make(map[chan []Change]struct{}),
	}
}

// FetchSnapshot returns the current status map, refreshing it if the cache
// has expired. Concurrent callers racing a refresh coalesce onto a single
// outbound request via singleflight and all observe the same result
// (spec.md §4.3 "Cadence").
func (p *Poller) FetchSnapshot(ctx context.Context) (map[string]StatusCode, error) {
	p.mu.Lock()
	fresh := time.Since(p.cachedAt) < p.ttl && p.cachedAt != (time.Time{})
	p.mu.Unlock()

	if !fresh {
		if _, err, _ := p.group.Do("fetch", func() (interface{}, error) {
			return nil, p.refresh(ctx)
		}); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]StatusCode, len(p.current))
	for code, rec := range p.current {
		out[code] = StatusCode(rec.StatusCode)
	}
	return out, nil
}

// refresh performs the outbound fetch, diffs against the prior snapshot,
// and publishes any changes. On failure, the prior snapshot is preserved
// and the cache timestamp is not advanced, so the next call retries
// promptly (spec.md §4.3 "Failure semantics").
func (p *Poller) refresh(ctx context.Context) error {
	records, err := p.fetch(ctx)
	if err != nil {
		p.logger.Warn("live-status fetch failed", slog.String("error", err.Error()))
		return err
	}

	next := make(snapshot, len(records))
	for _, r := range records {
		next[r.UpstreamCode] = r
	}

	p.mu.Lock()
	prev := p.current
	seen := make(map[string]struct{}, len(prev)+len(next))
	var changes []Change
	for code := range prev {
		seen[code] = struct{}{}
	}
	for code := range next {
		seen[code] = struct{}{}
	}
	for code := range seen {
		old, hadOld := prev[code]
		rec, hasNew := next[code]

		oldCode := StatusNone
		if hadOld {
			oldCode = StatusCode(old.StatusCode)
		}
		newCode := StatusNone
		if hasNew {
			newCode = StatusCode(rec.StatusCode)
		}

		if oldCode != newCode {
			changes = append(changes, Change{
				UpstreamCode: code,
				Old:          oldCode,
				New:          newCode,
			})
		}
	}
	p.current = next
	p.cachedAt = time.Now()
	p.mu.Unlock()

	if len(changes) > 0 {
		p.publish(changes)
	}
	return nil
}

// fetch performs the HTTPS POST described in spec.md §6 "Upstream — Live
// status" and parses the JSON reply.
func (p *Poller) fetch(ctx context.Context) ([]upstreamRecord, error) {
	form := url.Values{"ymd": {time.Now().Format("2006-01-02")}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building live-status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", p.endpoint)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.DoWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("requesting live status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("live status upstream returned %d", resp.StatusCode)
	}

	var records []upstreamRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding live status response: %w", err)
	}
	return records, nil
}

// Subscribe registers a new bounded queue for change batches.
func (p *Poller) Subscribe() chan []Change {
	ch := make(chan []Change, p.queueCap)
	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a previously-subscribed queue.
func (p *Poller) Unsubscribe(ch chan []Change) {
	p.mu.Lock()
	if _, ok := p.subs[ch]; ok {
		delete(p.subs, ch)
		close(ch)
	}
	p.mu.Unlock()
}

// publish pushes a change batch to every subscriber. A subscriber whose
// queue is full is dropped from the subscriber set rather than blocking
// the poller (spec.md §4.3 "slow-consumer policy").
func (p *Poller) publish(changes []Change) {
	p.mu.Lock()
	var dropped []chan []Change
	for ch := range p.subs {
		select {
		case ch <- changes:
		default:
			dropped = append(dropped, ch)
		}
	}
	for _, ch := range dropped {
		delete(p.subs, ch)
		close(ch)
	}
	p.mu.Unlock()

	if len(dropped) > 0 {
		p.logger.Warn("dropped slow live-status subscriber(s)", slog.Int("count", len(dropped)))
	}
}

// EnrichedChannel is one row of ChannelsWithStatus's output.
type EnrichedChannel struct {
	UpstreamCode string
	StatusCode   StatusCode
	SessionNo    *string
	SessionOrder *int
}

// ChannelsWithStatus returns the full enriched per-channel list, refreshing
// the cache first if needed.
func (p *Poller) ChannelsWithStatus(ctx context.Context) ([]EnrichedChannel, error) {
	if _, err := p.FetchSnapshot(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EnrichedChannel, 0, len(p.current))
	for _, rec := range p.current {
		out = append(out, EnrichedChannel{
			UpstreamCode: rec.UpstreamCode,
			StatusCode:   StatusCode(rec.StatusCode),
			SessionNo:    rec.SessionNo,
			SessionOrder: rec.SessionOrder,
		})
	}
	return out, nil
}
