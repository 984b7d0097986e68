// Package refiner implements the Caption Refiner (spec.md §4.10): an
// optional single background batching consumer that sends recently
// emitted captions to a rewriter for correction, then pushes any changed
// text back out as a `subtitle_corrected` event.
package refiner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jihoonkim/legisub/internal/caption"
	"github.com/jihoonkim/legisub/pkg/httpclient"
)

const (
	batchSizeDefault     = 8
	batchIntervalDefault = 2 * time.Second
	requestTimeout       = 30 * time.Second
)

// Hub is the subset of *hub.Hub the refiner depends on, named here to
// avoid a dependency cycle.
type Hub interface {
	BroadcastCorrected(roomID, id, correctedText string)
}

// Config configures a Refiner.
type Config struct {
	HTTPClient    *httpclient.Client
	Hub           Hub
	RewriterURL   string
	RewriterAPIKey string
	RewriterModel string
	Roster        Roster
	BatchSize     int
	BatchInterval time.Duration
	Logger        *slog.Logger
}

// Refiner batches captions and sends them to the rewriter. Construct with
// New and drive its consumer loop with Run; feed captions via Enqueue.
type Refiner struct {
	cfg   Config
	queue chan caption.Caption
}

// New constructs a Refiner. The queue holds up to 4096 captions; when it is
// full, Enqueue drops the caption and logs a warning instead of blocking
// the caller.
func New(cfg Config) *Refiner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = batchSizeDefault
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = batchIntervalDefault
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Refiner{cfg: cfg, queue: make(chan caption.Caption, 4096)}
}

// Enqueue adds a caption to the refiner's batching queue. Never blocks the
// caller on the refiner's own HTTP round-trip (spec.md §4.10 "captions are
// never blocked on the refiner").
func (r *Refiner) Enqueue(c caption.Caption) {
	select {
	case r.queue <- c:
	default:
		r.cfg.Logger.Warn("refiner queue saturated, dropping caption", slog.String("caption_id", c.ID))
	}
}

// Run drives the batching consumer loop until ctx is cancelled (spec.md
// §4.10 "Loop"): await the first caption, then aggregate until either
// BatchSize or BatchInterval is reached, then rewrite the batch.
func (r *Refiner) Run(ctx context.Context) {
	for {
		var first caption.Caption
		select {
		case <-ctx.Done():
			return
		case first = <-r.queue:
		}

		batch := []caption.Caption{first}
		timer := time.NewTimer(r.cfg.BatchInterval)

	collecting:
		for len(batch) < r.cfg.BatchSize {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case c := <-r.queue:
				batch = append(batch, c)
			case <-timer.C:
				break collecting
			}
		}
		timer.Stop()

		r.rewriteBatch(ctx, batch)
	}
}

// rewriteBatch sends batch to the rewriter and broadcasts a correction for
// every item whose corrected text differs from the original. Rewriter
// errors are logged and the batch is dropped (spec.md §4.10).
func (r *Refiner) rewriteBatch(ctx context.Context, batch []caption.Caption) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	corrections, err := r.callRewriter(reqCtx, batch)
	if err != nil {
		r.cfg.Logger.Warn("refiner rewrite failed, dropping batch",
			slog.Int("batch_size", len(batch)), slog.String("error", err.Error()))
		return
	}

	byID := make(map[string]caption.Caption, len(batch))
	for _, c := range batch {
		byID[c.ID] = c
	}

	for _, item := range corrections {
		original, ok := byID[item.ID]
		if !ok || item.CorrectedText == original.Text {
			continue
		}
		r.cfg.Hub.BroadcastCorrected(original.RoomID, item.ID, item.CorrectedText)
	}
}

// rewriteItem is one entry of the rewriter's request/reply payload.
type rewriteItem struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	SpeakerLabel  string `json:"speaker_label,omitempty"`
	CorrectedText string `json:"corrected_text"`
}

type rewriteRequest struct {
	Model        string            `json:"model"`
	SystemPrompt string            `json:"system_prompt"`
	Roster       map[string]string `json:"roster,omitempty"`
	Items        []rewriteItem     `json:"items"`
}

type rewriteReply struct {
	Items []rewriteItem `json:"items"`
}

// callRewriter sends the batch with a constrained system prompt (spec.md
// §4.10) and parses the strict-JSON reply.
func (r *Refiner) callRewriter(ctx context.Context, batch []caption.Caption) ([]rewriteItem, error) {
	items := make([]rewriteItem, 0, len(batch))
	for _, c := range batch {
		label := ""
		if c.SpeakerLabel != nil {
			label = *c.SpeakerLabel
		}
		items = append(items, rewriteItem{ID: c.ID, Text: c.Text, SpeakerLabel: label})
	}

	payload := rewriteRequest{
		Model:        r.cfg.RewriterModel,
		SystemPrompt: systemPrompt,
		Roster:       r.cfg.Roster.Map(),
		Items:        items,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding rewrite request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.RewriterURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building rewrite request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.cfg.RewriterAPIKey)

	resp, err := r.cfg.HTTPClient.DoWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("calling rewriter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rewriter returned %d", resp.StatusCode)
	}

	var reply rewriteReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decoding rewrite reply: %w", err)
	}
	return reply.Items, nil
}

// systemPrompt constrains the rewriter to narrow, mechanical corrections
// (spec.md §4.10): fix speaker names against a known roster, normalize
// numeric/monetary expressions, normalize parliamentary terminology,
// preserve meaning, and return strict JSON.
const systemPrompt = `You correct machine-transcribed captions from a legislative proceeding.
Rules:
- Fix misattributed speaker names using the provided roster only; never invent a name not in the roster.
- Normalize numeric and monetary expressions to standard written form.
- Normalize parliamentary terminology to its standard form.
- Preserve meaning; do not paraphrase or summarize.
- Return strict JSON: {"items":[{"id":str,"corrected_text":str},...]} with one entry per input item, in the same order.`
