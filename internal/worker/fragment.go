package worker

import (
	"strings"

	"github.com/jihoonkim/legisub/internal/asr"
	"github.com/jihoonkim/legisub/internal/caption"
	"github.com/jihoonkim/legisub/internal/terminology"
)

// handleResults routes one decoded Results frame per spec.md §4.5
// "Per-fragment handling".
func (w *Worker) handleResults(frame asr.ResultsFrame) {
	alt := frame.BestAlternative()

	if !frame.IsFinal {
		w.handleInterim(alt)
		return
	}
	w.handleFinal(frame, alt)
}

// handleInterim builds the fragment's preview text and broadcasts it
// without touching the Sentence Buffer.
func (w *Worker) handleInterim(alt asr.Alternative) {
	text := joinWords(alt.Words)
	if text == "" {
		text = alt.Transcript
	}
	if text == "" {
		return
	}
	text = w.postProcess(text)
	w.cfg.Hub.BroadcastInterim(w.channel.ID, text)
}

// handleFinal splits the fragment into same-speaker runs, feeds each to
// the Sentence Assembler, and flushes/broadcasts captions as triggered.
func (w *Worker) handleFinal(frame asr.ResultsFrame, alt asr.Alternative) {
	runs := buildRuns(frame, alt)
	for _, run := range runs {
		w.feedRun(run)
	}
}

func (w *Worker) feedRun(run caption.Run) {
	if existing := w.buffer.Speaker(); !w.buffer.IsEmpty() && speakerDiffers(existing, run.SpeakerIndex) {
		w.flushBuffer()
	}

	w.buffer.Add(run)
	w.updateBufferPreview()

	if w.buffer.ShouldFlush() {
		w.flushBuffer()
	}
}

func (w *Worker) flushBuffer() {
	c, ok := w.buffer.Flush(w.channel.ID)
	if !ok {
		return
	}

	c.Text = w.postProcess(c.Text)
	c.ID = caption.NewID()

	w.cfg.Hub.BroadcastCreated(w.channel.ID, c)
	w.incrementCaptionsEmitted()
	w.updateBufferPreview()

	if w.cfg.Refiner != nil {
		w.cfg.Refiner.Enqueue(c)
	}
}

// postProcess applies Korean word-spacing normalization, whitespace
// collapse, terminology correction, and PII masking, in that order
// (spec.md §4.5 "Post-processing before emission").
func (w *Worker) postProcess(text string) string {
	if w.cfg.Spacing != nil {
		text = w.cfg.Spacing.Correct(text)
	}
	text = collapseRuns(text)
	if w.cfg.Dictionary != nil {
		text = w.cfg.Dictionary.Correct(text)
	}
	text = terminology.MaskPII(text)
	return text
}

// buildRuns splits a Results frame's best alternative into runs of
// consecutive same-speaker words (spec.md §4.5 "Final results"). If no
// word list is present, the whole transcript becomes a single
// speaker-less run using the frame's reported start/duration.
func buildRuns(frame asr.ResultsFrame, alt asr.Alternative) []caption.Run {
	if len(alt.Words) == 0 {
		if alt.Transcript == "" {
			return nil
		}
		return []caption.Run{{
			SpeakerIndex: nil,
			Text:         alt.Transcript,
			Confidence:   alt.Confidence,
			StartSec:     frame.Start,
			EndSec:       frame.Start + frame.Duration,
		}}
	}

	var runs []caption.Run
	var current []asr.Word

	flush := func() {
		if len(current) == 0 {
			return
		}
		runs = append(runs, wordsToRun(current))
		current = nil
	}

	for _, word := range alt.Words {
		if len(current) > 0 && speakerDiffers(current[len(current)-1].Speaker, word.Speaker) {
			flush()
		}
		current = append(current, word)
	}
	flush()
	return runs
}

func wordsToRun(words []asr.Word) caption.Run {
	var sb strings.Builder
	var confidenceSum float64
	for i, word := range words {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(word.Text())
		confidenceSum += word.Confidence
	}
	return caption.Run{
		SpeakerIndex: words[0].Speaker,
		Text:         sb.String(),
		Confidence:   confidenceSum / float64(len(words)),
		StartSec:     words[0].Start,
		EndSec:       words[len(words)-1].End,
	}
}

func joinWords(words []asr.Word) string {
	var sb strings.Builder
	for i, word := range words {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(word.Text())
	}
	return sb.String()
}

func speakerDiffers(a, b *int) bool {
	if a == nil && b == nil {
		return false
	}
	if a == nil || b == nil {
		return true
	}
	return *a != *b
}

func collapseRuns(text string) string {
	var sb strings.Builder
	lastWasSpace := false
	for _, r := range strings.TrimSpace(text) {
		if r == ' ' || r == '\t' || r == '\n' {
			if lastWasSpace {
				continue
			}
			lastWasSpace = true
			sb.WriteByte(' ')
			continue
		}
		lastWasSpace = false
		sb.WriteRune(r)
	}
	return sb.String()
}

func (w *Worker) updateBufferPreview() {
	w.mu.Lock()
	defer w.mu.Unlock()
	preview := w.buffer.Text()
	if len(preview) > 80 {
		preview = preview[:80]
	}
	w.debug.bufferPreview = preview
}

func (w *Worker) incrementCaptionsEmitted() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debug.captionsEmitted++
}
