package caption

import (
	"strings"
	"unicode/utf8"
)

// maxBufferRunes is the length-based flush threshold (spec.md §4.6 flush
// condition 2).
const maxBufferRunes = 40

// koreanEndingSuffixes are the polite-ending heuristics spec.md §4.6 names
// alongside ordinary sentence punctuation. Only the unambiguous multi-char
// formal endings are checked here — bare "요"/"다" match far too many
// mid-utterance words (e.g. "안녕하세요") to be a safe terminating signal on
// their own, so they are deliberately excluded.
var koreanEndingSuffixes = []string{"습니다", "니다", "까"}

// Run is one speaker-homogeneous word group handed to the buffer by the
// Live Caption Worker (spec.md §4.5 "Per-fragment handling").
type Run struct {
	SpeakerIndex *int
	Text         string
	Confidence   float64
	StartSec     float64
	EndSec       float64
}

// Buffer is the per-worker Sentence Buffer (spec.md §3). It is never
// accessed concurrently — the Live Caption Worker owns it exclusively.
type Buffer struct {
	parts        []string
	speaker      *int
	hasSpeaker   bool
	firstStart   float64
	lastEnd      float64
	confidenceSum float64
	confidenceN  int
	started      bool
}

// NewBuffer returns an empty Sentence Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// IsEmpty reports whether the buffer holds no fragments.
func (b *Buffer) IsEmpty() bool {
	return !b.started
}

// Speaker returns the buffer's accumulated speaker index, or nil if every
// run added so far had a nil speaker.
func (b *Buffer) Speaker() *int {
	return b.speaker
}

// Add appends a run's text to the buffer (spec.md §4.6 "Add"). The caller
// is responsible for flushing first when the run's speaker differs from
// Speaker() (flush condition 3 is a Worker-side decision, not the buffer's).
func (b *Buffer) Add(r Run) {
	if !b.started {
		b.firstStart = r.StartSec
		b.started = true
	}
	b.lastEnd = r.EndSec
	if r.Text != "" {
		b.parts = append(b.parts, r.Text)
	}
	if r.SpeakerIndex != nil {
		b.speaker = r.SpeakerIndex
		b.hasSpeaker = true
	}
	b.confidenceSum += r.Confidence
	b.confidenceN++
}

// Text returns the buffer's accumulated text, fragments joined by a single
// space, collapsed whitespace trimmed per spec.md §4.5 post-processing.
func (b *Buffer) Text() string {
	joined := strings.Join(b.parts, " ")
	return collapseWhitespace(joined)
}

// ShouldFlush reports whether either of the two text/length-driven flush
// conditions in spec.md §4.6 currently hold. Speaker-transition (condition
// 3) and session-end (condition 4) are decided by the caller, not here.
func (b *Buffer) ShouldFlush() bool {
	if b.IsEmpty() {
		return false
	}
	text := strings.TrimSpace(b.Text())
	if text == "" {
		return false
	}
	if utf8.RuneCountInString(text) > maxBufferRunes {
		return true
	}
	return hasTerminatingMark(text)
}

// Flush emits the buffer's accumulated text as a Caption for roomID and
// clears the buffer, per spec.md §4.6 "Output". ok is false if the buffer
// was empty (nothing to flush).
func (b *Buffer) Flush(roomID string) (Caption, bool) {
	if b.IsEmpty() {
		return Caption{}, false
	}
	text := strings.TrimSpace(b.Text())
	if text == "" {
		b.Clear()
		return Caption{}, false
	}

	var confidence float64
	if b.confidenceN > 0 {
		confidence = b.confidenceSum / float64(b.confidenceN)
	}

	var speakerLabel *string
	if b.hasSpeaker {
		speakerLabel = SpeakerLabel(b.speaker)
	}

	c := Caption{
		ID:           NewID(),
		RoomID:       roomID,
		Text:         text,
		StartTimeSec: b.firstStart,
		EndTimeSec:   b.lastEnd,
		Confidence:   confidence,
		SpeakerLabel: speakerLabel,
	}
	b.Clear()
	return c, true
}

// Clear empties the buffer without producing a caption — used when a
// worker session is cancelled (spec.md §4.5 "clean close, flush buffer
// without emitting").
func (b *Buffer) Clear() {
	*b = Buffer{}
}

// collapseWhitespace collapses runs of ≥2 whitespace characters into one
// space and trims the result (spec.md §4.5 post-processing).
func collapseWhitespace(s string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range s {
		if isSpace(r) {
			if lastWasSpace {
				continue
			}
			lastWasSpace = true
			b.WriteRune(' ')
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '　'
}

// hasTerminatingMark reports whether text ends with a sentence-terminating
// mark, a Korean polite-ending heuristic, or a comma (spec.md §4.6
// condition 1).
func hasTerminatingMark(text string) bool {
	if text == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(text)
	switch last {
	case '.', '?', '!', ',':
		return true
	}
	for _, suffix := range koreanEndingSuffixes {
		if strings.HasSuffix(text, suffix) {
			return true
		}
	}
	return false
}
