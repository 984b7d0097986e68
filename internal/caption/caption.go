// Package caption implements the Sentence Buffer and Sentence Assembler
// (spec.md §3, §4.6): a pure, in-memory accumulator that turns a stream of
// same-speaker ASR word runs into display-sized Caption sentences.
package caption

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Caption is the wire representation of one finalized caption line
// (spec.md §3). RoomID is a channel id for live rooms or a meeting id for
// VOD captions.
type Caption struct {
	ID             string    `json:"id"`
	RoomID         string    `json:"room_id"`
	Text           string    `json:"text"`
	StartTimeSec   float64   `json:"start_time_sec"`
	EndTimeSec     float64   `json:"end_time_sec"`
	Confidence     float64   `json:"confidence"`
	SpeakerLabel   *string   `json:"speaker_label,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewID mints a fresh caption id — the correlation key the Caption Refiner
// later uses to issue corrections (spec.md §3).
func NewID() string {
	return uuid.NewString()
}

// SpeakerLabel renders an opaque ASR speaker index as the "Speaker N+1"
// label spec.md §9 requires (diarization indices are never used to infer
// real identities here).
func SpeakerLabel(speakerIndex *int) *string {
	if speakerIndex == nil {
		return nil
	}
	label := fmt.Sprintf("Speaker %d", *speakerIndex+1)
	return &label
}
