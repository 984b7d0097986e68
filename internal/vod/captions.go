package vod

import (
	"github.com/jihoonkim/legisub/internal/asr"
	"github.com/jihoonkim/legisub/internal/caption"
	"github.com/jihoonkim/legisub/internal/models"
	"github.com/jihoonkim/legisub/internal/terminology"
)

// captionsFromReply turns a pre-recorded ASR reply into caption rows
// (spec.md §4.9 step 5): prefer the utterances array when present, since
// the provider has already done the sentence-level segmentation; fall
// back to grouping the flat word list by speaker, splitting whenever a
// run would otherwise exceed maxUtteranceGroupSeconds. Terminology
// correction is applied per caption; captions whose corrected text is
// empty are dropped.
func captionsFromReply(meetingID string, reply asr.TranscribeResponse, dict *terminology.Dictionary) []models.Caption {
	var raw []rawCaption
	if len(reply.Results.Utterances) > 0 {
		raw = captionsFromUtterances(reply.Results.Utterances)
	} else {
		raw = captionsFromWords(reply.Words())
	}

	captions := make([]models.Caption, 0, len(raw))
	for _, r := range raw {
		text := r.text
		if dict != nil {
			text = dict.Correct(text)
		}
		if text == "" {
			continue
		}

		speakerLabel := caption.SpeakerLabel(r.speaker)

		captions = append(captions, models.Caption{
			RoomID:       meetingID,
			Text:         text,
			OriginalText: r.text,
			StartTimeSec: r.start,
			EndTimeSec:   r.end,
			Confidence:   r.confidence,
			SpeakerLabel: speakerLabel,
		})
	}
	return captions
}

type rawCaption struct {
	text       string
	start      float64
	end        float64
	confidence float64
	speaker    *int
}

func captionsFromUtterances(utterances []asr.Utterance) []rawCaption {
	out := make([]rawCaption, 0, len(utterances))
	for _, u := range utterances {
		out = append(out, rawCaption{
			text:       u.Transcript,
			start:      u.Start,
			end:        u.End,
			confidence: u.Confidence,
			speaker:    u.Speaker,
		})
	}
	return out
}

// captionsFromWords groups a flat word list by contiguous speaker run,
// further splitting a run whenever its span would exceed
// maxUtteranceGroupSeconds (spec.md §4.9 step 5 "fallback").
func captionsFromWords(words []asr.TranscribeWord) []rawCaption {
	var out []rawCaption
	var current []asr.TranscribeWord

	flush := func() {
		if len(current) == 0 {
			return
		}
		out = append(out, groupToCaption(current))
		current = nil
	}

	for _, w := range words {
		if len(current) == 0 {
			current = append(current, w)
			continue
		}
		last := current[len(current)-1]
		speakerChanged := !samesSpeaker(last.Speaker, w.Speaker)
		spanTooLong := w.End-current[0].Start > maxUtteranceGroupSeconds
		if speakerChanged || spanTooLong {
			flush()
		}
		current = append(current, w)
	}
	flush()
	return out
}

func groupToCaption(words []asr.TranscribeWord) rawCaption {
	text := ""
	var confidenceSum float64
	for i, w := range words {
		if i > 0 {
			text += " "
		}
		text += w.Word
		confidenceSum += w.Confidence
	}
	confidence := 0.0
	if len(words) > 0 {
		confidence = confidenceSum / float64(len(words))
	}
	return rawCaption{
		text:       text,
		start:      words[0].Start,
		end:        words[len(words)-1].End,
		confidence: confidence,
		speaker:    words[0].Speaker,
	}
}

func samesSpeaker(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func toCaptionPointers(captions []models.Caption) []*models.Caption {
	out := make([]*models.Caption, len(captions))
	for i := range captions {
		out[i] = &captions[i]
	}
	return out
}
