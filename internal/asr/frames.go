package asr

import "encoding/json"

// Frame is the minimal shape needed to dispatch an inbound realtime frame
// by its type field (spec.md §6).
type Frame struct {
	Type string `json:"type"`
}

// Word is one per-word entry in a Results frame's alternative (spec.md
// §6). Either Word or PunctuatedWord may be empty depending on provider
// formatting settings; callers should prefer PunctuatedWord when present.
type Word struct {
	Word           string   `json:"word"`
	PunctuatedWord string   `json:"punctuated_word"`
	Start          float64  `json:"start"`
	End            float64  `json:"end"`
	Confidence     float64  `json:"confidence"`
	Speaker        *int     `json:"speaker"`
}

// Alternative is one ASR hypothesis within a Results frame's channel.
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words"`
}

// Channel wraps a Results frame's alternatives list.
type Channel struct {
	Alternatives []Alternative `json:"alternatives"`
}

// ResultsFrame is the realtime frame type this engine acts on; all other
// frame types (Metadata, SpeechStarted, UtteranceEnd, ...) only refresh the
// "last provider activity" timestamp and are otherwise ignored.
type ResultsFrame struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  Channel `json:"channel"`
}

// DecodeResultsFrame parses raw into a ResultsFrame. Callers should first
// peek Frame.Type and only call this for type == "Results"; a malformed
// frame is an input-shape error (spec.md §7) that the caller should log
// and skip.
func DecodeResultsFrame(raw []byte) (ResultsFrame, error) {
	var f ResultsFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return ResultsFrame{}, err
	}
	return f, nil
}

// BestAlternative returns the frame's first alternative, or the zero value
// if none is present.
func (f ResultsFrame) BestAlternative() Alternative {
	if len(f.Channel.Alternatives) == 0 {
		return Alternative{}
	}
	return f.Channel.Alternatives[0]
}

// Text prefers PunctuatedWord over Word, matching the provider's own
// preference ordering for display text.
func (w Word) Text() string {
	if w.PunctuatedWord != "" {
		return w.PunctuatedWord
	}
	return w.Word
}
