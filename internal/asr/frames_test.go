package asr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResultsFrame_WordsAndSpeaker(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"start": 1.2,
		"duration": 0.8,
		"channel": {
			"alternatives": [{
				"transcript": "안녕하세요",
				"confidence": 0.92,
				"words": [
					{"word": "안녕하세요", "punctuated_word": "안녕하세요", "start": 1.2, "end": 2.0, "confidence": 0.92, "speaker": 0}
				]
			}]
		}
	}`)

	f, err := DecodeResultsFrame(raw)
	require.NoError(t, err)
	assert.True(t, f.IsFinal)

	alt := f.BestAlternative()
	require.Len(t, alt.Words, 1)
	assert.Equal(t, "안녕하세요", alt.Words[0].Text())
	require.NotNil(t, alt.Words[0].Speaker)
	assert.Equal(t, 0, *alt.Words[0].Speaker)
}

func TestWord_TextPrefersPunctuated(t *testing.T) {
	w := Word{Word: "raw", PunctuatedWord: "Raw."}
	assert.Equal(t, "Raw.", w.Text())

	bare := Word{Word: "raw"}
	assert.Equal(t, "raw", bare.Text())
}

func TestResultsFrame_BestAlternative_EmptyWhenNoChannel(t *testing.T) {
	var f ResultsFrame
	assert.Equal(t, Alternative{}, f.BestAlternative())
}
