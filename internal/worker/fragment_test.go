package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihoonkim/legisub/internal/asr"
)

func sp(i int) *int { return &i }

func TestBuildRuns_SplitsOnSpeakerChange(t *testing.T) {
	frame := asr.ResultsFrame{IsFinal: true}
	alt := asr.Alternative{
		Words: []asr.Word{
			{Word: "안녕하세요", Speaker: sp(0), Start: 0, End: 1, Confidence: 0.9},
			{Word: "네", Speaker: sp(1), Start: 1, End: 1.5, Confidence: 0.8},
			{Word: "좋습니다", Speaker: sp(1), Start: 1.5, End: 2, Confidence: 0.85},
		},
	}

	runs := buildRuns(frame, alt)
	require.Len(t, runs, 2)
	assert.Equal(t, 0, *runs[0].SpeakerIndex)
	assert.Equal(t, "안녕하세요", runs[0].Text)
	assert.Equal(t, 1, *runs[1].SpeakerIndex)
	assert.Equal(t, "네 좋습니다", runs[1].Text)
	assert.InDelta(t, 2.0, runs[1].EndSec, 0.001)
}

func TestBuildRuns_NoWordsFallsBackToSingleRun(t *testing.T) {
	frame := asr.ResultsFrame{IsFinal: true, Start: 5, Duration: 2}
	alt := asr.Alternative{Transcript: "hello", Confidence: 0.7}

	runs := buildRuns(frame, alt)
	require.Len(t, runs, 1)
	assert.Nil(t, runs[0].SpeakerIndex)
	assert.Equal(t, "hello", runs[0].Text)
	assert.InDelta(t, 5, runs[0].StartSec, 0.001)
	assert.InDelta(t, 7, runs[0].EndSec, 0.001)
}

func TestBuildRuns_EmptyTranscriptProducesNoRuns(t *testing.T) {
	frame := asr.ResultsFrame{IsFinal: true}
	runs := buildRuns(frame, asr.Alternative{})
	assert.Empty(t, runs)
}

func TestSpeakerDiffers(t *testing.T) {
	assert.False(t, speakerDiffers(nil, nil))
	assert.True(t, speakerDiffers(sp(0), nil))
	assert.True(t, speakerDiffers(nil, sp(0)))
	assert.True(t, speakerDiffers(sp(0), sp(1)))
	assert.False(t, speakerDiffers(sp(0), sp(0)))
}

func TestCollapseRuns_CollapsesAndTrims(t *testing.T) {
	assert.Equal(t, "a b", collapseRuns("  a   b  "))
	assert.Equal(t, "", collapseRuns("   "))
}

func TestJoinWords(t *testing.T) {
	words := []asr.Word{{Word: "a"}, {PunctuatedWord: "B."}, {Word: "c"}}
	assert.Equal(t, "a B. c", joinWords(words))
}

func TestPostProcess_MasksPIIAfterSpacingAndDictionary(t *testing.T) {
	w := &Worker{cfg: Config{}}
	got := w.postProcess("  연락처는   010-1234-5678 입니다  ")
	assert.NotContains(t, got, "010-1234-5678")
	assert.Contains(t, got, "연락처는 ")
}

func TestPostProcess_NoPIILeavesTextUnchangedBesidesSpacing(t *testing.T) {
	w := &Worker{cfg: Config{}}
	got := w.postProcess("  hello   world  ")
	assert.Equal(t, "hello world", got)
}
