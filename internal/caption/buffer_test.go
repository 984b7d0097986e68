package caption

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sp(i int) *int { return &i }

func TestBuffer_FlushOnPunctuation(t *testing.T) {
	b := NewBuffer()
	b.Add(Run{SpeakerIndex: sp(0), Text: "안녕하세요", Confidence: 0.9, StartSec: 0, EndSec: 1})
	assert.False(t, b.ShouldFlush())

	b.Add(Run{SpeakerIndex: sp(0), Text: "오늘은 회의를", Confidence: 0.9, StartSec: 1, EndSec: 2})
	assert.False(t, b.ShouldFlush())

	b.Add(Run{SpeakerIndex: sp(0), Text: "시작하겠습니다.", Confidence: 0.95, StartSec: 2, EndSec: 3})
	require.True(t, b.ShouldFlush())

	c, ok := b.Flush("ch14")
	require.True(t, ok)
	assert.Equal(t, "안녕하세요 오늘은 회의를 시작하겠습니다.", c.Text)
	assert.Equal(t, "Speaker 1", *c.SpeakerLabel)
	assert.InDelta(t, 0, c.StartTimeSec, 0.001)
	assert.InDelta(t, 3, c.EndTimeSec, 0.001)
	assert.True(t, b.IsEmpty())
}

func TestBuffer_FlushOnFormalEndingWithoutPunctuation(t *testing.T) {
	b := NewBuffer()
	b.Add(Run{Text: "회의를 시작하겠습니다", StartSec: 0, EndSec: 1})
	assert.True(t, b.ShouldFlush())
}

func TestBuffer_BarePoliteSyllableDoesNotFlush(t *testing.T) {
	b := NewBuffer()
	b.Add(Run{Text: "안녕하세요", StartSec: 0, EndSec: 1})
	assert.False(t, b.ShouldFlush())

	b2 := NewBuffer()
	b2.Add(Run{Text: "이것은 예시입니다", StartSec: 0, EndSec: 1})
	assert.False(t, b2.ShouldFlush())
}

func TestBuffer_FlushOnLength(t *testing.T) {
	b := NewBuffer()
	long := ""
	for i := 0; i < 45; i++ {
		long += "a"
	}
	b.Add(Run{Text: long, StartSec: 0, EndSec: 1})
	assert.True(t, b.ShouldFlush())
}

func TestBuffer_ConfidenceIsMean(t *testing.T) {
	b := NewBuffer()
	b.Add(Run{Text: "foo.", Confidence: 0.8, StartSec: 0, EndSec: 1})
	b.Add(Run{Text: "bar.", Confidence: 0.6, StartSec: 1, EndSec: 2})
	c, ok := b.Flush("room")
	require.True(t, ok)
	assert.InDelta(t, 0.7, c.Confidence, 0.001)
}

func TestBuffer_ClearDoesNotEmit(t *testing.T) {
	b := NewBuffer()
	b.Add(Run{Text: "partial", StartSec: 0, EndSec: 1})
	b.Clear()
	assert.True(t, b.IsEmpty())
	_, ok := b.Flush("room")
	assert.False(t, ok)
}

func TestBuffer_NilSpeakerProducesNoLabel(t *testing.T) {
	b := NewBuffer()
	b.Add(Run{SpeakerIndex: nil, Text: "text.", StartSec: 0, EndSec: 1})
	c, ok := b.Flush("room")
	require.True(t, ok)
	assert.Nil(t, c.SpeakerLabel)
}

func TestBuffer_EmptyFlushProducesNoCaption(t *testing.T) {
	b := NewBuffer()
	_, ok := b.Flush("room")
	assert.False(t, ok)
}

func TestBuffer_SpeakerTransitionScenario(t *testing.T) {
	// spec.md §8 scenario 3: sentence assembly across speakers.
	b := NewBuffer()
	var captions []Caption

	addAndMaybeFlush := func(r Run, roomID string) {
		if !b.IsEmpty() && b.Speaker() != nil && r.SpeakerIndex != nil && *b.Speaker() != *r.SpeakerIndex {
			if c, ok := b.Flush(roomID); ok {
				captions = append(captions, c)
			}
		}
		b.Add(r)
		if b.ShouldFlush() {
			if c, ok := b.Flush(roomID); ok {
				captions = append(captions, c)
			}
		}
	}

	addAndMaybeFlush(Run{SpeakerIndex: sp(0), Text: "안녕하세요", StartSec: 0, EndSec: 1}, "ch14")
	addAndMaybeFlush(Run{SpeakerIndex: sp(0), Text: "오늘은 회의를", StartSec: 1, EndSec: 2}, "ch14")
	addAndMaybeFlush(Run{SpeakerIndex: sp(0), Text: "시작하겠습니다.", StartSec: 2, EndSec: 3}, "ch14")
	addAndMaybeFlush(Run{SpeakerIndex: sp(1), Text: "네, 좋습니다.", StartSec: 3, EndSec: 4}, "ch14")
	if c, ok := b.Flush("ch14"); ok {
		captions = append(captions, c)
	}

	require.Len(t, captions, 2)
	assert.Equal(t, "Speaker 1", *captions[0].SpeakerLabel)
	assert.Equal(t, "안녕하세요 오늘은 회의를 시작하겠습니다.", captions[0].Text)
	assert.Equal(t, "Speaker 2", *captions[1].SpeakerLabel)
	assert.Equal(t, "네, 좋습니다.", captions[1].Text)
}
