package tsinspect

import (
	"bytes"
	"context"
	"testing"

	"github.com/asticode/go-astits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSegment(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	muxer := astits.NewMuxer(ctx, &buf)
	require.NoError(t, muxer.AddElementaryStream(astits.PMTElementaryStream{
		ElementaryPID: 256,
		StreamType:    astits.StreamTypeH264Video,
	}))
	require.NoError(t, muxer.SetPCRPID(256))

	_, err := muxer.WriteTables()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestCheck_ValidSegmentHasPATAndPMT(t *testing.T) {
	result, err := Check(validSegment(t))
	require.NoError(t, err)
	assert.True(t, result.HasPMT)
	assert.Equal(t, 1, result.ProgramCount)
}

func TestCheck_EmptyInputHasNoPAT(t *testing.T) {
	_, err := Check(nil)
	assert.ErrorIs(t, err, ErrNoProgramAssociation)
}

func TestCheck_GarbageBytesHasNoPAT(t *testing.T) {
	garbage := bytes.Repeat([]byte{0xFF}, 4096)
	_, err := Check(garbage)
	assert.ErrorIs(t, err, ErrNoProgramAssociation)
}
