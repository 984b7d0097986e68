// Package tsinspect performs a lightweight MPEG-TS framing sanity check
// (PAT/PMT presence) on downloaded HLS segments before their bytes are
// forwarded to the ASR provider.
package tsinspect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astits"
)

// ErrNoProgramAssociation is returned when a segment's demux never yields a
// Program Association Table.
var ErrNoProgramAssociation = errors.New("tsinspect: no PAT found in segment")

// ErrNoProgramMap is returned when a segment's demux never yields a Program
// Map Table for any program named by its PAT.
var ErrNoProgramMap = errors.New("tsinspect: no PMT found in segment")

// Result summarizes what the inspector observed in one segment.
type Result struct {
	ProgramCount int
	HasPMT       bool
}

// Check demuxes the MPEG-TS bytes in data far enough to confirm a PAT and at
// least one PMT are present. It does not decode elementary stream payloads;
// it is a framing sanity check, not a full demux (spec.md's domain stack
// entry for this component).
func Check(data []byte) (Result, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	demuxer := astits.NewDemuxer(ctx, bytes.NewReader(data))

	var result Result
	var sawPAT bool

	for {
		d, err := demuxer.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) || errors.Is(err, io.EOF) {
				break
			}
			return result, fmt.Errorf("demuxing segment: %w", err)
		}

		if d.PAT != nil {
			sawPAT = true
			result.ProgramCount = len(d.PAT.Programs)
		}
		if d.PMT != nil {
			result.HasPMT = true
		}
	}

	if !sawPAT {
		return result, ErrNoProgramAssociation
	}
	if !result.HasPMT {
		return result, ErrNoProgramMap
	}
	return result, nil
}
