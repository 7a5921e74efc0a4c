/*
NAME
  payload.go

DESCRIPTION
  payload.go provides functionality for extracting and manipulating the payload
  data from MPEG-TS.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/ausocean/utils/logging"
)

// Errors used by Extract.
var (
	errClipSize = errors.New("MTS clip is not of valid size")
	errNoFrames = errors.New("no media frames in clip")
)

// Extract extracts the media, PTS, stream ID and PID of each access unit in
// an MPEG-TS clip given by p, and returns them as a Clip. The MPEG-TS must
// contain only complete packets, and PSI must precede the media. Broken
// access units are dropped. The resultant data is a copy of the original.
func Extract(p []byte) (*Clip, error) {
	if len(p)%PacketSize != 0 {
		return nil, errClipSize
	}

	clip := &Clip{backing: make([]byte, 0, len(p))}
	var d *Demuxer
	d, err := NewDemuxer(
		logging.New(logging.Error, io.Discard, true),
		DropBroken(),
		FrameHandler(func(f *EsFrame) {
			pts, _ := f.PTS()
			clip.frames = append(clip.frames, Frame{
				PTS: pts,
				ID:  f.StreamID,
				PID: f.PID,
				idx: len(clip.backing),
			})
			clip.backing = append(clip.backing, f.Data...)
			d.Recycle(f)
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = d.Write(p)
	if err != nil {
		return nil, fmt.Errorf("could not demux clip: %w", err)
	}
	d.Flush()

	if len(clip.frames) == 0 {
		return nil, errNoFrames
	}

	// The backing slice no longer grows, so frames can now reference it.
	for i := range clip.frames {
		end := len(clip.backing)
		if i+1 < len(clip.frames) {
			end = clip.frames[i+1].idx
		}
		clip.frames[i].Media = clip.backing[clip.frames[i].idx:end]
	}
	return clip, nil
}

// Clip represents a clip of media, i.e. a sequence of media frames.
type Clip struct {
	frames  []Frame
	backing []byte
}

// Frame describes a media frame that may be extracted from a PES packet.
type Frame struct {
	Media []byte // Contains the media from the frame.
	PTS   uint64 // PTS from PES packet (this gives time relative from start of stream).
	ID    uint8  // StreamID from the PES packet, identifying media codec.
	PID   uint16 // PID the frame was carried on.
	idx   int    // Index in the backing slice.
}

// Frames returns the frames of a clip.
func (c *Clip) Frames() []Frame {
	return c.frames
}

// Bytes returns the concatentated media bytes from each frame in the Clip c.
func (c *Clip) Bytes() []byte {
	if c.backing == nil {
		panic("the clip backing array cannot be nil")
	}
	return c.backing
}

// Errors used in TrimToPTSRange.
var (
	errPTSLowerBound = errors.New("PTS 'from' cannot be found")
	errPTSUpperBound = errors.New("PTS 'to' cannot be found")
	errPTSRange      = errors.New("PTS interval invalid")
)

// TrimToPTSRange returns the sub Clip in a PTS range defined by from and to.
// The first Frame in the new Clip will be the Frame for which from corresponds
// exactly with Frame.PTS, or the Frame in which from lies within. The final
// Frame in the Clip will be the previous of that for which to coincides with,
// or the Frame that to lies within.
func (c *Clip) TrimToPTSRange(from, to uint64) (*Clip, error) {
	// First check that the interval makes sense.
	if from >= to {
		return nil, errPTSRange
	}

	// Use binary search to find 'from'.
	n := len(c.frames) - 1
	startFrameIdx := sort.Search(
		n,
		func(i int) bool {
			return from < c.frames[i+1].PTS
		},
	)
	if startFrameIdx == n {
		return nil, errPTSLowerBound
	}

	// Now get the start index for the backing slice from this Frame.
	startBackingIdx := c.frames[startFrameIdx].idx

	// Now use binary search again to find 'to'.
	off := startFrameIdx + 1
	n = n - (off)
	endFrameIdx := sort.Search(
		n,
		func(i int) bool {
			return to <= c.frames[i+off].PTS
		},
	)
	if endFrameIdx == n {
		return nil, errPTSUpperBound
	}

	// Now get the end index for the backing slice from this Frame.
	endBackingIdx := c.frames[endFrameIdx+off-1].idx

	// Now return a new clip. NB: data is not copied.
	return &Clip{
		frames:  c.frames[startFrameIdx : endFrameIdx+off],
		backing: c.backing[startBackingIdx : endBackingIdx+len(c.frames[endFrameIdx+off-1].Media)],
	}, nil
}
