/*
LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/ausocean/utils/logging"
	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/tscodec/container/mts"
	"github.com/ausocean/tscodec/container/mts/pes"
	"github.com/ausocean/tscodec/container/mts/psi"
)

type buffer struct {
	bytes.Buffer
	closed bool
}

func (b *buffer) Close() error { b.closed = true; return nil }

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func TestUnwrap(t *testing.T) {
	var clip bytes.Buffer
	e, err := mts.NewEncoder(
		nopCloser{&clip},
		(*logging.TestLogger)(t),
		mts.ProgramStreams(
			psi.NewPMTElementInfo(psi.StreamTypeH264, mts.PIDVideo),
			psi.NewPMTElementInfo(psi.StreamTypeAAC, mts.PIDAudio),
		),
		mts.RandomAccessPSI(),
	)
	if err != nil {
		t.Fatalf("could not create encoder: %v", err)
	}

	want := map[uint16][]byte{}
	for i := 0; i < 6; i++ {
		f := mts.EsFrame{
			Data:         bytes.Repeat([]byte{byte(i)}, 200+100*i),
			Timestamps:   pes.PTSOnly(uint64(90000 + i*3600)),
			RandomAccess: i == 0,
			StreamType:   psi.StreamTypeH264,
			StreamID:     pes.VideoSID,
			PID:          mts.PIDVideo,
		}
		if i%2 == 1 {
			f.StreamType, f.StreamID, f.PID, f.RandomAccess = psi.StreamTypeAAC, pes.AudioSID, mts.PIDAudio, false
		}
		want[f.PID] = append(want[f.PID], f.Data...)
		err := e.WriteFrame(&f)
		if err != nil {
			t.Fatalf("could not write frame %d: %v", i, err)
		}
	}

	_, streams, _, err := mts.FindPSI(clip.Bytes())
	if err != nil {
		t.Fatalf("could not find PSI: %v", err)
	}
	if !cmp.Equal(streams, map[uint16]uint8{mts.PIDVideo: psi.StreamTypeH264, mts.PIDAudio: psi.StreamTypeAAC}) {
		t.Fatalf("unexpected streams: %v", streams)
	}

	out := map[uint16]*buffer{mts.PIDVideo: {}, mts.PIDAudio: {}}
	create := func(pid uint16) (io.WriteCloser, error) { return out[pid], nil }
	sizes, err := unwrap(context.Background(), clip.Bytes(), streams, create, (*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	for pid, b := range out {
		if !bytes.Equal(b.Bytes(), want[pid]) {
			t.Errorf("did not get expected data for PID %d", pid)
		}
		if !b.closed {
			t.Errorf("output for PID %d not closed", pid)
		}
		if sizes[pid] != len(want[pid]) {
			t.Errorf("unexpected size for PID %d.\n Got: %d\n Want: %d\n", pid, sizes[pid], len(want[pid]))
		}
	}
}

func TestUnwrapBadLength(t *testing.T) {
	_, err := unwrap(context.Background(), make([]byte, mts.PacketSize+1), nil, nil, (*logging.TestLogger)(t))
	if err != mts.ErrInvalidLen {
		t.Errorf("did not get expected error.\n Got: %v\n Want: %v\n", err, mts.ErrInvalidLen)
	}
}

func TestExtension(t *testing.T) {
	for st, want := range map[uint8]string{
		psi.StreamTypeH264: "h264",
		psi.StreamTypeAAC:  "aac",
		psi.StreamTypePCM:  "raw",
	} {
		if got := extension(st); got != want {
			t.Errorf("unexpected extension for %#02x: %s", st, got)
		}
	}
}
