/*
DESCRIPTION
  reassembler.go provides reassembly of elementary stream access units from
  the MPEG-TS packets of a single PID.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import (
	"github.com/ausocean/tscodec/container/mts/bits"
	"github.com/ausocean/tscodec/container/mts/pes"
)

// Reassembler accumulates the payloads of one PID's packets into EsFrames.
//
// A frame is started by a packet with the payload unit start indicator set
// and is handed to the emit function once it is completed or broken. A frame
// is broken by a continuity counter gap not excused by the discontinuity
// indicator, by a new unit start before a bounded unit is complete, by a PES
// header that cannot be decoded, or by more payload than the PES packet
// length allows. Unbounded frames complete at the next unit start or on
// Flush. Packets are expected in arrival order.
type Reassembler struct {
	pid        uint16
	streamType byte
	cur        *EsFrame // Frame being accumulated, nil if none.
	spare      []*EsFrame
	cc         ccState
	pcr        uint64
	hdr        pes.Header
}

// NewReassembler returns a Reassembler for the given stream.
func NewReassembler(streamType byte, pid uint16) *Reassembler {
	return &Reassembler{pid: pid, streamType: streamType, cc: newCCState()}
}

// SetStreamType sets the stream type given to frames started from now on.
func (r *Reassembler) SetStreamType(st byte) { r.streamType = st }

// Push feeds the next packet of the PID. Frames that complete or break as a
// result are passed to emit, which takes ownership of them.
func (r *Reassembler) Push(p *Packet, emit func(*EsFrame)) {
	var di, rai bool
	if p.AF != nil {
		di, rai = p.AF.DI, p.AF.RAI
		if p.AF.PCRF {
			r.pcr = p.AF.PCR
		}
	}

	switch r.cc.check(p.CC, p.HasPayload(), di) {
	case ContinuityDuplicate:
		return
	case ContinuityGap:
		r.finish(emit, true)
	}
	if !p.HasPayload() {
		return
	}

	if p.PUSI {
		if r.cur != nil {
			// A bounded unit should have completed already.
			r.finish(emit, r.cur.bounded() || r.cur.Empty())
		}
		r.start(p, rai, emit)
		return
	}
	if r.cur == nil {
		return // Waiting for a unit start.
	}
	r.cur.Data = append(r.cur.Data, p.Payload...)
	r.check(emit)
}

// start begins a new frame from a unit start packet.
func (r *Reassembler) start(p *Packet, rai bool, emit func(*EsFrame)) {
	f := r.frame()
	r.cur = f
	f.RandomAccess = rai
	f.PCR = r.pcr

	br := bits.NewReader(p.Payload)
	err := r.hdr.Decode(br)
	if err != nil {
		r.finish(emit, true)
		return
	}
	f.StreamID = r.hdr.StreamID
	f.Timestamps = r.hdr.Timestamps
	f.ExpectedPESPacketLength = r.hdr.Length
	if f.bounded() {
		f.ExpectedPayloadLength = int(r.hdr.Length) - (r.hdr.Size() - pes.PrefixSize)
		if f.ExpectedPayloadLength < 0 {
			r.finish(emit, true)
			return
		}
	}
	data, _ := br.ReadBytes(br.Len())
	f.Data = append(f.Data, data...)
	r.check(emit)
}

// check completes the current frame once a bounded unit has all its bytes,
// and breaks it if it has too many.
func (r *Reassembler) check(emit func(*EsFrame)) {
	f := r.cur
	if !f.bounded() {
		return
	}
	switch {
	case len(f.Data) == f.ExpectedPayloadLength:
		r.finish(emit, false)
	case len(f.Data) > f.ExpectedPayloadLength:
		r.finish(emit, true)
	}
}

// finish hands the current frame, if any, to emit as completed or broken.
func (r *Reassembler) finish(emit func(*EsFrame), broken bool) {
	f := r.cur
	if f == nil {
		return
	}
	r.cur = nil
	f.Broken = broken
	f.Completed = !broken
	emit(f)
}

// Flush hands over the frame in progress. An unbounded frame holding data
// is completed; anything else is broken.
func (r *Reassembler) Flush(emit func(*EsFrame)) {
	if r.cur == nil {
		return
	}
	r.finish(emit, r.cur.bounded() || r.cur.Empty())
}

// Recycle returns a frame obtained from Push or Flush for reuse. The caller
// must not use f afterwards.
func (r *Reassembler) Recycle(f *EsFrame) {
	f.Reset()
	r.spare = append(r.spare, f)
}

// frame returns an empty frame for the stream, reusing a recycled one if
// available.
func (r *Reassembler) frame() *EsFrame {
	n := len(r.spare)
	if n == 0 {
		return NewEsFrame(r.streamType, r.pid)
	}
	f := r.spare[n-1]
	r.spare = r.spare[:n-1]
	f.StreamType, f.PID = r.streamType, r.pid
	return f
}
