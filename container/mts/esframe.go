/*
DESCRIPTION
  esframe.go provides the EsFrame type, an elementary stream access unit
  reassembled from, or to be split into, MPEG-TS packets.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import "github.com/ausocean/tscodec/container/mts/pes"

// EsFrame is one elementary stream access unit. Data is exclusively owned by
// whoever holds the frame; a Reassembler gives up a frame when it hands it
// over and only touches it again if it is recycled.
type EsFrame struct {
	Data         []byte         // Access unit payload.
	Timestamps   pes.Timestamps // PTS and DTS from the PES header.
	PCR          uint64         // Most recent PCR on the PID at unit start, 27MHz.
	RandomAccess bool           // Random access indicator of the first packet.
	StreamType   byte           // Stream type from the PMT.
	StreamID     byte           // Stream ID from the PES header.
	PID          uint16         // PID carrying the stream.

	// ExpectedPESPacketLength is the PES packet length of the unit, 0 if
	// unbounded.
	ExpectedPESPacketLength uint16

	// ExpectedPayloadLength is the number of payload bytes the unit should
	// hold, derived from the PES packet length. It is 0 if unbounded.
	ExpectedPayloadLength int

	Completed bool // Payload fully received.
	Broken    bool // Reassembly failed and Data should be discarded.
}

// NewEsFrame returns an empty frame for the given stream.
func NewEsFrame(streamType byte, pid uint16) *EsFrame {
	return &EsFrame{StreamType: streamType, PID: pid}
}

// Empty returns true if no payload has been accumulated.
func (f *EsFrame) Empty() bool { return len(f.Data) == 0 }

// Reset clears every field of f, keeping the storage of Data.
func (f *EsFrame) Reset() {
	*f = EsFrame{Data: f.Data[:0]}
}

// PTS returns the presentation timestamp and whether the frame has one.
func (f *EsFrame) PTS() (uint64, bool) { return f.Timestamps.PTS() }

// DTS returns the decoding timestamp and whether the frame has one.
func (f *EsFrame) DTS() (uint64, bool) { return f.Timestamps.DTS() }

// bounded returns true if the frame has a declared length.
func (f *EsFrame) bounded() bool { return f.ExpectedPESPacketLength != 0 }
