/*
DESCRIPTION
  header.go provides encoding and decoding of the 4 byte MPEG-TS packet
  header.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import (
	"github.com/pkg/errors"

	"github.com/ausocean/tscodec/container/mts/bits"
)

// Adaptation field control bits.
const (
	hasPayload         = 0x1
	hasAdaptationField = 0x2
)

/*
Header is the MPEG-TS packet header. Below is the layout for reference.

============================================================================
| octet no | bit 0 | bit 1 | bit 2 | bit 3 | bit 4 | bit 5 | bit 6 | bit 7 |
============================================================================
| octet 0  | sync byte (0x47)                                              |
----------------------------------------------------------------------------
| octet 1  | TEI   | PUSI  | Prior | PID                                   |
----------------------------------------------------------------------------
| octet 2  | PID cont.                                                     |
----------------------------------------------------------------------------
| octet 3  | TSC           | AFC           | CC                            |
----------------------------------------------------------------------------
*/
type Header struct {
	SyncByte byte   // Sync byte, 0x47 in a valid packet.
	TEI      bool   // Transport error indicator.
	PUSI     bool   // Payload unit start indicator.
	Priority bool   // Transport priority indicator.
	PID      uint16 // Packet identifier, 13 bits.
	TSC      byte   // Transport scrambling control, 2 bits.
	AFC      byte   // Adaptation field control, 2 bits.
	CC       byte   // Continuity counter, 4 bits.
}

// NewHeader returns a Header for the given PID with the sync byte set. The
// zero Header has a sync byte of 0 and encodes an invalid packet.
func NewHeader(pid uint16) Header {
	return Header{SyncByte: SyncByte, PID: pid}
}

// Encode writes h to w.
func (h *Header) Encode(w *bits.Writer) {
	w.WriteUint8(h.SyncByte)
	w.WriteBool(h.TEI)
	w.WriteBool(h.PUSI)
	w.WriteBool(h.Priority)
	w.WriteBits(uint64(h.PID), 13)
	w.WriteBits(uint64(h.TSC), 2)
	w.WriteBits(uint64(h.AFC), 2)
	w.WriteBits(uint64(h.CC), 4)
}

// Decode reads h from r. The sync byte is not checked.
func (h *Header) Decode(r *bits.Reader) error {
	if r.Len() < HeadSize {
		return errors.Wrap(errShort, "could not read packet header")
	}
	h.SyncByte, _ = r.ReadUint8()
	h.TEI, _ = r.ReadBool()
	h.PUSI, _ = r.ReadBool()
	h.Priority, _ = r.ReadBool()
	v, _ := r.ReadBits(13)
	h.PID = uint16(v)
	v, _ = r.ReadBits(2)
	h.TSC = byte(v)
	v, _ = r.ReadBits(2)
	h.AFC = byte(v)
	v, _ = r.ReadBits(4)
	h.CC = byte(v)
	return nil
}

// HasPayload returns true if the adaptation field control indicates a
// payload, i.e. it is 01 or 11.
func (h *Header) HasPayload() bool { return h.AFC&hasPayload != 0 }

// HasAdaptationField returns true if the adaptation field control indicates
// an adaptation field, i.e. it is 10 or 11.
func (h *Header) HasAdaptationField() bool { return h.AFC&hasAdaptationField != 0 }

var errShort = errors.New("packet data truncated")
