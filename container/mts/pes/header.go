/*
DESCRIPTION
  header.go provides encoding and decoding of PES packet headers.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pes

import (
	"github.com/pkg/errors"

	"github.com/ausocean/tscodec/container/mts/bits"
)

// StartCode is the packet_start_code_prefix that begins every PES packet.
const StartCode = 0x000001

// Sizes of the header parts in bytes.
const (
	PrefixSize    = 6 // Start code, stream ID and packet length.
	FixedSize     = 9 // Prefix plus flags and header data length.
	escrSize      = 6
	esRateSize    = 3
	maxHeaderData = 255
)

// Default value of the two marker bits after the packet length.
const markerBits = 0x2

// Errors returned by Header methods.
var (
	ErrStartCode        = errors.New("invalid PES start code")
	ErrForbiddenPTSDTS  = errors.New("forbidden PTS_DTS_flags value")
	ErrHeaderDataLength = errors.New("PES header data length too short for flagged fields")
	ErrHeaderTooLong    = errors.New("PES optional fields exceed 255 bytes")
)

/*
Header describes the PES packet header. Below is the layout for reference.

============================================================================
| octet no | bit 0 | bit 1 | bit 2 | bit 3 | bit 4 | bit 5 | bit 6 | bit 7 |
============================================================================
| octet 0  | start code prefix (0x000001, 24 bits)                         |
----------------------------------------------------------------------------
| octet 3  | stream ID                                                     |
----------------------------------------------------------------------------
| octet 4  | PES packet length (16 bits)                                   |
----------------------------------------------------------------------------
| octet 6  | '10'          | SC            | Prior | DAI   | Copyr | Orig  |
----------------------------------------------------------------------------
| octet 7  | PDI           | ESCRF | ESRF  | DSMTMF| ACIF  | CRCF  | EF    |
----------------------------------------------------------------------------
| octet 8  | PES header data length                                        |
----------------------------------------------------------------------------
| optional | PTS, DTS, ESCR, ES rate, trick mode, copy info, CRC, ext      |
----------------------------------------------------------------------------
| optional | Stuffing (0xff)                                               |
----------------------------------------------------------------------------

Streams for which HasOptionalHeader is false stop after octet 5.
*/
type Header struct {
	StartCode    uint32     // 24 bits, must be 0x000001.
	StreamID     byte       // Stream ID.
	Length       uint16     // Bytes following this field, 0 is unbounded.
	MarkerBits   byte       // 2 bits, '10'.
	SC           byte       // Scrambling control.
	Priority     bool       // Priority indicator.
	DAI          bool       // Data alignment indicator.
	Copyright    bool       // Copyright indicator.
	Original     bool       // Original or copy.
	Timestamps   Timestamps // PTS and DTS, their presence gives PTS_DTS_flags.
	ESCRF        bool       // Elementary stream clock reference flag.
	ESRF         bool       // Elementary stream rate flag.
	DSMTMF       bool       // DSM trick mode flag.
	ACIF         bool       // Additional copy info flag.
	CRCF         bool       // Previous PES CRC flag.
	EF           bool       // Extension flag.
	HeaderLength byte       // PES header data length.
	ESCR         uint64     // Elementary stream clock reference at 27MHz.
	ESR          uint32     // Elementary stream rate, 22 bits.
	TrickMode    byte       // DSM trick mode control.
	CopyInfo     byte       // Additional copy info, 7 bits.
	PrevCRC      uint16     // CRC of the previous PES packet.
	Extension    []byte     // Raw extension and anything after it when EF is set.
	Stuffing     int        // Number of stuffing bytes.
}

// NewHeader returns a Header for the given stream with the fixed fields
// initialised.
func NewHeader(streamID byte) Header {
	return Header{StartCode: StartCode, StreamID: streamID, MarkerBits: markerBits}
}

// Size returns the encoded size of the header in bytes.
func (h *Header) Size() int {
	if !HasOptionalHeader(h.StreamID) {
		return PrefixSize
	}
	return FixedSize + h.optionalSize() + h.Stuffing
}

// optionalSize returns the size of the flagged optional fields.
func (h *Header) optionalSize() int {
	n := h.Timestamps.Size() + h.fixedOptionalSize()
	if h.EF {
		n += len(h.Extension)
	}
	return n
}

// fixedOptionalSize returns the size of the flagged fields after the
// timestamps that have a fixed width.
func (h *Header) fixedOptionalSize() int {
	n := 0
	if h.ESCRF {
		n += escrSize
	}
	if h.ESRF {
		n += esRateSize
	}
	if h.DSMTMF {
		n++
	}
	if h.ACIF {
		n++
	}
	if h.CRCF {
		n += 2
	}
	return n
}

// Encode writes h to w. HeaderLength is computed from the optional fields
// and stuffing.
func (h *Header) Encode(w *bits.Writer) error {
	w.WriteUint24(h.StartCode)
	w.WriteUint8(h.StreamID)
	w.WriteUint16(h.Length)
	if !HasOptionalHeader(h.StreamID) {
		return w.Err()
	}

	hl := h.optionalSize() + h.Stuffing
	if hl > maxHeaderData {
		return ErrHeaderTooLong
	}
	h.HeaderLength = byte(hl)

	w.WriteBits(uint64(h.MarkerBits), 2)
	w.WriteBits(uint64(h.SC), 2)
	w.WriteBool(h.Priority)
	w.WriteBool(h.DAI)
	w.WriteBool(h.Copyright)
	w.WriteBool(h.Original)
	w.WriteBits(uint64(h.Timestamps.Flags()), 2)
	w.WriteBool(h.ESCRF)
	w.WriteBool(h.ESRF)
	w.WriteBool(h.DSMTMF)
	w.WriteBool(h.ACIF)
	w.WriteBool(h.CRCF)
	w.WriteBool(h.EF)
	w.WriteUint8(h.HeaderLength)

	h.Timestamps.encode(w)
	if h.ESCRF {
		base, ext := h.ESCR/300, h.ESCR%300
		w.WriteBits(0x3, 2)
		w.WriteBits(base>>30, 3)
		w.WriteBool(true)
		w.WriteBits(base>>15, 15)
		w.WriteBool(true)
		w.WriteBits(base, 15)
		w.WriteBool(true)
		w.WriteBits(ext, 9)
		w.WriteBool(true)
	}
	if h.ESRF {
		w.WriteBool(true)
		w.WriteBits(uint64(h.ESR), 22)
		w.WriteBool(true)
	}
	if h.DSMTMF {
		w.WriteUint8(h.TrickMode)
	}
	if h.ACIF {
		w.WriteBool(true)
		w.WriteBits(uint64(h.CopyInfo), 7)
	}
	if h.CRCF {
		w.WriteUint16(h.PrevCRC)
	}
	if h.EF {
		w.WriteBytes(h.Extension)
	}
	w.WriteFill(0xff, h.Stuffing)
	return w.Err()
}

// Decode reads a header from r into h. On error h is left partially
// written and the position of r is undefined.
func (h *Header) Decode(r *bits.Reader) error {
	var err error
	h.StartCode, err = r.ReadUint24()
	if err != nil {
		return errors.Wrap(err, "could not read start code")
	}
	if h.StartCode != StartCode {
		return ErrStartCode
	}
	if h.StreamID, err = r.ReadUint8(); err != nil {
		return errors.Wrap(err, "could not read stream ID")
	}
	if h.Length, err = r.ReadUint16(); err != nil {
		return errors.Wrap(err, "could not read packet length")
	}
	if !HasOptionalHeader(h.StreamID) {
		return nil
	}

	if r.Len() < FixedSize-PrefixSize {
		return errors.Wrap(errShort, "could not read optional header")
	}
	v, _ := r.ReadBits(2)
	h.MarkerBits = byte(v)
	v, _ = r.ReadBits(2)
	h.SC = byte(v)
	h.Priority, _ = r.ReadBool()
	h.DAI, _ = r.ReadBool()
	h.Copyright, _ = r.ReadBool()
	h.Original, _ = r.ReadBool()
	v, _ = r.ReadBits(2)
	pdi := byte(v)
	h.ESCRF, _ = r.ReadBool()
	h.ESRF, _ = r.ReadBool()
	h.DSMTMF, _ = r.ReadBool()
	h.ACIF, _ = r.ReadBool()
	h.CRCF, _ = r.ReadBool()
	h.EF, _ = r.ReadBool()
	h.HeaderLength, _ = r.ReadUint8()

	if int(h.HeaderLength) > r.Len() {
		return errors.Wrap(errShort, "header data length exceeds available data")
	}

	if pdi == flagsBad {
		return ErrForbiddenPTSDTS
	}
	need := h.fixedOptionalSize()
	if pdi == FlagsPTS {
		need += TimestampSize
	} else if pdi == FlagsPTSDTS {
		need += 2 * TimestampSize
	}
	if h.EF {
		need++ // The extension flags byte at minimum.
	}
	if need > int(h.HeaderLength) {
		return ErrHeaderDataLength
	}

	start := r.Pos()
	h.Timestamps, err = decodeTimestamps(r, pdi)
	if err != nil {
		return errors.Wrap(err, "could not decode timestamps")
	}
	if h.ESCRF {
		b, _ := r.ReadBytes(escrSize)
		sub := bits.NewReader(b)
		sub.ReadBits(2)
		hi, _ := sub.ReadBits(3)
		sub.ReadBits(1)
		mid, _ := sub.ReadBits(15)
		sub.ReadBits(1)
		lo, _ := sub.ReadBits(15)
		sub.ReadBits(1)
		ext, _ := sub.ReadBits(9)
		h.ESCR = (hi<<30|mid<<15|lo)*300 + ext
	}
	if h.ESRF {
		r.ReadBits(1)
		v, _ = r.ReadBits(22)
		h.ESR = uint32(v)
		r.ReadBits(1)
	}
	if h.DSMTMF {
		h.TrickMode, _ = r.ReadUint8()
	}
	if h.ACIF {
		r.ReadBits(1)
		v, _ = r.ReadBits(7)
		h.CopyInfo = byte(v)
	}
	if h.CRCF {
		h.PrevCRC, _ = r.ReadUint16()
	}

	rem := int(h.HeaderLength) - (r.Pos() - start)
	h.Extension = nil
	h.Stuffing = 0
	if h.EF {
		b, _ := r.ReadBytes(rem)
		h.Extension = append([]byte(nil), b...)
		return nil
	}
	h.Stuffing = rem
	return r.Skip(rem)
}

var errShort = errors.New("PES header truncated")
