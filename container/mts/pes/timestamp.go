/*
DESCRIPTION
  timestamp.go provides the PTS/DTS representation used by PES headers and
  the 5 byte timestamp field codec.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pes

import (
	"github.com/ausocean/tscodec/container/mts/bits"
)

// Values of the PTS_DTS_flags field.
const (
	FlagsNone   = 0x0 // No timestamps.
	flagsBad    = 0x1 // Forbidden.
	FlagsPTS    = 0x2 // PTS only.
	FlagsPTSDTS = 0x3 // PTS and DTS.
)

// Four bit prefixes of the timestamp fields.
const (
	prefixPTSOnly = 0x2
	prefixPTS     = 0x3
	prefixDTS     = 0x1
)

// MaxTimestamp is the largest 33 bit timestamp value.
const MaxTimestamp = 1<<33 - 1

// TimestampSize is the encoded size of one PTS or DTS field in bytes.
const TimestampSize = 5

// Timestamps holds the optional PTS and DTS of a PES packet. The zero value
// carries no timestamps. A DTS can only be present together with a PTS, and
// the PTS_DTS_flags of a header are always derived from this value.
type Timestamps struct {
	flags byte
	pts   uint64
	dts   uint64
}

// PTSOnly returns Timestamps carrying only a PTS.
func PTSOnly(pts uint64) Timestamps {
	return Timestamps{flags: FlagsPTS, pts: pts & MaxTimestamp}
}

// PTSAndDTS returns Timestamps carrying both a PTS and a DTS.
func PTSAndDTS(pts, dts uint64) Timestamps {
	return Timestamps{flags: FlagsPTSDTS, pts: pts & MaxTimestamp, dts: dts & MaxTimestamp}
}

// Flags returns the PTS_DTS_flags value for t.
func (t Timestamps) Flags() byte { return t.flags }

// PTS returns the presentation timestamp and whether it is present.
func (t Timestamps) PTS() (uint64, bool) {
	return t.pts, t.flags&FlagsPTS != 0
}

// DTS returns the decoding timestamp and whether it is present.
func (t Timestamps) DTS() (uint64, bool) {
	return t.dts, t.flags == FlagsPTSDTS
}

// Size returns the number of bytes t occupies in a PES header.
func (t Timestamps) Size() int {
	switch t.flags {
	case FlagsPTS:
		return TimestampSize
	case FlagsPTSDTS:
		return 2 * TimestampSize
	default:
		return 0
	}
}

// Equal reports whether t and o carry the same timestamps.
func (t Timestamps) Equal(o Timestamps) bool {
	return t == o
}

func (t Timestamps) encode(w *bits.Writer) {
	switch t.flags {
	case FlagsPTS:
		EncodeTimestamp(w, prefixPTSOnly, t.pts)
	case FlagsPTSDTS:
		EncodeTimestamp(w, prefixPTS, t.pts)
		EncodeTimestamp(w, prefixDTS, t.dts)
	}
}

func decodeTimestamps(r *bits.Reader, flags byte) (Timestamps, error) {
	switch flags {
	case FlagsNone:
		return Timestamps{}, nil
	case FlagsPTS:
		_, pts, err := DecodeTimestamp(r)
		if err != nil {
			return Timestamps{}, err
		}
		return PTSOnly(pts), nil
	case FlagsPTSDTS:
		_, pts, err := DecodeTimestamp(r)
		if err != nil {
			return Timestamps{}, err
		}
		_, dts, err := DecodeTimestamp(r)
		if err != nil {
			return Timestamps{}, err
		}
		return PTSAndDTS(pts, dts), nil
	default:
		return Timestamps{}, ErrForbiddenPTSDTS
	}
}

// EncodeTimestamp writes a 33 bit timestamp in the 5 byte PES layout: the
// 4 bit prefix, then bits 32..30, 29..15 and 14..0 of ts, each chunk followed
// by a marker bit.
func EncodeTimestamp(w *bits.Writer, prefix byte, ts uint64) {
	w.WriteBits(uint64(prefix), 4)
	w.WriteBits(ts>>30, 3)
	w.WriteBool(true)
	w.WriteBits(ts>>15, 15)
	w.WriteBool(true)
	w.WriteBits(ts, 15)
	w.WriteBool(true)
}

// DecodeTimestamp reads a 5 byte PES timestamp field, returning its prefix and
// value. Marker bits are not checked.
func DecodeTimestamp(r *bits.Reader) (prefix byte, ts uint64, err error) {
	b, err := r.ReadBytes(TimestampSize)
	if err != nil {
		return 0, 0, err
	}
	prefix = b[0] >> 4
	ts = uint64(b[0]>>1&0x07)<<30 | uint64(b[1])<<22 | uint64(b[2]>>1)<<15 | uint64(b[3])<<7 | uint64(b[4]>>1)
	return prefix, ts, nil
}
