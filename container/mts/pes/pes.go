/*
NAME
  pes.go

DESCRIPTION
  pes.go provides a PES packet type that may be encoded to or decoded from
  bytes.

AUTHOR
  Saxon A. Nelson-Milton <saxon.milton@gmail.com>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pes provides encoding and decoding of packetized elementary
// stream (PES) packets.
package pes

import (
	"github.com/pkg/errors"

	"github.com/ausocean/tscodec/container/mts/bits"
)

// MaxPesSize is the largest PES packet with a bounded length.
const MaxPesSize = 64 * 1 << 10

// maxLength is the largest value of the PES packet length field.
const maxLength = 0xffff

// ErrTooLong is returned when a non video PES packet is too long to have its
// length expressed in the packet length field.
var ErrTooLong = errors.New("PES packet too long for non-video stream")

// Packet is a PES packet: a header and the elementary stream data it wraps.
type Packet struct {
	Header
	Data      []byte // PES packet data.
	Unbounded bool   // Write a packet length of 0 regardless of size.
}

// Bytes encodes p into buf, growing buf if needed, and returns the result.
// The packet length field is computed from the header and data; it is 0 if
// p is Unbounded, or if the packet is a video packet too long to express.
func (p *Packet) Bytes(buf []byte) ([]byte, error) {
	if p.StartCode == 0 {
		p.StartCode = StartCode
	}
	if p.MarkerBits == 0 {
		p.MarkerBits = markerBits
	}

	n := p.Header.Size() - PrefixSize + len(p.Data)
	switch {
	case p.Unbounded:
		p.Length = 0
	case n > maxLength && IsVideo(p.StreamID):
		p.Length = 0
	case n > maxLength:
		return nil, ErrTooLong
	default:
		p.Length = uint16(n)
	}

	w := bits.NewWriter(buf)
	err := p.Header.Encode(w)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode PES header")
	}
	w.WriteBytes(p.Data)
	return w.Bytes(), w.Err()
}

// Decode decodes a PES packet from b. Data references b. If the packet is
// bounded and b holds more than the packet length, the surplus is ignored.
func Decode(b []byte) (*Packet, error) {
	p := &Packet{}
	r := bits.NewReader(b)
	err := p.Header.Decode(r)
	if err != nil {
		return nil, err
	}
	data, _ := r.ReadBytes(r.Len())
	if p.Length != 0 {
		n := int(p.Length) - (p.Header.Size() - PrefixSize)
		if n < 0 {
			return nil, ErrHeaderDataLength
		}
		if n < len(data) {
			data = data[:n]
		}
	} else {
		p.Unbounded = true
	}
	p.Data = data
	return p, nil
}
