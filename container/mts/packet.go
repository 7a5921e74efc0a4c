/*
DESCRIPTION
  packet.go provides the Packet type, which pairs a packet header with its
  adaptation field and payload, and its encoding to and from 188 bytes.

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

// Errors returned by Packet methods.
var (
	ErrSync           = errors.New("invalid sync byte")
	ErrPayloadTooLong = errors.New("payload does not fit in packet")
)

// Packet is an MPEG-TS packet. The adaptation field control of the header
// is derived from AF and Payload on encode.
type Packet struct {
	Header
	AF      *AdaptationField // Adaptation field, nil if absent.
	Payload []byte           // Packet payload.
}

// NewPacket returns a Packet with the sync byte set for the given PID.
func NewPacket(pid uint16) Packet {
	return Packet{Header: NewHeader(pid)}
}

// room returns the number of payload bytes p can carry given its
// adaptation field.
func (p *Packet) room() int {
	n := PacketSize - HeadSize
	if p.AF != nil {
		n -= p.AF.Size()
	}
	return n
}

// FillPayload sets the payload of p to as much of data as fits alongside
// the adaptation field, returning the number of bytes taken. The payload
// references data.
func (p *Packet) FillPayload(data []byte) int {
	n := p.room()
	if n > len(data) {
		n = len(data)
	}
	if n < 0 {
		n = 0
	}
	p.Payload = data[:n]
	return n
}

// Bytes encodes p into buf, which is grown if needed, and returns the 188
// byte packet. A payload shorter than the available room is padded with
// adaptation field stuffing; p.AF is left unchanged.
func (p *Packet) Bytes(buf []byte) ([]byte, error) {
	var af *AdaptationField
	if p.AF != nil {
		c := *p.AF
		af = &c
	}

	need := p.room() - len(p.Payload)
	switch {
	case need < 0:
		return nil, ErrPayloadTooLong
	case need == 0:
	case af == nil && need == 1:
		af = &AdaptationField{OneByteStuffing: true}
	case af == nil:
		af = &AdaptationField{Stuffing: need - 2}
	case af.OneByteStuffing:
		af.OneByteStuffing = false
		af.Stuffing = need - 1
	default:
		af.Stuffing += need
	}

	p.AFC = 0
	if af != nil {
		p.AFC |= hasAdaptationField
	}
	if len(p.Payload) != 0 {
		p.AFC |= hasPayload
	}

	if cap(buf) < PacketSize {
		buf = make([]byte, 0, PacketSize)
	}
	w := bits.NewWriter(buf)
	p.Header.Encode(w)
	if af != nil {
		err := af.Encode(w)
		if err != nil {
			return nil, err
		}
	}
	w.WriteBytes(p.Payload)
	return w.Bytes(), w.Err()
}

// Decode decodes a 188 byte packet from b into p. The payload references b.
// If p.AF is not nil it is reused.
func (p *Packet) Decode(b []byte) error {
	if len(b) != PacketSize {
		return ErrInvalidLen
	}
	if b[0] != SyncByte {
		return ErrSync
	}
	r := bits.NewReader(b)
	p.Header.Decode(r)

	if p.HasAdaptationField() {
		if p.AF == nil {
			p.AF = &AdaptationField{}
		}
		err := p.AF.Decode(r)
		if err != nil {
			return errors.Wrap(err, "could not decode adaptation field")
		}
	} else {
		p.AF = nil
	}

	p.Payload = nil
	if p.HasPayload() {
		p.Payload, _ = r.ReadBytes(r.Len())
	}
	return nil
}

// Errors used by Payload.
var ErrNoPayload = errors.New("no payload")

// Payload returns the payload of an MPEG-TS packet p.
// NB: this is not a copy of the payload in the interests of performance.
func Payload(p []byte) ([]byte, error) {
	if len(p) < PacketSize {
		return nil, ErrInvalidLen
	}
	if p[3]&0x10 == 0 {
		return nil, ErrNoPayload
	}

	off := HeadSize
	if p[3]&0x20 != 0 {
		off += 1 + int(p[4])
	}
	if off > PacketSize {
		return nil, errors.Wrap(ErrAdaptationLength, "adaptation field overruns packet")
	}
	return p[off:PacketSize], nil
}
