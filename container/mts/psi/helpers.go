/*
NAME
	helpers.go

DESCRIPTION
  helpers.go provides functionality for framing PSI sections in MPEG-TS
  packet payloads.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package psi

// StuffingByte fills the payload after the last section.
const StuffingByte = 0xff

// SectionLength returns the section length field of section b, which starts
// at the table ID.
func SectionLength(b []byte) int {
	return int(b[1]&0x0f)<<8 | int(b[2])
}

// AddPadding adds an appropriate amount of padding to a pat or pmt table for
// addition to an MPEG-TS packet
func AddPadding(d []byte) []byte {
	t := make([]byte, PacketSize)
	copy(t, d)
	padding := t[len(d):]
	for i := range padding {
		padding[i] = StuffingByte
	}
	return t
}

// Packetize splits a section into MPEG-TS payloads. The first payload begins
// with a zero pointer field and the last is padded with stuffing, so that
// every returned payload is PacketSize bytes.
func Packetize(section []byte) [][]byte {
	d := make([]byte, 0, len(section)+1)
	d = append(d, 0x00)
	d = append(d, section...)

	var out [][]byte
	for len(d) > PacketSize {
		out = append(out, d[:PacketSize])
		d = d[PacketSize:]
	}
	return append(out, AddPadding(d))
}
