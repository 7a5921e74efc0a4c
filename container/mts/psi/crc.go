/*
NAME
  crc.go

DESCRIPTION
  crc.go provides the MPEG-2 CRC32 used to protect PSI sections.

AUTHOR
  Dan Kortschak <dan@ausocean.org>
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package psi

import (
	"encoding/binary"
	"hash/crc32"
	"math/bits"
)

// CRCSize is the size of the CRC32 that ends a PSI section.
const CRCSize = 4

// crcTable is the MSB first table for polynomial 0x04C11DB7.
var crcTable = makeTable(bits.Reverse32(crc32.IEEE))

// CRC32 returns the MPEG-2 CRC32 of b. Computing it over a whole section,
// including its trailing CRC, gives 0 for an intact section.
func CRC32(b []byte) uint32 {
	return update(0xffffffff, crcTable, b)
}

// AddCRC appends a CRC to a PSI table given with a leading pointer field. The
// pointer field is excluded from the checksum.
func AddCRC(out []byte) []byte {
	t := make([]byte, len(out)+CRCSize)
	copy(t, out)
	UpdateCrc(t[1:])
	return t
}

// UpdateCrc updates the crc of bytes slice, writing the checksum into the last four bytes.
func UpdateCrc(b []byte) {
	binary.BigEndian.PutUint32(b[len(b)-CRCSize:], CRC32(b[:len(b)-CRCSize]))
}

func makeTable(poly uint32) *crc32.Table {
	var t crc32.Table
	for i := range t {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return &t
}

func update(crc uint32, tab *crc32.Table, p []byte) uint32 {
	for _, v := range p {
		crc = tab[byte(crc>>24)^v] ^ (crc << 8)
	}
	return crc
}
