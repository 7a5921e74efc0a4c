/*
NAME
  pmt.go

DESCRIPTION
  pmt.go provides encoding and decoding of program map table sections.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package psi

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/ausocean/tscodec/container/mts/bits"
)

// Sizes of the fixed parts of a PMT.
const (
	PMTFixedSize     = HeaderSize + SyntaxHeaderSize + 4 // Up to and including program info length.
	ElementFixedSize = 5                                 // Stream type through ES info length.
)

// PMTElementInfo describes one elementary stream of a program.
type PMTElementInfo struct {
	StreamType    byte   // Stream type.
	Reserved0     byte   // 3 bits.
	ElementaryPID uint16 // 13 bits.
	Reserved1     byte   // 4 bits.
	ESInfoLength  uint16 // 12 bits.
	ESInfo        []byte // Raw elementary stream descriptors.
}

// NewPMTElementInfo returns a PMTElementInfo for the given stream type and
// PID, with reserved bits set.
func NewPMTElementInfo(streamType byte, pid uint16) PMTElementInfo {
	return PMTElementInfo{
		StreamType:    streamType,
		Reserved0:     reserved3,
		ElementaryPID: pid,
		Reserved1:     reserved4,
	}
}

// Size returns the encoded size of e in bytes, including descriptors.
func (e *PMTElementInfo) Size() int {
	return ElementFixedSize + len(e.ESInfo)
}

// Encode sets ESInfoLength from ESInfo and writes e to w.
func (e *PMTElementInfo) Encode(w *bits.Writer) {
	e.ESInfoLength = uint16(len(e.ESInfo))
	w.WriteUint8(e.StreamType)
	w.WriteBits(uint64(e.Reserved0), 3)
	w.WriteBits(uint64(e.ElementaryPID), 13)
	w.WriteBits(uint64(e.Reserved1), 4)
	w.WriteBits(uint64(e.ESInfoLength), 12)
	w.WriteBytes(e.ESInfo)
}

// Decode reads e from r. ESInfo is a copy.
func (e *PMTElementInfo) Decode(r *bits.Reader) error {
	if r.Len() < ElementFixedSize {
		return errors.Wrap(errShort, "could not read element info")
	}
	e.StreamType, _ = r.ReadUint8()
	v, _ := r.ReadBits(3)
	e.Reserved0 = byte(v)
	v, _ = r.ReadBits(13)
	e.ElementaryPID = uint16(v)
	v, _ = r.ReadBits(4)
	e.Reserved1 = byte(v)
	v, _ = r.ReadBits(12)
	e.ESInfoLength = uint16(v)
	b, err := r.ReadBytes(int(e.ESInfoLength))
	if err != nil {
		return errors.Wrap(err, "could not read ES info")
	}
	e.ESInfo = nil
	if len(b) != 0 {
		e.ESInfo = append([]byte(nil), b...)
	}
	return nil
}

// Print writes a description of e to log at the given level.
func (e *PMTElementInfo) Print(level int8, log LogFunc) {
	log(level, fmt.Sprintf("  stream type: %#02x", e.StreamType))
	log(level, fmt.Sprintf("    elementary PID: %d", e.ElementaryPID))
	log(level, fmt.Sprintf("    ES info length: %d", e.ESInfoLength))
	if len(e.ESInfo) != 0 {
		log(level, fmt.Sprintf("    ES info: % x", e.ESInfo))
	}
}

/*
PMTHeader is a program map table section. After the fields it shares with
PATHeader it carries the following, then the elementary stream loop.

============================================================================
| octet no | bit 0 | bit 1 | bit 2 | bit 3 | bit 4 | bit 5 | bit 6 | bit 7 |
============================================================================
| octet 8  | reserved              | PCR PID                               |
----------------------------------------------------------------------------
| octet 9  | PCR PID cont.                                                 |
----------------------------------------------------------------------------
| octet 10 | reserved                      | program info length           |
----------------------------------------------------------------------------
| octet 11 | program info length cont.                                     |
----------------------------------------------------------------------------
*/
type PMTHeader struct {
	TableID                byte             // Table ID.
	SectionSyntaxIndicator bool             // Section syntax indicator.
	B0                     bool             // The '0' bit.
	Reserved0              byte             // 2 bits.
	SectionLength          uint16           // 12 bits.
	ProgramNumber          uint16           // Program number.
	Reserved1              byte             // 2 bits.
	VersionNumber          byte             // 5 bits.
	CurrentNextIndicator   bool             // Current/next indicator.
	SectionNumber          byte             // Section number.
	LastSectionNumber      byte             // Last section number.
	Reserved2              byte             // 3 bits.
	PCRPID                 uint16           // 13 bits.
	Reserved3              byte             // 4 bits.
	ProgramInfoLength      uint16           // 12 bits.
	ProgramInfo            []byte           // Raw program descriptors.
	Infos                  []PMTElementInfo // Elementary streams, in order.
}

// NewPMT returns a single section, currently applicable PMT.
func NewPMT(program, pcrPID uint16, infos ...PMTElementInfo) *PMTHeader {
	return &PMTHeader{
		TableID:                PMTTableID,
		SectionSyntaxIndicator: true,
		Reserved0:              reserved2,
		ProgramNumber:          program,
		Reserved1:              reserved2,
		CurrentNextIndicator:   true,
		Reserved2:              reserved3,
		PCRPID:                 pcrPID,
		Reserved3:              reserved4,
		Infos:                  infos,
	}
}

// Size returns the encoded size of the whole section in bytes, from the
// table ID through the CRC.
func (p *PMTHeader) Size() int {
	n := PMTFixedSize + len(p.ProgramInfo) + CRCSize
	for i := range p.Infos {
		n += p.Infos[i].Size()
	}
	return n
}

// Encode computes ProgramInfoLength and SectionLength, then writes the
// section followed by its CRC to w. w must be byte aligned.
func (p *PMTHeader) Encode(w *bits.Writer) error {
	sl := p.Size() - HeaderSize
	if sl > MaxSectionLength {
		return ErrSectionTooLong
	}
	p.SectionLength = uint16(sl)
	p.ProgramInfoLength = uint16(len(p.ProgramInfo))

	start := w.Len()
	w.WriteUint8(p.TableID)
	w.WriteBool(p.SectionSyntaxIndicator)
	w.WriteBool(p.B0)
	w.WriteBits(uint64(p.Reserved0), 2)
	w.WriteBits(uint64(p.SectionLength), 12)
	w.WriteUint16(p.ProgramNumber)
	w.WriteBits(uint64(p.Reserved1), 2)
	w.WriteBits(uint64(p.VersionNumber), 5)
	w.WriteBool(p.CurrentNextIndicator)
	w.WriteUint8(p.SectionNumber)
	w.WriteUint8(p.LastSectionNumber)
	w.WriteBits(uint64(p.Reserved2), 3)
	w.WriteBits(uint64(p.PCRPID), 13)
	w.WriteBits(uint64(p.Reserved3), 4)
	w.WriteBits(uint64(p.ProgramInfoLength), 12)
	w.WriteBytes(p.ProgramInfo)
	for i := range p.Infos {
		p.Infos[i].Encode(w)
	}
	w.WriteUint32(CRC32(w.Bytes()[start:]))
	return w.Err()
}

// Decode reads a PMT section from r. If the CRC does not match, p is fully
// populated and an error satisfying errors.Is(err, ErrCRCMismatch) is
// returned.
func (p *PMTHeader) Decode(r *bits.Reader) error {
	start := r.Pos()
	if r.Len() < PMTFixedSize {
		return errors.Wrap(errShort, "could not read PMT header")
	}
	p.TableID, _ = r.ReadUint8()
	if p.TableID != PMTTableID {
		return ErrTableID
	}
	p.SectionSyntaxIndicator, _ = r.ReadBool()
	p.B0, _ = r.ReadBool()
	v, _ := r.ReadBits(2)
	p.Reserved0 = byte(v)
	v, _ = r.ReadBits(12)
	p.SectionLength = uint16(v)
	p.ProgramNumber, _ = r.ReadUint16()
	v, _ = r.ReadBits(2)
	p.Reserved1 = byte(v)
	v, _ = r.ReadBits(5)
	p.VersionNumber = byte(v)
	p.CurrentNextIndicator, _ = r.ReadBool()
	p.SectionNumber, _ = r.ReadUint8()
	p.LastSectionNumber, _ = r.ReadUint8()
	v, _ = r.ReadBits(3)
	p.Reserved2 = byte(v)
	v, _ = r.ReadBits(13)
	p.PCRPID = uint16(v)
	v, _ = r.ReadBits(4)
	p.Reserved3 = byte(v)
	v, _ = r.ReadBits(12)
	p.ProgramInfoLength = uint16(v)

	// Everything after the section length field, up to the CRC.
	end := start + HeaderSize + int(p.SectionLength) - CRCSize
	if int(p.SectionLength) > MaxSectionLength || end < r.Pos()+int(p.ProgramInfoLength) || end+CRCSize > r.Pos()+r.Len() {
		return errors.Wrapf(ErrSectionLength, "PMT section length %d", p.SectionLength)
	}

	b, _ := r.ReadBytes(int(p.ProgramInfoLength))
	p.ProgramInfo = nil
	if len(b) != 0 {
		p.ProgramInfo = append([]byte(nil), b...)
	}

	p.Infos = p.Infos[:0]
	for r.Pos() < end {
		var e PMTElementInfo
		err := e.Decode(r)
		if err != nil {
			return errors.Wrap(err, "could not decode element info")
		}
		if r.Pos() > end {
			return errors.Wrap(ErrSectionLength, "element info overruns section")
		}
		p.Infos = append(p.Infos, e)
	}
	return checkCRC(r, start)
}

// Bytes returns the encoded section.
func (p *PMTHeader) Bytes() ([]byte, error) {
	w := bits.NewWriter(make([]byte, 0, p.Size()))
	err := p.Encode(w)
	return w.Bytes(), err
}

// Info returns the element info for the given PID, if the program has it.
func (p *PMTHeader) Info(pid uint16) (*PMTElementInfo, bool) {
	for i := range p.Infos {
		if p.Infos[i].ElementaryPID == pid {
			return &p.Infos[i], true
		}
	}
	return nil, false
}

// Print writes a description of p to log at the given level.
func (p *PMTHeader) Print(level int8, log LogFunc) {
	log(level, "PMT header")
	printSyntaxHeader(level, log, p.TableID, p.SectionSyntaxIndicator, p.SectionLength,
		"program number", p.ProgramNumber, p.VersionNumber,
		p.CurrentNextIndicator, p.SectionNumber, p.LastSectionNumber)
	log(level, fmt.Sprintf("  PCR PID: %d", p.PCRPID))
	log(level, fmt.Sprintf("  program info length: %d", p.ProgramInfoLength))
	for i := range p.Infos {
		p.Infos[i].Print(level, log)
	}
}
