/*
NAME
  psi.go

DESCRIPTION
  psi.go provides encoding and decoding of the program association table and
  the section header fields shared by PSI tables.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package psi provides encoding and decoding of MPEG-TS program specific
// information.
package psi

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/ausocean/tscodec/container/mts/bits"
)

// PacketSize of psi (without MPEG-TS header)
const PacketSize = 184

// Table Type IDs.
const (
	PATTableID = 0x00
	PMTTableID = 0x02
)

// Section size constants.
const (
	HeaderSize       = 3    // Table ID and section length.
	SyntaxHeaderSize = 5    // Table ID extension through last section number.
	MaxSectionLength = 1021 // Largest section length of a PAT or PMT.
	ProgramSize      = 4    // Size of one PAT program entry.
)

// Default values of reserved fields.
const (
	reserved2 = 0x3
	reserved3 = 0x7
	reserved4 = 0xf
)

// Errors returned by section decoding and encoding.
var (
	ErrCRCMismatch    = errors.New("section CRC mismatch")
	ErrSectionLength  = errors.New("invalid section length")
	ErrSectionTooLong = errors.New("section exceeds maximum length")
	ErrTableID        = errors.New("unexpected table ID")
)

// LogFunc is a sink for diagnostic output. level is one of the
// github.com/ausocean/utils/logging levels.
type LogFunc func(level int8, msg string)

/*
PATHeader holds the fields of a PAT section before the program loop. The
PMT section header has the same shape, with ProgramNumber in place of
TransportStreamID.

============================================================================
| octet no | bit 0 | bit 1 | bit 2 | bit 3 | bit 4 | bit 5 | bit 6 | bit 7 |
============================================================================
| octet 0  | table ID                                                      |
----------------------------------------------------------------------------
| octet 1  | SSI   | '0'   | reserved      | section length                |
----------------------------------------------------------------------------
| octet 2  | section length cont.                                          |
----------------------------------------------------------------------------
| octet 3  | transport stream ID (16 bits)                                 |
----------------------------------------------------------------------------
| octet 5  | reserved      | version                               | CNI   |
----------------------------------------------------------------------------
| octet 6  | section number                                                |
----------------------------------------------------------------------------
| octet 7  | last section number                                           |
----------------------------------------------------------------------------
*/
type PATHeader struct {
	TableID                byte   // Table ID.
	SectionSyntaxIndicator bool   // Section syntax indicator.
	B0                     bool   // The '0' bit.
	Reserved0              byte   // 2 bits.
	SectionLength          uint16 // 12 bits.
	TransportStreamID      uint16 // Transport stream ID.
	Reserved1              byte   // 2 bits.
	VersionNumber          byte   // 5 bits.
	CurrentNextIndicator   bool   // Current/next indicator.
	SectionNumber          byte   // Section number.
	LastSectionNumber      byte   // Last section number.
}

// PATHeaderSize is the encoded size of a PATHeader.
const PATHeaderSize = HeaderSize + SyntaxHeaderSize

// Encode writes h to w.
func (h *PATHeader) Encode(w *bits.Writer) {
	w.WriteUint8(h.TableID)
	w.WriteBool(h.SectionSyntaxIndicator)
	w.WriteBool(h.B0)
	w.WriteBits(uint64(h.Reserved0), 2)
	w.WriteBits(uint64(h.SectionLength), 12)
	w.WriteUint16(h.TransportStreamID)
	w.WriteBits(uint64(h.Reserved1), 2)
	w.WriteBits(uint64(h.VersionNumber), 5)
	w.WriteBool(h.CurrentNextIndicator)
	w.WriteUint8(h.SectionNumber)
	w.WriteUint8(h.LastSectionNumber)
}

// Decode reads h from r.
func (h *PATHeader) Decode(r *bits.Reader) error {
	if r.Len() < PATHeaderSize {
		return errors.Wrap(errShort, "could not read PAT header")
	}
	h.TableID, _ = r.ReadUint8()
	h.SectionSyntaxIndicator, _ = r.ReadBool()
	h.B0, _ = r.ReadBool()
	v, _ := r.ReadBits(2)
	h.Reserved0 = byte(v)
	v, _ = r.ReadBits(12)
	h.SectionLength = uint16(v)
	h.TransportStreamID, _ = r.ReadUint16()
	v, _ = r.ReadBits(2)
	h.Reserved1 = byte(v)
	v, _ = r.ReadBits(5)
	h.VersionNumber = byte(v)
	h.CurrentNextIndicator, _ = r.ReadBool()
	h.SectionNumber, _ = r.ReadUint8()
	h.LastSectionNumber, _ = r.ReadUint8()
	return nil
}

// Print writes a description of h to log at the given level.
func (h *PATHeader) Print(level int8, log LogFunc) {
	log(level, "PAT header")
	printSyntaxHeader(level, log, h.TableID, h.SectionSyntaxIndicator, h.SectionLength,
		"transport stream ID", h.TransportStreamID, h.VersionNumber,
		h.CurrentNextIndicator, h.SectionNumber, h.LastSectionNumber)
}

func printSyntaxHeader(level int8, log LogFunc, tid byte, ssi bool, sl uint16, idName string, id uint16, ver byte, cni bool, sn, lsn byte) {
	log(level, fmt.Sprintf("  table ID: %#02x", tid))
	log(level, fmt.Sprintf("  section syntax indicator: %d", asByte(ssi)))
	log(level, fmt.Sprintf("  section length: %d", sl))
	log(level, fmt.Sprintf("  %s: %d", idName, id))
	log(level, fmt.Sprintf("  version number: %d", ver))
	log(level, fmt.Sprintf("  current next indicator: %d", asByte(cni)))
	log(level, fmt.Sprintf("  section number: %d", sn))
	log(level, fmt.Sprintf("  last section number: %d", lsn))
}

// Program is a PAT entry mapping a program number to the PID of its PMT.
// Program number 0 maps to the network information PID.
type Program struct {
	Number uint16 // Program number.
	PID    uint16 // Program map PID.
}

// PAT is a program association table section.
type PAT struct {
	PATHeader
	Programs []Program
}

// NewPAT returns a single section, currently applicable PAT.
func NewPAT(tsid uint16, programs ...Program) *PAT {
	return &PAT{
		PATHeader: PATHeader{
			TableID:                PATTableID,
			SectionSyntaxIndicator: true,
			Reserved0:              reserved2,
			TransportStreamID:      tsid,
			Reserved1:              reserved2,
			CurrentNextIndicator:   true,
		},
		Programs: programs,
	}
}

// Size returns the encoded size of the section, including the CRC.
func (p *PAT) Size() int {
	return PATHeaderSize + ProgramSize*len(p.Programs) + CRCSize
}

// Encode computes the section length of p then writes the section and its
// CRC to w. w must be byte aligned.
func (p *PAT) Encode(w *bits.Writer) error {
	sl := p.Size() - HeaderSize
	if sl > MaxSectionLength {
		return ErrSectionTooLong
	}
	p.SectionLength = uint16(sl)

	start := w.Len()
	p.PATHeader.Encode(w)
	for _, prog := range p.Programs {
		w.WriteUint16(prog.Number)
		w.WriteBits(reserved3, 3)
		w.WriteBits(uint64(prog.PID), 13)
	}
	w.WriteUint32(CRC32(w.Bytes()[start:]))
	return w.Err()
}

// Decode reads a PAT section from r. If the CRC does not match, p is fully
// populated and an error satisfying errors.Is(err, ErrCRCMismatch) is
// returned; whether to trust the table is left to the caller.
func (p *PAT) Decode(r *bits.Reader) error {
	start := r.Pos()
	err := p.PATHeader.Decode(r)
	if err != nil {
		return err
	}
	if p.TableID != PATTableID {
		return ErrTableID
	}
	n := int(p.SectionLength) - SyntaxHeaderSize - CRCSize
	if n < 0 || n%ProgramSize != 0 || int(p.SectionLength) > MaxSectionLength || r.Len() < n+CRCSize {
		return errors.Wrapf(ErrSectionLength, "PAT section length %d", p.SectionLength)
	}

	p.Programs = p.Programs[:0]
	for i := 0; i < n/ProgramSize; i++ {
		var prog Program
		prog.Number, _ = r.ReadUint16()
		r.ReadBits(3)
		v, _ := r.ReadBits(13)
		prog.PID = uint16(v)
		p.Programs = append(p.Programs, prog)
	}
	return checkCRC(r, start)
}

// Bytes returns the encoded section.
func (p *PAT) Bytes() ([]byte, error) {
	w := bits.NewWriter(make([]byte, 0, p.Size()))
	err := p.Encode(w)
	return w.Bytes(), err
}

// ProgramMap returns a map of program number to PMT PID, excluding the
// network PID entry.
func (p *PAT) ProgramMap() map[uint16]uint16 {
	m := make(map[uint16]uint16, len(p.Programs))
	for _, prog := range p.Programs {
		if prog.Number == 0 {
			continue
		}
		m[prog.Number] = prog.PID
	}
	return m
}

// Print writes a description of p to log at the given level.
func (p *PAT) Print(level int8, log LogFunc) {
	p.PATHeader.Print(level, log)
	for _, prog := range p.Programs {
		log(level, fmt.Sprintf("  program %d: PMT PID %d", prog.Number, prog.PID))
	}
}

// checkCRC reads the CRC following a section that started at start, and
// compares it with the checksum of the section bytes.
func checkCRC(r *bits.Reader, start int) error {
	want := CRC32(r.Slice(start, r.Pos()))
	got, err := r.ReadUint32()
	if err != nil {
		return errors.Wrap(err, "could not read CRC")
	}
	if got != want {
		return errors.Wrapf(ErrCRCMismatch, "got %#08x, want %#08x", got, want)
	}
	return nil
}

var errShort = errors.New("section truncated")

func asByte(b bool) byte {
	if b {
		return 0x01
	}
	return 0x00
}
