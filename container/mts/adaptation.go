/*
DESCRIPTION
  adaptation.go provides encoding and decoding of the MPEG-TS adaptation
  field and its optional fields.

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

// Adaptation field sizes.
const (
	pcrSize = 6

	// MaxAdaptationLength is the largest adaptation field length, for a packet
	// carrying no payload.
	MaxAdaptationLength = PacketSize - HeadSize - 1
)

// ErrAdaptationLength is returned when the optional fields of an adaptation
// field do not fit in its declared length.
var ErrAdaptationLength = errors.New("adaptation field length too short for flagged fields")

/*
AdaptationFieldHeader holds the length and flags of an adaptation field.
When Length is 0 the field is a single byte of stuffing and the flags are
absent.

============================================================================
| octet no | bit 0 | bit 1 | bit 2 | bit 3 | bit 4 | bit 5 | bit 6 | bit 7 |
============================================================================
| octet 0  | AFL                                                           |
----------------------------------------------------------------------------
| octet 1  | DI    | RAI   | ESPI  | PCRF  | OPCRF | SPF   | TPDF  | AFEF  |
----------------------------------------------------------------------------
*/
type AdaptationFieldHeader struct {
	Length byte // Number of bytes following the length byte.
	DI     bool // Discontinuity indicator.
	RAI    bool // Random access indicator.
	ESPI   bool // Elementary stream priority indicator.
	PCRF   bool // PCR flag.
	OPCRF  bool // OPCR flag.
	SPF    bool // Splicing point flag.
	TPDF   bool // Transport private data flag.
	AFEF   bool // Adaptation field extension flag.
}

// Encode writes the length byte and, if Length is not 0, the flags.
func (h *AdaptationFieldHeader) Encode(w *bits.Writer) {
	w.WriteUint8(h.Length)
	if h.Length == 0 {
		return
	}
	w.WriteBool(h.DI)
	w.WriteBool(h.RAI)
	w.WriteBool(h.ESPI)
	w.WriteBool(h.PCRF)
	w.WriteBool(h.OPCRF)
	w.WriteBool(h.SPF)
	w.WriteBool(h.TPDF)
	w.WriteBool(h.AFEF)
}

// Decode reads the length byte and, if the length is not 0, the flags. All
// flags are cleared for a zero length field.
func (h *AdaptationFieldHeader) Decode(r *bits.Reader) error {
	var err error
	h.Length, err = r.ReadUint8()
	if err != nil {
		return errors.Wrap(err, "could not read adaptation field length")
	}
	if h.Length == 0 {
		*h = AdaptationFieldHeader{}
		return nil
	}
	if r.Len() < 1 {
		return errors.Wrap(errShort, "could not read adaptation field flags")
	}
	h.DI, _ = r.ReadBool()
	h.RAI, _ = r.ReadBool()
	h.ESPI, _ = r.ReadBool()
	h.PCRF, _ = r.ReadBool()
	h.OPCRF, _ = r.ReadBool()
	h.SPF, _ = r.ReadBool()
	h.TPDF, _ = r.ReadBool()
	h.AFEF, _ = r.ReadBool()
	return nil
}

// AdaptationField is an adaptation field with its optional fields. The flags
// of the header decide which optional fields are present; Length is derived
// on encode.
type AdaptationField struct {
	AdaptationFieldHeader

	// OneByteStuffing marks a zero length field, a single stuffing byte.
	// All other fields are ignored when it is set.
	OneByteStuffing bool

	PCR             uint64 // Program clock reference at 27MHz.
	OPCR            uint64 // Original program clock reference at 27MHz.
	SpliceCountdown int8   // Splice countdown.
	PrivateData     []byte // Transport private data.
	Extension       []byte // Adaptation field extension, after its length byte.
	Stuffing        int    // Number of trailing stuffing bytes.
}

// Size returns the encoded size of f, including the length byte.
func (f *AdaptationField) Size() int {
	if f.OneByteStuffing {
		return 1
	}
	n := 2 + f.Stuffing
	if f.PCRF {
		n += pcrSize
	}
	if f.OPCRF {
		n += pcrSize
	}
	if f.SPF {
		n++
	}
	if f.TPDF {
		n += 1 + len(f.PrivateData)
	}
	if f.AFEF {
		n += 1 + len(f.Extension)
	}
	return n
}

// Encode computes Length then writes f to w.
func (f *AdaptationField) Encode(w *bits.Writer) error {
	if f.OneByteStuffing {
		f.AdaptationFieldHeader = AdaptationFieldHeader{}
		w.WriteUint8(0)
		return w.Err()
	}
	n := f.Size() - 1
	if n > MaxAdaptationLength {
		return errors.Wrapf(ErrAdaptationLength, "adaptation field needs %d bytes", n)
	}
	f.Length = byte(n)
	f.AdaptationFieldHeader.Encode(w)
	if f.PCRF {
		encodePCR(w, f.PCR)
	}
	if f.OPCRF {
		encodePCR(w, f.OPCR)
	}
	if f.SPF {
		w.WriteUint8(uint8(f.SpliceCountdown))
	}
	if f.TPDF {
		w.WriteUint8(uint8(len(f.PrivateData)))
		w.WriteBytes(f.PrivateData)
	}
	if f.AFEF {
		w.WriteUint8(uint8(len(f.Extension)))
		w.WriteBytes(f.Extension)
	}
	w.WriteFill(0xff, f.Stuffing)
	return w.Err()
}

// Decode reads an adaptation field from r. The reader always ends exactly
// after the declared length unless an error is returned. PrivateData and
// Extension are copies.
func (f *AdaptationField) Decode(r *bits.Reader) error {
	err := f.AdaptationFieldHeader.Decode(r)
	if err != nil {
		return err
	}
	f.OneByteStuffing = f.Length == 0
	f.PCR, f.OPCR, f.SpliceCountdown = 0, 0, 0
	f.PrivateData, f.Extension, f.Stuffing = nil, nil, 0
	if f.OneByteStuffing {
		return nil
	}

	body, err := r.ReadBytes(int(f.Length) - 1)
	if err != nil {
		return errors.Wrap(errShort, "adaptation field length exceeds packet")
	}
	br := bits.NewReader(body)
	if f.PCRF {
		if f.PCR, err = decodePCR(br); err != nil {
			return errors.Wrap(ErrAdaptationLength, "could not read PCR")
		}
	}
	if f.OPCRF {
		if f.OPCR, err = decodePCR(br); err != nil {
			return errors.Wrap(ErrAdaptationLength, "could not read OPCR")
		}
	}
	if f.SPF {
		v, err := br.ReadUint8()
		if err != nil {
			return errors.Wrap(ErrAdaptationLength, "could not read splice countdown")
		}
		f.SpliceCountdown = int8(v)
	}
	if f.TPDF {
		f.PrivateData, err = readPrefixed(br)
		if err != nil {
			return errors.Wrap(ErrAdaptationLength, "could not read private data")
		}
	}
	if f.AFEF {
		f.Extension, err = readPrefixed(br)
		if err != nil {
			return errors.Wrap(ErrAdaptationLength, "could not read extension")
		}
	}
	f.Stuffing = br.Len()
	return nil
}

// encodePCR writes a 27MHz clock as a 33 bit base at 90kHz, 6 reserved bits
// and a 9 bit extension.
func encodePCR(w *bits.Writer, pcr uint64) {
	w.WriteBits(pcr/300, 33)
	w.WriteBits(0x3f, 6)
	w.WriteBits(pcr%300, 9)
}

func decodePCR(r *bits.Reader) (uint64, error) {
	if r.Len() < pcrSize {
		return 0, errShort
	}
	base, _ := r.ReadBits(33)
	r.ReadBits(6)
	ext, _ := r.ReadBits(9)
	return base*300 + ext, nil
}

// readPrefixed reads a length byte and that many bytes, returning a copy.
func readPrefixed(r *bits.Reader) ([]byte, error) {
	n, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte{}, b...), nil
}
