/*
DESCRIPTION
  descriptor.go provides parsing and construction of the descriptor loops
  found in PMT program info and elementary stream info.

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
)

// DescDefLen is the size of a descriptor's tag and length.
const DescDefLen = 2

// Descriptor tags.
const (
	RegistrationTag = 0x05
	LanguageTag     = 0x0a
	MetadataTag     = 0x26
)

// ErrDescriptor is returned when a descriptor loop is malformed.
var ErrDescriptor = errors.New("malformed descriptor loop")

// Descriptor is a tag and its data.
type Descriptor struct {
	Tag  byte   // Descriptor tag
	Data []byte // Descriptor data
}

// Size returns the encoded size of d.
func (d *Descriptor) Size() int {
	return DescDefLen + len(d.Data)
}

// Bytes outputs a byte slice representation of the Desc
func (d *Descriptor) Bytes() []byte {
	out := make([]byte, DescDefLen, d.Size())
	out[0] = d.Tag
	out[1] = byte(len(d.Data))
	return append(out, d.Data...)
}

// String implements fmt.Stringer.
func (d Descriptor) String() string {
	return fmt.Sprintf("tag %#02x: % x", d.Tag, d.Data)
}

// EncodeDescriptors returns the concatenated encoding of ds.
func EncodeDescriptors(ds ...Descriptor) []byte {
	var out []byte
	for i := range ds {
		out = append(out, ds[i].Bytes()...)
	}
	return out
}

// ParseDescriptors splits a descriptor loop into its descriptors. Data of the
// returned descriptors references b.
func ParseDescriptors(b []byte) ([]Descriptor, error) {
	var ds []Descriptor
	for i := 0; i < len(b); {
		if i+DescDefLen > len(b) {
			return ds, ErrDescriptor
		}
		n := int(b[i+1])
		if i+DescDefLen+n > len(b) {
			return ds, errors.Wrapf(ErrDescriptor, "descriptor %#02x overruns loop", b[i])
		}
		ds = append(ds, Descriptor{Tag: b[i], Data: b[i+DescDefLen : i+DescDefLen+n]})
		i += DescDefLen + n
	}
	return ds, nil
}

// FindDescriptor returns the first descriptor with the given tag in the
// descriptor loop b.
func FindDescriptor(b []byte, tag byte) (Descriptor, bool) {
	ds, _ := ParseDescriptors(b)
	for _, d := range ds {
		if d.Tag == tag {
			return d, true
		}
	}
	return Descriptor{}, false
}
