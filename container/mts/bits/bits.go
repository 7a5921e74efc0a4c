/*
DESCRIPTION
  bits.go provides the big-endian bit and byte cursors that every MPEG-TS
  header codec in this module is written against.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package bits provides a bit reader and bit writer over in-memory byte
// slices. Values are packed most-significant bit first, so fields narrower
// than a byte may straddle byte boundaries.
package bits

import (
	"bytes"
	"errors"
	"io"

	"github.com/icza/bitio"
)

// ErrWidth is returned when a read of more than 64 bits is requested.
var ErrWidth = errors.New("bit width out of range")

// Reader is a bit reader over a byte slice. In addition to reads of arbitrary
// bit width it keeps track of its position, so callers may query the remaining
// length and take sub-slices of bytes already consumed.
type Reader struct {
	data []byte
	src  *bytes.Reader
	br   *bitio.Reader
	off  int // Bits consumed.
}

// NewReader returns a new Reader reading from b. b is not copied.
func NewReader(b []byte) *Reader {
	src := bytes.NewReader(b)
	return &Reader{data: b, src: src, br: bitio.NewReader(src)}
}

// ReadBits reads n bits and returns them in the least-significant part of a
// uint64. For example, with a source of []byte{0x8f,0xe3} (1000 1111, 1110
// 0011), consecutive reads of n = 4, 2, 4, 6 give 0x8, 0x3, 0xf and 0x23.
func (r *Reader) ReadBits(n int) (uint64, error) {
	if n < 0 || n > 64 {
		return 0, ErrWidth
	}
	if n > r.bitsLeft() {
		return 0, io.ErrUnexpectedEOF
	}
	if n == 0 {
		return 0, nil
	}
	v, err := r.br.ReadBits(uint8(n))
	if err == io.EOF {
		return 0, io.ErrUnexpectedEOF
	}
	if err != nil {
		return 0, err
	}
	r.off += n
	return v, nil
}

// ReadBool reads a single bit.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadBits(1)
	return v == 1, err
}

// ReadUint8 reads 8 bits.
func (r *Reader) ReadUint8() (uint8, error) {
	v, err := r.ReadBits(8)
	return uint8(v), err
}

// ReadUint16 reads 16 bits.
func (r *Reader) ReadUint16() (uint16, error) {
	v, err := r.ReadBits(16)
	return uint16(v), err
}

// ReadUint24 reads 24 bits.
func (r *Reader) ReadUint24() (uint32, error) {
	v, err := r.ReadBits(24)
	return uint32(v), err
}

// ReadUint32 reads 32 bits.
func (r *Reader) ReadUint32() (uint32, error) {
	v, err := r.ReadBits(32)
	return uint32(v), err
}

// ReadUint64 reads 64 bits.
func (r *Reader) ReadUint64() (uint64, error) {
	return r.ReadBits(64)
}

// ReadBytes reads n bytes. If the reader is byte aligned, the returned slice
// shares the backing array of the source; it is not a copy.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n*8 > r.bitsLeft() {
		return nil, io.ErrUnexpectedEOF
	}
	if !r.Aligned() {
		b := make([]byte, n)
		for i := range b {
			v, err := r.ReadBits(8)
			if err != nil {
				return nil, err
			}
			b[i] = byte(v)
		}
		return b, nil
	}
	pos := r.Pos()
	_, err := r.src.Seek(int64(n), io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	r.off += n * 8
	return r.data[pos : pos+n], nil
}

// Skip advances the reader by n bytes.
func (r *Reader) Skip(n int) error {
	_, err := r.ReadBytes(n)
	return err
}

// Len returns the number of whole bytes left to read.
func (r *Reader) Len() int {
	return r.bitsLeft() / 8
}

// Pos returns the number of whole bytes consumed.
func (r *Reader) Pos() int {
	return r.off / 8
}

// Aligned returns true if the reader is positioned at the start of a byte.
func (r *Reader) Aligned() bool {
	return r.off%8 == 0
}

// Slice returns the source bytes in [from, to).
func (r *Reader) Slice(from, to int) []byte {
	return r.data[from:to]
}

func (r *Reader) bitsLeft() int {
	return len(r.data)*8 - r.off
}

// Writer is a bit writer appending to an in-memory buffer. Writes to the
// underlying buffer cannot fail, but the first error from the bit writer is
// retained and reported by Err.
type Writer struct {
	buf *bytes.Buffer
	bw  *bitio.Writer
	off int // Bits written.
	err error
}

// NewWriter returns a Writer that writes into the backing array of b, which
// is truncated to zero length first. b may be nil.
func NewWriter(b []byte) *Writer {
	buf := bytes.NewBuffer(b[:0])
	return &Writer{buf: buf, bw: bitio.NewWriter(buf)}
}

// WriteBits writes the n least-significant bits of v.
func (w *Writer) WriteBits(v uint64, n int) {
	if n <= 0 {
		return
	}
	if n > 64 {
		w.setErr(ErrWidth)
		return
	}
	if n < 64 {
		v &= 1<<uint(n) - 1
	}
	w.setErr(w.bw.WriteBits(v, uint8(n)))
	w.off += n
}

// WriteBool writes a single bit.
func (w *Writer) WriteBool(b bool) {
	var v uint64
	if b {
		v = 1
	}
	w.WriteBits(v, 1)
}

// WriteUint8 writes 8 bits.
func (w *Writer) WriteUint8(v uint8) { w.WriteBits(uint64(v), 8) }

// WriteUint16 writes 16 bits.
func (w *Writer) WriteUint16(v uint16) { w.WriteBits(uint64(v), 16) }

// WriteUint24 writes the low 24 bits of v.
func (w *Writer) WriteUint24(v uint32) { w.WriteBits(uint64(v), 24) }

// WriteUint32 writes 32 bits.
func (w *Writer) WriteUint32(v uint32) { w.WriteBits(uint64(v), 32) }

// WriteUint64 writes 64 bits.
func (w *Writer) WriteUint64(v uint64) { w.WriteBits(v, 64) }

// WriteBytes writes b.
func (w *Writer) WriteBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	_, err := w.bw.Write(b)
	w.setErr(err)
	w.off += len(b) * 8
}

// WriteFill writes n copies of the byte v, typically used for stuffing.
func (w *Writer) WriteFill(v byte, n int) {
	for i := 0; i < n; i++ {
		w.WriteBits(uint64(v), 8)
	}
}

// Len returns the number of whole bytes written.
func (w *Writer) Len() int {
	return w.off / 8
}

// Aligned returns true if the writer is positioned at the start of a byte.
func (w *Writer) Aligned() bool {
	return w.off%8 == 0
}

// Bytes returns the bytes written so far. A partially written trailing byte
// is not included.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Err returns the first error encountered while writing.
func (w *Writer) Err() error {
	return w.err
}

// Reset discards everything written, retaining the buffer's storage.
func (w *Writer) Reset() {
	w.buf.Reset()
	w.bw = bitio.NewWriter(w.buf)
	w.off = 0
	w.err = nil
}

func (w *Writer) setErr(err error) {
	if w.err == nil {
		w.err = err
	}
}
