// Package dexio provides the little-endian byte buffer and LEB128 codec used
// to lay out DEX structures.
package dexio

import (
	"encoding/binary"
	"errors"
)

// ErrTruncated is returned when a read runs past the end of the input.
var ErrTruncated = errors.New("dexio: truncated input")

// Writer accumulates little-endian output.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Bytes returns the written bytes. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *Writer) WriteU16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) WriteU32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteULEB128 appends v in unsigned LEB128 form and returns the number of
// bytes written.
func (w *Writer) WriteULEB128(v uint32) int {
	n := 0
	for {
		b := byte(v & 0x7f)
		v >>= 7
		n++
		if v == 0 {
			w.buf = append(w.buf, b)
			return n
		}
		w.buf = append(w.buf, b|0x80)
	}
}

// WriteSLEB128 appends v in signed LEB128 form and returns the number of
// bytes written.
func (w *Writer) WriteSLEB128(v int32) int {
	n := 0
	for {
		b := byte(v & 0x7f)
		v >>= 7
		n++
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if done {
			w.buf = append(w.buf, b)
			return n
		}
		w.buf = append(w.buf, b|0x80)
	}
}

// ULEB128Size returns the encoded length of v.
func ULEB128Size(v uint32) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// Reader decodes little-endian input.
type Reader struct {
	data []byte
	pos  int
}

// NewReader returns a reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, ErrTruncated
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) ReadU16() (uint16, error) {
	if r.Remaining() < 2 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadU32() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadULEB128 decodes an unsigned LEB128 value of at most five bytes.
func (r *Reader) ReadULEB128() (uint32, error) {
	var result uint32
	for shift := 0; shift < 35; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
	}
	return 0, errors.New("dexio: uleb128 value too long")
}

// ReadSLEB128 decodes a signed LEB128 value of at most five bytes.
func (r *Reader) ReadSLEB128() (int32, error) {
	var result int32
	shift := 0
	for shift < 35 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int32(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 32 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
	}
	return 0, errors.New("dexio: sleb128 value too long")
}
