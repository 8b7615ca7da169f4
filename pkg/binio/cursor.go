// Package binio provides a seekable little-endian byte cursor used by every codec
package binio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Errors reported by a Cursor
var (
	ErrTruncated    = errors.New("truncated input")
	ErrNegativeSeek = errors.New("negative seek offset")
)

// Cursor is a random-access position over a byte slice.
//
// Reads are sticky: the first failure is remembered and every later read
// returns a zero value, so a record can be decoded field by field and the
// error checked once with Err. Writes append or overwrite at the current
// position and grow the buffer as needed; they never fail.
type Cursor struct {
	buf []byte
	pos int
	err error
}

// NewReader creates a cursor positioned at offset 0 of data
func NewReader(data []byte) *Cursor {
	return &Cursor{buf: data}
}

// NewWriter creates an empty cursor for encoding
func NewWriter() *Cursor {
	return &Cursor{buf: make([]byte, 0, 1024)}
}

// Err returns the first error encountered by the cursor
func (c *Cursor) Err() error {
	return c.err
}

// Bytes returns the underlying buffer
func (c *Cursor) Bytes() []byte {
	return c.buf
}

// Len returns the total buffer length
func (c *Cursor) Len() int {
	return len(c.buf)
}

// Tell returns the current absolute position
func (c *Cursor) Tell() int {
	return c.pos
}

// Remaining returns the number of bytes between the position and the end
func (c *Cursor) Remaining() int {
	if c.pos >= len(c.buf) {
		return 0
	}
	return len(c.buf) - c.pos
}

// Seek moves to an absolute offset. Seeking past the end is allowed;
// the following read fails instead.
func (c *Cursor) Seek(offset int) {
	if c.err != nil {
		return
	}
	if offset < 0 {
		c.err = fmt.Errorf("%w: %d", ErrNegativeSeek, offset)
		return
	}
	c.pos = offset
}

// Skip advances the position by n bytes without reading them
func (c *Cursor) Skip(n int) {
	c.Seek(c.pos + n)
}

// AlignTo advances the position to the next multiple of n by skipping.
// It never writes padding.
func (c *Cursor) AlignTo(n int) {
	if n <= 1 {
		return
	}
	if rem := c.pos % n; rem != 0 {
		c.Skip(n - rem)
	}
}

// Fork returns an independent cursor over the same buffer at offset.
// Reading through the fork leaves c's position untouched.
func (c *Cursor) Fork(offset int) *Cursor {
	f := &Cursor{buf: c.buf}
	f.Seek(offset)
	return f
}

// Require checks that n bytes can be read from the current position
func (c *Cursor) Require(n int) bool {
	if c.err != nil {
		return false
	}
	if n < 0 || c.pos > len(c.buf) || len(c.buf)-c.pos < n {
		c.err = fmt.Errorf("%w: need %d bytes at offset 0x%x, %d available", ErrTruncated, n, c.pos, c.Remaining())
		return false
	}
	return true
}

func (c *Cursor) take(n int) []byte {
	if !c.Require(n) {
		return nil
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b
}

// U8 reads an unsigned byte
func (c *Cursor) U8() uint8 {
	b := c.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// I8 reads a signed byte
func (c *Cursor) I8() int8 {
	return int8(c.U8())
}

// U16 reads a little-endian uint16
func (c *Cursor) U16() uint16 {
	b := c.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32 reads a little-endian uint32
func (c *Cursor) U32() uint32 {
	b := c.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Read copies exactly len(dst) bytes into dst
func (c *Cursor) Read(dst []byte) {
	if b := c.take(len(dst)); b != nil {
		copy(dst, b)
	}
}

// ReadBytes returns a copy of the next n bytes
func (c *Cursor) ReadBytes(n int) []byte {
	b := c.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// ReadU32s reads count little-endian uint32 values
func (c *Cursor) ReadU32s(count int) []uint32 {
	if !c.Require(count * 4) {
		return nil
	}
	out := make([]uint32, count)
	for i := range out {
		out[i] = c.U32()
	}
	return out
}

// ReadInt8s reads count signed bytes
func (c *Cursor) ReadInt8s(count int) []int8 {
	b := c.take(count)
	if b == nil {
		return nil
	}
	out := make([]int8, count)
	for i, v := range b {
		out[i] = int8(v)
	}
	return out
}

// ReadString reads a fixed-width field and trims trailing NUL padding
func (c *Cursor) ReadString(width int) string {
	b := c.take(width)
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}

func (c *Cursor) put(b ...byte) {
	end := c.pos + len(b)
	if end > len(c.buf) {
		if end > cap(c.buf) {
			grown := make([]byte, len(c.buf), 2*end)
			copy(grown, c.buf)
			c.buf = grown
		}
		c.buf = c.buf[:end]
	}
	copy(c.buf[c.pos:], b)
	c.pos = end
}

// PutU8 writes an unsigned byte
func (c *Cursor) PutU8(v uint8) {
	c.put(v)
}

// PutI8 writes a signed byte
func (c *Cursor) PutI8(v int8) {
	c.put(byte(v))
}

// PutU16 writes a little-endian uint16
func (c *Cursor) PutU16(v uint16) {
	c.put(byte(v), byte(v>>8))
}

// PutU32 writes a little-endian uint32
func (c *Cursor) PutU32(v uint32) {
	c.put(byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// Write writes raw bytes
func (c *Cursor) Write(b []byte) {
	c.put(b...)
}

// PutInt8s writes signed bytes
func (c *Cursor) PutInt8s(values []int8) {
	for _, v := range values {
		c.put(byte(v))
	}
}

// PutU32s writes little-endian uint32 values
func (c *Cursor) PutU32s(values []uint32) {
	for _, v := range values {
		c.PutU32(v)
	}
}

// PutString writes s NUL-padded to width. Callers validate the length first;
// an over-long string is cut at width.
func (c *Cursor) PutString(s string, width int) {
	field := make([]byte, width)
	copy(field, s)
	c.put(field...)
}

// PadTo writes zero bytes until the position is a multiple of n
func (c *Cursor) PadTo(n int) {
	for n > 1 && c.pos%n != 0 {
		c.put(0)
	}
}
