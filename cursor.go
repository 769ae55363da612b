package psd

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// maxSafeInteger is the largest integer every consumer of this package can
// round-trip through a float64 without loss.
const maxSafeInteger = 1<<53 - 1

var (
	utf16BE = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
)

// Cursor is a positional big-endian reader over a byte slice.
// It never copies: every slice it returns aliases the underlying buffer.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor creates a cursor positioned at the start of buf
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Position returns the current offset
func (c *Cursor) Position() int { return c.pos }

// Len returns the length of the underlying buffer
func (c *Cursor) Len() int { return len(c.buf) }

// Remaining returns the number of unread bytes
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Clone returns an independent cursor at the same position
func (c *Cursor) Clone() *Cursor {
	return &Cursor{buf: c.buf, pos: c.pos}
}

// CloneAt returns an independent cursor over the same buffer at pos
func (c *Cursor) CloneAt(pos int) (*Cursor, error) {
	if pos < 0 || pos > len(c.buf) {
		return nil, fmt.Errorf("%w: position %d of %d", ErrOutOfBounds, pos, len(c.buf))
	}
	return &Cursor{buf: c.buf, pos: pos}, nil
}

// Seek moves the cursor to an absolute position
func (c *Cursor) Seek(pos int) error {
	if pos < 0 || pos > len(c.buf) {
		return fmt.Errorf("%w: position %d of %d", ErrOutOfBounds, pos, len(c.buf))
	}
	c.pos = pos
	return nil
}

func (c *Cursor) check(n int) error {
	if n < 0 || n > len(c.buf)-c.pos {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrOutOfBounds, n, c.pos, len(c.buf)-c.pos)
	}
	return nil
}

// Skip advances the cursor by n bytes
func (c *Cursor) Skip(n int) error {
	if err := c.check(n); err != nil {
		return err
	}
	c.pos += n
	return nil
}

// Take returns the next n bytes and advances past them
func (c *Cursor) Take(n int) ([]byte, error) {
	if err := c.check(n); err != nil {
		return nil, err
	}
	b := c.buf[c.pos : c.pos+n : c.pos+n]
	c.pos += n
	return b, nil
}

// Extract returns the next n bytes without advancing
func (c *Cursor) Extract(n int) ([]byte, error) {
	if err := c.check(n); err != nil {
		return nil, err
	}
	return c.buf[c.pos : c.pos+n : c.pos+n], nil
}

// Peek returns the next byte without advancing
func (c *Cursor) Peek() (byte, error) {
	if err := c.check(1); err != nil {
		return 0, err
	}
	return c.buf[c.pos], nil
}

// Sub returns a cursor over the next n bytes and advances past them.
// Reads through the returned cursor cannot escape that window.
func (c *Cursor) Sub(n int) (*Cursor, error) {
	b, err := c.Take(n)
	if err != nil {
		return nil, err
	}
	return NewCursor(b), nil
}

// ReadUint8 reads an unsigned byte
func (c *Cursor) ReadUint8() (uint8, error) {
	if err := c.check(1); err != nil {
		return 0, err
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

// ReadInt8 reads a signed byte
func (c *Cursor) ReadInt8() (int8, error) {
	v, err := c.ReadUint8()
	return int8(v), err
}

// ReadUint16 reads a 16-bit unsigned integer (big endian)
func (c *Cursor) ReadUint16() (uint16, error) {
	if err := c.check(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

// ReadInt16 reads a 16-bit signed integer (big endian)
func (c *Cursor) ReadInt16() (int16, error) {
	v, err := c.ReadUint16()
	return int16(v), err
}

// ReadUint32 reads a 32-bit unsigned integer (big endian)
func (c *Cursor) ReadUint32() (uint32, error) {
	if err := c.check(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

// ReadInt32 reads a 32-bit signed integer (big endian)
func (c *Cursor) ReadInt32() (int32, error) {
	v, err := c.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads a 64-bit unsigned integer and rejects values above 2^53-1
func (c *Cursor) ReadUint64() (uint64, error) {
	if err := c.check(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(c.buf[c.pos:])
	if v > maxSafeInteger {
		return 0, fmt.Errorf("%w: %d at offset %d", ErrNumberTooLarge, v, c.pos)
	}
	c.pos += 8
	return v, nil
}

// ReadInt64 reads a 64-bit signed integer and rejects values whose
// magnitude exceeds 2^53-1
func (c *Cursor) ReadInt64() (int64, error) {
	if err := c.check(8); err != nil {
		return 0, err
	}
	v := int64(binary.BigEndian.Uint64(c.buf[c.pos:]))
	if v > maxSafeInteger || v < -maxSafeInteger {
		return 0, fmt.Errorf("%w: %d at offset %d", ErrNumberTooLarge, v, c.pos)
	}
	c.pos += 8
	return v, nil
}

// ReadFloat32 reads an IEEE 754 single precision float
func (c *Cursor) ReadFloat32() (float32, error) {
	v, err := c.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 reads an IEEE 754 double precision float
func (c *Cursor) ReadFloat64() (float64, error) {
	if err := c.check(8); err != nil {
		return 0, err
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(c.buf[c.pos:]))
	c.pos += 8
	return v, nil
}

// ReadLength reads a 2, 4 or 8 byte unsigned length field
func (c *Cursor) ReadLength(width int) (int, error) {
	switch width {
	case 2:
		v, err := c.ReadUint16()
		return int(v), err
	case 4:
		v, err := c.ReadUint32()
		return int(v), err
	case 8:
		v, err := c.ReadUint64()
		return int(v), err
	}
	return 0, fmt.Errorf("invalid length field width %d", width)
}

// ReadString reads n bytes as a UTF-8 string
func (c *Cursor) ReadString(n int) (string, error) {
	b, err := c.Take(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadPascalString reads a string prefixed with a one byte length.
// When align is non-zero, the length byte plus the string is padded to a
// multiple of align.
func (c *Cursor) ReadPascalString(align int) (string, error) {
	n, err := c.ReadUint8()
	if err != nil {
		return "", err
	}
	s, err := c.ReadString(int(n))
	if err != nil {
		return "", err
	}
	if err := c.Padding(int(n)+1, align); err != nil {
		return "", err
	}
	return s, nil
}

// ReadUnicodeString reads a UTF-16BE string prefixed with its length in
// code units. A single trailing NUL is dropped. The 4 byte prefix plus the
// string is padded to a multiple of padding.
func (c *Cursor) ReadUnicodeString(padding int) (string, error) {
	count, err := c.ReadUint32()
	if err != nil {
		return "", err
	}
	size := int(count) * 2
	if count > math.MaxInt32/2 {
		return "", fmt.Errorf("%w: unicode string of %d units", ErrOutOfBounds, count)
	}
	b, err := c.Take(size)
	if err != nil {
		return "", err
	}
	s, err := decodeUTF16(b, false)
	if err != nil {
		return "", err
	}
	if err := c.Padding(4+size, padding); err != nil {
		return "", err
	}
	return strings.TrimSuffix(s, "\x00"), nil
}

// ReadIDString reads a class or key identifier: a u32 length followed by
// that many bytes, where a zero length means exactly four bytes follow
func (c *Cursor) ReadIDString() (string, error) {
	n, err := c.ReadUint32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		n = 4
	}
	return c.ReadString(int(n))
}

// Padding skips bytes so that size becomes a multiple of divisor
func (c *Cursor) Padding(size, divisor int) error {
	if divisor <= 0 {
		return nil
	}
	if rem := size % divisor; rem > 0 {
		return c.Skip(divisor - rem)
	}
	return nil
}

// ReadFixedPoint32 reads a 16.16 fixed point number
func (c *Cursor) ReadFixedPoint32() (float64, error) {
	v, err := c.ReadUint32()
	return float64(v) / 65536, err
}

// ReadFixedPoint8x24 reads a signed 8.24 fixed point number
func (c *Cursor) ReadFixedPoint8x24() (float64, error) {
	v, err := c.ReadUint32()
	if err != nil {
		return 0, err
	}
	whole := int8(v >> 24)
	frac := v & 0xFFFFFF
	return float64(whole) + float64(frac)/float64(1<<24), nil
}

func decodeUTF16(b []byte, littleEndian bool) (string, error) {
	enc := utf16BE
	if littleEndian {
		enc = utf16LE
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("failed to decode UTF-16 text: %w", err)
	}
	return string(out), nil
}
