// Package buf provides a growable byte buffer with independent read and
// write cursors, used throughout the protocol package to encode and decode
// RakNet and Bedrock wire structures.
package buf

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed is returned for any short read, truncated varint, or
// otherwise inconsistent wire data. Callers drop the offending datagram.
var ErrMalformed = errors.New("malformed buffer data")

// Buffer is a byte slice with a read cursor and a write cursor. Writes
// always append; reads always advance from the front.
type Buffer struct {
	data []byte
	r    int
}

// New wraps an existing byte slice for reading and appends for writing.
func New(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Empty constructs an empty buffer with the given initial capacity.
func Empty(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity)}
}

// Bytes returns every byte written so far, read and unread alike.
func (b *Buffer) Bytes() []byte { return b.data }

// Remaining reports how many unread bytes are left.
func (b *Buffer) Remaining() int { return len(b.data) - b.r }

// Expand ensures at least n bytes of spare capacity beyond the current
// length, reallocating only when less is available, without affecting
// its length.
func (b *Buffer) Expand(n int) {
	if cap(b.data)-len(b.data) >= n {
		return
	}
	grown := make([]byte, len(b.data), len(b.data)+n)
	copy(grown, b.data)
	b.data = grown
}

func (b *Buffer) need(n int) error {
	if b.Remaining() < n {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrMalformed, n, b.Remaining())
	}
	return nil
}

// ReadByte reads a single byte.
func (b *Buffer) ReadByte() (byte, error) {
	if err := b.need(1); err != nil {
		return 0, err
	}
	v := b.data[b.r]
	b.r++
	return v, nil
}

// WriteByte appends a single byte.
func (b *Buffer) WriteByte(v byte) {
	b.data = append(b.data, v)
}

// ReadBool reads a single byte as a boolean.
func (b *Buffer) ReadBool() (bool, error) {
	v, err := b.ReadByte()
	return v != 0, err
}

// WriteBool appends a boolean as a single byte.
func (b *Buffer) WriteBool(v bool) {
	if v {
		b.WriteByte(1)
	} else {
		b.WriteByte(0)
	}
}

// ReadUint16 reads a big-endian uint16.
func (b *Buffer) ReadUint16() (uint16, error) {
	if err := b.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(b.data[b.r:])
	b.r += 2
	return v, nil
}

// WriteUint16 appends a big-endian uint16.
func (b *Buffer) WriteUint16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.data = append(b.data, tmp[:]...)
}

// ReadUint32 reads a big-endian uint32.
func (b *Buffer) ReadUint32() (uint32, error) {
	if err := b.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(b.data[b.r:])
	b.r += 4
	return v, nil
}

// WriteUint32 appends a big-endian uint32.
func (b *Buffer) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.data = append(b.data, tmp[:]...)
}

// ReadUint64 reads a big-endian uint64.
func (b *Buffer) ReadUint64() (uint64, error) {
	if err := b.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(b.data[b.r:])
	b.r += 8
	return v, nil
}

// WriteUint64 appends a big-endian uint64.
func (b *Buffer) WriteUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.data = append(b.data, tmp[:]...)
}

// ReadTriadLE reads a 24-bit little-endian unsigned integer, as used for
// RakNet sequence, index, and order fields.
func (b *Buffer) ReadTriadLE() (uint32, error) {
	if err := b.need(3); err != nil {
		return 0, err
	}
	v := uint32(b.data[b.r]) | uint32(b.data[b.r+1])<<8 | uint32(b.data[b.r+2])<<16
	b.r += 3
	return v, nil
}

// WriteTriadLE appends a 24-bit little-endian unsigned integer. Only the
// low 24 bits of v are written.
func (b *Buffer) WriteTriadLE(v uint32) {
	b.data = append(b.data, byte(v), byte(v>>8), byte(v>>16))
}

// ReadVaruint32 reads a standard LEB128 unsigned varint.
func (b *Buffer) ReadVaruint32() (uint32, error) {
	var v uint32
	for i := uint(0); i < 35; i += 7 {
		bt, err := b.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint32(bt&0x7f) << i
		if bt&0x80 == 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: varuint32 did not terminate", ErrMalformed)
}

// WriteVaruint32 appends v as a LEB128 unsigned varint.
func (b *Buffer) WriteVaruint32(v uint32) {
	for {
		if v < 0x80 {
			b.WriteByte(byte(v))
			return
		}
		b.WriteByte(byte(v&0x7f) | 0x80)
		v >>= 7
	}
}

// ReadArray reads exactly n raw bytes.
func (b *Buffer) ReadArray(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrMalformed, n)
	}
	if err := b.need(n); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, b.data[b.r:b.r+n])
	b.r += n
	return v, nil
}

// WriteArray appends raw bytes verbatim.
func (b *Buffer) WriteArray(v []byte) {
	b.data = append(b.data, v...)
}

// ReadByteArray reads a varint-length-prefixed byte array.
func (b *Buffer) ReadByteArray() ([]byte, error) {
	n, err := b.ReadVaruint32()
	if err != nil {
		return nil, err
	}
	return b.ReadArray(int(n))
}

// WriteByteArray appends v prefixed with its varint length.
func (b *Buffer) WriteByteArray(v []byte) {
	b.WriteVaruint32(uint32(len(v)))
	b.WriteArray(v)
}

// ReadString reads a varint-length-prefixed UTF-8 string.
func (b *Buffer) ReadString() (string, error) {
	raw, err := b.ReadByteArray()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// WriteString appends v as a varint-length-prefixed UTF-8 string.
func (b *Buffer) WriteString(v string) {
	b.WriteByteArray([]byte(v))
}
