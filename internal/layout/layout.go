// Package layout defines the on-disk byte layout of a WAD archive.
//
// An archive is a 4-byte header followed by a contiguous table of
// fixed-size entries and then the payload region:
//
//	Header      4 bytes    entry count (uint32, little-endian)
//	Entry[N]    136 bytes  name[128], data offset (uint32), data size (uint32)
//	Payload     variable   concatenated file contents
//
// The format has no magic number and no version field. All access goes
// through explicit decode/encode functions over byte slices; records are
// never aliased over untrusted memory.
package layout

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	// HeaderSize is the encoded size of Header.
	HeaderSize = 4

	// NameSize is the capacity of the name field of an Entry.
	NameSize = 128

	// EntrySize is the encoded size of Entry.
	EntrySize = NameSize + 4 + 4

	// MaxNameLen is the longest name that is stored without truncation.
	// One byte of the name field is reserved for the terminator.
	MaxNameLen = NameSize - 1
)

// ErrShortBuffer is returned when a slice is too small to hold a record.
var ErrShortBuffer = errors.New("layout: short buffer")

// Header is the archive header.
type Header struct {
	EntryCount uint32
}

// ReadHeader decodes a Header from the start of b.
func ReadHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortBuffer
	}
	return Header{EntryCount: binary.LittleEndian.Uint32(b)}, nil
}

// Put encodes h into the start of b.
func (h Header) Put(b []byte) error {
	if len(b) < HeaderSize {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(b, h.EntryCount)
	return nil
}

// Entry is one table record.
type Entry struct {
	Name       [NameSize]byte
	DataOffset uint32
	DataSize   uint32
}

// ReadEntry decodes an Entry from the start of b.
func ReadEntry(b []byte) (Entry, error) {
	if len(b) < EntrySize {
		return Entry{}, ErrShortBuffer
	}
	var e Entry
	copy(e.Name[:], b[:NameSize])
	e.DataOffset = binary.LittleEndian.Uint32(b[NameSize:])
	e.DataSize = binary.LittleEndian.Uint32(b[NameSize+4:])
	return e, nil
}

// Put encodes e into the start of b.
func (e *Entry) Put(b []byte) error {
	if len(b) < EntrySize {
		return ErrShortBuffer
	}
	copy(b[:NameSize], e.Name[:])
	binary.LittleEndian.PutUint32(b[NameSize:], e.DataOffset)
	binary.LittleEndian.PutUint32(b[NameSize+4:], e.DataSize)
	return nil
}

// End returns DataOffset+DataSize without wrapping.
func (e *Entry) End() uint64 {
	return uint64(e.DataOffset) + uint64(e.DataSize)
}

// NameBytes returns the name up to its first NUL byte, or the full field
// when no NUL is present. The result aliases e.Name.
func (e *Entry) NameBytes() []byte {
	return TrimName(e.Name[:])
}

// SetName stores raw into the name field, NUL padding the remainder.
// Names longer than MaxNameLen are cut to MaxNameLen bytes and truncated
// reports true.
func (e *Entry) SetName(raw []byte) (truncated bool) {
	clear(e.Name[:])
	if len(raw) > MaxNameLen {
		raw = raw[:MaxNameLen]
		truncated = true
	}
	copy(e.Name[:], raw)
	return truncated
}

// TrimName returns field up to its first NUL byte.
func TrimName(field []byte) []byte {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		return field[:i]
	}
	return field
}

// TableEnd returns the offset of the first byte after the header and a
// table of count entries. The result cannot overflow for any uint32 count.
func TableEnd(count uint32) uint64 {
	return HeaderSize + uint64(count)*EntrySize
}

// EntryAt decodes the i-th table entry from an archive image b.
func EntryAt(b []byte, i uint32) (Entry, error) {
	off := TableEnd(i)
	if off+EntrySize > uint64(len(b)) {
		return Entry{}, ErrShortBuffer
	}
	return ReadEntry(b[off : off+EntrySize])
}

// RawNameAt returns the trimmed name field of the i-th entry as a view
// into b, without copying.
func RawNameAt(b []byte, i uint32) ([]byte, error) {
	off := TableEnd(i)
	if off+EntrySize > uint64(len(b)) {
		return nil, ErrShortBuffer
	}
	return TrimName(b[off : off+NameSize]), nil
}
