// Package testutil provides helpers for building source trees and raw
// archive images in tests.
package testutil

import (
	"encoding/binary"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// RawEntry is a table entry written verbatim by BuildRaw.
type RawEntry struct {
	Name       []byte
	DataOffset uint32
	DataSize   uint32
}

// RawArchive describes an archive image byte for byte, including
// inconsistent ones.
type RawArchive struct {
	// Count is written to the header. When nil, len(Entries) is used.
	Count *uint32

	Entries []RawEntry

	// Payload is appended after the table.
	Payload []byte
}

// BuildRaw encodes r without any validation.
func BuildRaw(r RawArchive) []byte {
	count := uint32(len(r.Entries))
	if r.Count != nil {
		count = *r.Count
	}
	out := binary.LittleEndian.AppendUint32(nil, count)
	for _, e := range r.Entries {
		var name [128]byte
		copy(name[:], e.Name)
		out = append(out, name[:]...)
		out = binary.LittleEndian.AppendUint32(out, e.DataOffset)
		out = binary.LittleEndian.AppendUint32(out, e.DataSize)
	}
	return append(out, r.Payload...)
}

// Contiguous returns entries for payloads laid out back to back after a
// table of len(names) entries, the way a writer would produce them.
func Contiguous(names []string, payloads [][]byte) RawArchive {
	offset := uint32(4 + 136*len(names))
	r := RawArchive{}
	for i, name := range names {
		r.Entries = append(r.Entries, RawEntry{
			Name:       []byte(name),
			DataOffset: offset,
			DataSize:   uint32(len(payloads[i])),
		})
		r.Payload = append(r.Payload, payloads[i]...)
		offset += uint32(len(payloads[i]))
	}
	return r
}

// Uint32 returns a pointer to v.
func Uint32(v uint32) *uint32 {
	return &v
}

// WriteTree creates files below dir. Keys are slash-separated paths.
func WriteTree(t testing.TB, dir string, files map[string][]byte) {
	t.Helper()
	for name, data := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, data, 0o644))
	}
}

// ReadTree returns every regular file below dir keyed by slash-separated
// relative path.
func ReadTree(t testing.TB, dir string) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = data
		return nil
	})
	require.NoError(t, err)
	return out
}
