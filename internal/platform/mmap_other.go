//go:build !unix

package platform

import (
	"fmt"
	"io"
	"os"
)

// Mapping holds a whole file in memory on platforms without mmap support.
// Payloads are still sub-slices of one contiguous buffer.
type Mapping struct {
	f        *os.File
	data     []byte
	writable bool
}

// OpenMapped reads the entire contents of path into memory.
func OpenMapped(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	if !info.Mode().IsRegular() {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("%s: not a regular file", path)
	}
	size, err := mappableSize(info.Size())
	if err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	return &Mapping{f: f, data: data}, nil
}

// CreateMapped sizes f to exactly size bytes and returns an in-memory
// buffer that Sync writes back. On success the mapping takes ownership of f.
func CreateMapped(f *os.File, size int64) (*Mapping, error) {
	n, err := mappableSize(size)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		return nil, fmt.Errorf("truncating %s to %d bytes: %w", f.Name(), size, err)
	}
	return &Mapping{f: f, data: make([]byte, n), writable: true}, nil
}

// Bytes returns the buffer. It is only valid until Close.
func (m *Mapping) Bytes() []byte {
	return m.data
}

// Sync writes a writable buffer to the file.
func (m *Mapping) Sync() error {
	if !m.writable {
		return nil
	}
	if _, err := m.f.WriteAt(m.data, 0); err != nil {
		return err
	}
	return m.f.Sync()
}

// Close releases the buffer and closes the file.
func (m *Mapping) Close() error {
	m.data = nil
	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	return err
}
