//go:build unix

package platform

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Mapping is a memory-mapped view of a whole file.
type Mapping struct {
	f        *os.File
	data     []byte
	writable bool
}

// OpenMapped opens path read-only and maps its entire contents.
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
	m := &Mapping{f: f}
	if size == 0 {
		return m, nil
	}
	m.data, err = unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("memory-mapping %s: %w", path, err)
	}
	return m, nil
}

// CreateMapped sizes f to exactly size bytes and maps it read-write.
// On success the mapping takes ownership of f.
func CreateMapped(f *os.File, size int64) (*Mapping, error) {
	n, err := mappableSize(size)
	if err != nil {
		return nil, err
	}
	if err := unix.Ftruncate(int(f.Fd()), size); err != nil {
		return nil, fmt.Errorf("truncating %s to %d bytes: %w", f.Name(), size, err)
	}
	m := &Mapping{f: f, writable: true}
	if n == 0 {
		return m, nil
	}
	m.data, err = unix.Mmap(int(f.Fd()), 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("memory-mapping %s: %w", f.Name(), err)
	}
	return m, nil
}

// Bytes returns the mapped region. It is only valid until Close.
func (m *Mapping) Bytes() []byte {
	return m.data
}

// Sync flushes a writable mapping to the file.
func (m *Mapping) Sync() error {
	if !m.writable || len(m.data) == 0 {
		return nil
	}
	return unix.Msync(m.data, unix.MS_SYNC)
}

// Close unmaps the region and closes the file.
func (m *Mapping) Close() error {
	var err error
	if m.data != nil {
		err = unix.Munmap(m.data)
		m.data = nil
	}
	if m.f != nil {
		if cerr := m.f.Close(); err == nil {
			err = cerr
		}
		m.f = nil
	}
	return err
}
