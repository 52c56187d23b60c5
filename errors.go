package wad

import (
	"errors"
	"fmt"
)

// Structural validation errors returned when reading an archive.
var (
	// ErrTooSmall is returned when the file cannot hold an archive header.
	ErrTooSmall = errors.New("wad: file too small for header")

	// ErrTableExceedsFile is returned when the header declares more table
	// entries than the file can hold.
	ErrTableExceedsFile = errors.New("wad: header/table exceeds file size")

	// ErrCorruptEntry is matched by every *CorruptEntryError.
	ErrCorruptEntry = errors.New("wad: corrupt offsets or sizes")
)

// Operation errors.
var (
	// ErrStorageOpen is matched by every *StorageError.
	ErrStorageOpen = errors.New("wad: storage open failed")

	// ErrDirectoryCreate is matched by every *DirectoryCreateError.
	ErrDirectoryCreate = errors.New("wad: directory create failed")

	// ErrOverwriteDeclined is returned when the overwrite confirmation for
	// an existing destination is declined.
	ErrOverwriteDeclined = errors.New("wad: overwrite declined")

	// ErrSizeOverflow is returned when an archive would exceed the 32-bit
	// offset and size fields of the format.
	ErrSizeOverflow = errors.New("wad: archive exceeds 32-bit size limit")

	// ErrTooManyFiles is returned when the file count exceeds the configured limit.
	ErrTooManyFiles = errors.New("wad: too many files")

	// ErrNameEncoding is returned when an entry name cannot be encoded in
	// the archive code page.
	ErrNameEncoding = errors.New("wad: name not representable in code page")
)

// Informational outcomes. These are logged, not reported as failures.
var (
	// ErrNoFiles is returned when a source directory contains no regular files.
	ErrNoFiles = errors.New("wad: folder contains no files")

	// ErrNotAnArchive is returned when a file named for extraction does not
	// carry the archive extension.
	ErrNotAnArchive = errors.New("wad: not an archive")

	// ErrUnsupportedDrop is returned for paths that are neither a directory
	// nor an archive.
	ErrUnsupportedDrop = errors.New("wad: unsupported path")
)

// IsInformational reports whether err is an outcome that is logged but
// does not count as a failed operation.
func IsInformational(err error) bool {
	return errors.Is(err, ErrNoFiles) ||
		errors.Is(err, ErrNotAnArchive) ||
		errors.Is(err, ErrUnsupportedDrop)
}

// StorageError records a failure to open, map, create or size a file.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("wad: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageOpen, e.Err}
}

// CorruptEntryError reports the first table entry whose payload range
// falls outside the file or overlaps the header and table.
type CorruptEntryError struct {
	Index      int
	DataOffset uint32
	DataSize   uint32
}

func (e *CorruptEntryError) Error() string {
	return fmt.Sprintf("wad: corrupt entry %d (offset %d, size %d)", e.Index, e.DataOffset, e.DataSize)
}

func (e *CorruptEntryError) Unwrap() error {
	return ErrCorruptEntry
}

// DirectoryCreateError records a parent directory that could not be
// created during extraction. The affected entry is skipped.
type DirectoryCreateError struct {
	Path string
	Err  error
}

func (e *DirectoryCreateError) Error() string {
	return fmt.Sprintf("wad: failed to create directory %s: %v", e.Path, e.Err)
}

func (e *DirectoryCreateError) Unwrap() []error {
	return []error{ErrDirectoryCreate, e.Err}
}

// EntryWriteError records an entry whose file could not be written during
// extraction. The affected entry is skipped.
type EntryWriteError struct {
	Name string
	Err  error
}

func (e *EntryWriteError) Error() string {
	return fmt.Sprintf("wad: failed to write %s: %v", e.Name, e.Err)
}

func (e *EntryWriteError) Unwrap() error {
	return e.Err
}
