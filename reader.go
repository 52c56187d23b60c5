package wad

import (
	"fmt"
	"iter"
	"log/slog"

	"github.com/node91/OpenWAD/internal/codepage"
	"github.com/node91/OpenWAD/internal/layout"
	"github.com/node91/OpenWAD/internal/platform"
)

// Format constants re-exported from internal/layout.
const (
	// HeaderSize is the size in bytes of the archive header.
	HeaderSize = layout.HeaderSize

	// EntrySize is the size in bytes of one table entry.
	EntrySize = layout.EntrySize

	// NameSize is the capacity of an entry's name field.
	NameSize = layout.NameSize
)

// Codepage encodes and decodes entry names.
type Codepage = codepage.Codec

// LookupCodepage returns the codepage for an IANA name such as
// "windows-1252". An empty name returns the default.
func LookupCodepage(name string) (*Codepage, error) {
	return codepage.Lookup(name)
}

// Entry describes one file stored in an archive.
type Entry struct {
	// Index is the position of the entry in the table.
	Index int

	// Name is the decoded entry name. Separators are as stored in the
	// archive, typically backslashes.
	Name string

	// RawName is the undecoded name field up to its terminator. It aliases
	// the archive buffer and is valid until the archive is closed.
	RawName []byte

	// DataOffset is the absolute offset of the payload in the archive.
	DataOffset uint32

	// DataSize is the payload length in bytes.
	DataSize uint32
}

// ReadOption configures how an archive is read.
type ReadOption func(*readConfig)

type readConfig struct {
	codec  *Codepage
	logger *slog.Logger
}

// ReadWithCodepage sets the codepage used to decode entry names.
// The default is Windows-1252.
func ReadWithCodepage(c *Codepage) ReadOption {
	return func(cfg *readConfig) {
		cfg.codec = c
	}
}

// ReadWithLogger sets the logger for diagnostic output.
func ReadWithLogger(logger *slog.Logger) ReadOption {
	return func(cfg *readConfig) {
		cfg.logger = logger
	}
}

// Archive is a validated read session over an archive image.
//
// Entries are decoded from the table on demand and payloads are returned
// as sub-slices of the backing buffer. Nothing is copied. An Archive is
// not safe for concurrent use with Close.
type Archive struct {
	data     []byte
	count    uint32
	tableEnd uint64
	codec    *Codepage
	mapping  *platform.Mapping
	path     string
	logger   *slog.Logger
}

// Open memory-maps the file at path and validates it as an archive.
// The caller must Close the returned archive.
func Open(path string, opts ...ReadOption) (*Archive, error) {
	m, err := platform.OpenMapped(path)
	if err != nil {
		return nil, &StorageError{Op: "map", Path: path, Err: err}
	}
	a, err := Parse(m.Bytes(), opts...)
	if err != nil {
		_ = m.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	a.mapping = m
	a.path = path
	return a, nil
}

// Parse validates data as an archive image. The returned archive keeps
// a reference to data; the caller must not modify it while the archive
// is in use.
//
// Validation fails fast on the first violation:
//   - the image must hold a header (ErrTooSmall)
//   - the header and table must fit in the image (ErrTableExceedsFile)
//   - every payload must start at or after the end of the table and end
//     at or before the end of the image (*CorruptEntryError)
//
// All bounds are computed in 64 bits, so hostile counts, offsets and
// sizes cannot wrap around.
func Parse(data []byte, opts ...ReadOption) (*Archive, error) {
	cfg := readConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.codec == nil {
		cfg.codec = codepage.Default()
	}

	a := &Archive{data: data, codec: cfg.codec, logger: cfg.logger}
	if err := a.validate(); err != nil {
		return nil, err
	}
	a.log().Debug("archive validated", "entries", a.count, "size", len(data))
	return a, nil
}

func (a *Archive) validate() error {
	size := uint64(len(a.data))
	hdr, err := layout.ReadHeader(a.data)
	if err != nil {
		return ErrTooSmall
	}
	tableEnd := layout.TableEnd(hdr.EntryCount)
	if tableEnd > size {
		return ErrTableExceedsFile
	}
	for i := range hdr.EntryCount {
		e, err := layout.EntryAt(a.data, i)
		if err != nil {
			return ErrTableExceedsFile
		}
		if e.End() > size || uint64(e.DataOffset) < tableEnd {
			return &CorruptEntryError{Index: int(i), DataOffset: e.DataOffset, DataSize: e.DataSize}
		}
	}
	a.count = hdr.EntryCount
	a.tableEnd = tableEnd
	return nil
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Path returns the file the archive was opened from, or "" for Parse.
func (a *Archive) Path() string {
	return a.path
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	return int(a.count)
}

// Size returns the size of the archive image in bytes.
func (a *Archive) Size() int64 {
	return int64(len(a.data))
}

// TableEnd returns the offset of the first byte after the header and table.
func (a *Archive) TableEnd() int64 {
	return int64(a.tableEnd)
}

// Codepage returns the codepage used to decode names.
func (a *Archive) Codepage() *Codepage {
	return a.codec
}

// Entry decodes the i-th table entry. It panics if i is out of range.
func (a *Archive) Entry(i int) Entry {
	if i < 0 || i >= int(a.count) {
		panic(fmt.Sprintf("wad: entry index %d out of range [0,%d)", i, a.count))
	}
	e, err := layout.EntryAt(a.data, uint32(i))
	if err != nil {
		// Unreachable for a validated archive.
		panic(err)
	}
	raw, _ := layout.RawNameAt(a.data, uint32(i)) //nolint:errcheck // bounds checked by EntryAt
	return Entry{
		Index:      i,
		Name:       a.codec.DecodeName(raw),
		RawName:    raw,
		DataOffset: e.DataOffset,
		DataSize:   e.DataSize,
	}
}

// Entries returns an iterator over all entries in table order.
func (a *Archive) Entries() iter.Seq2[int, Entry] {
	return func(yield func(int, Entry) bool) {
		for i := range int(a.count) {
			if !yield(i, a.Entry(i)) {
				return
			}
		}
	}
}

// Data returns the payload of e as a view into the archive buffer. The
// slice is valid until the archive is closed and must not be modified.
func (a *Archive) Data(e Entry) []byte {
	start := uint64(e.DataOffset)
	end := start + uint64(e.DataSize)
	return a.data[start:end:end]
}

// Close releases the backing mapping. Entries and payload slices obtained
// from the archive must not be used afterwards.
func (a *Archive) Close() error {
	a.data = nil
	a.count = 0
	if a.mapping == nil {
		return nil
	}
	err := a.mapping.Close()
	a.mapping = nil
	return err
}
