package wad

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/node91/OpenWAD/internal/codepage"
	"github.com/node91/OpenWAD/internal/layout"
	"github.com/node91/OpenWAD/internal/platform"
)

// archivePerm is the mode of archives written by WriteFile.
const archivePerm = 0o644

// Item is a file to be stored in an archive.
type Item struct {
	// SourcePath is the file the data was loaded from. It is informational.
	SourcePath string

	// Name is the archive-internal name, using backslash separators.
	Name string

	// Data is the payload stored verbatim.
	Data []byte
}

// PlanEntry is the table record computed for one item.
type PlanEntry struct {
	Name       string
	DataOffset uint32
	DataSize   uint32

	// Truncated is true when the encoded name was cut to fit the name field.
	Truncated bool
}

// Plan is the complete layout of an archive computed before any byte is
// written: header and table size, total size and every entry's offset.
type Plan struct {
	// TableEnd is the size of the header plus the table, which is also the
	// offset of the first payload.
	TableEnd uint64

	// TotalSize is the exact size of the archive.
	TotalSize uint64

	// Entries holds one record per item, in item order.
	Entries []PlanEntry

	table []layout.Entry
	items []Item
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WriterWithCodepage sets the codepage used to encode entry names.
func WriterWithCodepage(c *Codepage) WriterOption {
	return func(w *Writer) {
		w.codec = c
	}
}

// WriterWithLogger sets the logger for diagnostic output.
func WriterWithLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = logger
	}
}

// Writer serializes items into archives. The output depends only on the
// items and their order: there are no timestamps, padding or gaps.
type Writer struct {
	codec  *Codepage
	logger *slog.Logger
}

// NewWriter creates a Writer with the given options.
func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{}
	for _, opt := range opts {
		opt(w)
	}
	if w.codec == nil {
		w.codec = codepage.Default()
	}
	return w
}

// log returns the logger, falling back to a discard logger if nil.
func (w *Writer) log() *slog.Logger {
	if w.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.logger
}

// Plan computes the archive layout for items.
//
// Payloads are laid out back to back in item order starting at the end of
// the table. Names are encoded with the writer's codepage and silently cut
// to 127 bytes. Plan fails with ErrNameEncoding if a name cannot be
// encoded and with ErrSizeOverflow if the archive would not fit the
// format's 32-bit fields.
func (w *Writer) Plan(items []Item) (*Plan, error) {
	if uint64(len(items)) > math.MaxUint32 {
		return nil, ErrSizeOverflow
	}
	tableEnd := layout.TableEnd(uint32(len(items)))
	total := tableEnd
	for _, it := range items {
		total += uint64(len(it.Data))
		if total > math.MaxUint32 {
			return nil, fmt.Errorf("%w: %d items need more than %d bytes", ErrSizeOverflow, len(items), uint64(math.MaxUint32))
		}
	}

	p := &Plan{
		TableEnd:  tableEnd,
		TotalSize: total,
		Entries:   make([]PlanEntry, len(items)),
		table:     make([]layout.Entry, len(items)),
		items:     items,
	}
	offset := tableEnd
	for i, it := range items {
		raw, err := w.codec.EncodeName(it.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNameEncoding, err)
		}
		e := &p.table[i]
		truncated := e.SetName(raw)
		if truncated {
			w.log().Debug("name truncated", "name", it.Name, "encoded_len", len(raw), "stored_len", layout.MaxNameLen)
		}
		e.DataOffset = uint32(offset)
		e.DataSize = uint32(len(it.Data))
		p.Entries[i] = PlanEntry{
			Name:       it.Name,
			DataOffset: e.DataOffset,
			DataSize:   e.DataSize,
			Truncated:  truncated,
		}
		offset += uint64(e.DataSize)
	}
	return p, nil
}

// Encode writes the archive into dst, which must be exactly TotalSize
// bytes. The header and table are written first, then the payloads; fn,
// if non-nil, is called after each payload is copied.
func (p *Plan) Encode(dst []byte, fn func(i int)) error {
	if uint64(len(dst)) != p.TotalSize {
		return fmt.Errorf("wad: output is %d bytes, plan needs %d", len(dst), p.TotalSize)
	}
	hdr := layout.Header{EntryCount: uint32(len(p.table))}
	if err := hdr.Put(dst); err != nil {
		return err
	}
	for i := range p.table {
		if err := p.table[i].Put(dst[layout.TableEnd(uint32(i)):]); err != nil {
			return err
		}
	}
	for i := range p.table {
		e := &p.table[i]
		copy(dst[e.DataOffset:e.End()], p.items[i].Data)
		if fn != nil {
			fn(i)
		}
	}
	return nil
}

// Bytes returns the complete archive image for items.
func (w *Writer) Bytes(items []Item) ([]byte, error) {
	p, err := w.Plan(items)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, p.TotalSize)
	if err := p.Encode(buf, nil); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteFile writes the archive for items to path.
//
// The layout is planned first, so size errors are reported before any
// storage is touched. The archive is written into a temporary file in the
// destination directory that is sized to the exact total up front and
// memory-mapped, then renamed over path. An existing file at path is
// replaced, never merged, and a failed write leaves it untouched. The
// archive is world-readable (0644) regardless of the mode of a replaced
// file.
func (w *Writer) WriteFile(path string, items []Item, fn func(i int)) (*Plan, error) {
	p, err := w.Plan(items)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".wad-*.tmp")
	if err != nil {
		return nil, &StorageError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	w.log().Debug("writing archive", "path", path, "temp", tmpName, "entries", len(items), "size", p.TotalSize)

	m, err := platform.CreateMapped(tmp, int64(p.TotalSize))
	if err != nil {
		_ = tmp.Close()        //nolint:errcheck // best-effort cleanup
		_ = os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return nil, &StorageError{Op: "size", Path: path, Err: err}
	}

	err = platform.GuardFault(func() error {
		if err := p.Encode(m.Bytes(), fn); err != nil {
			return err
		}
		return m.Sync()
	})
	if cerr := m.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return nil, &StorageError{Op: "write", Path: path, Err: err}
	}

	if err := os.Chmod(tmpName, archivePerm); err != nil {
		_ = os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return nil, &StorageError{Op: "chmod", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return nil, &StorageError{Op: "rename", Path: path, Err: err}
	}
	return p, nil
}

