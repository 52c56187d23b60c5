package wad

import (
	"cmp"
	_ "crypto/sha256" // registers digest.SHA256
	_ "crypto/sha512" // registers digest.SHA384 and digest.SHA512
	"slices"

	"github.com/opencontainers/go-digest"

	"github.com/node91/OpenWAD/internal/platform"
)

// EntryInfo describes one entry in an inspection report.
type EntryInfo struct {
	Index      int
	Name       string
	DataOffset uint32
	DataSize   uint32

	// Digest is the content digest of the payload. It is empty when
	// digests are disabled.
	Digest digest.Digest
}

// Overlap is a pair of entries whose payload ranges intersect. First is
// always the lower index.
type Overlap struct {
	First  int
	Second int
}

// Report summarizes the layout of an archive.
type Report struct {
	// Path is the file the archive was opened from, if any.
	Path string

	// Size is the size of the archive in bytes.
	Size int64

	// TableEnd is the offset of the first byte after the table.
	TableEnd int64

	// PayloadBytes is the sum of all entry sizes. Overlapping entries
	// are counted once per entry.
	PayloadBytes uint64

	// Unreferenced is the number of bytes after the table that no entry
	// covers.
	Unreferenced uint64

	// Entries lists every entry in table order.
	Entries []EntryInfo

	// Overlaps lists the entry pairs sharing payload bytes. Such archives
	// are valid and extract normally.
	Overlaps []Overlap
}

// InspectOption configures Inspect.
type InspectOption func(*inspectConfig)

type inspectConfig struct {
	algorithm digest.Algorithm
	digests   bool
}

// InspectWithAlgorithm sets the digest algorithm. The default is
// digest.Canonical (sha256).
func InspectWithAlgorithm(alg digest.Algorithm) InspectOption {
	return func(c *inspectConfig) {
		c.algorithm = alg
	}
}

// InspectWithDigests enables or disables payload digests. Without
// digests only the table is read.
func InspectWithDigests(enabled bool) InspectOption {
	return func(c *inspectConfig) {
		c.digests = enabled
	}
}

// Inspect builds a Report for a. Payload digests require reading every
// payload; a fault while doing so is returned as an error.
func Inspect(a *Archive, opts ...InspectOption) (*Report, error) {
	cfg := inspectConfig{algorithm: digest.Canonical, digests: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Report{
		Path:     a.Path(),
		Size:     a.Size(),
		TableEnd: a.TableEnd(),
		Entries:  make([]EntryInfo, 0, a.Len()),
	}
	err := platform.GuardFault(func() error {
		for _, e := range a.Entries() {
			info := EntryInfo{
				Index:      e.Index,
				Name:       e.Name,
				DataOffset: e.DataOffset,
				DataSize:   e.DataSize,
			}
			if cfg.digests {
				info.Digest = cfg.algorithm.FromBytes(a.Data(e))
			}
			r.PayloadBytes += uint64(e.DataSize)
			r.Entries = append(r.Entries, info)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var covered uint64
	r.Overlaps, covered = overlaps(r.Entries)
	if region := uint64(r.Size - r.TableEnd); region > covered {
		r.Unreferenced = region - covered
	}
	return r, nil
}

// overlaps returns the intersecting entry pairs and the number of bytes
// covered by at least one entry. Empty entries never overlap.
func overlaps(entries []EntryInfo) ([]Overlap, uint64) {
	order := make([]EntryInfo, 0, len(entries))
	for _, e := range entries {
		if e.DataSize > 0 {
			order = append(order, e)
		}
	}
	slices.SortFunc(order, func(a, b EntryInfo) int {
		return cmp.Or(cmp.Compare(a.DataOffset, b.DataOffset), cmp.Compare(a.Index, b.Index))
	})

	var (
		pairs   []Overlap
		active  []EntryInfo
		covered uint64
		reach   uint64
	)
	for _, e := range order {
		start := uint64(e.DataOffset)
		end := start + uint64(e.DataSize)

		active = slices.DeleteFunc(active, func(a EntryInfo) bool {
			return uint64(a.DataOffset)+uint64(a.DataSize) <= start
		})
		for _, a := range active {
			pairs = append(pairs, Overlap{First: min(a.Index, e.Index), Second: max(a.Index, e.Index)})
		}
		active = append(active, e)

		if end > reach {
			covered += end - max(start, reach)
			reach = end
		}
	}
	slices.SortFunc(pairs, func(a, b Overlap) int {
		return cmp.Or(cmp.Compare(a.First, b.First), cmp.Compare(a.Second, b.Second))
	})
	return pairs, covered
}
