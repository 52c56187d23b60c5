// Package wad reads and writes WAD archives: flat, uncompressed
// containers of named files used by legacy game engines.
//
// An archive is a 4-byte little-endian entry count, followed by a table of
// 136-byte entries and then the payload bytes:
//
//	offset  size  field
//	0       4     entry count (uint32 LE)
//	4+136i  128   name, NUL padded, legacy code page
//	+128    4     payload offset from start of file (uint32 LE)
//	+132    4     payload size (uint32 LE)
//
// There is no magic number or checksum. Names use backslash separators
// and are at most 127 bytes.
//
// # Reading
//
// [Open] memory-maps a file and validates the header and every entry
// before returning. Payloads returned by [Archive.Data] are sub-slices of
// the mapping and stay valid until [Archive.Close]:
//
//	a, err := wad.Open("pak0.wad")
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//	for _, e := range a.Entries() {
//	    fmt.Println(e.Name, len(a.Data(e)))
//	}
//
// [Parse] validates an in-memory image the same way. [Inspect] reports
// payload digests, gaps and overlapping entries.
//
// # Writing
//
// [Writer] lays out items in the order given and writes the archive into
// a memory-mapped temporary file that replaces the destination on
// success. Archives that would not fit the 32-bit fields fail with
// [ErrSizeOverflow].
//
// # Operations
//
// [Pack] stores a directory tree and [Extract] restores one. Both report
// to a [Console] and ask it before replacing an existing destination.
// A [Dispatcher] routes a list of paths to the right operation, packing
// directories and extracting archives, optionally in parallel.
package wad
