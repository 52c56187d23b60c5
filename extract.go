package wad

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/node91/OpenWAD/internal/dircache"
	"github.com/node91/OpenWAD/internal/filesink"
)

// ExtractStats summarizes an extraction.
type ExtractStats struct {
	// Destination is the directory entries were written below.
	Destination string

	// Entries is the number of entries in the archive.
	Entries int

	// FileCount is the number of files written.
	FileCount int

	// TotalBytes is the number of payload bytes written.
	TotalBytes uint64

	// Failures collects per-entry errors. Failed entries are skipped.
	Failures *multierror.Error

	// Elapsed is the wall time of the operation.
	Elapsed time.Duration
}

// Failed returns the number of entries that could not be extracted.
func (s *ExtractStats) Failed() int {
	if s.Failures == nil {
		return 0
	}
	return len(s.Failures.Errors)
}

// Err returns the per-entry failures, or nil if every entry was written.
func (s *ExtractStats) Err() error {
	return s.Failures.ErrorOrNil()
}

// DefaultExtractDestination returns the directory an archive extracts to
// by default: its parent directory joined with its base name minus the
// extension.
func DefaultExtractDestination(archivePath string) string {
	base := filepath.Base(archivePath)
	return filepath.Join(filepath.Dir(archivePath), strings.TrimSuffix(base, filepath.Ext(base)))
}

// Extract validates the archive at archivePath and extracts it.
//
// The archive is fully validated before anything is written. Structural
// failures and storage failures end the operation and are reported to the
// console. Per-entry failures are recorded in the returned stats while the
// remaining entries are still extracted.
func Extract(ctx context.Context, archivePath string, opts ...ExtractOption) (*ExtractStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := newExtractConfig(opts)
	start := time.Now()

	cfg.console.Log("Reading WAD header")
	cfg.console.Progress(ProgressEvent{Stage: StageReading, Path: archivePath})

	readOpts := []ReadOption{ReadWithLogger(cfg.logger)}
	if cfg.codec != nil {
		readOpts = append(readOpts, ReadWithCodepage(cfg.codec))
	}
	a, err := Open(archivePath, readOpts...)
	if err != nil {
		cfg.console.Error(err)
		return nil, err
	}
	defer a.Close()

	if cfg.dest == "" {
		cfg.dest = DefaultExtractDestination(archivePath)
	}
	stats, err := a.extract(cfg)
	if stats != nil {
		stats.Elapsed = time.Since(start)
		cfg.console.Log("Time taken: " + formatSeconds(stats.Elapsed))
	}
	return stats, err
}

// ExtractTo extracts every entry of a into destDir.
//
// It behaves like Extract for an already open archive: an existing
// destination requires confirmation, entries are written in table order
// and per-entry failures are recorded without stopping the extraction.
func (a *Archive) ExtractTo(ctx context.Context, destDir string, opts ...ExtractOption) (*ExtractStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := newExtractConfig(opts)
	cfg.dest = destDir
	start := time.Now()
	stats, err := a.extract(cfg)
	if stats != nil {
		stats.Elapsed = time.Since(start)
	}
	return stats, err
}

func (a *Archive) extract(cfg extractConfig) (*ExtractStats, error) {
	console := cfg.console
	total := a.Len()
	console.Log(fmt.Sprintf("%d files found", total))

	root, err := prepareDestination(cfg)
	if err != nil {
		if errors.Is(err, ErrOverwriteDeclined) {
			console.Log("Extraction cancelled")
		} else {
			console.Error(err)
		}
		return nil, err
	}
	defer root.Close()

	console.Log("Extracting...")
	stats := &ExtractStats{Destination: cfg.dest, Entries: total}
	dirs := dircache.New(root, 0o750)
	sink := filesink.New(root, filesink.WithDirectWrites(cfg.directWrite))
	var batch batchLog

	for i, e := range a.Entries() {
		name, err := a.extractEntry(e, dirs, sink, cfg.dest)
		if err != nil {
			stats.Failures = multierror.Append(stats.Failures, err)
			batch.add(failureLine(err))
			cfg.log().Warn("entry skipped", "index", i, "name", e.Name, "error", err)
		} else {
			stats.FileCount++
			stats.TotalBytes += uint64(e.DataSize)
			batch.add("Extracting: " + name)
		}
		console.Progress(ProgressEvent{
			Stage:      StageExtracting,
			Path:       e.Name,
			FilesDone:  i + 1,
			FilesTotal: total,
		})
	}
	batch.flush(console)

	console.Progress(ProgressEvent{Stage: StageDone, FilesDone: total, FilesTotal: total})
	console.Log("Extraction complete")
	cfg.log().Debug("extraction finished",
		"destination", cfg.dest, "files", stats.FileCount, "failed", stats.Failed(), "dirs", dirs.Len())
	return stats, nil
}

// prepareDestination asks for confirmation if the destination exists,
// creates it otherwise, and opens it as a root.
func prepareDestination(cfg extractConfig) (*os.Root, error) {
	info, err := os.Stat(cfg.dest)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, &StorageError{Op: "open destination", Path: cfg.dest, Err: notDirError(cfg.dest)}
		}
		if !cfg.op.SkipOverwriteConfirm && !cfg.console.ConfirmOverwrite(cfg.dest) {
			return nil, ErrOverwriteDeclined
		}
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(cfg.dest, 0o750); err != nil {
			return nil, &StorageError{Op: "create destination", Path: cfg.dest, Err: err}
		}
	default:
		return nil, &StorageError{Op: "open destination", Path: cfg.dest, Err: err}
	}

	root, err := os.OpenRoot(cfg.dest)
	if err != nil {
		return nil, &StorageError{Op: "open destination", Path: cfg.dest, Err: err}
	}
	return root, nil
}

// extractEntry writes one entry and returns its normalized name.
func (a *Archive) extractEntry(e Entry, dirs *dircache.Cache, sink *filesink.Sink, dest string) (string, error) {
	name, ok := EntryPath(e.Name)
	if !ok {
		return e.Name, &EntryWriteError{
			Name: e.Name,
			Err:  &fs.PathError{Op: "extract", Path: e.Name, Err: fs.ErrInvalid},
		}
	}
	if err := dirs.Ensure(path.Dir(name)); err != nil {
		return name, &DirectoryCreateError{Path: filepath.Join(dest, filepath.FromSlash(path.Dir(name))), Err: err}
	}
	if err := sink.WriteFile(filepath.FromSlash(name), a.Data(e)); err != nil {
		return name, &EntryWriteError{Name: name, Err: err}
	}
	return name, nil
}

// EntryPath converts an archive entry name to a slash-separated relative
// path. Both backslashes and forward slashes are treated as separators.
// It reports false for names that are empty, absolute or that would
// leave the destination directory.
func EntryPath(name string) (string, bool) {
	p := strings.ReplaceAll(name, `\`, "/")
	if p == "" || strings.HasPrefix(p, "/") {
		return p, false
	}
	p = path.Clean(p)
	if !fs.ValidPath(p) || p == "." {
		return p, false
	}
	return p, true
}

func failureLine(err error) string {
	var dirErr *DirectoryCreateError
	if errors.As(err, &dirErr) {
		return "Failed to create directory: " + dirErr.Path
	}
	return "Failed to extract: " + err.Error()
}

func notDirError(p string) error {
	return &fs.PathError{Op: "open", Path: p, Err: errors.New("not a directory")}
}

// formatSeconds formats d as seconds with three decimals.
func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f seconds", d.Seconds())
}
