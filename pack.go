package wad

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/node91/OpenWAD/internal/platform"
)

// PackStats summarizes a pack operation.
type PackStats struct {
	// Archive is the path of the written archive.
	Archive string

	// FileCount is the number of entries stored.
	FileCount int

	// Skipped is the number of files left out because their names could
	// not be encoded.
	Skipped int

	// Truncated is the number of entries whose names were cut to fit.
	Truncated int

	// TotalBytes is the number of payload bytes stored.
	TotalBytes uint64

	// ArchiveSize is the size of the archive file.
	ArchiveSize uint64

	// Elapsed is the wall time of the operation.
	Elapsed time.Duration
}

// DefaultPackDestination returns the archive path for a source directory:
// the directory path with its extension replaced by ext.
func DefaultPackDestination(srcDir, ext string) string {
	p, err := filepath.Abs(srcDir)
	if err != nil {
		p = filepath.Clean(srcDir)
	}
	base := filepath.Base(p)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		// Dot-files such as ".config" have no extension.
		stem = base
	}
	return filepath.Join(filepath.Dir(p), stem+ext)
}

// Pack stores every regular file below srcDir in a new archive.
//
// Files are enumerated in lexical order and loaded into memory, then
// written with a Writer. Directories are not stored; they are implied by
// entry names. Symbolic links are not followed. Files whose names cannot
// be encoded in the codepage are skipped with a warning. A directory
// without files yields ErrNoFiles and no archive.
func Pack(ctx context.Context, srcDir string, opts ...PackOption) (*PackStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := newPackConfig(opts)
	console := cfg.console
	start := time.Now()

	console.Log("Reading folder contents...")
	console.Progress(ProgressEvent{Stage: StageCollecting, Path: srcDir})

	for _, pattern := range cfg.exclude {
		if !doublestar.ValidatePattern(pattern) {
			err := fmt.Errorf("%w: %q", doublestar.ErrBadPattern, pattern)
			console.Error(err)
			return nil, err
		}
	}

	root, err := openSourceRoot(srcDir)
	if err != nil {
		console.Error(err)
		return nil, err
	}
	defer root.Close()

	paths, err := cfg.enumerate(root)
	if err != nil {
		if !errors.Is(err, ErrTooManyFiles) {
			err = &StorageError{Op: "walk", Path: srcDir, Err: err}
		}
		console.Error(err)
		return nil, err
	}
	if len(paths) == 0 {
		console.Log("Folder contains no files.")
		return &PackStats{}, ErrNoFiles
	}
	console.Log(fmt.Sprintf("%d files found", len(paths)))

	stats := &PackStats{}
	items, err := cfg.load(root, srcDir, paths, stats)
	if err != nil {
		console.Error(err)
		return nil, err
	}
	console.Progress(ProgressEvent{Stage: StageCollecting, FilesDone: len(paths), FilesTotal: len(paths)})
	console.Log("Collecting files completed")
	if len(items) == 0 {
		console.Log("Folder contains no files.")
		return stats, ErrNoFiles
	}

	dest := cfg.dest
	if dest == "" {
		dest = DefaultPackDestination(srcDir, cfg.op.extension())
	}
	if err := confirmArchiveOverwrite(dest, cfg.op, console); err != nil {
		if errors.Is(err, ErrOverwriteDeclined) {
			console.Log("Cancelled creating WAD")
		} else {
			console.Error(err)
		}
		return nil, err
	}

	console.Progress(ProgressEvent{Stage: StagePacking, FilesTotal: len(items)})
	console.Log("Packing...")

	var batch batchLog
	w := NewWriter(WriterWithCodepage(cfg.codec), WriterWithLogger(cfg.logger))
	plan, err := w.WriteFile(dest, items, func(i int) {
		batch.add("Packing: " + items[i].Name)
		console.Progress(ProgressEvent{
			Stage:      StagePacking,
			Path:       items[i].Name,
			FilesDone:  i + 1,
			FilesTotal: len(items),
		})
	})
	if err != nil {
		console.Error(err)
		return nil, err
	}
	batch.flush(console)

	stats.Archive = dest
	stats.FileCount = len(items)
	stats.ArchiveSize = plan.TotalSize
	stats.TotalBytes = plan.TotalSize - plan.TableEnd
	for _, e := range plan.Entries {
		if e.Truncated {
			stats.Truncated++
		}
	}
	stats.Elapsed = time.Since(start)

	console.Progress(ProgressEvent{Stage: StageDone, FilesDone: len(items), FilesTotal: len(items)})
	console.Log("Packing complete.")
	console.Log("Time taken: " + formatSeconds(stats.Elapsed))
	cfg.log().Debug("pack finished", "archive", dest, "files", stats.FileCount,
		"skipped", stats.Skipped, "truncated", stats.Truncated, "size", stats.ArchiveSize)
	return stats, nil
}

func openSourceRoot(srcDir string) (*os.Root, error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return nil, &StorageError{Op: "open source", Path: srcDir, Err: err}
	}
	if !info.IsDir() {
		return nil, &StorageError{Op: "open source", Path: srcDir, Err: notDirError(srcDir)}
	}
	root, err := os.OpenRoot(srcDir)
	if err != nil {
		return nil, &StorageError{Op: "open source", Path: srcDir, Err: err}
	}
	return root, nil
}

// enumerate returns the slash-separated paths of all regular files below
// root in lexical order.
func (c *packConfig) enumerate(root *os.Root) ([]string, error) {
	var paths []string
	err := fs.WalkDir(root.FS(), ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == "." {
			return nil
		}
		if c.excluded(p) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			c.log().Debug("skipped non-regular file", "path", p, "type", d.Type().String())
			return nil
		}
		if c.maxFiles > 0 && len(paths) >= c.maxFiles {
			return ErrTooManyFiles
		}
		paths = append(paths, p)
		return nil
	})
	return paths, err
}

func (c *packConfig) excluded(p string) bool {
	for _, pattern := range c.exclude {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

// load reads every file into an Item. Files whose names cannot be encoded
// are skipped and counted in stats.
func (c *packConfig) load(root *os.Root, srcDir string, paths []string, stats *PackStats) ([]Item, error) {
	items := make([]Item, 0, len(paths))
	for i, p := range paths {
		c.console.Progress(ProgressEvent{
			Stage:      StageCollecting,
			Path:       p,
			FilesDone:  i + 1,
			FilesTotal: len(paths),
		})

		name := ArchiveName(p)
		if _, err := c.codec.EncodeName(name); err != nil {
			c.console.Log("Skipping unreadable path: " + filepath.Join(srcDir, filepath.FromSlash(p)))
			c.log().Warn("skipped file", "path", p, "codepage", c.codec.Name(), "error", err)
			stats.Skipped++
			continue
		}

		data, err := readSource(root, filepath.FromSlash(p))
		if errors.Is(err, platform.ErrSymlink) {
			c.log().Debug("skipped symlink", "path", p)
			continue
		}
		if err != nil {
			return nil, &StorageError{Op: "read", Path: filepath.Join(srcDir, filepath.FromSlash(p)), Err: err}
		}
		items = append(items, Item{
			SourcePath: filepath.Join(srcDir, filepath.FromSlash(p)),
			Name:       name,
			Data:       data,
		})
	}
	return items, nil
}

// ArchiveName converts a slash-separated relative path to the archive's
// backslash-separated form.
func ArchiveName(rel string) string {
	return strings.ReplaceAll(rel, "/", `\`)
}

func readSource(root *os.Root, name string) ([]byte, error) {
	f, err := platform.OpenFileNoFollow(root, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", name)
	}
	data := make([]byte, info.Size())
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// confirmArchiveOverwrite asks before replacing an existing archive.
func confirmArchiveOverwrite(dest string, op OperationConfig, console Console) error {
	info, err := os.Stat(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &StorageError{Op: "create", Path: dest, Err: err}
	}
	if info.IsDir() {
		return &StorageError{Op: "create", Path: dest, Err: errors.New("destination is a directory")}
	}
	if !op.SkipOverwriteConfirm && !console.ConfirmOverwrite(dest) {
		return ErrOverwriteDeclined
	}
	return nil
}
