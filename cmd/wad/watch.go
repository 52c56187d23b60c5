package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	wad "github.com/node91/OpenWAD"
)

// tempPrefix marks the temporary files written while packing and
// extracting. Events for them are never dispatched.
const tempPrefix = ".wad-"

// watcher turns paths appearing in a directory into dispatcher runs.
//
// A path is dispatched once it has been quiet for the configured period,
// measured from the last event on it or anywhere below it. The outputs of
// its own operations are ignored while they are written and for two
// quiet periods afterwards.
type watcher struct {
	dir    string
	ext    string
	quiet  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]time.Time
	ignored map[string]time.Time
}

func newWatcher(dir, ext string, quiet time.Duration, logger *slog.Logger) *watcher {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &watcher{
		dir:     filepath.Clean(dir),
		ext:     ext,
		quiet:   quiet,
		logger:  logger,
		pending: make(map[string]time.Time),
		ignored: make(map[string]time.Time),
	}
}

// ignore marks an output path as in use. It is passed to the dispatcher
// as its output hook.
func (w *watcher) ignore(p string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ignored[filepath.Clean(p)] = time.Time{}
	delete(w.pending, filepath.Clean(p))
}

// release lets events for p through again after a grace period.
func (w *watcher) release(p string, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ignored[filepath.Clean(p)] = now.Add(2 * w.quiet)
}

func (w *watcher) isIgnoredLocked(p string, now time.Time) bool {
	until, ok := w.ignored[p]
	if !ok {
		return false
	}
	if until.IsZero() || now.Before(until) {
		return true
	}
	delete(w.ignored, p)
	return false
}

// topLevel returns the child of the watched directory that contains p.
func (w *watcher) topLevel(p string) (string, bool) {
	rel, err := filepath.Rel(w.dir, filepath.Clean(p))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	first, _, _ := strings.Cut(rel, string(filepath.Separator))
	return filepath.Join(w.dir, first), true
}

// observe records an event on p at now.
func (w *watcher) observe(p string, now time.Time) {
	if strings.HasPrefix(filepath.Base(p), tempPrefix) {
		return
	}
	top, ok := w.topLevel(p)
	if !ok || strings.HasPrefix(filepath.Base(top), tempPrefix) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isIgnoredLocked(top, now) {
		return
	}
	w.pending[top] = now
}

// due removes and returns the pending paths quiet since before now-quiet,
// in lexical order. Paths that vanished or are neither a directory nor
// an archive are dropped.
func (w *watcher) due(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var ready []string
	for p, last := range w.pending {
		if now.Sub(last) < w.quiet {
			continue
		}
		delete(w.pending, p)
		if w.isIgnoredLocked(p, now) {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if !info.IsDir() && !strings.EqualFold(filepath.Ext(p), w.ext) {
			w.logger.Debug("ignoring file", "path", p)
			continue
		}
		ready = append(ready, p)
	}
	slices.Sort(ready)
	return ready
}

// addTree watches root and every directory below it.
func addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return fw.Add(p)
	})
}

// run watches the directory until ctx is done. Paths already present when
// it starts are left alone.
func (w *watcher) run(ctx context.Context, d *wad.Dispatcher) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return &wad.StorageError{Op: "watch", Path: w.dir, Err: err}
	}
	w.logger.Info("watching", "dir", w.dir, "quiet_period", w.quiet.String())

	tick := time.NewTicker(max(w.quiet/4, 10*time.Millisecond))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(fw, ev.Name); err != nil {
						w.logger.Warn("cannot watch directory", "path", ev.Name, "error", err)
					}
				}
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
				continue
			}
			w.observe(ev.Name, time.Now())

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case now := <-tick.C:
			ready := w.due(now)
			if len(ready) == 0 {
				continue
			}
			for _, o := range d.Dispatch(ctx, ready) {
				if o.Output != "" {
					w.release(o.Output, time.Now())
				}
				if o.Failed() {
					w.logger.Error("operation failed", "path", o.Path, "op", o.Op.String(), "error", o.Err)
				}
			}
		}
	}
}
