package wad

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Operation identifies what a Dispatcher did with a path.
type Operation uint8

const (
	// OpSkip means the path was not handled.
	OpSkip Operation = iota

	// OpPack means the path was a directory and was packed.
	OpPack

	// OpExtract means the path was an archive and was extracted.
	OpExtract
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpSkip:
		return "skip"
	case OpPack:
		return "pack"
	case OpExtract:
		return "extract"
	default:
		return "unknown"
	}
}

// Outcome is the result of dispatching one path.
type Outcome struct {
	// Path is the dispatched path as given.
	Path string

	// Op is the operation attempted.
	Op Operation

	// Output is the archive written by a pack or the directory written
	// by an extraction.
	Output string

	// Pack holds the statistics of a completed pack.
	Pack *PackStats

	// Extract holds the statistics of a completed extraction.
	Extract *ExtractStats

	// Err is the error that ended the operation, an informational
	// outcome, or the per-entry failures of a partial extraction.
	Err error
}

// Failed reports whether the outcome counts as a failed operation.
func (o Outcome) Failed() bool {
	return o.Err != nil && !IsInformational(o.Err)
}

// DispatchOption configures a Dispatcher.
type DispatchOption func(*Dispatcher)

// DispatchWithConsole sets the console shared by all operations.
// With more than one job it must be safe for concurrent use.
func DispatchWithConsole(console Console) DispatchOption {
	return func(d *Dispatcher) {
		d.console = console
	}
}

// DispatchWithConfig sets the per-operation configuration.
func DispatchWithConfig(op OperationConfig) DispatchOption {
	return func(d *Dispatcher) {
		d.op = op
	}
}

// DispatchWithCodepage sets the codepage used for entry names.
func DispatchWithCodepage(cp *Codepage) DispatchOption {
	return func(d *Dispatcher) {
		d.codec = cp
	}
}

// DispatchWithLogger sets the logger for diagnostic output.
func DispatchWithLogger(logger *slog.Logger) DispatchOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// DispatchWithJobs sets how many paths are processed concurrently.
// Values below 1 mean 1.
func DispatchWithJobs(n int) DispatchOption {
	return func(d *Dispatcher) {
		d.jobs = n
	}
}

// DispatchWithExclude sets doublestar patterns excluded when packing.
func DispatchWithExclude(patterns ...string) DispatchOption {
	return func(d *Dispatcher) {
		d.exclude = append(d.exclude, patterns...)
	}
}

// DispatchWithOutputHook registers fn to be called with the output path
// of every operation before it starts writing.
func DispatchWithOutputHook(fn func(output string)) DispatchOption {
	return func(d *Dispatcher) {
		d.onOutput = fn
	}
}

// Dispatcher routes paths to the packing and extraction pipelines:
// directories are packed, files carrying the archive extension are
// extracted and anything else is skipped.
//
// Operations on the same archive path never overlap, even when several
// jobs run at once.
type Dispatcher struct {
	console  Console
	op       OperationConfig
	codec    *Codepage
	logger   *slog.Logger
	jobs     int
	exclude  []string
	onOutput func(string)

	locks pathLocks
}

// NewDispatcher creates a Dispatcher with the given options.
func NewDispatcher(opts ...DispatchOption) *Dispatcher {
	d := &Dispatcher{}
	for _, opt := range opts {
		opt(d)
	}
	if d.console == nil {
		d.console = NewLogConsole(d.logger)
	}
	if d.jobs < 1 {
		d.jobs = 1
	}
	return d
}

// log returns the logger, falling back to a discard logger if nil.
func (d *Dispatcher) log() *slog.Logger {
	if d.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.logger
}

// HandleDroppedPaths dispatches every path and returns the joined errors
// of the operations that failed. Informational outcomes such as
// unsupported paths or empty directories are logged but not returned.
func (d *Dispatcher) HandleDroppedPaths(ctx context.Context, paths []string) error {
	var errs []error
	for _, o := range d.Dispatch(ctx, paths) {
		if o.Failed() {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// Dispatch processes paths and returns one outcome per path, in input
// order. A failure on one path does not stop the others.
func (d *Dispatcher) Dispatch(ctx context.Context, paths []string) []Outcome {
	out := make([]Outcome, len(paths))
	var g errgroup.Group
	g.SetLimit(d.jobs)
	for i, p := range paths {
		g.Go(func() error {
			out[i] = d.handle(ctx, p)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // jobs report through out
	return out
}

func (d *Dispatcher) handle(ctx context.Context, p string) Outcome {
	o := Outcome{Path: p}
	if err := ctx.Err(); err != nil {
		o.Err = err
		return o
	}

	info, err := os.Stat(p)
	if err != nil {
		o.Err = &StorageError{Op: "stat", Path: p, Err: err}
		d.console.Error(o.Err)
		return o
	}

	switch {
	case info.IsDir():
		d.pack(ctx, p, &o)
	case strings.EqualFold(filepath.Ext(p), d.op.extension()):
		d.extract(ctx, p, &o)
	default:
		o.Err = fmt.Errorf("%w: %s", ErrUnsupportedDrop, p)
		d.console.Log("Unsupported file: " + p)
		d.log().Info("skipped path", "path", p, "reason", "unsupported")
	}
	return o
}

func (d *Dispatcher) pack(ctx context.Context, dir string, o *Outcome) {
	o.Op = OpPack
	o.Output = DefaultPackDestination(dir, d.op.extension())

	unlock := d.locks.lock(o.Output)
	defer unlock()
	if d.onOutput != nil {
		d.onOutput(o.Output)
	}

	opts := []PackOption{
		PackWithDestination(o.Output),
		PackWithConfig(d.op),
		PackWithConsole(d.console),
		PackWithLogger(d.logger),
		PackWithExclude(d.exclude...),
	}
	if d.codec != nil {
		opts = append(opts, PackWithCodepage(d.codec))
	}
	o.Pack, o.Err = Pack(ctx, dir, opts...)
}

func (d *Dispatcher) extract(ctx context.Context, archive string, o *Outcome) {
	o.Op = OpExtract
	o.Output = DefaultExtractDestination(archive)

	unlock := d.locks.lock(archive)
	defer unlock()
	if d.onOutput != nil {
		d.onOutput(o.Output)
	}

	opts := []ExtractOption{
		ExtractWithDestination(o.Output),
		ExtractWithConfig(d.op),
		ExtractWithConsole(d.console),
		ExtractWithLogger(d.logger),
	}
	if d.codec != nil {
		opts = append(opts, ExtractWithCodepage(d.codec))
	}
	o.Extract, o.Err = Extract(ctx, archive, opts...)
	if o.Err == nil && o.Extract != nil && o.Extract.Failed() > 0 {
		o.Err = fmt.Errorf("%s: %d of %d entries failed: %w",
			archive, o.Extract.Failed(), o.Extract.Entries, o.Extract.Failures)
	}
}

// pathLocks is a set of mutexes keyed by absolute path. Entries are
// removed when no goroutine holds or waits for them.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the mutex for p and returns its release function.
func (l *pathLocks) lock(p string) func() {
	key, err := filepath.Abs(p)
	if err != nil {
		key = filepath.Clean(p)
	}

	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*pathLock)
	}
	pl, ok := l.locks[key]
	if !ok {
		pl = &pathLock{}
		l.locks[key] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
