// wad packs directories into WAD archives and extracts them again.
//
// Usage:
//
//	wad [flags] PATH...        pack directories, extract archives
//	wad [flags] pack DIR       pack DIR into DIR.wad
//	wad [flags] extract FILE   extract FILE next to itself
//	wad [flags] list FILE      print the entry table of FILE
//	wad [flags] watch DIR      process paths as they appear in DIR
//
// Without a subcommand every path is handled like a file dropped onto the
// program: directories are packed, archives are extracted and anything
// else is skipped.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	wad "github.com/node91/OpenWAD"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		var usage *usageError
		if errors.As(err, &usage) {
			fmt.Fprintf(os.Stderr, "error: %v\nRun 'wad --help' for usage.\n", err)
		}
		os.Exit(exitCode(err))
	}
}

// options holds the parsed command line.
type options struct {
	configPath string
	yes        bool
	jobs       int
	exclude    []string
	output     string
	codepage   string
	extension  string
	logLevel   string
	json       bool
	noDigest   bool
}

func newFlagSet(opts *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("wad", pflag.ContinueOnError)
	fs.SetInterspersed(true)
	fs.StringVar(&opts.configPath, "config", "", "YAML config file (default $"+configEnv+")")
	fs.BoolVarP(&opts.yes, "yes", "y", false, "overwrite existing destinations without asking")
	fs.IntVarP(&opts.jobs, "jobs", "j", 1, "number of paths processed concurrently")
	fs.StringSliceVar(&opts.exclude, "exclude", nil, "doublestar pattern of files to leave out when packing (repeatable)")
	fs.StringVarP(&opts.output, "output", "o", "", "destination for pack or extract")
	fs.StringVar(&opts.codepage, "codepage", "", "code page of entry names (default windows-1252)")
	fs.StringVar(&opts.extension, "extension", "", "archive file extension (default .wad)")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.BoolVar(&opts.json, "json", false, "log as JSON even on a terminal")
	fs.BoolVar(&opts.noDigest, "no-digest", false, "list: skip payload digests")
	fs.BoolP("help", "h", false, "show help")
	return fs
}

// merge applies explicitly set flags over cfg.
func (o *options) merge(fs *pflag.FlagSet, cfg *config) {
	if fs.Changed("yes") {
		cfg.Yes = o.yes
	}
	if fs.Changed("jobs") {
		cfg.Jobs = o.jobs
	}
	if fs.Changed("exclude") {
		cfg.Exclude = append(cfg.Exclude, o.exclude...)
	}
	if fs.Changed("codepage") {
		cfg.Codepage = o.codepage
	}
	if fs.Changed("extension") {
		cfg.Extension = o.extension
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if fs.Changed("json") {
		cfg.JSON = o.json
	}
}

// app is one invocation of the command.
type app struct {
	cfg     *config
	opts    *options
	logger  *slog.Logger
	console *termConsole
	codec   *wad.Codepage
	stdout  io.Writer
}

func (a *app) operationConfig() wad.OperationConfig {
	return wad.OperationConfig{SkipOverwriteConfirm: a.cfg.Yes, Extension: a.cfg.Extension}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts := &options{}
	fs := newFlagSet(opts)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stderr, fs)
			return nil
		}
		return usagef("%v", err)
	}
	if help, _ := fs.GetBool("help"); help {
		printHelp(stderr, fs)
		return nil
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return usagef("%v", err)
	}
	opts.merge(fs, cfg)
	if err := cfg.validate(); err != nil {
		return usagef("%v", err)
	}
	if !strings.HasPrefix(cfg.Extension, ".") {
		cfg.Extension = "." + cfg.Extension
	}
	level, _ := cfg.level() //nolint:errcheck // checked by validate

	codec, err := wad.LookupCodepage(cfg.Codepage)
	if err != nil {
		return usagef("%v", err)
	}

	logger := newLogger(stderr, level, cfg.JSON)
	a := &app{
		cfg:     cfg,
		opts:    opts,
		logger:  logger,
		console: newTermConsole(logger, stdin, stderr),
		codec:   codec,
		stdout:  stdout,
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return usagef("no paths given")
	}
	switch rest[0] {
	case "pack":
		return a.pack(ctx, rest[1:])
	case "extract":
		return a.extract(ctx, rest[1:])
	case "list":
		return a.list(rest[1:])
	case "watch":
		return a.watch(ctx, rest[1:])
	default:
		if opts.output != "" {
			return usagef("--output needs the pack or extract subcommand")
		}
		return a.drop(ctx, rest)
	}
}

func (a *app) dispatcher(opts ...wad.DispatchOption) *wad.Dispatcher {
	base := []wad.DispatchOption{
		wad.DispatchWithConsole(a.console),
		wad.DispatchWithConfig(a.operationConfig()),
		wad.DispatchWithCodepage(a.codec),
		wad.DispatchWithLogger(a.logger),
		wad.DispatchWithJobs(a.cfg.Jobs),
		wad.DispatchWithExclude(a.cfg.Exclude...),
	}
	return wad.NewDispatcher(append(base, opts...)...)
}

func (a *app) drop(ctx context.Context, paths []string) error {
	outcomes := a.dispatcher().Dispatch(ctx, paths)
	for _, o := range outcomes {
		a.report(o)
	}
	return outcomesError(outcomes)
}

// report prints a one-line summary of a finished operation.
func (a *app) report(o wad.Outcome) {
	switch {
	case o.Pack != nil && o.Err == nil:
		fmt.Fprintf(a.stdout, "packed %d files (%s) into %s\n",
			o.Pack.FileCount, humanize.IBytes(o.Pack.ArchiveSize), o.Pack.Archive)
	case o.Extract != nil:
		fmt.Fprintf(a.stdout, "extracted %d of %d files (%s) into %s\n",
			o.Extract.FileCount, o.Extract.Entries, humanize.IBytes(o.Extract.TotalBytes), o.Extract.Destination)
	}
}

func (a *app) pack(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usagef("pack takes exactly one directory")
	}
	opts := []wad.PackOption{
		wad.PackWithConfig(a.operationConfig()),
		wad.PackWithConsole(a.console),
		wad.PackWithCodepage(a.codec),
		wad.PackWithLogger(a.logger),
		wad.PackWithExclude(a.cfg.Exclude...),
	}
	if a.opts.output != "" {
		opts = append(opts, wad.PackWithDestination(a.opts.output))
	}
	stats, err := wad.Pack(ctx, args[0], opts...)
	if err != nil {
		if wad.IsInformational(err) {
			return nil
		}
		return err
	}
	a.report(wad.Outcome{Op: wad.OpPack, Pack: stats})
	return nil
}

func (a *app) extract(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usagef("extract takes exactly one archive")
	}
	if !strings.EqualFold(filepath.Ext(args[0]), a.cfg.Extension) {
		a.console.Log("Not a WAD file: " + args[0])
		return fmt.Errorf("%w: %s", wad.ErrNotAnArchive, args[0])
	}
	opts := []wad.ExtractOption{
		wad.ExtractWithConfig(a.operationConfig()),
		wad.ExtractWithConsole(a.console),
		wad.ExtractWithCodepage(a.codec),
		wad.ExtractWithLogger(a.logger),
	}
	if a.opts.output != "" {
		opts = append(opts, wad.ExtractWithDestination(a.opts.output))
	}
	stats, err := wad.Extract(ctx, args[0], opts...)
	if err != nil {
		return err
	}
	a.report(wad.Outcome{Op: wad.OpExtract, Extract: stats})
	return stats.Err()
}

func (a *app) list(args []string) error {
	if len(args) != 1 {
		return usagef("list takes exactly one archive")
	}
	arc, err := wad.Open(args[0], wad.ReadWithCodepage(a.codec), wad.ReadWithLogger(a.logger))
	if err != nil {
		a.console.Error(err)
		return err
	}
	defer arc.Close()

	r, err := wad.Inspect(arc, wad.InspectWithDigests(!a.opts.noDigest))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tOFFSET\tSIZE\t NAME\t DIGEST\t")
	for _, e := range r.Entries {
		fmt.Fprintf(tw, "%d\t%d\t%s\t %s\t %s\t\n", e.Index, e.DataOffset, humanize.IBytes(uint64(e.DataSize)), e.Name, shortDigest(e))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%d entries, %s payload, %s archive\n",
		len(r.Entries), humanize.IBytes(r.PayloadBytes), humanize.IBytes(uint64(r.Size)))
	if r.Unreferenced > 0 {
		fmt.Fprintf(a.stdout, "%s not referenced by any entry\n", humanize.IBytes(r.Unreferenced))
	}
	for _, ov := range r.Overlaps {
		fmt.Fprintf(a.stdout, "entries %d and %d share payload bytes\n", ov.First, ov.Second)
	}
	return nil
}

func shortDigest(e wad.EntryInfo) string {
	if e.Digest == "" {
		return "-"
	}
	enc := e.Digest.Encoded()
	if len(enc) > 12 {
		enc = enc[:12]
	}
	return e.Digest.Algorithm().String() + ":" + enc
}

func (a *app) watch(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usagef("watch takes exactly one directory")
	}
	info, err := os.Stat(args[0])
	if err != nil {
		return &wad.StorageError{Op: "watch", Path: args[0], Err: err}
	}
	if !info.IsDir() {
		return usagef("%s is not a directory", args[0])
	}
	w := newWatcher(args[0], a.cfg.Extension, a.cfg.Watch.QuietPeriod, a.logger)
	return w.run(ctx, a.dispatcher(wad.DispatchWithOutputHook(w.ignore)))
}

func printHelp(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprint(w, `wad packs directories into WAD archives and extracts them.

Usage:
  wad [flags] PATH...        pack directories, extract archives
  wad [flags] pack DIR       pack DIR into DIR.wad
  wad [flags] extract FILE   extract FILE into a directory named after it
  wad [flags] list FILE      print the entry table of FILE
  wad [flags] watch DIR      process directories and archives added to DIR

Flags:
`)
	fmt.Fprint(w, fs.FlagUsages())
}
