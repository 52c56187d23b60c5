package wad

import (
	"log/slog"

	"github.com/node91/OpenWAD/internal/codepage"
)

// DefaultMaxFiles is the default limit used when no MaxFiles option is set.
const DefaultMaxFiles = 200_000

// PackOption configures Pack.
type PackOption func(*packConfig)

type packConfig struct {
	dest     string
	op       OperationConfig
	console  Console
	codec    *Codepage
	logger   *slog.Logger
	exclude  []string
	maxFiles int
}

// PackWithDestination sets the archive path. By default the source
// directory path with its extension replaced by the archive extension
// is used.
func PackWithDestination(path string) PackOption {
	return func(c *packConfig) {
		c.dest = path
	}
}

// PackWithConfig sets the per-operation configuration.
func PackWithConfig(op OperationConfig) PackOption {
	return func(c *packConfig) {
		c.op = op
	}
}

// PackWithConsole sets the console that receives progress, log lines and
// overwrite confirmations.
func PackWithConsole(console Console) PackOption {
	return func(c *packConfig) {
		c.console = console
	}
}

// PackWithCodepage sets the codepage used to encode entry names.
func PackWithCodepage(cp *Codepage) PackOption {
	return func(c *packConfig) {
		c.codec = cp
	}
}

// PackWithLogger sets the logger for diagnostic output.
func PackWithLogger(logger *slog.Logger) PackOption {
	return func(c *packConfig) {
		c.logger = logger
	}
}

// PackWithExclude skips files whose slash-separated path relative to the
// source directory matches any of the patterns. Patterns use doublestar
// syntax, e.g. "**/.DS_Store" or "build/**". A directory matching a
// pattern is skipped entirely.
func PackWithExclude(patterns ...string) PackOption {
	return func(c *packConfig) {
		c.exclude = append(c.exclude, patterns...)
	}
}

// PackWithMaxFiles limits the number of files included in the archive.
// Zero uses DefaultMaxFiles. Negative means no limit.
func PackWithMaxFiles(n int) PackOption {
	return func(c *packConfig) {
		c.maxFiles = n
	}
}

func newPackConfig(opts []PackOption) packConfig {
	cfg := packConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.console == nil {
		cfg.console = NewLogConsole(cfg.logger)
	}
	if cfg.codec == nil {
		cfg.codec = codepage.Default()
	}
	if cfg.maxFiles == 0 {
		cfg.maxFiles = DefaultMaxFiles
	}
	return cfg
}

// log returns the logger, falling back to a discard logger if nil.
func (c *packConfig) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}
