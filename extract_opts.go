package wad

import "log/slog"

// ExtractOption configures Extract and Archive.ExtractTo.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	dest        string
	op          OperationConfig
	console     Console
	codec       *Codepage
	logger      *slog.Logger
	directWrite bool
}

// ExtractWithDestination sets the destination directory. By default
// Extract uses the archive's directory joined with its base name without
// extension.
func ExtractWithDestination(dir string) ExtractOption {
	return func(c *extractConfig) {
		c.dest = dir
	}
}

// ExtractWithConfig sets the per-operation configuration.
func ExtractWithConfig(op OperationConfig) ExtractOption {
	return func(c *extractConfig) {
		c.op = op
	}
}

// ExtractWithConsole sets the console that receives progress, log lines
// and overwrite confirmations. The default logs through the configured
// logger and declines overwrites.
func ExtractWithConsole(console Console) ExtractOption {
	return func(c *extractConfig) {
		c.console = console
	}
}

// ExtractWithCodepage sets the codepage used to decode entry names.
// It only applies to Extract; Archive.ExtractTo uses the archive's codepage.
func ExtractWithCodepage(cp *Codepage) ExtractOption {
	return func(c *extractConfig) {
		c.codec = cp
	}
}

// ExtractWithLogger sets the logger for diagnostic output.
func ExtractWithLogger(logger *slog.Logger) ExtractOption {
	return func(c *extractConfig) {
		c.logger = logger
	}
}

// ExtractWithDirectWrites writes entries straight to their final paths
// instead of renaming a temp file into place. A failure can then leave a
// partially written file behind.
func ExtractWithDirectWrites(enabled bool) ExtractOption {
	return func(c *extractConfig) {
		c.directWrite = enabled
	}
}

func newExtractConfig(opts []ExtractOption) extractConfig {
	cfg := extractConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.console == nil {
		cfg.console = NewLogConsole(cfg.logger)
	}
	return cfg
}

// log returns the logger, falling back to a discard logger if nil.
func (c *extractConfig) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}
