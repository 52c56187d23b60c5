package wad

import (
	"log/slog"
	"strings"
)

// DefaultExtension is the registered archive file extension.
const DefaultExtension = ".wad"

// OperationConfig carries per-operation settings that the caller would
// otherwise keep as session state.
type OperationConfig struct {
	// SkipOverwriteConfirm proceeds over existing destinations without
	// calling Console.ConfirmOverwrite.
	SkipOverwriteConfirm bool

	// Extension is the archive extension, including the dot. Empty means
	// DefaultExtension.
	Extension string
}

func (c OperationConfig) extension() string {
	if c.Extension == "" {
		return DefaultExtension
	}
	if !strings.HasPrefix(c.Extension, ".") {
		return "." + c.Extension
	}
	return c.Extension
}

// Console is the user-facing side of an operation: progress display, the
// operation log, overwrite confirmation and error reporting.
//
// Operations call Progress at 0 and 100 percent and once per entry in
// between. Consoles shared by a Dispatcher running several jobs must be
// safe for concurrent calls.
type Console interface {
	// Progress reports the current stage and its completion.
	Progress(ProgressEvent)

	// Log appends one line to the operation log.
	Log(msg string)

	// LogBatch appends several lines at once. Per-entry messages are
	// delivered through LogBatch so consoles can redraw once.
	LogBatch(msgs []string)

	// ConfirmOverwrite asks whether an existing destination may be
	// overwritten. It is called at most once per operation.
	ConfirmOverwrite(target string) bool

	// Error reports the failure that ended an operation.
	Error(err error)
}

// LogConsole is a Console that writes everything to a slog.Logger and
// answers overwrite confirmations with a fixed value.
type LogConsole struct {
	logger    *slog.Logger
	overwrite bool
}

// NewLogConsole returns a console that logs to logger. A nil logger
// discards output. Overwrite confirmations are declined.
func NewLogConsole(logger *slog.Logger) *LogConsole {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogConsole{logger: logger}
}

// WithOverwrite returns a copy of c that answers confirmations with allow.
func (c *LogConsole) WithOverwrite(allow bool) *LogConsole {
	cp := *c
	cp.overwrite = allow
	return &cp
}

// Progress logs the event at debug level.
func (c *LogConsole) Progress(ev ProgressEvent) {
	c.logger.Debug("progress", "stage", ev.Stage.String(), "percent", ev.Percent(), "path", ev.Path)
}

// Log logs msg at info level.
func (c *LogConsole) Log(msg string) {
	c.logger.Info(msg)
}

// LogBatch logs each message at info level.
func (c *LogConsole) LogBatch(msgs []string) {
	for _, msg := range msgs {
		c.logger.Info(msg)
	}
}

// ConfirmOverwrite logs the request and returns the configured answer.
func (c *LogConsole) ConfirmOverwrite(target string) bool {
	c.logger.Warn("files will be overwritten", "target", target, "allowed", c.overwrite)
	return c.overwrite
}

// Error logs err at error level.
func (c *LogConsole) Error(err error) {
	c.logger.Error("operation failed", "error", err)
}

// batchLog buffers per-entry log lines until flush.
type batchLog struct {
	lines []string
}

func (b *batchLog) add(msg string) {
	b.lines = append(b.lines, msg)
}

func (b *batchLog) flush(c Console) {
	if len(b.lines) == 0 {
		return
	}
	c.LogBatch(b.lines)
	b.lines = nil
}
