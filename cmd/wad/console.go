package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	wad "github.com/node91/OpenWAD"
)

// newLogger returns a text logger when w is a terminal and a JSON logger
// otherwise. forceJSON always selects JSON.
func newLogger(w io.Writer, level slog.Level, forceJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if !forceJSON && isTerminal(w) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// termConsole is the command-line Console. Log lines go to the logger.
// On a terminal it draws a one-line progress indicator and asks before
// overwriting; otherwise overwrites are declined unless --yes was given.
type termConsole struct {
	mu          sync.Mutex
	logger      *slog.Logger
	out         io.Writer
	in          *bufio.Reader
	interactive bool
	drawn       bool
}

func newTermConsole(logger *slog.Logger, in io.Reader, out io.Writer) *termConsole {
	return &termConsole{
		logger:      logger,
		out:         out,
		in:          bufio.NewReader(in),
		interactive: isTerminal(in) && isTerminal(out),
	}
}

func (c *termConsole) Progress(ev wad.ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.interactive {
		c.logger.Debug("progress", "stage", ev.Stage.String(), "percent", ev.Percent(), "path", ev.Path)
		return
	}
	if ev.Stage == wad.StageDone {
		c.clearLocked()
		return
	}
	line := fmt.Sprintf("%-10s %3d%% %s", ev.Stage, ev.Percent(), ev.Path)
	if width := c.width(); width > 0 && len(line) > width-1 {
		line = line[:width-1]
	}
	fmt.Fprintf(c.out, "\r\x1b[K%s", line)
	c.drawn = true
}

func (c *termConsole) width() int {
	f, ok := c.out.(*os.File)
	if !ok {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}

// clearLocked erases the progress line so log output starts on a clean line.
func (c *termConsole) clearLocked() {
	if c.drawn {
		fmt.Fprint(c.out, "\r\x1b[K")
		c.drawn = false
	}
}

func (c *termConsole) Log(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	c.logger.Info(msg)
}

func (c *termConsole) LogBatch(msgs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	for _, msg := range msgs {
		c.logger.Debug(msg)
	}
	c.logger.Info("processed entries", "count", len(msgs))
}

func (c *termConsole) ConfirmOverwrite(target string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	if !c.interactive {
		c.logger.Warn("files would be overwritten; rerun with --yes to allow", "target", target)
		return false
	}
	fmt.Fprintf(c.out, "Files will be overwritten: %s\nContinue? [y/N] ", target)
	answer, err := c.in.ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func (c *termConsole) Error(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	c.logger.Error("operation failed", "error", err)
}
