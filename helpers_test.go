package wad

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordConsole records everything an operation reports.
type recordConsole struct {
	mu        sync.Mutex
	overwrite bool
	progress  []ProgressEvent
	lines     []string
	batches   int
	confirms  []string
	errs      []error
}

func (c *recordConsole) Progress(ev ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = append(c.progress, ev)
}

func (c *recordConsole) Log(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, msg)
}

func (c *recordConsole) LogBatch(msgs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches++
	c.lines = append(c.lines, msgs...)
}

func (c *recordConsole) ConfirmOverwrite(target string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirms = append(c.confirms, target)
	return c.overwrite
}

func (c *recordConsole) Error(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *recordConsole) percents() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.progress))
	for i, ev := range c.progress {
		out[i] = ev.Percent()
	}
	return out
}

// writeArchive writes raw to a file named name in a new temp directory
// and returns its path.
func writeArchive(t *testing.T, name string, raw []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, raw, 0o600))
	return p
}
