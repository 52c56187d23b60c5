// Package platform wraps the operating system facilities the archive
// codec depends on: whole-file mappings and symlink-safe opens.
package platform

import (
	"fmt"
	"math"
	"runtime/debug"
)

// mappableSize converts a file size to a mapping length.
func mappableSize(size int64) (int, error) {
	if size < 0 || uint64(size) > math.MaxInt {
		return 0, fmt.Errorf("file size %d cannot be mapped", size)
	}
	return int(size), nil
}

// GuardFault runs fn and converts a memory fault inside it into an error.
// Reading a mapping whose file was truncated underneath it raises SIGBUS;
// with the guard it surfaces as an ordinary error instead of a crash.
func GuardFault(fn func() error) (err error) {
	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			err = fmt.Errorf("memory fault reading mapped file: %v", r)
		}
	}()
	return fn()
}
