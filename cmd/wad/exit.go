package main

import (
	"errors"
	"fmt"

	wad "github.com/node91/OpenWAD"
)

// Exit codes. Each failure kind has its own code so scripts can react
// without parsing output.
const (
	exitOK                = 0
	exitGeneric           = 1
	exitUsage             = 2
	exitStorageOpen       = 3
	exitTooSmall          = 4
	exitTableExceedsFile  = 5
	exitCorruptEntry      = 6
	exitDirectoryCreate   = 7
	exitNotAnArchive      = 8
	exitOverwriteDeclined = 9
	exitSizeOverflow      = 10
)

// exitError carries an exit code through run's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// ExitCode returns the process exit code.
func (e *exitError) ExitCode() int {
	return e.code
}

// usageError reports invalid flags or arguments.
type usageError struct {
	msg string
}

func (e *usageError) Error() string {
	return e.msg
}

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// exitCode maps an error to its exit code. For joined errors the first
// matching kind in the order below wins.
func exitCode(err error) int {
	var coder interface{ ExitCode() int }
	var usage *usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &coder):
		return coder.ExitCode()
	case errors.As(err, &usage):
		return exitUsage
	case errors.Is(err, wad.ErrTooSmall):
		return exitTooSmall
	case errors.Is(err, wad.ErrTableExceedsFile):
		return exitTableExceedsFile
	case errors.Is(err, wad.ErrCorruptEntry):
		return exitCorruptEntry
	case errors.Is(err, wad.ErrDirectoryCreate):
		return exitDirectoryCreate
	case errors.Is(err, wad.ErrStorageOpen):
		return exitStorageOpen
	case errors.Is(err, wad.ErrNotAnArchive), errors.Is(err, wad.ErrUnsupportedDrop):
		return exitNotAnArchive
	case errors.Is(err, wad.ErrOverwriteDeclined):
		return exitOverwriteDeclined
	case errors.Is(err, wad.ErrSizeOverflow), errors.Is(err, wad.ErrTooManyFiles):
		return exitSizeOverflow
	default:
		return exitGeneric
	}
}

// outcomesError reduces dispatch outcomes to the error run returns.
// Failures win. When nothing failed and nothing succeeded but some path
// was not an archive, the result is ErrUnsupportedDrop.
func outcomesError(outcomes []wad.Outcome) error {
	var failed []error
	succeeded := false
	var unsupported error
	for _, o := range outcomes {
		switch {
		case o.Failed():
			failed = append(failed, o.Err)
		case o.Err == nil:
			succeeded = true
		case errors.Is(o.Err, wad.ErrUnsupportedDrop), errors.Is(o.Err, wad.ErrNotAnArchive):
			unsupported = o.Err
		}
	}
	if len(failed) > 0 {
		return errors.Join(failed...)
	}
	if !succeeded && unsupported != nil {
		return unsupported
	}
	return nil
}
