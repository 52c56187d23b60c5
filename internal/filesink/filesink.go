// Package filesink writes extracted entries below a destination root.
//
// By default each file is written to a temporary file in its target
// directory and renamed into place, so a partially written file is never
// visible at the final path.
package filesink

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Sink writes files relative to an os.Root. Paths that would escape the
// root are rejected by the root itself.
type Sink struct {
	root        *os.Root
	perm        os.FileMode
	directWrite bool
}

// Option configures a Sink.
type Option func(*Sink)

// WithDirectWrites disables temp files and writes directly to the final path.
func WithDirectWrites(enabled bool) Option {
	return func(s *Sink) {
		s.directWrite = enabled
	}
}

// WithPerm sets the permission bits of created files. The default is 0o644
// before umask.
func WithPerm(perm os.FileMode) Option {
	return func(s *Sink) {
		s.perm = perm
	}
}

// New creates a Sink writing below root. The caller keeps ownership of root.
func New(root *os.Root, opts ...Option) *Sink {
	s := &Sink{root: root, perm: 0o644}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WriteFile stores data at rel, replacing any existing file. rel uses the
// platform separator. The parent directory must already exist.
func (s *Sink) WriteFile(rel string, data []byte) error {
	if s.directWrite {
		f, err := s.root.OpenFile(rel, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, s.perm)
		if err != nil {
			return fmt.Errorf("create file %s: %w", rel, err)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()          //nolint:errcheck // best-effort cleanup
			_ = s.root.Remove(rel) //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("write file %s: %w", rel, err)
		}
		if err := f.Close(); err != nil {
			_ = s.root.Remove(rel) //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("close file: %w", err)
		}
		return nil
	}

	tempFile, tempRel, err := createTempFile(s.root, filepath.Dir(rel), ".wad-", s.perm)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()       //nolint:errcheck // best-effort cleanup
		_ = s.root.Remove(tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = s.root.Remove(tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.root.Rename(tempRel, rel); err != nil {
		_ = s.root.Remove(tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", rel, err)
	}
	return nil
}

func createTempFile(root *os.Root, dir, prefix string, perm os.FileMode) (*os.File, string, error) {
	const attempts = 10
	for range attempts {
		name, err := randomSuffix()
		if err != nil {
			return nil, "", err
		}
		relPath := filepath.Join(dir, prefix+name)
		f, err := root.OpenFile(relPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
		if err == nil {
			return f, relPath, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", errors.New("create temp file: exhausted retries")
}

func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
