// Package dircache remembers which directories an extraction has already
// ensured so that each distinct parent is created at most once.
//
// The cache only saves system calls. Creating a directory that already
// exists is always safe, so a cold cache never changes results.
package dircache

import (
	"os"
	"path"
)

// Cache is a set of slash-separated directory paths relative to a root.
// It is not safe for concurrent use.
type Cache struct {
	root *os.Root
	perm os.FileMode
	seen map[string]struct{}
}

// New returns an empty cache that creates directories under root.
func New(root *os.Root, perm os.FileMode) *Cache {
	return &Cache{root: root, perm: perm, seen: make(map[string]struct{})}
}

// Ensure creates dir and its parents under the root unless an earlier
// call already did. A failed creation is not remembered.
func (c *Cache) Ensure(dir string) error {
	dir = path.Clean(dir)
	if dir == "." {
		return nil
	}
	if _, ok := c.seen[dir]; ok {
		return nil
	}
	if err := c.root.MkdirAll(dir, c.perm); err != nil {
		return err
	}
	for d := dir; d != "."; d = path.Dir(d) {
		c.seen[d] = struct{}{}
	}
	return nil
}

// Len returns the number of remembered directories.
func (c *Cache) Len() int {
	return len(c.seen)
}
