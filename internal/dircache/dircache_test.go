package dircache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRoot(t *testing.T) (*os.Root, string) {
	t.Helper()
	dir := t.TempDir()
	root, err := os.OpenRoot(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = root.Close() })
	return root, dir
}

func TestEnsureCreatesParents(t *testing.T) {
	t.Parallel()

	root, dir := openRoot(t)
	c := New(root, 0o750)

	require.NoError(t, c.Ensure("a/b/c"))
	info, err := os.Stat(filepath.Join(dir, "a", "b", "c"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, 3, c.Len())

	require.NoError(t, c.Ensure("a/b"))
	require.NoError(t, c.Ensure("."))
	assert.Equal(t, 3, c.Len())
}

func TestEnsureSkipsCachedDirectories(t *testing.T) {
	t.Parallel()

	root, dir := openRoot(t)
	c := New(root, 0o750)
	require.NoError(t, c.Ensure("x"))

	// Removing the directory behind the cache's back is not noticed;
	// the cached entry short-circuits creation.
	require.NoError(t, os.Remove(filepath.Join(dir, "x")))
	require.NoError(t, c.Ensure("x"))
	_, err := os.Stat(filepath.Join(dir, "x"))
	require.ErrorIs(t, err, os.ErrNotExist)

	fresh := New(root, 0o750)
	assert.Equal(t, 0, fresh.Len())
	require.NoError(t, fresh.Ensure("x"))
	_, err = os.Stat(filepath.Join(dir, "x"))
	require.NoError(t, err)
}

func TestEnsureFailureNotRemembered(t *testing.T) {
	t.Parallel()

	root, dir := openRoot(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), []byte("x"), 0o600))
	c := New(root, 0o750)

	require.Error(t, c.Ensure("file/sub"))
	assert.Equal(t, 0, c.Len())
}

func TestEnsureRejectsEscape(t *testing.T) {
	t.Parallel()

	root, _ := openRoot(t)
	c := New(root, 0o750)
	require.Error(t, c.Ensure("../outside"))
}
