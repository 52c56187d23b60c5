package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wad "github.com/node91/OpenWAD"
	"github.com/node91/OpenWAD/internal/testutil"
)

type runResult struct {
	err    error
	stdout string
	stderr string
}

func runCmd(t *testing.T, args ...string) runResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(t.Context(), args, strings.NewReader(""), &stdout, &stderr)
	return runResult{err: err, stdout: stdout.String(), stderr: stderr.String()}
}

func TestRunPackExtractList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "data")
	files := map[string][]byte{
		"readme.txt":       []byte("hello"),
		"maps/e1m1.bsp":    bytes.Repeat([]byte{7}, 2048),
		"sound/door/o.wav": []byte("creak"),
	}
	testutil.WriteTree(t, src, files)

	res := runCmd(t, "pack", src)
	require.NoError(t, res.err, res.stderr)
	archive := filepath.Join(dir, "data.wad")
	assert.Contains(t, res.stdout, "packed 3 files")
	assert.Contains(t, res.stdout, archive)

	res = runCmd(t, "list", "--no-digest", archive)
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, `maps\e1m1.bsp`)
	assert.Contains(t, res.stdout, `sound\door\o.wav`)
	assert.Contains(t, res.stdout, "3 entries")
	assert.NotContains(t, res.stdout, "share payload bytes")

	res = runCmd(t, "list", archive)
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "sha256:")

	out := filepath.Join(dir, "out")
	res = runCmd(t, "extract", "-o", out, archive)
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "extracted 3 of 3 files")
	assert.Equal(t, files, testutil.ReadTree(t, out))
}

func TestRunDropMode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string][]byte{
		"pak0/a.txt": []byte("a"),
		"notes.txt":  []byte("n"),
	})

	res := runCmd(t, "-j", "2", filepath.Join(dir, "pak0"), filepath.Join(dir, "notes.txt"))
	require.NoError(t, res.err, res.stderr)
	assert.FileExists(t, filepath.Join(dir, "pak0.wad"))

	require.NoError(t, os.RemoveAll(filepath.Join(dir, "pak0")))
	res = runCmd(t, filepath.Join(dir, "pak0.wad"))
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, map[string][]byte{"a.txt": []byte("a")}, testutil.ReadTree(t, filepath.Join(dir, "pak0")))

	res = runCmd(t, filepath.Join(dir, "notes.txt"))
	require.ErrorIs(t, res.err, wad.ErrUnsupportedDrop)
	assert.Equal(t, exitNotAnArchive, exitCode(res.err))
}

func TestRunOverwriteNeedsYesWithoutTerminal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	testutil.WriteTree(t, src, map[string][]byte{"a.txt": []byte("a")})

	require.NoError(t, runCmd(t, "pack", src).err)

	res := runCmd(t, "pack", src)
	require.ErrorIs(t, res.err, wad.ErrOverwriteDeclined)
	assert.Equal(t, exitOverwriteDeclined, exitCode(res.err))
	assert.Contains(t, res.stderr, "rerun with --yes")

	res = runCmd(t, "--yes", "pack", src)
	require.NoError(t, res.err, res.stderr)
}

func TestRunEmptyFolderIsNotAnError(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.Mkdir(src, 0o750))

	res := runCmd(t, "pack", src)
	require.NoError(t, res.err)
	assert.NoFileExists(t, src+".wad")
	assert.Contains(t, res.stderr, "Folder contains no files.")
}

func TestRunStructuralErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	small := filepath.Join(dir, "small.wad")
	require.NoError(t, os.WriteFile(small, []byte{1, 0}, 0o600))

	huge := filepath.Join(dir, "huge.wad")
	require.NoError(t, os.WriteFile(huge, testutil.BuildRaw(testutil.RawArchive{Count: testutil.Uint32(5)}), 0o600))

	corrupt := filepath.Join(dir, "corrupt.wad")
	raw := testutil.Contiguous([]string{"a"}, [][]byte{[]byte("abc")})
	raw.Entries[0].DataSize = 100
	require.NoError(t, os.WriteFile(corrupt, testutil.BuildRaw(raw), 0o600))

	tests := []struct {
		args []string
		want int
	}{
		{[]string{"extract", small}, exitTooSmall},
		{[]string{"list", huge}, exitTableExceedsFile},
		{[]string{"extract", corrupt}, exitCorruptEntry},
		{[]string{"list", filepath.Join(dir, "missing.wad")}, exitStorageOpen},
	}
	for _, tt := range tests {
		res := runCmd(t, tt.args...)
		require.Error(t, res.err, tt.args)
		assert.Equal(t, tt.want, exitCode(res.err), tt.args)
	}
	assert.NoDirExists(t, filepath.Join(dir, "small"))
	assert.NoDirExists(t, filepath.Join(dir, "corrupt"))
}

func TestRunExtractRejectsOtherExtensions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	raw := testutil.BuildRaw(testutil.Contiguous([]string{"a.txt"}, [][]byte{[]byte("a")}))
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, raw, 0o600))

	res := runCmd(t, "extract", notes)
	require.ErrorIs(t, res.err, wad.ErrNotAnArchive)
	assert.Equal(t, exitNotAnArchive, exitCode(res.err))
	assert.Contains(t, res.stderr, "Not a WAD file: "+notes)
	assert.NoDirExists(t, filepath.Join(dir, "notes"))

	upper := filepath.Join(dir, "PAK0.WAD")
	require.NoError(t, os.WriteFile(upper, raw, 0o600))
	res = runCmd(t, "extract", upper)
	require.NoError(t, res.err, res.stderr)
	assert.FileExists(t, filepath.Join(dir, "PAK0", "a.txt"))

	pak := filepath.Join(dir, "data.pak")
	require.NoError(t, os.WriteFile(pak, raw, 0o600))
	res = runCmd(t, "--extension", "pak", "extract", pak)
	require.NoError(t, res.err, res.stderr)
	assert.FileExists(t, filepath.Join(dir, "data", "a.txt"))
}

func TestRunUsageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"no paths", nil},
		{"unknown flag", []string{"--bogus", "x"}},
		{"pack without dir", []string{"pack"}},
		{"extract with two files", []string{"extract", "a.wad", "b.wad"}},
		{"list without file", []string{"list"}},
		{"watch without dir", []string{"watch"}},
		{"zero jobs", []string{"-j", "0", "x"}},
		{"bad log level", []string{"--log-level", "loud", "x"}},
		{"unknown codepage", []string{"--codepage", "klingon", "x"}},
		{"output in drop mode", []string{"-o", "out", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := runCmd(t, tt.args...)
			require.Error(t, res.err)
			assert.Equal(t, exitUsage, exitCode(res.err), res.err.Error())
		})
	}
}

func TestRunWatchRequiresDirectory(t *testing.T) {
	t.Parallel()

	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0o600))

	assert.Equal(t, exitUsage, exitCode(runCmd(t, "watch", f).err))
	assert.Equal(t, exitStorageOpen, exitCode(runCmd(t, "watch", f+"-missing").err))
}

func TestRunHelp(t *testing.T) {
	t.Parallel()

	res := runCmd(t, "--help")
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "Usage:")
	assert.Contains(t, res.stderr, "--exclude")
}

func TestRunConfigFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	testutil.WriteTree(t, src, map[string][]byte{
		"keep.txt":  []byte("k"),
		"skip.tmp":  []byte("s"),
		"deep/x.md": []byte("x"),
	})
	cfg := writeConfig(t, "extension: pak\nexclude: [\"*.tmp\"]\n")

	res := runCmd(t, "--config", cfg, "--exclude", "deep", "pack", src)
	require.NoError(t, res.err, res.stderr)

	a, err := wad.Open(filepath.Join(dir, "src.pak"))
	require.NoError(t, err)
	defer a.Close()
	require.Equal(t, 1, a.Len())
	assert.Equal(t, "keep.txt", a.Entry(0).Name)
}
