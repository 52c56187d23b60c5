package wad

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/node91/OpenWAD/internal/testutil"
)

func TestPackConcreteLayout(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "assets")
	testutil.WriteTree(t, src, map[string][]byte{
		"a.txt":     []byte("hi\n"),
		"sub/b.bin": {},
	})

	console := &recordConsole{}
	stats, err := Pack(context.Background(), src, PackWithConsole(console))
	require.NoError(t, err)

	assert.Equal(t, src+".wad", stats.Archive)
	assert.Equal(t, 2, stats.FileCount)
	assert.Equal(t, uint64(279), stats.ArchiveSize)
	assert.Equal(t, uint64(3), stats.TotalBytes)

	raw, err := os.ReadFile(stats.Archive)
	require.NoError(t, err)
	want := testutil.BuildRaw(testutil.Contiguous(
		[]string{"a.txt", `sub\b.bin`},
		[][]byte{[]byte("hi\n"), {}},
	))
	assert.Equal(t, want, raw)

	a, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(276), a.Entry(0).DataOffset)
	assert.Equal(t, uint32(3), a.Entry(0).DataSize)
	assert.Equal(t, uint32(279), a.Entry(1).DataOffset)
	assert.Equal(t, uint32(0), a.Entry(1).DataSize)

	wantLines := []string{
		"Reading folder contents...",
		"2 files found",
		"Collecting files completed",
		"Packing...",
		"Packing: a.txt",
		`Packing: sub\b.bin`,
		"Packing complete.",
	}
	if diff := cmp.Diff(wantLines, console.lines[:len(wantLines)]); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, console.confirms)
}

func TestPackLexicalOrder(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "src")
	testutil.WriteTree(t, src, map[string][]byte{
		"b.txt":      []byte("b"),
		"a/z.txt":    []byte("z"),
		"a/b/c.txt":  []byte("c"),
		"B.txt":      []byte("B"),
		"a.txt":      []byte("a"),
		"a/b/d/e.go": []byte("e"),
	})

	stats, err := Pack(context.Background(), src)
	require.NoError(t, err)

	a, err := Open(stats.Archive)
	require.NoError(t, err)
	defer a.Close()

	var names []string
	for _, e := range a.Entries() {
		names = append(names, e.Name)
	}
	want := []string{"B.txt", `a\b\c.txt`, `a\b\d\e.go`, `a\z.txt`, "a.txt", "b.txt"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("entry order mismatch (-want +got):\n%s", diff)
	}
}

func TestPackEmptyDirectory(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "only", "dirs"), 0o750))

	console := &recordConsole{}
	_, err := Pack(context.Background(), src, PackWithConsole(console))
	require.ErrorIs(t, err, ErrNoFiles)
	assert.True(t, IsInformational(err))
	assert.Contains(t, console.lines, "Folder contains no files.")
	assert.Empty(t, console.errs)
	assert.NoFileExists(t, src+".wad")
}

func TestPackExclude(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "src")
	testutil.WriteTree(t, src, map[string][]byte{
		"keep.txt":          []byte("k"),
		".DS_Store":         []byte("x"),
		"sub/.DS_Store":     []byte("x"),
		"build/out.o":       []byte("o"),
		"build/deep/more.o": []byte("o"),
		"src/main.go":       []byte("m"),
	})

	stats, err := Pack(context.Background(), src, PackWithExclude("**/.DS_Store", "build"))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FileCount)

	dest := filepath.Join(t.TempDir(), "out")
	_, err = Extract(context.Background(), stats.Archive, ExtractWithDestination(dest))
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		"keep.txt":    []byte("k"),
		"src/main.go": []byte("m"),
	}, testutil.ReadTree(t, dest))
}

func TestPackBadExcludePattern(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.WriteTree(t, src, map[string][]byte{"a": {}})
	console := &recordConsole{}
	_, err := Pack(context.Background(), src, PackWithExclude("[unclosed"), PackWithConsole(console))
	require.Error(t, err)
	assert.Len(t, console.errs, 1)
}

func TestPackSkipsUnencodableNames(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "src")
	testutil.WriteTree(t, src, map[string][]byte{
		"plain.txt": []byte("p"),
		"日本.txt":    []byte("j"),
		"café.txt":  []byte("c"),
	})

	console := &recordConsole{}
	stats, err := Pack(context.Background(), src, PackWithConsole(console))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FileCount)
	assert.Equal(t, 1, stats.Skipped)
	assert.Contains(t, console.lines, "Skipping unreadable path: "+filepath.Join(src, "日本.txt"))

	a, err := Open(stats.Archive)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "café.txt", a.Entry(0).Name)
	assert.Equal(t, []byte("caf\xe9.txt"), a.Entry(0).RawName)
	assert.Equal(t, "plain.txt", a.Entry(1).Name)
}

func TestPackOnlyUnencodableNames(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "src")
	testutil.WriteTree(t, src, map[string][]byte{"日本.txt": []byte("j")})

	stats, err := Pack(context.Background(), src)
	require.ErrorIs(t, err, ErrNoFiles)
	assert.Equal(t, 1, stats.Skipped)
	assert.NoFileExists(t, src+".wad")
}

func TestPackSkipsSymlinks(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	testutil.WriteTree(t, src, map[string][]byte{"real.txt": []byte("r")})
	testutil.WriteTree(t, dir, map[string][]byte{"outside.txt": []byte("secret")})
	require.NoError(t, os.Symlink(filepath.Join(dir, "outside.txt"), filepath.Join(src, "link.txt")))

	stats, err := Pack(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FileCount)

	raw, err := os.ReadFile(stats.Archive)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("secret")))
}

func TestPackOverwriteDeclined(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "src")
	testutil.WriteTree(t, src, map[string][]byte{"a.txt": []byte("a")})
	dest := src + ".wad"
	require.NoError(t, os.WriteFile(dest, []byte("previous"), 0o600))

	console := &recordConsole{}
	_, err := Pack(context.Background(), src, PackWithConsole(console))
	require.ErrorIs(t, err, ErrOverwriteDeclined)
	assert.Equal(t, []string{dest}, console.confirms)
	assert.Contains(t, console.lines, "Cancelled creating WAD")

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("previous"), got)
}

func TestPackOverwriteSkipConfirm(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "src")
	testutil.WriteTree(t, src, map[string][]byte{"a.txt": []byte("a")})
	dest := src + ".wad"
	require.NoError(t, os.WriteFile(dest, []byte("previous"), 0o600))

	console := &recordConsole{}
	stats, err := Pack(context.Background(), src,
		PackWithConsole(console),
		PackWithConfig(OperationConfig{SkipOverwriteConfirm: true}),
	)
	require.NoError(t, err)
	assert.Empty(t, console.confirms)

	a, err := Open(stats.Archive)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, 1, a.Len())
}

func TestPackMaxFiles(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "src")
	testutil.WriteTree(t, src, map[string][]byte{"a": {}, "b": {}, "c": {}})

	_, err := Pack(context.Background(), src, PackWithMaxFiles(2))
	require.ErrorIs(t, err, ErrTooManyFiles)
	assert.NoFileExists(t, src+".wad")

	_, err = Pack(context.Background(), src, PackWithMaxFiles(-1))
	require.NoError(t, err)
}

func TestPackDestinationOption(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "src")
	testutil.WriteTree(t, src, map[string][]byte{"a": []byte("a")})
	dest := filepath.Join(t.TempDir(), "custom.pak")

	stats, err := Pack(context.Background(), src, PackWithDestination(dest))
	require.NoError(t, err)
	assert.Equal(t, dest, stats.Archive)
	assert.FileExists(t, dest)
}

func TestPackMissingSource(t *testing.T) {
	t.Parallel()

	console := &recordConsole{}
	_, err := Pack(context.Background(), filepath.Join(t.TempDir(), "nope"), PackWithConsole(console))
	require.ErrorIs(t, err, ErrStorageOpen)
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Len(t, console.errs, 1)
}

func TestDefaultPackDestination(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		src  string
		ext  string
		want string
	}{
		{src: filepath.Join(dir, "maps"), ext: ".wad", want: filepath.Join(dir, "maps.wad")},
		{src: filepath.Join(dir, "maps.v2"), ext: ".wad", want: filepath.Join(dir, "maps.wad")},
		{src: filepath.Join(dir, ".hidden"), ext: ".wad", want: filepath.Join(dir, ".hidden.wad")},
		{src: filepath.Join(dir, "maps") + string(filepath.Separator), ext: ".pak", want: filepath.Join(dir, "maps.pak")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultPackDestination(tt.src, tt.ext), tt.src)
	}
}

func TestArchiveName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `a\b\c.txt`, ArchiveName("a/b/c.txt"))
	assert.Equal(t, "top", ArchiveName("top"))
}
