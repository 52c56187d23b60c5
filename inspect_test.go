package wad

import (
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/node91/OpenWAD/internal/testutil"
)

func TestInspectContiguous(t *testing.T) {
	t.Parallel()

	raw, err := NewWriter().Bytes([]Item{
		{Name: "a.txt", Data: []byte("hi\n")},
		{Name: `sub\b.bin`},
	})
	require.NoError(t, err)
	a, err := Parse(raw)
	require.NoError(t, err)

	r, err := Inspect(a)
	require.NoError(t, err)
	assert.Equal(t, int64(279), r.Size)
	assert.Equal(t, int64(276), r.TableEnd)
	assert.Equal(t, uint64(3), r.PayloadBytes)
	assert.Zero(t, r.Unreferenced)
	assert.Empty(t, r.Overlaps)

	require.Len(t, r.Entries, 2)
	assert.Equal(t, digest.FromBytes([]byte("hi\n")), r.Entries[0].Digest)
	assert.Equal(t, digest.FromBytes(nil), r.Entries[1].Digest)
	assert.Equal(t, digest.SHA256, r.Entries[0].Digest.Algorithm())
}

func TestInspectOverlapsAndGaps(t *testing.T) {
	t.Parallel()

	// Table ends at 412 and the payload region is 20 bytes. Entries 0 and
	// 2 share bytes 414..415, entry 1 is empty inside entry 0 and bytes
	// 420..431 are referenced by nothing.
	raw := testutil.BuildRaw(testutil.RawArchive{
		Entries: []testutil.RawEntry{
			{Name: []byte("a"), DataOffset: 412, DataSize: 4},
			{Name: []byte("b"), DataOffset: 413, DataSize: 0},
			{Name: []byte("c"), DataOffset: 414, DataSize: 6},
		},
		Payload: make([]byte, 20),
	})
	a, err := Parse(raw)
	require.NoError(t, err)

	r, err := Inspect(a, InspectWithDigests(false))
	require.NoError(t, err)
	assert.Equal(t, []Overlap{{First: 0, Second: 2}}, r.Overlaps)
	assert.Equal(t, uint64(10), r.PayloadBytes)
	assert.Equal(t, uint64(12), r.Unreferenced)
	assert.Empty(t, r.Entries[0].Digest)
}

func TestInspectNestedOverlaps(t *testing.T) {
	t.Parallel()

	raw := testutil.BuildRaw(testutil.RawArchive{
		Entries: []testutil.RawEntry{
			{Name: []byte("inner"), DataOffset: 416, DataSize: 2},
			{Name: []byte("outer"), DataOffset: 412, DataSize: 10},
			{Name: []byte("tail"), DataOffset: 421, DataSize: 3},
		},
		Payload: make([]byte, 12),
	})
	a, err := Parse(raw)
	require.NoError(t, err)

	r, err := Inspect(a, InspectWithAlgorithm(digest.SHA512))
	require.NoError(t, err)
	assert.Equal(t, []Overlap{{First: 0, Second: 1}, {First: 1, Second: 2}}, r.Overlaps)
	assert.Zero(t, r.Unreferenced)
	assert.Equal(t, digest.SHA512, r.Entries[0].Digest.Algorithm())
}
