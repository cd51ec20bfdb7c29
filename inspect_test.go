package partialzip

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/partialzip/internal/testutil"
)

func TestInspect(t *testing.T) {
	t.Parallel()

	data := testutil.BuildZip(t, sampleFiles(), "release build")
	server := testutil.NewBytesServer(t, data)
	e := newTestEngine(t)

	result, err := e.Inspect(context.Background(), server.ArchiveURL())
	require.NoError(t, err)

	assert.Equal(t, server.ArchiveURL(), result.URL())
	assert.Equal(t, int64(len(data)), result.Size())
	assert.Equal(t, "release build", result.Comment())
	assert.False(t, result.Zip64())
	assert.Len(t, result.Entries(), 6)
	assert.Equal(t, 5, result.FileCount())
	assert.Less(t, result.DirectoryOffset(), uint64(len(data)))
	assert.Positive(t, result.DirectorySize())

	var wantU, wantC uint64
	for _, entry := range result.Entries() {
		wantU += entry.UncompressedSize
		wantC += entry.CompressedSize
	}
	assert.Equal(t, wantU, result.TotalUncompressedSize())
	assert.Equal(t, wantC, result.TotalCompressedSize())
	assert.InDelta(t, float64(wantC)/float64(wantU), result.CompressionRatio(), 1e-9)
	assert.Less(t, result.CompressionRatio(), 1.0)
}

func TestInspectResultEmpty(t *testing.T) {
	t.Parallel()

	result := &InspectResult{}
	assert.Equal(t, 0, result.FileCount())
	assert.Zero(t, result.TotalUncompressedSize())
	assert.InDelta(t, 1.0, result.CompressionRatio(), 0)
}

func TestInspectZip64(t *testing.T) {
	t.Parallel()

	archive := testutil.NewBuilder(t).
		ForceZip64().
		Add(testutil.File{Name: "a.txt", Data: []byte("alpha"), Method: testutil.Deflate}).
		Add(testutil.File{Name: "b.txt", Data: []byte("bravo"), Method: testutil.Zstd}).
		Finish("")
	server := testutil.NewBytesServer(t, archive.Bytes())
	e := newTestEngine(t)

	result, err := e.Inspect(context.Background(), server.ArchiveURL())
	require.NoError(t, err)
	assert.True(t, result.Zip64())
	assert.Len(t, result.Entries(), 2)

	var out bytes.Buffer
	_, err = e.Download(context.Background(), server.ArchiveURL(), "b.txt", &out)
	require.NoError(t, err)
	assert.Equal(t, "bravo", out.String())
}
