//go:build integration

package integration

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/partialzip"
)

func TestNginx_ProbeRangeSupport(t *testing.T) {
	t.Parallel()
	base := getServer(t)

	ok, err := newTestEngine(t).ProbeRangeSupport(context.Background(), base+"/sample.zip")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNginx_List(t *testing.T) {
	t.Parallel()
	base := getServer(t)

	infos, err := newTestEngine(t, partialzip.WithCheckRange()).List(context.Background(), base+"/sample.zip")
	require.NoError(t, err)
	require.Len(t, infos, len(fixtureFiles))
	for i, f := range fixtureFiles {
		assert.Equal(t, f.Name, infos[i].Name)
		assert.Equal(t, uint64(len(f.Data)), infos[i].UncompressedSize)
	}
}

func TestNginx_DownloadEveryMethod(t *testing.T) {
	t.Parallel()
	base := getServer(t)
	engine := newTestEngine(t)

	for _, f := range fixtureFiles[:4] {
		t.Run(f.Name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			n, err := engine.Download(context.Background(), base+"/sample.zip", f.Name, &out)
			require.NoError(t, err)
			assert.Equal(t, int64(len(f.Data)), n)
			assert.True(t, bytes.Equal(f.Data, out.Bytes()), "content mismatch for %s", f.Name)
		})
	}
}

func TestNginx_DownloadFile(t *testing.T) {
	t.Parallel()
	base := getServer(t)

	path := filepath.Join(t.TempDir(), "zstd.bin")
	result, err := newTestEngine(t).DownloadFile(context.Background(), base+"/sample.zip", "data/zstd.bin", path)
	require.NoError(t, err)
	assert.Equal(t, digest.FromBytes(fixtureFiles[3].Data), result.Digest)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, len(fixtureFiles[3].Data), len(got))
}

func TestNginx_Zip64(t *testing.T) {
	t.Parallel()
	base := getServer(t)

	var out bytes.Buffer
	_, err := newTestEngine(t).Download(context.Background(), base+"/zip64.zip", "inner.txt", &out)
	require.NoError(t, err)
	assert.Equal(t, "zip64 over nginx", out.String())
}

func TestNginx_Concurrent(t *testing.T) {
	t.Parallel()
	base := getServer(t)
	engine := newTestEngine(t)

	g, ctx := errgroup.WithContext(context.Background())
	for i := range 16 {
		f := fixtureFiles[i%4]
		g.Go(func() error {
			var out bytes.Buffer
			if _, err := engine.Download(ctx, base+"/sample.zip", f.Name, &out); err != nil {
				return err
			}
			if !bytes.Equal(f.Data, out.Bytes()) {
				return assert.AnError
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestNginx_Errors(t *testing.T) {
	t.Parallel()
	base := getServer(t)
	engine := newTestEngine(t, partialzip.WithRetries(0))

	tests := []struct {
		name    string
		url     string
		entry   string
		wantErr error
	}{
		{name: "missing archive", url: base + "/missing.zip", entry: "readme.txt", wantErr: partialzip.ErrTransport},
		{name: "not a zip", url: base + "/not-a-zip.zip", entry: "readme.txt", wantErr: partialzip.ErrNotAZip},
		{name: "missing entry", url: base + "/sample.zip", entry: "nope.txt", wantErr: partialzip.ErrEntryNotFound},
		{name: "directory entry", url: base + "/sample.zip", entry: "data/", wantErr: partialzip.ErrEntryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			_, err := engine.Download(context.Background(), tt.url, tt.entry, &out)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, out.Len())
		})
	}
}
