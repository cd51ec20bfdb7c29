package main

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"charm.land/bubbles/v2/progress"
	"github.com/dustin/go-humanize"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/partialzip"
	"github.com/meigma/partialzip/internal/testutil"
)

var cliFiles = []testutil.File{
	{Name: "1.txt", Data: []byte("Hello 1"), Method: testutil.Store},
	{Name: "2.txt", Data: []byte("Hello 2"), Method: testutil.Deflate},
	{Name: "nested/", Method: testutil.Store},
	{Name: "nested/3.txt", Data: []byte(strings.Repeat("Hello 3\n", 100)), Method: testutil.Zstd},
}

func runCLI(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), append([]string{"--retries", "0"}, args...), &out, &errOut)
	return out.String(), errOut.String(), code
}

func TestList(t *testing.T) {
	t.Parallel()

	archive := testutil.BuildZip(t, cliFiles, "")
	server := testutil.NewBytesServer(t, archive)

	stdout, stderr, code := runCLI(t, "list", server.ArchiveURL())
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, "1.txt\n2.txt\nnested/\nnested/3.txt\n", stdout)

	// Detailed mode shows the compressed size of each entry.
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	var want strings.Builder
	for _, f := range zr.File {
		fmt.Fprintf(&want, "%s - %s - Supported: true\n", f.Name, humanize.Bytes(f.CompressedSize64))
	}
	zstd := zr.File[3]
	require.Less(t, zstd.CompressedSize64, zstd.UncompressedSize64)

	stdout, stderr, code = runCLI(t, "-r", "list", "-d", server.ArchiveURL())
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, want.String(), stdout)
	assert.NotContains(t, stdout, "800 B")
}

func TestDownload(t *testing.T) {
	t.Parallel()

	server := testutil.NewBytesServer(t, testutil.BuildZip(t, cliFiles, ""))
	output := filepath.Join(t.TempDir(), "3.txt")

	stdout, stderr, code := runCLI(t, "download", server.ArchiveURL(), "nested/3.txt", output)
	require.Equal(t, exitOK, code, stderr)

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, cliFiles[3].Data, got)
	assert.Contains(t, stdout, "nested/3.txt extracted to "+output)
	assert.Contains(t, stdout, digest.FromBytes(cliFiles[3].Data).String())
	assert.Empty(t, stderr, "no progress bar when stderr is not a terminal")

	_, stderr, code = runCLI(t, "download", server.ArchiveURL(), "1.txt", output)
	assert.Equal(t, exitOutputExists, code)
	assert.Contains(t, stderr, "exists")
	got, err = os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, cliFiles[3].Data, got, "existing output is untouched")

	_, stderr, code = runCLI(t, "download", "--force", server.ArchiveURL(), "1.txt", output)
	require.Equal(t, exitOK, code, stderr)
	got, err = os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "Hello 1", string(got))
}

func TestExtract(t *testing.T) {
	t.Parallel()

	server := testutil.NewBytesServer(t, testutil.BuildZip(t, cliFiles, ""))
	dir := t.TempDir()

	stdout, stderr, code := runCLI(t, "extract", server.ArchiveURL(), dir, "1.txt", "nested/3.txt")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "1.txt extracted to "+filepath.Join(dir, "1.txt"))
	assert.Contains(t, stdout, "nested/3.txt extracted to "+filepath.Join(dir, "3.txt"))

	got, err := os.ReadFile(filepath.Join(dir, "3.txt"))
	require.NoError(t, err)
	assert.Equal(t, cliFiles[3].Data, got)

	_, _, code = runCLI(t, "extract", server.ArchiveURL(), dir, "1.txt")
	assert.Equal(t, exitOutputExists, code)

	_, _, code = runCLI(t, "extract", server.ArchiveURL(), dir)
	assert.Equal(t, exitUsage, code)
}

func TestPipe(t *testing.T) {
	t.Parallel()

	server := testutil.NewBytesServer(t, testutil.BuildZip(t, cliFiles, ""))

	stdout, stderr, code := runCLI(t, "pipe", server.ArchiveURL(), "2.txt")
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, "Hello 2", stdout)

	stdout, stderr, code = runCLI(t, "pipe", "--verify-first", server.ArchiveURL(), "nested/3.txt")
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, string(cliFiles[3].Data), stdout)
}

func TestExitCodes(t *testing.T) {
	t.Parallel()

	archive := testutil.BuildZip(t, cliFiles, "")
	server := testutil.NewBytesServer(t, archive)
	noRanges := testutil.NewBytesServer(t, archive, testutil.WithoutRanges())
	garbage := testutil.NewBytesServer(t, bytes.Repeat([]byte("garbage"), 64))

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "missing entry", args: []string{"pipe", server.ArchiveURL(), "nope.txt"}, want: exitEntryNotFound},
		{name: "directory entry", args: []string{"pipe", server.ArchiveURL(), "nested/"}, want: exitEntryNotFound},
		{name: "not a zip", args: []string{"list", garbage.ArchiveURL()}, want: exitNotAZip},
		{name: "ranges ignored", args: []string{"list", noRanges.ArchiveURL()}, want: exitRangeNotSupported},
		{name: "range check", args: []string{"-r", "list", noRanges.ArchiveURL()}, want: exitRangeNotSupported},
		{name: "invalid scheme", args: []string{"list", "gopher://example.com/a.zip"}, want: exitInvalidURL},
		{name: "http error", args: []string{"list", server.URL + "/missing.zip"}, want: exitTransport},
		{name: "missing argument", args: []string{"pipe", server.ArchiveURL()}, want: exitUsage},
		{name: "unknown flag", args: []string{"list", "--bogus", server.ArchiveURL()}, want: exitUsage},
		{name: "malformed header", args: []string{"-H", "no-colon", "list", server.ArchiveURL()}, want: exitUsage},
		{name: "malformed user", args: []string{"--user", "alice", "list", server.ArchiveURL()}, want: exitUsage},
		{name: "bad log level", args: []string{"--log-level", "loud", "list", server.ArchiveURL()}, want: exitUsage},
		{name: "negative retries", args: []string{"--retries", "-1", "list", server.ArchiveURL()}, want: exitUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stdout, stderr, code := runCLI(t, tt.args...)
			assert.Equal(t, tt.want, code, "stderr: %s", stderr)
			assert.NotEmpty(t, stderr)
			assert.Empty(t, stdout)
		})
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitError, exitCode(errors.New("boom")))
	assert.Equal(t, exitUsage, exitCode(&usageError{errors.New("bad flag")}))
	assert.Equal(t, exitIntegrityCheckFailed, exitCode(fmt.Errorf("download: %w", partialzip.ErrIntegrityCheckFailed)))
	assert.Equal(t, exitShortRead, exitCode(fmt.Errorf("%w: truncated", partialzip.ErrShortRead)))
	assert.Equal(t, exitUnsupportedCompression, exitCode(partialzip.ErrUnsupportedCompression))
	assert.Equal(t, exitCorruptDirectory, exitCode(partialzip.ErrCorruptDirectory))
}

func TestHeadersAndAuthReachServer(t *testing.T) {
	t.Parallel()

	archive := testutil.BuildZip(t, cliFiles, "")
	server := testutil.NewBytesServer(t, archive)

	_, stderr, code := runCLI(t, "-H", "X-Trace: abc", "--user", "alice:secret", "list", server.ArchiveURL())
	require.Equal(t, exitOK, code, stderr)

	headers := server.Headers()
	require.NotEmpty(t, headers)
	for _, h := range headers {
		assert.Equal(t, "abc", h.Get("X-Trace"))
		user, password, ok := (&nethttp.Request{Header: h}).BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "secret", password)
	}
}

func TestDebugLogging(t *testing.T) {
	t.Parallel()

	server := testutil.NewBytesServer(t, testutil.BuildZip(t, cliFiles, ""))

	_, stderr, code := runCLI(t, "--log-level", "debug", "--log-json", "list", server.ArchiveURL())
	require.Equal(t, exitOK, code)
	assert.Contains(t, stderr, `"msg":"read central directory"`)
}

func TestRenderProgress(t *testing.T) {
	t.Parallel()

	model := progress.New(progress.WithWidth(20))

	line := renderProgress(model, partialzip.ProgressEvent{Stage: partialzip.StageFetchingDirectory})
	assert.Contains(t, line, "fetching directory...")

	line = renderProgress(model, partialzip.ProgressEvent{
		Stage:      partialzip.StageDownloading,
		BytesDone:  1500,
		BytesTotal: 3000,
	})
	assert.Contains(t, line, "1.5 kB / 3.0 kB")
}

func TestNewProgressBarRequiresTerminal(t *testing.T) {
	t.Parallel()

	assert.Nil(t, newProgressBar(&bytes.Buffer{}, true))
	assert.Nil(t, newProgressBar(os.Stderr, false))
}
