//go:build integration

package integration

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meigma/partialzip"
	"github.com/meigma/partialzip/internal/testutil"
)

const htmlRoot = "/usr/share/nginx/html/"

// --- Fixtures ---

// fixtureFiles are the members of sample.zip.
var fixtureFiles = []testutil.File{
	{Name: "readme.txt", Data: []byte("served by nginx"), Method: testutil.Store},
	{Name: "data/compressible.txt", Data: makeCompressibleContent(256 << 10), Method: testutil.Deflate},
	{Name: "data/bzip2.txt", Data: makeCompressibleContent(64 << 10), Method: testutil.Bzip2},
	{Name: "data/zstd.bin", Data: makeRandomContent(512 << 10), Method: testutil.Zstd},
	{Name: "data/", Method: testutil.Store},
}

// writeFixtures writes every served archive into dir and returns their names.
func writeFixtures(tb testing.TB, dir string) []string {
	tb.Helper()

	archives := map[string][]byte{
		"sample.zip": testutil.BuildZip(tb, fixtureFiles, "integration fixture"),
		"zip64.zip": testutil.NewBuilder(tb).
			ForceZip64().
			Add(testutil.File{Name: "inner.txt", Data: []byte("zip64 over nginx"), Method: testutil.Deflate}).
			Finish("").
			Bytes(),
		"not-a-zip.zip": makeCompressibleContent(4096),
	}

	names := make([]string, 0, len(archives))
	for name, data := range archives {
		require.NoError(tb, os.WriteFile(filepath.Join(dir, name), data, 0o644)) //nolint:gosec // served files must be world readable
		names = append(names, name)
	}
	return names
}

// --- Nginx Container Setup ---

var (
	nginxOnce sync.Once
	nginxURL  string
	nginxErr  error
)

// getServer returns the shared nginx base URL, starting the container if needed.
// The container is shared across all tests for performance.
func getServer(tb testing.TB) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	nginxOnce.Do(func() {
		dir, err := os.MkdirTemp("", "partialzip-integration-*")
		if err != nil {
			nginxErr = err
			return
		}
		names := writeFixtures(tb, dir)
		nginxURL, nginxErr = startNginxContainer(context.Background(), dir, names)
	})

	if nginxErr != nil {
		tb.Fatalf("start nginx container: %v", nginxErr)
	}

	return nginxURL
}

// startNginxContainer starts nginx serving the named files from dir and
// returns its base URL.
func startNginxContainer(ctx context.Context, dir string, names []string) (string, error) {
	files := make([]testcontainers.ContainerFile, 0, len(names))
	for _, name := range names {
		files = append(files, testcontainers.ContainerFile{
			HostFilePath:      filepath.Join(dir, name),
			ContainerFilePath: htmlRoot + name,
			FileMode:          0o644,
		})
	}

	req := testcontainers.ContainerRequest{
		Image:        "nginx:1.27-alpine",
		ExposedPorts: []string{"80/tcp"},
		Files:        files,
		WaitingFor:   wait.ForHTTP("/sample.zip").WithPort("80/tcp").WithStartupTimeout(time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start nginx container: %w", err)
	}

	// Container cleanup is handled by the testcontainers Reaper.

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve nginx host: %w", err)
	}

	port, err := container.MappedPort(ctx, "80/tcp")
	if err != nil {
		return "", fmt.Errorf("resolve nginx port: %w", err)
	}

	return fmt.Sprintf("http://%s:%s", host, port.Port()), nil
}

// --- Test Engine Factory ---

// newTestEngine creates an engine with short retry delays.
func newTestEngine(tb testing.TB, opts ...partialzip.Option) *partialzip.Engine {
	tb.Helper()

	allOpts := append([]partialzip.Option{
		partialzip.WithRetryBackoff(10*time.Millisecond, 100*time.Millisecond),
	}, opts...)

	engine, err := partialzip.New(allOpts...)
	require.NoError(tb, err, "create test engine")

	return engine
}

// --- Test Data Helpers ---

// makeCompressibleContent creates content that benefits from compression.
func makeCompressibleContent(size int) []byte {
	pattern := []byte("This is a repeating pattern for compression testing. ")
	result := make([]byte, 0, size)
	for len(result) < size {
		result = append(result, pattern...)
	}
	return result[:size]
}

// makeRandomContent creates random binary content.
func makeRandomContent(size int) []byte {
	data := make([]byte, size)
	_, _ = rand.Read(data)
	return data
}
