package partialzip

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"runtime"
	"strings"
	"testing"

	"github.com/meigma/partialzip/internal/testutil"
)

var (
	benchSinkInt   int64
	benchSinkInfos []EntryInfo
	errBenchSink   error //nolint:errname // not a sentinel error, just a sink variable
)

type benchPattern string

const (
	benchPatternCompressible benchPattern = "compressible"
	benchPatternRandom       benchPattern = "random"
)

func init() {
	if os.Getenv("PARTIALZIP_PROFILE_BLOCK") == "1" {
		runtime.SetBlockProfileRate(1)
	}
	if os.Getenv("PARTIALZIP_PROFILE_MUTEX") == "1" {
		runtime.SetMutexProfileFraction(1)
	}
}

func benchData(pattern benchPattern, size int, seed int64) []byte {
	if pattern == benchPatternCompressible {
		line := "the quick brown fox jumps over the lazy dog\n"
		return []byte(strings.Repeat(line, size/len(line)+1)[:size])
	}
	buf := make([]byte, size)
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic benchmark data
	rng.Read(buf)
	return buf
}

func newBenchEngine(b *testing.B) *Engine {
	b.Helper()
	e, err := New()
	if err != nil {
		b.Fatal(err)
	}
	return e
}

func BenchmarkList(b *testing.B) {
	for _, count := range []int{10, 1000, 10000} {
		b.Run(fmt.Sprintf("entries=%d", count), func(b *testing.B) {
			files := make([]testutil.File, count)
			for i := range files {
				files[i] = testutil.File{
					Name:   fmt.Sprintf("dir%02d/file%05d.txt", i%16, i),
					Data:   []byte("x"),
					Method: testutil.Store,
				}
			}
			srv := testutil.NewBytesServer(b, testutil.BuildZip(b, files, ""))
			e := newBenchEngine(b)
			ctx := context.Background()

			b.ReportAllocs()
			b.ResetTimer()
			for b.Loop() {
				benchSinkInfos, errBenchSink = e.List(ctx, srv.ArchiveURL())
				if errBenchSink != nil {
					b.Fatal(errBenchSink)
				}
			}
		})
	}
}

func BenchmarkDownload(b *testing.B) {
	cases := []struct {
		name    string
		method  uint16
		size    int
		pattern benchPattern
	}{
		{"store/1MiB", testutil.Store, 1 << 20, benchPatternRandom},
		{"deflate/1MiB/compressible", testutil.Deflate, 1 << 20, benchPatternCompressible},
		{"deflate/1MiB/random", testutil.Deflate, 1 << 20, benchPatternRandom},
		{"bzip2/1MiB/compressible", testutil.Bzip2, 1 << 20, benchPatternCompressible},
		{"zstd/1MiB/compressible", testutil.Zstd, 1 << 20, benchPatternCompressible},
		{"zstd/16MiB/random", testutil.Zstd, 16 << 20, benchPatternRandom},
	}

	for _, bc := range cases {
		b.Run(bc.name, func(b *testing.B) {
			data := benchData(bc.pattern, bc.size, 1)
			archive := testutil.BuildZip(b, []testutil.File{
				{Name: "small.txt", Data: []byte("small"), Method: testutil.Store},
				{Name: "payload.bin", Data: data, Method: bc.method},
			}, "")
			srv := testutil.NewBytesServer(b, archive)
			e := newBenchEngine(b)
			ctx := context.Background()

			b.SetBytes(int64(bc.size))
			b.ReportAllocs()
			b.ResetTimer()
			for b.Loop() {
				benchSinkInt, errBenchSink = e.Download(ctx, srv.ArchiveURL(), "payload.bin", io.Discard)
				if errBenchSink != nil {
					b.Fatal(errBenchSink)
				}
			}
		})
	}
}

func BenchmarkDownloadVerifyFirst(b *testing.B) {
	data := benchData(benchPatternCompressible, 4<<20, 1)
	archive := testutil.BuildZip(b, []testutil.File{
		{Name: "payload.txt", Data: data, Method: testutil.Deflate},
	}, "")
	srv := testutil.NewBytesServer(b, archive)
	e := newBenchEngine(b)
	ctx := context.Background()

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for b.Loop() {
		benchSinkInt, errBenchSink = e.Download(ctx, srv.ArchiveURL(), "payload.txt", io.Discard, WithVerifyBeforeWrite())
		if errBenchSink != nil {
			b.Fatal(errBenchSink)
		}
	}
}
