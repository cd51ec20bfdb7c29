// Command profiler drives repeated List and Download calls against an
// archive so the engine can be examined with pprof, fgprof, or the
// execution tracer.
package main

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand" //nolint:gosec // reproducible entry selection
	"net/http"
	_ "net/http/pprof" //nolint:gosec // profiling endpoint
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/felixge/fgprof"

	"github.com/meigma/partialzip"
	"github.com/meigma/partialzip/internal/testutil"
)

const localURL = "local"

type config struct {
	mode       string
	iterations int
	duration   time.Duration
	sequential bool
	seed       int64

	// Generated archive, used when url is "local".
	entries   int
	entrySize int
	method    string
	pattern   string

	url       string
	latency   time.Duration
	bandwidth int64

	out outputs
}

// outputs names the profile destinations; empty fields are disabled.
type outputs struct {
	listen string
	cpu    string
	heap   string
	wall   string
	trace  string
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

func (s profileStats) String() string {
	mbps := float64(s.bytes) / (1 << 20) / s.elapsed.Seconds()
	return fmt.Sprintf("ops=%d bytes=%d elapsed=%s throughput=%.2f MB/s", s.ops, s.bytes, s.elapsed, mbps)
}

//nolint:unused // keeps results observable to the compiler
var (
	sinkCount int
	sinkBytes int64
)

func main() {
	cfg := parseFlags()
	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

//nolint:gocritic // hugeParam acceptable for profiler config
func run(cfg config) error {
	if cfg.out.listen != "" {
		go func() {
			log.Printf("pprof listening on %s", cfg.out.listen)
			//nolint:gosec // profiling endpoint without timeouts
			if err := http.ListenAndServe(cfg.out.listen, nil); err != nil {
				log.Printf("pprof server: %v", err)
			}
		}()
	}

	data, names, err := buildArchive(cfg)
	if err != nil {
		return err
	}
	url, cleanup, err := archiveURL(cfg, data)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	engine, err := partialzip.New(partialzip.WithHTTPClient(newHTTPClient(cfg)))
	if err != nil {
		return err
	}
	if cfg.url != localURL {
		if names, err = extractable(engine, url); err != nil {
			return err
		}
	}

	stop, err := startProfiles(cfg.out)
	if err != nil {
		return err
	}
	stats, err := runProfile(cfg, engine, url, names)
	stop()
	if err != nil {
		return err
	}
	if err := writeHeapProfile(cfg.out.heap); err != nil {
		return err
	}

	fmt.Printf("mode=%s %s\n", cfg.mode, stats)
	return nil
}

// extractable lists the entries of a remote archive that Download accepts.
func extractable(engine *partialzip.Engine, url string) ([]string, error) {
	infos, err := engine.List(context.Background(), url)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, info := range infos {
		if !info.IsDir && info.Supported {
			names = append(names, info.Name)
		}
	}
	return names, nil
}

// startProfiles begins every configured collector and returns a function
// that stops them in reverse order.
func startProfiles(out outputs) (func(), error) {
	var stops []func()
	stopAll := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	collectors := []struct {
		path  string
		start func(io.Writer) (func(), error)
	}{
		{out.wall, func(w io.Writer) (func(), error) {
			stop := fgprof.Start(w, fgprof.FormatPprof)
			return func() {
				if err := stop(); err != nil {
					log.Printf("fgprof: %v", err)
				}
			}, nil
		}},
		{out.cpu, func(w io.Writer) (func(), error) {
			if err := pprof.StartCPUProfile(w); err != nil {
				return nil, err
			}
			return pprof.StopCPUProfile, nil
		}},
		{out.trace, func(w io.Writer) (func(), error) {
			if err := trace.Start(w); err != nil {
				return nil, err
			}
			return trace.Stop, nil
		}},
	}

	for _, c := range collectors {
		if c.path == "" {
			continue
		}
		f, err := os.Create(c.path)
		if err != nil {
			stopAll()
			return nil, err
		}
		stop, err := c.start(f)
		if err != nil {
			_ = f.Close()
			stopAll()
			return nil, fmt.Errorf("start profile %s: %w", c.path, err)
		}
		stops = append(stops, func() {
			stop()
			_ = f.Close()
		})
	}
	return stopAll, nil
}

func writeHeapProfile(path string) error {
	if path == "" {
		return nil
	}
	runtime.GC()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pprof.WriteHeapProfile(f)
}

// operation returns the per-iteration work for mode.
func operation(mode string, engine *partialzip.Engine, url string) (func(context.Context, string) (int64, error), error) {
	download := func(opts ...partialzip.DownloadOption) func(context.Context, string) (int64, error) {
		return func(ctx context.Context, name string) (int64, error) {
			n, err := engine.Download(ctx, url, name, io.Discard, opts...)
			sinkBytes = n
			return n, err
		}
	}
	switch mode {
	case "list":
		return func(ctx context.Context, _ string) (int64, error) {
			infos, err := engine.List(ctx, url)
			sinkCount = len(infos)
			return 0, err
		}, nil
	case "download":
		return download(), nil
	case "download-verify-first":
		return download(partialzip.WithVerifyBeforeWrite()), nil
	default:
		return nil, fmt.Errorf("unknown mode: %s", mode)
	}
}

//nolint:gocritic // hugeParam acceptable for profiler config
func runProfile(cfg config, engine *partialzip.Engine, url string, names []string) (profileStats, error) {
	if len(names) == 0 {
		return profileStats{}, fmt.Errorf("archive at %s has no extractable entries", url)
	}
	op, err := operation(cfg.mode, engine, url)
	if err != nil {
		return profileStats{}, err
	}

	ctx := context.Background()
	rng := rand.New(rand.NewSource(cfg.seed)) //nolint:gosec // reproducible entry selection
	var stats profileStats
	start := time.Now()
	for {
		if cfg.iterations > 0 && stats.ops >= cfg.iterations {
			break
		}
		if cfg.iterations <= 0 && time.Since(start) >= cfg.duration {
			break
		}

		name := names[stats.ops%len(names)]
		if !cfg.sequential {
			name = names[rng.Intn(len(names))]
		}
		n, err := op(ctx, name)
		if err != nil {
			return profileStats{}, fmt.Errorf("%s %s: %w", cfg.mode, name, err)
		}
		stats.bytes += n
		stats.ops++
	}
	stats.elapsed = time.Since(start)
	return stats, nil
}

func parseFlags() config {
	var cfg config
	var bandwidth string
	flag.StringVar(&cfg.mode, "mode", "download", "list, download, or download-verify-first")
	flag.IntVar(&cfg.iterations, "iterations", 0, "operations to run (0 runs for -duration)")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "how long to run when -iterations is 0")
	flag.BoolVar(&cfg.sequential, "sequential", false, "visit entries in directory order")
	flag.Int64Var(&cfg.seed, "seed", 1, "seed for generated data and entry selection")
	flag.IntVar(&cfg.entries, "entries", 512, "entries in the generated archive")
	flag.IntVar(&cfg.entrySize, "entry-size", 16<<10, "size of each generated entry in bytes")
	flag.StringVar(&cfg.method, "method", "deflate", "store, deflate, bzip2, or zstd")
	flag.StringVar(&cfg.pattern, "pattern", "compressible", "compressible or random")
	flag.StringVar(&cfg.url, "url", localURL, "archive URL, or \"local\" to serve a generated archive")
	flag.DurationVar(&cfg.latency, "latency", 0, "delay added to every request")
	flag.StringVar(&bandwidth, "bandwidth", "", "response body rate limit such as 10MiBps (MB is 1000-based)")
	flag.StringVar(&cfg.out.listen, "pprof-addr", "", "serve net/http/pprof on this address")
	flag.StringVar(&cfg.out.cpu, "cpuprofile", "", "write a CPU profile")
	flag.StringVar(&cfg.out.heap, "memprofile", "", "write a heap profile")
	flag.StringVar(&cfg.out.wall, "fgprofile", "", "write an fgprof wall-clock profile")
	flag.StringVar(&cfg.out.trace, "trace", "", "write an execution trace")
	flag.Parse()

	if bandwidth != "" {
		bps, err := parseBytesPerSecond(bandwidth)
		if err != nil {
			log.Fatalf("bandwidth: %v", err)
		}
		cfg.bandwidth = bps
	}
	return cfg
}

// buildArchive generates the archive served in local mode along with its
// entry names.
//
//nolint:gocritic // hugeParam acceptable for profiler config
func buildArchive(cfg config) ([]byte, []string, error) {
	if cfg.url != localURL {
		return nil, nil, nil
	}
	method, err := parseMethod(cfg.method)
	if err != nil {
		return nil, nil, err
	}
	if cfg.pattern != "compressible" && cfg.pattern != "random" {
		return nil, nil, fmt.Errorf("unknown pattern: %s", cfg.pattern)
	}

	var buf bytes.Buffer
	zw := testutil.NewZipWriter(&buf)
	rng := rand.New(rand.NewSource(cfg.seed)) //nolint:gosec // reproducible data
	content := make([]byte, cfg.entrySize)
	names := make([]string, cfg.entries)
	for i := range names {
		names[i] = fmt.Sprintf("set%02d/entry%05d.bin", i%16, i)
		if cfg.pattern == "random" {
			rng.Read(content)
		} else {
			fill := bytes.Repeat([]byte{byte('a' + i%26)}, len(content))
			copy(content, fill)
		}

		w, err := zw.CreateHeader(&zip.FileHeader{Name: names[i], Method: method})
		if err != nil {
			return nil, nil, err
		}
		if _, err := w.Write(content); err != nil {
			return nil, nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), names, nil
}

var errUnknownMethod = errors.New("unknown compression method")

func parseMethod(name string) (uint16, error) {
	methods := map[string]uint16{
		"store":   testutil.Store,
		"deflate": testutil.Deflate,
		"bzip2":   testutil.Bzip2,
		"zstd":    testutil.Zstd,
	}
	m, ok := methods[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", errUnknownMethod, name)
	}
	return m, nil
}
