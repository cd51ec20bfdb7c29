package partialzip

import (
	"context"
	"fmt"
	"log/slog"
	nethttp "net/http"

	ziphttp "github.com/meigma/partialzip/http"
	"github.com/meigma/partialzip/internal/decode"
	"github.com/meigma/partialzip/internal/zipfmt"
	"github.com/meigma/partialzip/internal/ziptype"
)

// Engine lists and downloads entries of remote ZIP archives.
//
// An Engine holds only configuration and is safe for concurrent use. Every
// call probes the archive, reads its trailer and central directory, and
// resolves entries afresh; nothing is cached between calls.
type Engine struct {
	client       *nethttp.Client
	clientConfig ziphttp.ClientConfig
	headers      nethttp.Header
	userAgent    string
	sourceOpts   []ziphttp.Option

	checkRange       bool
	maxEntrySize     uint64
	maxDecoderMemory uint64

	logger *slog.Logger
	pool   *decode.Pool
}

// New creates an Engine with the given options.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		headers:          make(nethttp.Header),
		userAgent:        DefaultUserAgent,
		maxDecoderMemory: decode.DefaultMaxDecoderMemory,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.client == nil {
		e.client = ziphttp.NewClient(e.clientConfig)
	}
	e.pool = decode.NewPool(e.maxDecoderMemory)
	return e, nil
}

// archive is the per-call view of one remote archive.
type archive struct {
	src *ziphttp.Source
	dir *zipfmt.Directory
}

// List returns the archive's entries in directory order.
func (e *Engine) List(ctx context.Context, url string) ([]EntryInfo, error) {
	a, err := e.open(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	entries := a.dir.Entries()
	infos := make([]EntryInfo, len(entries))
	for i := range entries {
		infos[i] = entries[i].Info()
	}
	return infos, nil
}

// Entries returns the full directory records of the archive in directory
// order.
func (e *Engine) Entries(ctx context.Context, url string) ([]Entry, error) {
	a, err := e.open(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return a.dir.Entries(), nil
}

// ProbeRangeSupport reports whether the server honors range requests for url.
func (e *Engine) ProbeRangeSupport(ctx context.Context, url string) (bool, error) {
	src, err := e.newSource(ctx, url)
	if err != nil {
		return false, err
	}
	return src.ProbeRangeSupport(ctx)
}

func (e *Engine) newSource(ctx context.Context, url string) (*ziphttp.Source, error) {
	opts := make([]ziphttp.Option, 0, len(e.sourceOpts)+4)
	opts = append(opts,
		ziphttp.WithClient(e.client),
		ziphttp.WithHeaders(e.headers),
		ziphttp.WithUserAgent(e.userAgent),
		ziphttp.WithLogger(e.logger),
	)
	opts = append(opts, e.sourceOpts...)
	return ziphttp.NewSource(ctx, url, opts...)
}

// open probes the archive and reads its central directory.
func (e *Engine) open(ctx context.Context, url string, progress ProgressFunc) (*archive, error) {
	src, err := e.newSource(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	if e.checkRange {
		ok, err := src.ProbeRangeSupport(ctx)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", src.URL(), err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ziptype.ErrRangeNotSupported, src.URL())
		}
	}

	emit(progress, ProgressEvent{
		Stage:      StageFetchingTail,
		BytesTotal: uint64(zipfmt.TailLength(src.Size())),
	})
	rec, tail, err := zipfmt.Locate(ctx, src, src.Size())
	if err != nil {
		return nil, fmt.Errorf("locate directory of %s: %w", src.URL(), err)
	}

	emit(progress, ProgressEvent{Stage: StageFetchingDirectory, BytesTotal: rec.Size})
	dir, err := zipfmt.ReadDirectory(ctx, src, rec, tail)
	if err != nil {
		return nil, fmt.Errorf("read directory of %s: %w", src.URL(), err)
	}

	e.logger.Debug("read central directory",
		"url", src.URL(),
		"size", src.Size(),
		"entries", rec.Count,
		"offset", rec.Offset,
		"length", rec.Size,
		"zip64", rec.Zip64)
	return &archive{src: src, dir: dir}, nil
}

// resolve finds the downloadable entry called name.
func (e *Engine) resolve(a *archive, name string) (Entry, error) {
	entry, err := a.dir.Lookup(name)
	if err != nil {
		return Entry{}, err
	}
	if entry.IsDir {
		return Entry{}, fmt.Errorf("%w: %s is a directory", ziptype.ErrEntryNotFound, name)
	}
	if entry.Encrypted() {
		return Entry{}, fmt.Errorf("%w: %s is encrypted", ziptype.ErrUnsupportedCompression, name)
	}
	if !entry.Method.Supported() {
		return Entry{}, fmt.Errorf("%w: %s uses %s", ziptype.ErrUnsupportedCompression, name, entry.Method)
	}
	if e.maxEntrySize > 0 && entry.UncompressedSize > e.maxEntrySize {
		return Entry{}, fmt.Errorf("%w: %s is %d bytes, limit %d",
			ziptype.ErrEntryTooLarge, name, entry.UncompressedSize, e.maxEntrySize)
	}
	return entry, nil
}

func emit(fn ProgressFunc, ev ProgressEvent) {
	if fn != nil {
		fn(ev)
	}
}
