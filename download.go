package partialzip

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/partialzip/internal/sink"
	"github.com/meigma/partialzip/internal/sizing"
	"github.com/meigma/partialzip/internal/zipfmt"
	"github.com/meigma/partialzip/internal/ziptype"
)

// Result describes a completed DownloadFile call.
type Result struct {
	// Entry is the directory record of the downloaded entry.
	Entry Entry

	// Path is the output file.
	Path string

	// Written is the number of decoded bytes written.
	Written int64

	// Digest is the sha256 digest of the decoded content.
	Digest digest.Digest
}

// Download streams the decoded content of the entry called name to w and
// returns the number of bytes written. The content is verified against the
// size and CRC32 recorded in the central directory; on a verification
// failure some bytes may already have been written unless
// WithVerifyBeforeWrite is set.
//
// Only the archive's trailer, central directory, the entry's local header,
// and the entry's compressed payload are transferred.
func (e *Engine) Download(ctx context.Context, url, name string, w io.Writer, opts ...DownloadOption) (int64, error) {
	cfg := newDownloadConfig(opts)

	a, entry, err := e.prepare(ctx, url, name, cfg)
	if err != nil {
		return 0, err
	}
	return e.transfer(ctx, a, &entry, w, cfg)
}

// DownloadFile saves the entry called name to path. The content is written
// to a temporary file next to path and moved into place only after it has
// been verified; a failed download leaves nothing at path. An existing file
// at path is an ErrOutputExists error unless WithOverwrite is set.
func (e *Engine) DownloadFile(ctx context.Context, url, name, path string, opts ...DownloadOption) (*Result, error) {
	cfg := newDownloadConfig(opts)

	// Refuse before any network traffic.
	if err := sink.NewFile(path, sink.WithOverwrite(cfg.overwrite)).Check(); err != nil {
		return nil, err
	}

	a, entry, err := e.prepare(ctx, url, name, cfg)
	if err != nil {
		return nil, err
	}
	return e.save(ctx, a, &entry, path, cfg)
}

// save writes entry to path through a temporary file and returns the
// committed result.
func (e *Engine) save(ctx context.Context, a *archive, entry *Entry, path string, cfg downloadConfig) (*Result, error) {
	fileOpts := []sink.FileOption{sink.WithOverwrite(cfg.overwrite)}
	if cfg.preserveTimes {
		fileOpts = append(fileOpts, sink.WithModTime(entry.Modified))
	}
	out, err := sink.NewFile(path, fileOpts...).Writer()
	if err != nil {
		return nil, err
	}

	digester := digest.Canonical.Digester()
	n, err := e.transfer(ctx, a, entry, io.MultiWriter(out, digester.Hash()), cfg)
	if err != nil {
		_ = out.Discard() //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	if err := out.Commit(); err != nil {
		return nil, err
	}

	e.logger.Debug("saved entry", "name", entry.Name, "path", path, "bytes", n, "digest", digester.Digest())
	return &Result{
		Entry:   *entry,
		Path:    path,
		Written: n,
		Digest:  digester.Digest(),
	}, nil
}

func newDownloadConfig(opts []DownloadOption) downloadConfig {
	var cfg downloadConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// prepare opens the archive and resolves name to a downloadable entry.
func (e *Engine) prepare(ctx context.Context, url, name string, cfg downloadConfig) (*archive, Entry, error) {
	a, err := e.open(ctx, url, cfg.progress)
	if err != nil {
		return nil, Entry{}, err
	}
	entry, err := e.resolveFor(a, name, cfg)
	if err != nil {
		return nil, Entry{}, err
	}
	return a, entry, nil
}

// resolveFor resolves name and applies the per-call buffer limit.
func (e *Engine) resolveFor(a *archive, name string, cfg downloadConfig) (Entry, error) {
	entry, err := e.resolve(a, name)
	if err != nil {
		return Entry{}, err
	}
	if cfg.verifyFirst {
		limit := e.maxEntrySize
		if limit == 0 {
			limit = DefaultMaxBufferedSize
		}
		if entry.UncompressedSize > limit {
			return Entry{}, fmt.Errorf("%w: %s is %d bytes, buffer limit %d",
				ziptype.ErrEntryTooLarge, name, entry.UncompressedSize, limit)
		}
	}
	return entry, nil
}

// transfer locates the entry's payload, streams it through the decoder, and
// verifies the result.
func (e *Engine) transfer(ctx context.Context, a *archive, entry *Entry, w io.Writer, cfg downloadConfig) (int64, error) {
	emit(cfg.progress, ProgressEvent{
		Stage:      StageFetchingHeader,
		Name:       entry.Name,
		BytesTotal: zipfmt.LocalHeaderProbeLength(entry, a.dir.Record.Offset),
	})
	start, err := zipfmt.DataOffset(ctx, a.src, entry, a.dir.Record)
	if err != nil {
		return 0, fmt.Errorf("locate %s: %w", entry.Name, err)
	}
	off, err := sizing.ToInt64(start, ziptype.ErrCorruptDirectory)
	if err != nil {
		return 0, err
	}
	length, err := sizing.ToInt64(entry.CompressedSize, ziptype.ErrCorruptDirectory)
	if err != nil {
		return 0, err
	}

	e.logger.Debug("downloading entry",
		"name", entry.Name,
		"method", entry.Method.String(),
		"offset", start,
		"compressed", entry.CompressedSize,
		"uncompressed", entry.UncompressedSize)

	body, err := a.src.ReadRange(ctx, off, length)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", entry.Name, err)
	}
	defer body.Close()

	var n uint64
	if cfg.verifyFirst {
		var buf bytes.Buffer
		size, err := sizing.ToInt(entry.UncompressedSize, ziptype.ErrEntryTooLarge)
		if err != nil {
			return 0, err
		}
		buf.Grow(size)
		if n, err = e.pool.Extract(ctx, entry, body, &buf, cfg.progress); err != nil {
			return 0, err
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return 0, fmt.Errorf("write %s: %w", entry.Name, err)
		}
	} else if n, err = e.pool.Extract(ctx, entry, body, w, cfg.progress); err != nil {
		return int64(n), err //nolint:gosec // bounded by the declared size
	}

	emit(cfg.progress, ProgressEvent{
		Stage:      StageVerified,
		Name:       entry.Name,
		BytesDone:  n,
		BytesTotal: entry.UncompressedSize,
	})
	return sizing.ToInt64(n, ziptype.ErrIntegrityCheckFailed)
}
