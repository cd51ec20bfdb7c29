package decode

import (
	"context"
	"fmt"
	"io"

	"github.com/meigma/partialzip/internal/ziptype"
)

// PayloadReader reads exactly one entry's compressed payload. It stops at
// the declared compressed size, checks the context before every read, and
// reports cumulative progress.
type PayloadReader struct {
	ctx      context.Context
	r        io.Reader
	name     string
	total    uint64
	done     uint64
	progress ziptype.ProgressFunc
	err      error
}

// NewPayloadReader wraps r, which must yield e.CompressedSize bytes.
func NewPayloadReader(ctx context.Context, r io.Reader, e *ziptype.Entry, progress ziptype.ProgressFunc) *PayloadReader {
	return &PayloadReader{
		ctx:      ctx,
		r:        r,
		name:     e.Name,
		total:    e.CompressedSize,
		progress: progress,
	}
}

// Read implements io.Reader.
func (p *PayloadReader) Read(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	if err := p.ctx.Err(); err != nil {
		p.err = err
		return 0, err
	}
	remaining := p.total - p.done
	if remaining == 0 {
		return 0, io.EOF
	}
	if uint64(len(b)) > remaining {
		b = b[:remaining]
	}

	n, err := p.r.Read(b)
	if n > 0 {
		p.done += uint64(n)
		if p.progress != nil {
			p.progress(ziptype.ProgressEvent{
				Stage:      ziptype.StageDownloading,
				Name:       p.name,
				BytesDone:  p.done,
				BytesTotal: p.total,
			})
		}
	}

	switch {
	case err == nil:
		return n, nil
	case err == io.EOF && p.done == p.total:
		return n, io.EOF
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		p.err = fmt.Errorf("%w: payload of %q ended after %d of %d bytes",
			ziptype.ErrShortRead, p.name, p.done, p.total)
	default:
		p.err = err
	}
	return n, p.err
}

// Err returns the error that stopped the payload stream, if any. It is nil
// when the stream ended cleanly or has not failed yet.
func (p *PayloadReader) Err() error {
	return p.err
}

// BytesRead returns the compressed bytes received so far.
func (p *PayloadReader) BytesRead() uint64 {
	return p.done
}
