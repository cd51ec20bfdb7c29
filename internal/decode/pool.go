// Package decode turns a compressed ZIP payload stream into verified content.
package decode

import (
	"fmt"
	"io"
	"sync"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"

	"github.com/meigma/partialzip/internal/ziptype"
)

// DefaultMaxDecoderMemory is the default zstd decoder memory limit (256MB).
const DefaultMaxDecoderMemory = 256 << 20

// Pool hands out decoders for the supported compression methods. Zstd and
// deflate decoders are reused across calls. A Pool is safe for concurrent use.
type Pool struct {
	zstd             sync.Pool
	flate            sync.Pool
	maxDecoderMemory uint64
}

// NewPool creates a decoder pool. If maxMemory is 0, no memory limit is
// applied to zstd decoders.
func NewPool(maxMemory uint64) *Pool {
	return &Pool{maxDecoderMemory: maxMemory}
}

// Open returns a reader producing the decoded content of r for method.
// The caller must call the returned release function when done.
// If an error is returned, no release function needs to be called.
func (p *Pool) Open(method ziptype.Method, r io.Reader) (io.Reader, func(), error) {
	switch method {
	case ziptype.MethodStore:
		return r, func() {}, nil
	case ziptype.MethodDeflate:
		return p.openFlate(r)
	case ziptype.MethodBzip2:
		dec, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: bzip2: %v", ziptype.ErrIntegrityCheckFailed, err)
		}
		return dec, func() { _ = dec.Close() }, nil
	case ziptype.MethodZstd:
		return p.openZstd(r)
	default:
		return nil, nil, fmt.Errorf("%w: %s", ziptype.ErrUnsupportedCompression, method)
	}
}

func (p *Pool) openFlate(r io.Reader) (io.Reader, func(), error) {
	var dec io.ReadCloser
	if v, ok := p.flate.Get().(io.ReadCloser); ok {
		if rs, ok := v.(flate.Resetter); ok && rs.Reset(r, nil) == nil {
			dec = v
		}
	}
	if dec == nil {
		dec = flate.NewReader(r)
	}
	return dec, func() {
		_ = dec.Close()
		p.flate.Put(dec)
	}, nil
}

func (p *Pool) openZstd(r io.Reader) (io.Reader, func(), error) {
	dec, ok := p.zstd.Get().(*zstd.Decoder)
	if ok {
		if err := dec.Reset(r); err != nil {
			// Reset failed, close this one and create new
			dec.Close()
			ok = false
		}
	}
	if !ok {
		var err error
		dec, err = p.newZstd(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: zstd: %v", ziptype.ErrIntegrityCheckFailed, err)
		}
	}

	return dec, func() {
		_ = dec.Reset(nil) //nolint:errcheck // clearing state before pool return
		p.zstd.Put(dec)
	}, nil
}

// newZstd creates a synchronous zstd decoder with the configured memory limit.
func (p *Pool) newZstd(r io.Reader) (*zstd.Decoder, error) {
	opts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if p.maxDecoderMemory > 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(p.maxDecoderMemory))
	}
	return zstd.NewReader(r, opts...)
}
