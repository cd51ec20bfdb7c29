package decode

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/meigma/partialzip/internal/ziptype"
)

// Verifier passes decoded content to a writer while counting it and
// computing its CRC32.
type Verifier struct {
	w       io.Writer
	crc     hash.Hash32
	name    string
	size    uint64
	want    uint32
	n       uint64
	sinkErr error
}

// NewVerifier returns a Verifier checking content against e's declared
// uncompressed size and CRC32.
func NewVerifier(w io.Writer, e *ziptype.Entry) *Verifier {
	return &Verifier{
		w:    w,
		crc:  crc32.NewIEEE(),
		name: e.Name,
		size: e.UncompressedSize,
		want: e.CRC32,
	}
}

// Write implements io.Writer. Content beyond the declared size is rejected
// before it reaches the underlying writer.
func (v *Verifier) Write(p []byte) (int, error) {
	if uint64(len(p)) > v.size-v.n {
		return 0, fmt.Errorf("%w: %s decodes to more than %d bytes",
			ziptype.ErrIntegrityCheckFailed, v.name, v.size)
	}
	_, _ = v.crc.Write(p) //nolint:errcheck // hash writes never fail
	n, err := v.w.Write(p)
	v.n += uint64(n)
	if err != nil {
		v.sinkErr = err
		return n, err
	}
	if n < len(p) {
		v.sinkErr = io.ErrShortWrite
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Written returns the number of bytes passed to the underlying writer.
func (v *Verifier) Written() uint64 {
	return v.n
}

// Check compares the final size and CRC32 with the declared values.
func (v *Verifier) Check() error {
	if v.n != v.size {
		return fmt.Errorf("%w: %s decoded to %d bytes, expected %d",
			ziptype.ErrIntegrityCheckFailed, v.name, v.n, v.size)
	}
	if got := v.crc.Sum32(); got != v.want {
		return fmt.Errorf("%w: %s crc32 %08x, expected %08x",
			ziptype.ErrIntegrityCheckFailed, v.name, got, v.want)
	}
	return nil
}

// Extract streams the compressed payload in body through the decoder for
// e.Method into w, then verifies size and CRC32. It returns the number of
// decoded bytes written to w.
//
// A failure of the payload stream itself (short read, transport error,
// cancellation) takes precedence over the decoder error it causes. Any other
// decoder failure is reported as ziptype.ErrIntegrityCheckFailed.
func (p *Pool) Extract(ctx context.Context, e *ziptype.Entry, body io.Reader, w io.Writer, progress ziptype.ProgressFunc) (uint64, error) {
	if e.Encrypted() {
		return 0, fmt.Errorf("%w: %s is encrypted", ziptype.ErrUnsupportedCompression, e.Name)
	}

	payload := NewPayloadReader(ctx, body, e, progress)
	dec, release, err := p.Open(e.Method, payload)
	if err != nil {
		if perr := payload.Err(); perr != nil {
			return 0, perr
		}
		return 0, err
	}
	defer release()

	v := NewVerifier(w, e)
	if _, err := io.Copy(v, dec); err != nil {
		return v.Written(), classify(e, payload, v, err)
	}
	if perr := payload.Err(); perr != nil {
		return v.Written(), perr
	}
	if err := v.Check(); err != nil {
		return v.Written(), err
	}
	return v.Written(), nil
}

// classify picks the error reported for a failed copy.
func classify(e *ziptype.Entry, payload *PayloadReader, v *Verifier, err error) error {
	switch {
	case payload.Err() != nil:
		return payload.Err()
	case errors.Is(err, ziptype.ErrIntegrityCheckFailed):
		return err
	case v.sinkErr != nil:
		return fmt.Errorf("write %s: %w", e.Name, v.sinkErr)
	default:
		return fmt.Errorf("%w: decode %s (%s): %v", ziptype.ErrIntegrityCheckFailed, e.Name, e.Method, err)
	}
}
