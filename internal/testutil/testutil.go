// Package testutil builds ZIP fixtures and range-capable servers for tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/meigma/partialzip/internal/ziptype"
)

// Range is one fetch recorded by MockByteSource.
type Range struct {
	Off    int64
	Length int64
}

// MockByteSource implements an in-memory range fetcher for tests.
type MockByteSource struct {
	data []byte

	mu       sync.Mutex
	requests []Range
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	return &MockByteSource{data: data}
}

// Fetch returns exactly length bytes at off, or ziptype.ErrShortRead when the
// range runs past the end of the data.
func (m *MockByteSource) Fetch(ctx context.Context, off, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.requests = append(m.requests, Range{Off: off, Length: length})
	m.mu.Unlock()

	if off < 0 || length < 0 || off+length > int64(len(m.data)) {
		return nil, fmt.Errorf("%w: [%d, +%d) of %d bytes", ziptype.ErrShortRead, off, length, len(m.data))
	}
	out := make([]byte, length)
	copy(out, m.data[off:off+length])
	return out, nil
}

// ReadRange returns a reader over [off, off+length).
func (m *MockByteSource) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	b, err := m.Fetch(ctx, off, length)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// Bytes returns the backing slice for tests that need to mutate data.
func (m *MockByteSource) Bytes() []byte {
	return m.data
}

// Requests returns the ranges fetched so far.
func (m *MockByteSource) Requests() []Range {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Range, len(m.requests))
	copy(out, m.requests)
	return out
}

// BytesFetched returns the total number of bytes requested so far.
func (m *MockByteSource) BytesFetched() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.requests {
		n += r.Length
	}
	return n
}
