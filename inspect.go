package partialzip

import (
	"context"
	"sync"
)

// InspectResult describes a remote archive without downloading any entry.
type InspectResult struct {
	url     string
	size    int64
	comment string
	zip64   bool
	dirOff  uint64
	dirSize uint64
	entries []Entry

	// Lazy computed stats
	statsOnce              sync.Once
	totalUncompressedSize  uint64
	totalCompressedSize    uint64
	compressionRatioResult float64
}

// URL returns the archive location with any password redacted.
func (r *InspectResult) URL() string {
	return r.url
}

// Size returns the archive size in bytes.
func (r *InspectResult) Size() int64 {
	return r.size
}

// Comment returns the archive comment.
func (r *InspectResult) Comment() string {
	return r.comment
}

// Zip64 reports whether the archive uses zip64 directory records.
func (r *InspectResult) Zip64() bool {
	return r.zip64
}

// DirectoryOffset returns the byte offset of the central directory.
func (r *InspectResult) DirectoryOffset() uint64 {
	return r.dirOff
}

// DirectorySize returns the byte length of the central directory.
func (r *InspectResult) DirectorySize() uint64 {
	return r.dirSize
}

// Entries returns the directory records in directory order.
func (r *InspectResult) Entries() []Entry {
	return r.entries
}

// FileCount returns the number of entries that are not directories.
func (r *InspectResult) FileCount() int {
	n := 0
	for i := range r.entries {
		if !r.entries[i].IsDir {
			n++
		}
	}
	return n
}

// TotalUncompressedSize returns the sum of all uncompressed entry sizes.
// This requires iterating all entries on first call; the result is cached.
func (r *InspectResult) TotalUncompressedSize() uint64 {
	r.computeStats()
	return r.totalUncompressedSize
}

// TotalCompressedSize returns the sum of all compressed entry sizes.
// This requires iterating all entries on first call; the result is cached.
func (r *InspectResult) TotalCompressedSize() uint64 {
	r.computeStats()
	return r.totalCompressedSize
}

// CompressionRatio returns the ratio of compressed to uncompressed size.
// Returns 1.0 if the archive is uncompressed or has no content.
// This requires iterating all entries on first call; the result is cached.
func (r *InspectResult) CompressionRatio() float64 {
	r.computeStats()
	return r.compressionRatioResult
}

// computeStats computes aggregate statistics by iterating all entries.
func (r *InspectResult) computeStats() {
	r.statsOnce.Do(func() {
		for i := range r.entries {
			r.totalUncompressedSize += r.entries[i].UncompressedSize
			r.totalCompressedSize += r.entries[i].CompressedSize
		}
		if r.totalUncompressedSize > 0 {
			r.compressionRatioResult = float64(r.totalCompressedSize) / float64(r.totalUncompressedSize)
		} else {
			r.compressionRatioResult = 1.0
		}
	})
}

// Inspect retrieves archive metadata: size, comment, directory location,
// and every entry record. Only the trailer and central directory are
// transferred.
func (e *Engine) Inspect(ctx context.Context, url string) (*InspectResult, error) {
	a, err := e.open(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	rec := a.dir.Record
	return &InspectResult{
		url:     a.src.URL(),
		size:    a.src.Size(),
		comment: rec.Comment,
		zip64:   rec.Zip64,
		dirOff:  rec.Offset,
		dirSize: rec.Size,
		entries: a.dir.Entries(),
	}, nil
}
