package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// Compression method codes used by fixtures.
const (
	Store   uint16 = 0
	Deflate uint16 = 8
	Bzip2   uint16 = 12
	Zstd    uint16 = 93
)

// File describes one archive member for fixture builders.
type File struct {
	Name     string
	Data     []byte
	Method   uint16
	Modified time.Time
}

// Compress encodes data with the given method the way a ZIP writer would.
func Compress(tb testing.TB, method uint16, data []byte) []byte {
	tb.Helper()

	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch method {
	case Store:
		return bytes.Clone(data)
	case Deflate:
		w, err = flate.NewWriter(&buf, flate.DefaultCompression)
	case Bzip2:
		w, err = bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	case Zstd:
		w, err = zstd.NewWriter(&buf)
	default:
		tb.Fatalf("no compressor for method %d", method)
	}
	if err != nil {
		tb.Fatalf("create compressor: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		tb.Fatalf("compress: %v", err)
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("close compressor: %v", err)
	}
	return buf.Bytes()
}

// NewZipWriter returns an archive/zip writer that can emit every method the
// fixtures use.
func NewZipWriter(w io.Writer) *zip.Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
	zw.RegisterCompressor(Bzip2, func(w io.Writer) (io.WriteCloser, error) {
		return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	})
	zw.RegisterCompressor(Zstd, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w)
	})
	return zw
}

// BuildZip writes files with archive/zip and returns the archive bytes.
func BuildZip(tb testing.TB, files []File, comment string) []byte {
	tb.Helper()

	var buf bytes.Buffer
	zw := NewZipWriter(&buf)
	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   f.Method,
			Modified: f.Modified,
		})
		if err != nil {
			tb.Fatalf("create %s: %v", f.Name, err)
		}
		if len(f.Data) > 0 {
			if _, err := w.Write(f.Data); err != nil {
				tb.Fatalf("write %s: %v", f.Name, err)
			}
		}
	}
	if comment != "" {
		if err := zw.SetComment(comment); err != nil {
			tb.Fatalf("set comment: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// builderEntry is one member laid out by Builder.
type builderEntry struct {
	name    string
	method  uint16
	crc     uint32
	csize   uint64
	usize   uint64
	offset  uint64
	extra   []byte // local header extra field
	payload []byte
	zeros   int64 // virtual zero payload, used instead of payload when > 0
}

// Builder lays out archives by hand. It can emit zip64 structures for small
// archives and virtual runs of zero bytes, which archive/zip cannot.
type Builder struct {
	tb      testing.TB
	entries []builderEntry
	zip64   bool
	prefix  []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder(tb testing.TB) *Builder {
	tb.Helper()
	return &Builder{tb: tb}
}

// ForceZip64 makes Finish store every size, offset, and count in zip64
// structures behind sentinel values.
func (b *Builder) ForceZip64() *Builder {
	b.zip64 = true
	return b
}

// Prefix places raw bytes before the first local header, like a
// self-extracting stub.
func (b *Builder) Prefix(p []byte) *Builder {
	b.prefix = p
	return b
}

// Add appends a member compressed with its method.
func (b *Builder) Add(f File) *Builder {
	b.tb.Helper()
	payload := Compress(b.tb, f.Method, f.Data)
	b.entries = append(b.entries, builderEntry{
		name:    f.Name,
		method:  f.Method,
		crc:     crc32.ChecksumIEEE(f.Data),
		csize:   uint64(len(payload)),
		usize:   uint64(len(f.Data)),
		payload: payload,
	})
	return b
}

// AddLocalExtra appends a member whose local header carries extra bytes the
// central directory does not.
func (b *Builder) AddLocalExtra(f File, extra []byte) *Builder {
	b.tb.Helper()
	b.Add(f)
	b.entries[len(b.entries)-1].extra = extra
	return b
}

// AddZeros appends a stored member made of n zero bytes that are never
// materialized in memory.
func (b *Builder) AddZeros(name string, n int64) *Builder {
	chunk := make([]byte, 1<<20)
	var crc uint32
	for left := n; left > 0; {
		step := min(left, int64(len(chunk)))
		crc = crc32.Update(crc, crc32.IEEETable, chunk[:step])
		left -= step
	}
	b.entries = append(b.entries, builderEntry{
		name:  name,
		crc:   crc,
		csize: uint64(n),
		usize: uint64(n),
		zeros: n,
	})
	return b
}

// Finish lays out the archive with the given comment.
func (b *Builder) Finish(comment string) *SparseArchive {
	b.tb.Helper()

	s := &SparseArchive{}
	s.appendData(b.prefix)

	for i := range b.entries {
		e := &b.entries[i]
		e.offset = uint64(s.size)
		s.appendData(b.localHeader(e))
		if e.zeros > 0 {
			s.appendZeros(e.zeros)
		} else {
			s.appendData(e.payload)
		}
	}

	dirOffset := uint64(s.size)
	var dir []byte
	for i := range b.entries {
		dir = append(dir, b.centralHeader(&b.entries[i])...)
	}
	s.appendData(dir)
	dirSize := uint64(len(dir))

	var trailer []byte
	count := uint64(len(b.entries))
	if b.zip64 {
		recPos := uint64(s.size)
		trailer = binary.LittleEndian.AppendUint32(trailer, 0x06064b50)
		trailer = binary.LittleEndian.AppendUint64(trailer, 44)
		trailer = binary.LittleEndian.AppendUint16(trailer, 45)
		trailer = binary.LittleEndian.AppendUint16(trailer, 45)
		trailer = binary.LittleEndian.AppendUint32(trailer, 0)
		trailer = binary.LittleEndian.AppendUint32(trailer, 0)
		trailer = binary.LittleEndian.AppendUint64(trailer, count)
		trailer = binary.LittleEndian.AppendUint64(trailer, count)
		trailer = binary.LittleEndian.AppendUint64(trailer, dirSize)
		trailer = binary.LittleEndian.AppendUint64(trailer, dirOffset)

		trailer = binary.LittleEndian.AppendUint32(trailer, 0x07064b50)
		trailer = binary.LittleEndian.AppendUint32(trailer, 0)
		trailer = binary.LittleEndian.AppendUint64(trailer, recPos)
		trailer = binary.LittleEndian.AppendUint32(trailer, 1)
	}

	eocdCount, eocdSize, eocdOffset := uint16(count), uint32(dirSize), uint32(dirOffset)
	if b.zip64 {
		eocdCount, eocdSize, eocdOffset = 0xffff, 0xffffffff, 0xffffffff
	}
	trailer = binary.LittleEndian.AppendUint32(trailer, 0x06054b50)
	trailer = binary.LittleEndian.AppendUint16(trailer, 0)
	trailer = binary.LittleEndian.AppendUint16(trailer, 0)
	trailer = binary.LittleEndian.AppendUint16(trailer, eocdCount)
	trailer = binary.LittleEndian.AppendUint16(trailer, eocdCount)
	trailer = binary.LittleEndian.AppendUint32(trailer, eocdSize)
	trailer = binary.LittleEndian.AppendUint32(trailer, eocdOffset)
	trailer = binary.LittleEndian.AppendUint16(trailer, uint16(len(comment)))
	trailer = append(trailer, comment...)
	s.appendData(trailer)

	return s
}

func (b *Builder) localHeader(e *builderEntry) []byte {
	var h []byte
	h = binary.LittleEndian.AppendUint32(h, 0x04034b50)
	h = binary.LittleEndian.AppendUint16(h, 20)
	h = binary.LittleEndian.AppendUint16(h, 0)
	h = binary.LittleEndian.AppendUint16(h, e.method)
	h = binary.LittleEndian.AppendUint16(h, 0)
	h = binary.LittleEndian.AppendUint16(h, 0)
	h = binary.LittleEndian.AppendUint32(h, e.crc)
	h = binary.LittleEndian.AppendUint32(h, uint32(e.csize))
	h = binary.LittleEndian.AppendUint32(h, uint32(e.usize))
	h = binary.LittleEndian.AppendUint16(h, uint16(len(e.name)))
	h = binary.LittleEndian.AppendUint16(h, uint16(len(e.extra)))
	h = append(h, e.name...)
	return append(h, e.extra...)
}

func (b *Builder) centralHeader(e *builderEntry) []byte {
	csize, usize, offset := uint32(e.csize), uint32(e.usize), uint32(e.offset)
	var extra []byte
	if b.zip64 {
		csize, usize, offset = 0xffffffff, 0xffffffff, 0xffffffff
		extra = binary.LittleEndian.AppendUint16(extra, 0x0001)
		extra = binary.LittleEndian.AppendUint16(extra, 24)
		extra = binary.LittleEndian.AppendUint64(extra, e.usize)
		extra = binary.LittleEndian.AppendUint64(extra, e.csize)
		extra = binary.LittleEndian.AppendUint64(extra, e.offset)
	}

	var h []byte
	h = binary.LittleEndian.AppendUint32(h, 0x02014b50)
	h = binary.LittleEndian.AppendUint16(h, 45)
	h = binary.LittleEndian.AppendUint16(h, 20)
	h = binary.LittleEndian.AppendUint16(h, 0)
	h = binary.LittleEndian.AppendUint16(h, e.method)
	h = binary.LittleEndian.AppendUint16(h, 0)
	h = binary.LittleEndian.AppendUint16(h, 0)
	h = binary.LittleEndian.AppendUint32(h, e.crc)
	h = binary.LittleEndian.AppendUint32(h, csize)
	h = binary.LittleEndian.AppendUint32(h, usize)
	h = binary.LittleEndian.AppendUint16(h, uint16(len(e.name)))
	h = binary.LittleEndian.AppendUint16(h, uint16(len(extra)))
	h = binary.LittleEndian.AppendUint16(h, 0)
	h = binary.LittleEndian.AppendUint16(h, 0)
	h = binary.LittleEndian.AppendUint16(h, 0)
	h = binary.LittleEndian.AppendUint32(h, 0)
	h = binary.LittleEndian.AppendUint32(h, offset)
	h = append(h, e.name...)
	return append(h, extra...)
}

// segment is a run of archive bytes, either materialized or all zeros.
type segment struct {
	start int64
	data  []byte
	zeros int64
}

func (s segment) length() int64 {
	if s.data != nil {
		return int64(len(s.data))
	}
	return s.zeros
}

// SparseArchive is an archive whose large zero payloads are virtual.
// It implements io.ReaderAt.
type SparseArchive struct {
	segments []segment
	size     int64
}

func (s *SparseArchive) appendData(p []byte) {
	if len(p) == 0 {
		return
	}
	s.segments = append(s.segments, segment{start: s.size, data: p})
	s.size += int64(len(p))
}

func (s *SparseArchive) appendZeros(n int64) {
	s.segments = append(s.segments, segment{start: s.size, zeros: n})
	s.size += n
}

// Size returns the archive length in bytes.
func (s *SparseArchive) Size() int64 {
	return s.size
}

// ReadAt implements io.ReaderAt.
func (s *SparseArchive) ReadAt(p []byte, off int64) (int, error) {
	if off >= s.size {
		return 0, io.EOF
	}
	i := sort.Search(len(s.segments), func(i int) bool {
		return s.segments[i].start+s.segments[i].length() > off
	})
	n := 0
	for ; i < len(s.segments) && n < len(p); i++ {
		seg := s.segments[i]
		rel := off + int64(n) - seg.start
		want := min(int64(len(p)-n), seg.length()-rel)
		if seg.data != nil {
			copy(p[n:], seg.data[rel:rel+want])
		} else {
			clear(p[n : n+int(want)])
		}
		n += int(want)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Bytes materializes the whole archive. Only use it for small archives.
func (s *SparseArchive) Bytes() []byte {
	out := make([]byte, s.size)
	_, _ = s.ReadAt(out, 0)
	return out
}
