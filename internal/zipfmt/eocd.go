package zipfmt

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/meigma/partialzip/internal/sizing"
	"github.com/meigma/partialzip/internal/ziptype"
)

// Tail is the trailing slice of the archive fetched to find the trailer.
type Tail struct {
	// Start is the absolute offset of Data[0].
	Start uint64
	Data  []byte
}

// Slice returns the bytes [off, off+length) when they lie inside the tail.
func (t *Tail) Slice(off, length uint64) ([]byte, bool) {
	if t == nil || off < t.Start {
		return nil, false
	}
	rel := off - t.Start
	if !sizing.Within(rel, length, uint64(len(t.Data))) {
		return nil, false
	}
	return t.Data[rel : rel+length], true
}

// TailLength returns how many trailing bytes to fetch for an archive of the given size.
func TailLength(archiveSize int64) int64 {
	return min(int64(MaxTailLen), archiveSize)
}

// EndRecord is the decoded end of central directory trailer.
type EndRecord struct {
	// Position is the absolute offset of the trailer signature.
	Position uint64

	Entries   uint16
	DirSize   uint32
	DirOffset uint32
	Comment   string
}

// NeedsZip64 reports whether any field holds a zip64 sentinel.
func (r *EndRecord) NeedsZip64() bool {
	return r.Entries == sentinel16 || r.DirSize == sentinel32 || r.DirOffset == sentinel32
}

// DirectoryRecord locates the central directory inside the archive.
type DirectoryRecord struct {
	// Offset is the absolute byte offset of the first central directory header.
	Offset uint64

	// Size is the byte length of the central directory.
	Size uint64

	// Count is the number of central directory headers.
	Count uint64

	// Zip64 is true when the values came from the zip64 record.
	Zip64 bool

	// Comment is the archive comment.
	Comment string
}

// FindEndRecord scans the tail backward for the trailer signature. A
// candidate is accepted only when its declared comment length reaches the
// end of the tail exactly, so signature bytes inside a comment are skipped.
// The rightmost candidate passing that check wins.
func FindEndRecord(tail *Tail) (EndRecord, error) {
	data := tail.Data
	for i := len(data) - EndOfCentralDirLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(data[i:]) != EndOfCentralDirSignature {
			continue
		}
		commentLen := int(binary.LittleEndian.Uint16(data[i+20:]))
		if i+EndOfCentralDirLen+commentLen != len(data) {
			continue
		}

		b := readBuf(data[i+4 : i+EndOfCentralDirLen])
		b.skip(2) // number of this disk
		b.skip(2) // disk where central directory starts
		b.skip(2) // entries on this disk
		rec := EndRecord{
			Position:  tail.Start + uint64(i),
			Entries:   b.uint16(),
			DirSize:   b.uint32(),
			DirOffset: b.uint32(),
			Comment:   string(data[i+EndOfCentralDirLen:]),
		}
		return rec, nil
	}
	return EndRecord{}, fmt.Errorf("%w: end of central directory signature not found", ziptype.ErrNotAZip)
}

// ParseZip64Locator decodes the zip64 end of central directory locator and
// returns the offset of the zip64 record. ok is false when b does not start
// with the locator signature.
func ParseZip64Locator(b []byte) (recordOffset uint64, ok bool) {
	if len(b) < Zip64LocatorLen {
		return 0, false
	}
	buf := readBuf(b)
	if buf.uint32() != Zip64EndOfCentralDirLocatorSignature {
		return 0, false
	}
	buf.skip(4) // disk with the zip64 record
	return buf.uint64(), true
}

// ParseZip64Record decodes the zip64 end of central directory record.
func ParseZip64Record(b []byte) (DirectoryRecord, error) {
	if len(b) < Zip64EndOfCentralLen {
		return DirectoryRecord{}, fmt.Errorf("%w: zip64 record truncated", ziptype.ErrCorruptDirectory)
	}
	buf := readBuf(b)
	if buf.uint32() != Zip64EndOfCentralDirSignature {
		return DirectoryRecord{}, fmt.Errorf("%w: bad zip64 record signature", ziptype.ErrCorruptDirectory)
	}
	buf.skip(8) // size of this record
	buf.skip(2) // version made by
	buf.skip(2) // version needed
	buf.skip(4) // number of this disk
	buf.skip(4) // disk where central directory starts
	buf.skip(8) // entries on this disk
	rec := DirectoryRecord{Zip64: true}
	rec.Count = buf.uint64()
	rec.Size = buf.uint64()
	rec.Offset = buf.uint64()
	return rec, nil
}

// Locate fetches the archive tail, finds the trailer, and resolves the zip64
// extension when the trailer carries sentinel values. The returned tail can
// be handed to ReadDirectory to avoid refetching directory bytes it covers.
func Locate(ctx context.Context, f Fetcher, archiveSize int64) (DirectoryRecord, *Tail, error) {
	if archiveSize < EndOfCentralDirLen {
		return DirectoryRecord{}, nil, fmt.Errorf("%w: %d bytes is too small", ziptype.ErrNotAZip, archiveSize)
	}

	n := TailLength(archiveSize)
	data, err := f.Fetch(ctx, archiveSize-n, n)
	if err != nil {
		return DirectoryRecord{}, nil, err
	}
	tail := &Tail{Start: uint64(archiveSize - n), Data: data}

	end, err := FindEndRecord(tail)
	if err != nil {
		return DirectoryRecord{}, nil, err
	}

	rec := DirectoryRecord{
		Offset:  uint64(end.DirOffset),
		Size:    uint64(end.DirSize),
		Count:   uint64(end.Entries),
		Comment: end.Comment,
	}
	limit := end.Position

	if end.NeedsZip64() && end.Position >= Zip64LocatorLen {
		rec64, recPos, found, err := readZip64(ctx, f, tail, end.Position-Zip64LocatorLen)
		if err != nil {
			return DirectoryRecord{}, nil, err
		}
		if found {
			rec64.Comment = end.Comment
			rec = rec64
			limit = recPos
		}
	}

	if !sizing.Within(rec.Offset, rec.Size, limit) {
		return DirectoryRecord{}, nil, fmt.Errorf("%w: directory [%d, +%d) extends past offset %d",
			ziptype.ErrCorruptDirectory, rec.Offset, rec.Size, limit)
	}
	return rec, tail, nil
}

// readZip64 reads the locator at locPos and the record it points to. found is
// false when no locator signature is present, which happens for archives
// that legitimately hold 65535 entries without zip64 structures.
func readZip64(ctx context.Context, f Fetcher, tail *Tail, locPos uint64) (DirectoryRecord, uint64, bool, error) {
	locBytes, err := fetchRange(ctx, f, tail, locPos, Zip64LocatorLen)
	if err != nil {
		return DirectoryRecord{}, 0, false, err
	}
	recPos, ok := ParseZip64Locator(locBytes)
	if !ok {
		return DirectoryRecord{}, 0, false, nil
	}
	if !sizing.Within(recPos, Zip64EndOfCentralLen, locPos) {
		return DirectoryRecord{}, 0, false, fmt.Errorf("%w: zip64 record offset %d out of range",
			ziptype.ErrCorruptDirectory, recPos)
	}
	recBytes, err := fetchRange(ctx, f, tail, recPos, Zip64EndOfCentralLen)
	if err != nil {
		return DirectoryRecord{}, 0, false, err
	}
	rec, err := ParseZip64Record(recBytes)
	if err != nil {
		return DirectoryRecord{}, 0, false, err
	}
	return rec, recPos, true, nil
}

// fetchRange serves [off, off+length) from the tail when possible.
func fetchRange(ctx context.Context, f Fetcher, tail *Tail, off, length uint64) ([]byte, error) {
	if b, ok := tail.Slice(off, length); ok {
		return b, nil
	}
	start, err := sizing.ToInt64(off, ziptype.ErrCorruptDirectory)
	if err != nil {
		return nil, err
	}
	n, err := sizing.ToInt64(length, ziptype.ErrCorruptDirectory)
	if err != nil {
		return nil, err
	}
	return f.Fetch(ctx, start, n)
}
