package zipfmt

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/meigma/partialzip/internal/sizing"
	"github.com/meigma/partialzip/internal/ziptype"
)

// Directory is the decoded central directory of an archive.
type Directory struct {
	Record  DirectoryRecord
	entries []ziptype.Entry
}

// Entries returns the entries in directory order.
func (d *Directory) Entries() []ziptype.Entry {
	return slices.Clone(d.entries)
}

// Len returns the number of entries.
func (d *Directory) Len() int {
	return len(d.entries)
}

// Lookup returns the first entry whose stored name equals name exactly.
func (d *Directory) Lookup(name string) (ziptype.Entry, error) {
	for i := range d.entries {
		if d.entries[i].Name == name {
			return d.entries[i], nil
		}
	}
	return ziptype.Entry{}, fmt.Errorf("%w: %s", ziptype.ErrEntryNotFound, name)
}

// ReadDirectory returns the parsed central directory described by rec,
// serving its bytes from tail when the tail covers them.
func ReadDirectory(ctx context.Context, f Fetcher, rec DirectoryRecord, tail *Tail) (*Directory, error) {
	buf, err := fetchRange(ctx, f, tail, rec.Offset, rec.Size)
	if err != nil {
		return nil, err
	}
	return ParseDirectory(buf, rec)
}

// ParseDirectory decodes rec.Count central directory headers from buf.
func ParseDirectory(buf []byte, rec DirectoryRecord) (*Directory, error) {
	// A hostile count must not drive the allocation; every header takes at
	// least CentralHeaderLen bytes.
	capacity := min(rec.Count, uint64(len(buf)/CentralHeaderLen))
	entries := make([]ziptype.Entry, 0, capacity)

	b := readBuf(buf)
	for i := uint64(0); i < rec.Count; i++ {
		entry, err := readCentralHeader(&b)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ziptype.ErrCorruptDirectory, i, err)
		}
		if entry.LocalHeaderOffset >= rec.Offset {
			return nil, fmt.Errorf("%w: entry %q local header at %d is not before the directory at %d",
				ziptype.ErrCorruptDirectory, entry.Name, entry.LocalHeaderOffset, rec.Offset)
		}
		entries = append(entries, entry)
	}

	return &Directory{Record: rec, entries: entries}, nil
}

// readCentralHeader decodes one central directory file header and advances b.
func readCentralHeader(b *readBuf) (ziptype.Entry, error) {
	if len(*b) < CentralHeaderLen {
		return ziptype.Entry{}, fmt.Errorf("header truncated (%d bytes left)", len(*b))
	}
	if sig := b.uint32(); sig != CentralDirectorySignature {
		return ziptype.Entry{}, fmt.Errorf("bad signature %#08x", sig)
	}
	b.skip(2) // version made by
	b.skip(2) // version needed
	flags := b.uint16()
	method := b.uint16()
	modTime := b.uint16()
	modDate := b.uint16()
	crc := b.uint32()
	compressed := uint64(b.uint32())
	uncompressed := uint64(b.uint32())
	nameLen := int(b.uint16())
	extraLen := int(b.uint16())
	commentLen := int(b.uint16())
	b.skip(2) // disk number start
	b.skip(2) // internal attributes
	b.skip(4) // external attributes
	offset := uint64(b.uint32())

	if len(*b) < nameLen+extraLen+commentLen {
		return ziptype.Entry{}, fmt.Errorf("variable fields truncated (need %d, have %d)",
			nameLen+extraLen+commentLen, len(*b))
	}
	name := string(b.bytes(nameLen))
	extra := b.bytes(extraLen)
	b.skip(commentLen)

	needUncompressed := uncompressed == sentinel32
	needCompressed := compressed == sentinel32
	needOffset := offset == sentinel32
	if needUncompressed || needCompressed || needOffset {
		field, ok := findExtra(extra, Zip64ExtraTag)
		if ok {
			fb := readBuf(field)
			// Values appear only for the fields that overflowed, in this order.
			for _, v := range []struct {
				need bool
				dst  *uint64
				what string
			}{
				{needUncompressed, &uncompressed, "uncompressed size"},
				{needCompressed, &compressed, "compressed size"},
				{needOffset, &offset, "local header offset"},
			} {
				if !v.need {
					continue
				}
				if len(fb) < 8 {
					return ziptype.Entry{}, fmt.Errorf("zip64 extra field of %q lacks %s", name, v.what)
				}
				*v.dst = fb.uint64()
			}
		}
	}

	return ziptype.Entry{
		Name:              name,
		Method:            ziptype.Method(method),
		CompressedSize:    compressed,
		UncompressedSize:  uncompressed,
		CRC32:             crc,
		LocalHeaderOffset: offset,
		Flags:             flags,
		IsDir:             strings.HasSuffix(name, "/"),
		Modified:          msDosTime(modDate, modTime),
	}, nil
}

// findExtra returns the payload of the first extra field block with the given tag.
func findExtra(extra []byte, tag uint16) ([]byte, bool) {
	b := readBuf(extra)
	for len(b) >= 4 {
		id := b.uint16()
		size := int(b.uint16())
		if len(b) < size {
			return nil, false
		}
		data := b.bytes(size)
		if id == tag {
			return data, true
		}
	}
	return nil, false
}

// CheckPayload validates that the entry's payload starting at dataStart
// ends before the central directory.
func CheckPayload(e *ziptype.Entry, dataStart uint64, rec DirectoryRecord) error {
	if !sizing.Within(dataStart, e.CompressedSize, rec.Offset) {
		return fmt.Errorf("%w: payload of %q [%d, +%d) overlaps the directory at %d",
			ziptype.ErrCorruptDirectory, e.Name, dataStart, e.CompressedSize, rec.Offset)
	}
	if e.Method == ziptype.MethodStore && e.CompressedSize != e.UncompressedSize {
		return fmt.Errorf("%w: stored entry %q has compressed size %d but uncompressed size %d",
			ziptype.ErrCorruptDirectory, e.Name, e.CompressedSize, e.UncompressedSize)
	}
	return nil
}
