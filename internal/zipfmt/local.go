package zipfmt

import (
	"context"
	"fmt"

	"github.com/meigma/partialzip/internal/sizing"
	"github.com/meigma/partialzip/internal/ziptype"
)

// localExtraAllowance is the extra field length assumed when sizing the
// local header fetch. Only the fixed 30 bytes are parsed, so a larger extra
// field still needs just the one fetch.
const localExtraAllowance = 1024

// LocalHeaderProbeLength returns how many bytes to fetch at the entry's
// local header offset. The result never reaches past dirOffset.
func LocalHeaderProbeLength(e *ziptype.Entry, dirOffset uint64) uint64 {
	want := uint64(LocalHeaderLen) + uint64(len(e.Name)) + localExtraAllowance
	if avail := dirOffset - e.LocalHeaderOffset; want > avail {
		return avail
	}
	return want
}

// ParseLocalHeader decodes the fixed part of a local file header and returns
// the combined length of its name and extra fields.
func ParseLocalHeader(b []byte) (variableLen uint64, err error) {
	if len(b) < LocalHeaderLen {
		return 0, fmt.Errorf("%w: local header truncated", ziptype.ErrCorruptDirectory)
	}
	buf := readBuf(b)
	if sig := buf.uint32(); sig != LocalFileHeaderSignature {
		return 0, fmt.Errorf("%w: bad local header signature %#08x", ziptype.ErrCorruptDirectory, sig)
	}
	buf.skip(22) // version, flags, method, time, date, crc32, sizes
	nameLen := uint64(buf.uint16())
	extraLen := uint64(buf.uint16())
	return nameLen + extraLen, nil
}

// DataOffset fetches the local header of e and returns the absolute offset
// of its first payload byte. The local header's own name and extra lengths
// are authoritative; the central directory copies may differ.
func DataOffset(ctx context.Context, f Fetcher, e *ziptype.Entry, rec DirectoryRecord) (uint64, error) {
	if !sizing.Within(e.LocalHeaderOffset, LocalHeaderLen, rec.Offset) {
		return 0, fmt.Errorf("%w: local header of %q at %d overlaps the directory",
			ziptype.ErrCorruptDirectory, e.Name, e.LocalHeaderOffset)
	}

	probe := LocalHeaderProbeLength(e, rec.Offset)
	b, err := fetchRange(ctx, f, nil, e.LocalHeaderOffset, probe)
	if err != nil {
		return 0, err
	}
	variable, err := ParseLocalHeader(b)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", e.Name, err)
	}

	start, ok := sizing.AddUint64(e.LocalHeaderOffset, LocalHeaderLen+variable)
	if !ok {
		return 0, fmt.Errorf("%w: data offset of %q overflows", ziptype.ErrCorruptDirectory, e.Name)
	}
	if err := CheckPayload(e, start, rec); err != nil {
		return 0, err
	}
	return start, nil
}
