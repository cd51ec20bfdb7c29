// Package zipfmt decodes the ZIP records needed to address a single entry
// inside a remote archive: the end of central directory trailer, the zip64
// locator and record, central directory file headers, and local file headers.
//
// All multi-byte fields are little-endian. Parsing works on byte slices
// fetched by a Fetcher; nothing here performs I/O except Locate and
// ReadDirectory, which fetch the ranges they need.
package zipfmt

import (
	"context"
	"encoding/binary"
)

// Record signatures. Each begins with the two byte marker "PK".
const (
	LocalFileHeaderSignature             uint32 = 0x04034b50
	CentralDirectorySignature            uint32 = 0x02014b50
	EndOfCentralDirSignature             uint32 = 0x06054b50
	Zip64EndOfCentralDirSignature        uint32 = 0x06064b50
	Zip64EndOfCentralDirLocatorSignature uint32 = 0x07064b50
)

// Fixed record lengths.
const (
	LocalHeaderLen       = 30
	CentralHeaderLen     = 46
	EndOfCentralDirLen   = 22
	Zip64LocatorLen      = 20
	Zip64EndOfCentralLen = 56

	// MaxCommentLen is the largest archive comment the trailer can declare.
	MaxCommentLen = 0xffff

	// MaxTailLen is the most bytes that can follow the start of the trailer.
	MaxTailLen = EndOfCentralDirLen + MaxCommentLen
)

// Zip64ExtraTag identifies the zip64 extended information extra field.
const Zip64ExtraTag uint16 = 0x0001

// Sentinel values signalling that the real value lives in a zip64 structure.
const (
	sentinel16 = 0xffff
	sentinel32 = 0xffffffff
)

// Fetcher returns exactly length bytes starting at off of the remote archive.
type Fetcher interface {
	Fetch(ctx context.Context, off, length int64) ([]byte, error)
}

// readBuf is a little-endian cursor over a byte slice. Callers check
// lengths before reading.
type readBuf []byte

func (b *readBuf) uint16() uint16 {
	v := binary.LittleEndian.Uint16(*b)
	*b = (*b)[2:]
	return v
}

func (b *readBuf) uint32() uint32 {
	v := binary.LittleEndian.Uint32(*b)
	*b = (*b)[4:]
	return v
}

func (b *readBuf) uint64() uint64 {
	v := binary.LittleEndian.Uint64(*b)
	*b = (*b)[8:]
	return v
}

func (b *readBuf) skip(n int) {
	*b = (*b)[n:]
}

func (b *readBuf) bytes(n int) []byte {
	v := (*b)[:n]
	*b = (*b)[n:]
	return v
}
