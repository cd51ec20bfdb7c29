package ziptype

import "time"

// General purpose flag bits that change how an entry is read.
const (
	FlagEncrypted      uint16 = 1 << 0
	FlagDataDescriptor uint16 = 1 << 3
	FlagUTF8           uint16 = 1 << 11
)

// Entry is a single member of a remote archive as described by its central
// directory record.
type Entry struct {
	// Name is the path as stored in the archive, forward-slash separated.
	Name string

	// Method is the compression method code.
	Method Method

	// CompressedSize is the number of payload bytes following the local header.
	CompressedSize uint64

	// UncompressedSize is the decoded size in bytes.
	UncompressedSize uint64

	// CRC32 is the IEEE checksum of the decoded content.
	CRC32 uint32

	// LocalHeaderOffset is the byte offset of the entry's local file header.
	LocalHeaderOffset uint64

	// Flags holds the general purpose bit flags.
	Flags uint16

	// IsDir is true when the name ends in a path separator.
	IsDir bool

	// Modified is the MS-DOS modification time, or the zero time if unset.
	Modified time.Time
}

// Encrypted reports whether the entry payload is encrypted.
func (e *Entry) Encrypted() bool {
	return e.Flags&FlagEncrypted != 0
}

// Info returns the listing view of the entry.
func (e *Entry) Info() EntryInfo {
	return EntryInfo{
		Name:             e.Name,
		UncompressedSize: e.UncompressedSize,
		CompressedSize:   e.CompressedSize,
		Method:           e.Method,
		IsDir:            e.IsDir,
		Supported:        e.Method.Supported() && !e.Encrypted(),
		Modified:         e.Modified,
	}
}

// EntryInfo is the listing view of an entry.
type EntryInfo struct {
	Name             string
	UncompressedSize uint64
	CompressedSize   uint64
	Method           Method
	IsDir            bool

	// Supported is false for unknown methods and encrypted entries.
	Supported bool

	Modified time.Time
}
