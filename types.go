package partialzip

import "github.com/meigma/partialzip/internal/ziptype"

// Entry is a member of a remote archive as described by its central
// directory record.
type Entry = ziptype.Entry

// EntryInfo is the listing view of an entry.
type EntryInfo = ziptype.EntryInfo

// Method is a ZIP compression method code.
type Method = ziptype.Method

// Compression methods that Download can decode.
const (
	MethodStore   = ziptype.MethodStore
	MethodDeflate = ziptype.MethodDeflate
	MethodBzip2   = ziptype.MethodBzip2
	MethodZstd    = ziptype.MethodZstd
)
