package ziptype

import "strconv"

// Method is a ZIP compression method code.
type Method uint16

// Compression methods understood by the decoder.
const (
	MethodStore   Method = 0
	MethodDeflate Method = 8
	MethodBzip2   Method = 12
	MethodZstd    Method = 93
)

// Supported reports whether entries using m can be decoded.
func (m Method) Supported() bool {
	switch m {
	case MethodStore, MethodDeflate, MethodBzip2, MethodZstd:
		return true
	default:
		return false
	}
}

// String returns the human-readable name of the compression method.
func (m Method) String() string {
	switch m {
	case MethodStore:
		return "store"
	case MethodDeflate:
		return "deflate"
	case MethodBzip2:
		return "bzip2"
	case MethodZstd:
		return "zstd"
	default:
		return "method(" + strconv.Itoa(int(m)) + ")"
	}
}
