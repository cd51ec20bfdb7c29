package partialzip

import "github.com/meigma/partialzip/internal/ziptype"

// Errors returned by List, Download, and related calls. Every error carries
// one of these sentinels; test with errors.Is.
var (
	// ErrNotAZip is returned when no end of central directory record can be found.
	ErrNotAZip = ziptype.ErrNotAZip

	// ErrCorruptDirectory is returned when directory or header records are malformed.
	ErrCorruptDirectory = ziptype.ErrCorruptDirectory

	// ErrEntryNotFound is returned when no downloadable entry matches the requested name.
	ErrEntryNotFound = ziptype.ErrEntryNotFound

	// ErrRangeNotSupported is returned when the server does not honor range requests.
	ErrRangeNotSupported = ziptype.ErrRangeNotSupported

	// ErrUnsupportedCompression is returned for unknown compression methods and encrypted entries.
	ErrUnsupportedCompression = ziptype.ErrUnsupportedCompression

	// ErrIntegrityCheckFailed is returned when decoded content does not match its declared size or CRC32.
	ErrIntegrityCheckFailed = ziptype.ErrIntegrityCheckFailed

	// ErrShortRead is returned when the server returns fewer bytes than requested.
	ErrShortRead = ziptype.ErrShortRead

	// ErrTransport is returned when a request keeps failing after all retries.
	ErrTransport = ziptype.ErrTransport

	// ErrInvalidURL is returned for malformed URLs or unsupported schemes.
	ErrInvalidURL = ziptype.ErrInvalidURL

	// ErrOutputExists is returned by DownloadFile when the output path exists.
	ErrOutputExists = ziptype.ErrOutputExists

	// ErrEntryTooLarge is returned when an entry exceeds the configured size limit.
	ErrEntryTooLarge = ziptype.ErrEntryTooLarge
)
