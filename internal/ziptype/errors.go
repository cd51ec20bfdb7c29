package ziptype

import "errors"

// Sentinel errors for partial archive operations.
var (
	// ErrNotAZip is returned when no end of central directory record can be found.
	ErrNotAZip = errors.New("partialzip: not a zip archive")

	// ErrCorruptDirectory is returned when directory or header records are malformed.
	ErrCorruptDirectory = errors.New("partialzip: corrupt central directory")

	// ErrEntryNotFound is returned when no downloadable entry matches the requested name.
	ErrEntryNotFound = errors.New("partialzip: entry not found")

	// ErrRangeNotSupported is returned when the server does not honor range requests.
	ErrRangeNotSupported = errors.New("partialzip: range requests not supported")

	// ErrUnsupportedCompression is returned for compression methods outside the supported set.
	ErrUnsupportedCompression = errors.New("partialzip: unsupported compression")

	// ErrIntegrityCheckFailed is returned when decoded content does not match its declared size or CRC32.
	ErrIntegrityCheckFailed = errors.New("partialzip: integrity check failed")

	// ErrShortRead is returned when the server returns fewer bytes than requested.
	ErrShortRead = errors.New("partialzip: short read")

	// ErrTransport is returned when a request keeps failing after all retries.
	ErrTransport = errors.New("partialzip: transport error")

	// ErrInvalidURL is returned for malformed URLs or unsupported schemes.
	ErrInvalidURL = errors.New("partialzip: invalid url")

	// ErrOutputExists is returned when a download would overwrite an existing file.
	ErrOutputExists = errors.New("partialzip: output already exists")

	// ErrEntryTooLarge is returned when an entry exceeds the configured size limit.
	ErrEntryTooLarge = errors.New("partialzip: entry too large")
)
