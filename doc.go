// Package partialzip retrieves single entries from ZIP archives hosted on
// HTTP(S) servers without downloading the whole archive.
//
// The [Engine] reads the archive's trailer and central directory with a few
// HTTP range requests, resolves the requested entry to the exact byte range
// of its compressed payload, fetches only that range, then decodes and
// verifies it against the size and CRC32 recorded in the directory.
//
// # Quick Start
//
// List the entries of a remote archive:
//
//	eng, err := partialzip.New()
//	if err != nil {
//	    return err
//	}
//	entries, err := eng.List(ctx, "https://example.com/release.zip")
//
// Stream one entry to a writer:
//
//	n, err := eng.Download(ctx, "https://example.com/release.zip", "bin/tool", os.Stdout)
//
// Save one entry to a file. The file appears only after verification:
//
//	res, err := eng.DownloadFile(ctx, url, "bin/tool", "./tool",
//	    partialzip.WithProgress(func(ev partialzip.ProgressEvent) {
//	        fmt.Println(ev.Stage, ev.BytesDone, ev.BytesTotal)
//	    }),
//	)
//
// # Supported Archives
//
// Entries stored, deflated, bzip2- or zstd-compressed can be downloaded.
// Zip64 archives and archives with a trailing comment are supported.
// Encrypted entries and other compression methods are listed with
// Supported set to false and fail to download with [ErrUnsupportedCompression].
//
// # Errors
//
// Every failure wraps one of the exported sentinels ([ErrNotAZip],
// [ErrCorruptDirectory], [ErrEntryNotFound], [ErrRangeNotSupported],
// [ErrUnsupportedCompression], [ErrIntegrityCheckFailed], [ErrShortRead],
// [ErrTransport], ...). Use errors.Is to branch on them.
//
// Servers that ignore range requests are detected and rejected with
// [ErrRangeNotSupported] rather than parsed as if the full body were the
// requested range.
package partialzip
