package main

import (
	"errors"

	"github.com/meigma/partialzip"
)

// Process exit codes.
const (
	exitOK = iota
	exitError
	exitUsage
	exitNotAZip
	exitCorruptDirectory
	exitEntryNotFound
	exitRangeNotSupported
	exitUnsupportedCompression
	exitIntegrityCheckFailed
	exitShortRead
	exitTransport
	exitInvalidURL
	exitOutputExists
)

// usageError marks a malformed command line.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

var exitCodes = []struct {
	err  error
	code int
}{
	{partialzip.ErrNotAZip, exitNotAZip},
	{partialzip.ErrCorruptDirectory, exitCorruptDirectory},
	{partialzip.ErrEntryNotFound, exitEntryNotFound},
	{partialzip.ErrRangeNotSupported, exitRangeNotSupported},
	{partialzip.ErrUnsupportedCompression, exitUnsupportedCompression},
	{partialzip.ErrIntegrityCheckFailed, exitIntegrityCheckFailed},
	{partialzip.ErrShortRead, exitShortRead},
	{partialzip.ErrTransport, exitTransport},
	{partialzip.ErrInvalidURL, exitInvalidURL},
	{partialzip.ErrOutputExists, exitOutputExists},
}

// exitCode maps an error returned by a command to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ue *usageError
	if errors.As(err, &ue) {
		return exitUsage
	}
	for _, c := range exitCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return exitError
}
