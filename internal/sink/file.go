// Package sink writes downloaded entries to the filesystem atomically.
package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/meigma/partialzip/internal/ziptype"
)

// DefaultMode is the permission of committed files.
const DefaultMode os.FileMode = 0o644

// Committer is a writer whose output becomes visible only on Commit.
type Committer interface {
	io.Writer

	// Commit publishes the written content at the destination path.
	Commit() error

	// Discard abandons the written content.
	Discard() error
}

// File writes one entry to a path.
//
// Content is written to a temporary file in the destination directory,
// then moved to the final path on Commit. Partially written files are never
// visible at the final path.
type File struct {
	path      string
	overwrite bool
	mode      os.FileMode
	modTime   time.Time
}

// FileOption configures a File.
type FileOption func(*File)

// WithOverwrite allows replacing an existing file.
// By default, an existing file is an error.
func WithOverwrite(overwrite bool) FileOption {
	return func(f *File) {
		f.overwrite = overwrite
	}
}

// WithModTime sets the modification time applied on Commit.
// The zero time leaves the current time.
func WithModTime(t time.Time) FileOption {
	return func(f *File) {
		f.modTime = t
	}
}

// WithMode sets the permission bits applied on Commit.
func WithMode(mode os.FileMode) FileOption {
	return func(f *File) {
		f.mode = mode.Perm()
	}
}

// NewFile creates a File that writes to path with DefaultMode.
func NewFile(path string, opts ...FileOption) *File {
	f := &File{path: path, mode: DefaultMode}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Path returns the destination path.
func (f *File) Path() string {
	return f.path
}

// Check reports ziptype.ErrOutputExists if the destination exists and
// overwriting is disabled.
func (f *File) Check() error {
	if f.overwrite {
		return nil
	}
	if _, err := os.Lstat(f.path); err == nil {
		return fmt.Errorf("%w: %s", ziptype.ErrOutputExists, f.path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", f.path, err)
	}
	return nil
}

// Writer returns a Committer that writes to a temp file and moves it into
// place on Commit.
func (f *File) Writer() (Committer, error) {
	if err := f.Check(); err != nil {
		return nil, err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	// Create temp file in same directory (for atomic rename)
	tempFile, err := os.CreateTemp(dir, ".partialzip-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	return &fileCommitter{
		file:     f,
		tempFile: tempFile,
	}, nil
}

// fileCommitter writes to a temp file and moves it on Commit.
type fileCommitter struct {
	file     *File
	tempFile *os.File
}

// Write implements io.Writer.
func (c *fileCommitter) Write(p []byte) (int, error) {
	return c.tempFile.Write(p)
}

// Commit closes the temp file, applies the file mode and modification time,
// and moves it to the final path.
func (c *fileCommitter) Commit() error {
	tempPath := c.tempFile.Name()

	if err := c.tempFile.Close(); err != nil {
		_ = os.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}

	// Temp files are created 0600.
	if err := os.Chmod(tempPath, c.file.mode); err != nil {
		_ = os.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("chmod: %w", err)
	}

	if !c.file.modTime.IsZero() {
		if err := os.Chtimes(tempPath, c.file.modTime, c.file.modTime); err != nil {
			_ = os.Remove(tempPath) //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("chtimes: %w", err)
		}
	}

	if err := c.publish(tempPath); err != nil {
		_ = os.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return err
	}
	return nil
}

// publish moves tempPath to the destination. Without overwrite, a hard link
// claims the name so a file created since Check is never replaced.
func (c *fileCommitter) publish(tempPath string) error {
	dest := c.file.path
	if c.file.overwrite {
		if err := os.Rename(tempPath, dest); err != nil {
			return fmt.Errorf("rename to %s: %w", dest, err)
		}
		return nil
	}

	err := os.Link(tempPath, dest)
	switch {
	case err == nil:
		_ = os.Remove(tempPath) //nolint:errcheck // the content lives at dest now
		return nil
	case errors.Is(err, os.ErrExist):
		return fmt.Errorf("%w: %s", ziptype.ErrOutputExists, dest)
	}

	// Filesystems without hard links fall back to check-then-rename.
	if err := c.file.Check(); err != nil {
		return err
	}
	if err := os.Rename(tempPath, dest); err != nil {
		return fmt.Errorf("rename to %s: %w", dest, err)
	}
	return nil
}

// Discard closes and removes the temp file.
func (c *fileCommitter) Discard() error {
	tempPath := c.tempFile.Name()
	_ = c.tempFile.Close() //nolint:errcheck // we're cleaning up
	return os.Remove(tempPath)
}
