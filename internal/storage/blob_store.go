package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// defaultMaxFileSize bounds reads and writes unless configured otherwise.
const defaultMaxFileSize = 512 * 1024 * 1024

// Errors
var (
	// ErrNotFound reports a missing file or object.
	ErrNotFound = errors.New("file not found")

	// ErrDestinationExists is returned by ConflictError writes.
	ErrDestinationExists = errors.New("destination already exists")

	// ErrSkipped is returned by ConflictSkip writes that left an existing
	// file untouched.
	ErrSkipped = errors.New("write skipped: destination exists")

	// ErrTooLarge reports data above the configured size limit.
	ErrTooLarge = errors.New("file too large")
)

// BlobStore reads and writes whole files. Writes are atomic: readers see
// either the previous content or the complete new content, never a
// partially written file.
type BlobStore interface {
	// Write saves data and returns the path actually written, which
	// differs from path when ConflictRename applies.
	Write(path string, data []byte, mode os.FileMode) (string, error)

	// WriteStream saves data from a reader.
	WriteStream(path string, reader io.Reader, mode os.FileMode) (string, error)

	// Read retrieves file contents.
	Read(path string) ([]byte, error)

	// Delete removes a file.
	Delete(path string) error

	// Exists checks if a file exists.
	Exists(path string) (bool, error)

	// Stat returns file information.
	Stat(path string) (FileInfo, error)

	// ListDir returns directory contents.
	ListDir(path string) ([]FileInfo, error)

	// SetConflictStrategy changes how writes treat existing files.
	SetConflictStrategy(strategy ConflictStrategy)

	// Location returns the absolute location of path, as a local path or
	// an s3:// URL.
	Location(path string) string
}

// FileInfo contains file metadata.
type FileInfo struct {
	Path       string
	Size       int64
	Mode       os.FileMode
	ModTime    time.Time
	IsDir      bool
	IsSymlink  bool
	LinkTarget string
}

// ConflictStrategy defines how to handle file conflicts.
type ConflictStrategy string

const (
	// ConflictOverwrite replaces existing files.
	ConflictOverwrite ConflictStrategy = "overwrite"

	// ConflictRename writes to a new name with a conflict suffix.
	ConflictRename ConflictStrategy = "rename"

	// ConflictError fails with ErrDestinationExists.
	ConflictError ConflictStrategy = "error"

	// ConflictSkip leaves the existing file and returns ErrSkipped.
	ConflictSkip ConflictStrategy = "skip"
)

// ParseConflictStrategy maps a configuration value to a strategy. An empty
// name selects ConflictOverwrite.
func ParseConflictStrategy(name string) (ConflictStrategy, error) {
	switch s := ConflictStrategy(name); s {
	case "":
		return ConflictOverwrite, nil
	case ConflictOverwrite, ConflictRename, ConflictError, ConflictSkip:
		return s, nil
	default:
		return "", fmt.Errorf("unknown conflict strategy %q", name)
	}
}
