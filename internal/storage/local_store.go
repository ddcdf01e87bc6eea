package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/TheMichaelB/safe/internal/events"
)

// LocalStore implements file system operations rooted at a base directory.
type LocalStore struct {
	baseDir          string
	conflictStrategy ConflictStrategy
	logger           *events.Logger

	// Security settings
	allowSymlinks bool
	maxPathLength int
	maxFileSize   int64
}

// NewLocalStore creates a local file store. The base directory is created
// by the first write, so opening a store has no side effects.
func NewLocalStore(baseDir string, logger *events.Logger) (*LocalStore, error) {
	// Resolve absolute path
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	return &LocalStore{
		baseDir:          absPath,
		conflictStrategy: ConflictOverwrite,
		logger:           logger.WithField("component", "local_store"),
		allowSymlinks:    false,
		maxPathLength:    4096,
		maxFileSize:      defaultMaxFileSize,
	}, nil
}

// SetConflictStrategy sets the conflict resolution strategy.
func (s *LocalStore) SetConflictStrategy(strategy ConflictStrategy) {
	s.conflictStrategy = strategy
}

// SetMaxFileSize sets the maximum file size limit.
func (s *LocalStore) SetMaxFileSize(size int64) {
	s.maxFileSize = size
}

// BaseDir returns the absolute base directory.
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

// Location returns the absolute path of path inside the store.
func (s *LocalStore) Location(path string) string {
	if safePath, err := s.sanitizePath(path); err == nil {
		return safePath
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(path))
}

// Write saves data to a file atomically.
func (s *LocalStore) Write(path string, data []byte, mode os.FileMode) (string, error) {
	// Check size limit
	if int64(len(data)) > s.maxFileSize {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrTooLarge, len(data), s.maxFileSize)
	}

	return s.WriteStream(path, bytes.NewReader(data), mode)
}

// WriteStream saves data from a reader. The data goes to a temporary file
// in the destination directory which is synced and then renamed over the
// destination, so a crash never leaves a truncated file behind.
func (s *LocalStore) WriteStream(path string, reader io.Reader, mode os.FileMode) (string, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return "", fmt.Errorf("sanitize path: %w", err)
	}

	// Ensure parent directory exists
	parentDir := filepath.Dir(safePath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return "", fmt.Errorf("create parent directory: %w", err)
	}

	target, err := s.resolveConflict(path, safePath)
	if err != nil {
		return "", err
	}

	// Temp file in the same directory so the rename stays on one file system
	tempFile, err := os.CreateTemp(parentDir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	// Copy with size limit
	hasher := sha256.New()
	writer := io.MultiWriter(tempFile, hasher)

	limited := &io.LimitedReader{
		R: reader,
		N: s.maxFileSize + 1, // +1 to detect oversized
	}

	written, err := io.Copy(writer, limited)
	if err != nil {
		return "", fmt.Errorf("write stream: %w", err)
	}

	if limited.N <= 0 {
		return "", fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, s.maxFileSize)
	}

	if err := tempFile.Chmod(mode); err != nil {
		return "", fmt.Errorf("chmod temp file: %w", err)
	}

	// Sync to disk
	if err := tempFile.Sync(); err != nil {
		return "", fmt.Errorf("sync file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	// Rename atomically
	if err := os.Rename(tempPath, target); err != nil {
		return "", fmt.Errorf("rename temp file: %w", err)
	}

	success = true

	s.syncDir(parentDir)

	rel := s.relative(target)

	s.logger.WithFields(map[string]interface{}{
		"path": rel,
		"size": written,
		"hash": hex.EncodeToString(hasher.Sum(nil)),
	}).Debug("File written")

	return rel, nil
}

// Read retrieves file contents.
func (s *LocalStore) Read(path string) ([]byte, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return nil, fmt.Errorf("sanitize path: %w", err)
	}

	// Check if it's a symlink and we don't allow symlinks
	if !s.allowSymlinks {
		stat, err := os.Lstat(safePath)
		if err == nil && stat.Mode()&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("symlinks not allowed: %s", path)
		}
	}

	stat, err := os.Stat(safePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("read file: %s is a directory", path)
	}
	if stat.Size() > s.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrTooLarge, stat.Size(), s.maxFileSize)
	}

	data, err := os.ReadFile(safePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// Delete removes a file.
func (s *LocalStore) Delete(path string) error {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}

	s.logger.WithField("path", path).Debug("Deleting file")

	if err := os.Remove(safePath); err != nil {
		if os.IsNotExist(err) {
			return nil // Already deleted
		}
		return fmt.Errorf("delete file: %w", err)
	}

	// Clean up empty parent directories
	s.cleanEmptyDirs(filepath.Dir(safePath))

	return nil
}

// Exists checks if a file exists.
func (s *LocalStore) Exists(path string) (bool, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return false, fmt.Errorf("sanitize path: %w", err)
	}

	_, err = os.Stat(safePath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Stat returns file information.
func (s *LocalStore) Stat(path string) (FileInfo, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("sanitize path: %w", err)
	}

	stat, err := os.Lstat(safePath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return FileInfo{}, fmt.Errorf("stat file: %w", err)
	}

	info := FileInfo{
		Path:      path,
		Size:      stat.Size(),
		Mode:      stat.Mode(),
		ModTime:   stat.ModTime(),
		IsDir:     stat.IsDir(),
		IsSymlink: stat.Mode()&os.ModeSymlink != 0,
	}

	// Resolve symlink
	if info.IsSymlink {
		target, err := os.Readlink(safePath)
		if err == nil {
			info.LinkTarget = target
		}
	}

	return info, nil
}

// ListDir returns directory contents. Temporary files of in-flight writes
// are not listed.
func (s *LocalStore) ListDir(path string) ([]FileInfo, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return nil, fmt.Errorf("sanitize path: %w", err)
	}

	entries, err := os.ReadDir(safePath)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if isTempName(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, FileInfo{
			Path:    filepath.ToSlash(filepath.Join(path, entry.Name())),
			Size:    info.Size(),
			Mode:    info.Mode(),
			ModTime: info.ModTime(),
			IsDir:   info.IsDir(),
		})
	}

	return files, nil
}

// Helper methods

// resolveConflict returns the path a write should land on.
func (s *LocalStore) resolveConflict(path, safePath string) (string, error) {
	if _, err := os.Lstat(safePath); err != nil {
		if os.IsNotExist(err) {
			return safePath, nil
		}
		return "", fmt.Errorf("stat destination: %w", err)
	}

	switch s.conflictStrategy {
	case ConflictError:
		return "", fmt.Errorf("%w: %s", ErrDestinationExists, path)
	case ConflictSkip:
		return "", fmt.Errorf("%w: %s", ErrSkipped, path)
	case ConflictRename:
		return s.generateConflictPath(safePath), nil
	default:
		return safePath, nil
	}
}

// sanitizePath validates and normalizes a file path.
func (s *LocalStore) sanitizePath(path string) (string, error) {
	// Check for null bytes
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains null bytes")
	}

	// Normalize path separators
	normalized := filepath.FromSlash(path)

	// Check for directory traversal before cleaning hides it
	for _, part := range strings.FieldsFunc(normalized, isSeparator) {
		if part == ".." {
			return "", fmt.Errorf("invalid path: contains '..'")
		}
	}

	// Clean path (remove ., duplicate separators)
	cleaned := filepath.Clean(normalized)

	// Remove leading separators
	cleaned = strings.TrimLeft(cleaned, string(filepath.Separator))
	if cleaned == "." {
		cleaned = ""
	}

	// Build full path
	fullPath := filepath.Join(s.baseDir, cleaned)

	// Verify it's under base directory
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) && fullPath != s.baseDir {
		return "", fmt.Errorf("path escapes base directory")
	}

	// Check path length
	if len(fullPath) > s.maxPathLength {
		return "", fmt.Errorf("path too long: %d characters (max: %d)", len(fullPath), s.maxPathLength)
	}

	// Platform-specific checks
	if err := s.validatePlatformPath(cleaned); err != nil {
		return "", err
	}

	return fullPath, nil
}

// validatePlatformPath checks platform-specific path restrictions.
func (s *LocalStore) validatePlatformPath(path string) error {
	if runtime.GOOS == "windows" {
		// Windows reserved names
		reserved := []string{"CON", "PRN", "AUX", "NUL", "COM1", "COM2", "COM3", "COM4",
			"COM5", "COM6", "COM7", "COM8", "COM9", "LPT1", "LPT2", "LPT3",
			"LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9"}

		parts := strings.Split(path, string(filepath.Separator))
		for _, part := range parts {
			baseName := strings.TrimSuffix(part, filepath.Ext(part))
			upperName := strings.ToUpper(baseName)

			for _, reserved := range reserved {
				if upperName == reserved {
					return fmt.Errorf("invalid path: contains reserved name '%s'", part)
				}
			}

			// Check for invalid characters
			for _, char := range `<>:"|?*` {
				if strings.ContainsRune(part, char) {
					return fmt.Errorf("invalid path: contains character '%c'", char)
				}
			}
		}
	}

	return nil
}

// generateConflictPath creates a unique path for conflicts.
func (s *LocalStore) generateConflictPath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	timestamp := time.Now().Format("20060102-150405")

	candidate := filepath.Join(dir, fmt.Sprintf("%s.conflict-%s%s", name, timestamp, ext))
	for i := 1; ; i++ {
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s.conflict-%s-%d%s", name, timestamp, i, ext))
	}
}

// relative converts an absolute path inside the store to a slash path.
func (s *LocalStore) relative(fullPath string) string {
	rel, err := filepath.Rel(s.baseDir, fullPath)
	if err != nil {
		return fullPath
	}
	return filepath.ToSlash(rel)
}

// syncDir flushes a directory entry after a rename. Not every platform
// supports it, so failures are ignored.
func (s *LocalStore) syncDir(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
}

// cleanEmptyDirs removes empty parent directories.
func (s *LocalStore) cleanEmptyDirs(dirPath string) {
	for dirPath != s.baseDir && strings.HasPrefix(dirPath, s.baseDir) {
		entries, err := os.ReadDir(dirPath)
		if err != nil || len(entries) > 0 {
			break
		}

		if err := os.Remove(dirPath); err != nil {
			break
		}

		dirPath = filepath.Dir(dirPath)
	}
}

func isSeparator(r rune) bool {
	return r == '/' || r == filepath.Separator
}

func isTempName(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, ".tmp-")
}
