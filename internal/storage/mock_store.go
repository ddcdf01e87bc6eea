package storage

import (
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore provides an in-memory BlobStore for testing.
type MockStore struct {
	mu       sync.RWMutex
	files    map[string][]byte
	conflict ConflictStrategy

	// Fail, when set, makes every write return it.
	Fail error
}

// NewMockStore creates a mock blob store.
func NewMockStore() *MockStore {
	return &MockStore{
		files:    make(map[string][]byte),
		conflict: ConflictOverwrite,
	}
}

// SetConflictStrategy sets the conflict resolution strategy.
func (m *MockStore) SetConflictStrategy(strategy ConflictStrategy) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conflict = strategy
}

// Location returns path under a mock:// scheme.
func (m *MockStore) Location(p string) string {
	return "mock://" + clean(p)
}

// Write saves data to a file.
func (m *MockStore) Write(p string, data []byte, mode os.FileMode) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail != nil {
		return "", m.Fail
	}

	p = clean(p)
	if _, exists := m.files[p]; exists {
		switch m.conflict {
		case ConflictError:
			return "", fmt.Errorf("%w: %s", ErrDestinationExists, p)
		case ConflictSkip:
			return "", fmt.Errorf("%w: %s", ErrSkipped, p)
		case ConflictRename:
			ext := path.Ext(p)
			base := strings.TrimSuffix(p, ext)
			for i := 1; ; i++ {
				candidate := fmt.Sprintf("%s.conflict-%d%s", base, i, ext)
				if _, taken := m.files[candidate]; !taken {
					p = candidate
					break
				}
			}
		}
	}

	m.files[p] = make([]byte, len(data))
	copy(m.files[p], data)
	return p, nil
}

// WriteStream saves data from a reader.
func (m *MockStore) WriteStream(p string, reader io.Reader, mode os.FileMode) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return m.Write(p, data, mode)
}

// Read retrieves file contents.
func (m *MockStore) Read(p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if data, ok := m.files[clean(p)]; ok {
		result := make([]byte, len(data))
		copy(result, data)
		return result, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
}

// Delete removes a file.
func (m *MockStore) Delete(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files, clean(p))
	return nil
}

// Exists checks if a file exists.
func (m *MockStore) Exists(p string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.files[clean(p)]
	return exists, nil
}

// Stat returns file information.
func (m *MockStore) Stat(p string) (FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p = clean(p)
	if data, ok := m.files[p]; ok {
		return FileInfo{
			Path:    p,
			Size:    int64(len(data)),
			Mode:    0644,
			ModTime: time.Now(),
		}, nil
	}

	return FileInfo{}, fmt.Errorf("%w: %s", ErrNotFound, p)
}

// ListDir returns the files directly under p.
func (m *MockStore) ListDir(p string) ([]FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dir := clean(p)

	var files []FileInfo
	for filePath, data := range m.files {
		parent := path.Dir(filePath)
		if parent == "." {
			parent = ""
		}
		if parent != dir {
			continue
		}
		files = append(files, FileInfo{
			Path:    filePath,
			Size:    int64(len(data)),
			Mode:    0644,
			ModTime: time.Now(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Helper methods for testing

// FileExists checks if a file exists (helper for tests).
func (m *MockStore) FileExists(p string) bool {
	ok, _ := m.Exists(p)
	return ok
}

// Files returns the stored paths.
func (m *MockStore) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	return paths
}

// Clear removes all files.
func (m *MockStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files = make(map[string][]byte)
}

func clean(p string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
}
