package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/absfs/absfs"
	"github.com/absfs/memfs"
	"github.com/google/uuid"

	"github.com/TheMichaelB/safe/internal/events"
)

// FSStore keeps files on an absfs.FileSystem. Paths are slash separated
// and resolved under root.
type FSStore struct {
	fs               absfs.FileSystem
	root             string
	prefix           string
	maxFileSize      int64
	conflictStrategy ConflictStrategy
	logger           *events.Logger
}

// NewFSStore creates a store rooted at root inside fsys. Locations are
// reported as prefix followed by the absolute path in fsys. Like
// LocalStore, directories are only created by writes.
func NewFSStore(fsys absfs.FileSystem, root, prefix string, logger *events.Logger) *FSStore {
	return &FSStore{
		fs:               fsys,
		root:             path.Clean("/" + strings.ReplaceAll(root, "\\", "/")),
		prefix:           prefix,
		maxFileSize:      defaultMaxFileSize,
		conflictStrategy: ConflictOverwrite,
		logger:           logger.WithField("component", "fs_store"),
	}
}

// SetMaxFileSize changes the size limit for reads and writes.
func (s *FSStore) SetMaxFileSize(size int64) {
	s.maxFileSize = size
}

// SetConflictStrategy changes how writes treat existing files.
func (s *FSStore) SetConflictStrategy(strategy ConflictStrategy) {
	s.conflictStrategy = strategy
}

// Location returns the prefixed absolute path of p.
func (s *FSStore) Location(p string) string {
	return s.prefix + s.resolve(p)
}

func (s *FSStore) Write(p string, data []byte, mode os.FileMode) (string, error) {
	return s.WriteStream(p, bytes.NewReader(data), mode)
}

// WriteStream writes to a temp file next to the target and renames it
// into place.
func (s *FSStore) WriteStream(p string, reader io.Reader, mode os.FileMode) (string, error) {
	full := s.resolve(p)
	if full == s.root {
		return "", fmt.Errorf("invalid path %q", p)
	}

	dir := path.Dir(full)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create parent directory: %w", err)
	}

	target, err := s.resolveConflict(p, full)
	if err != nil {
		return "", err
	}

	tempPath := path.Join(dir, "."+path.Base(target)+".tmp-"+uuid.NewString())
	f, err := s.fs.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	success := false
	defer func() {
		if !success {
			f.Close()
			s.fs.Remove(tempPath)
		}
	}()

	limited := &io.LimitedReader{R: reader, N: s.maxFileSize + 1}
	written, err := io.Copy(f, limited)
	if err != nil {
		return "", fmt.Errorf("write stream: %w", err)
	}
	if limited.N <= 0 {
		return "", fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, s.maxFileSize)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	if err := s.replace(tempPath, target); err != nil {
		return "", fmt.Errorf("rename temp file: %w", err)
	}
	success = true

	rel := s.relative(target)
	s.logger.WithFields(map[string]interface{}{
		"path": rel,
		"size": written,
	}).Debug("File written")

	return rel, nil
}

func (s *FSStore) Read(p string) ([]byte, error) {
	full := s.resolve(p)

	info, err := s.fs.Stat(full)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", p)
	}
	if info.Size() > s.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}

	f, err := s.fs.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

func (s *FSStore) Delete(p string) error {
	if err := s.fs.Remove(s.resolve(p)); err != nil {
		if isNotExist(err) {
			return nil
		}
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (s *FSStore) Exists(p string) (bool, error) {
	_, err := s.fs.Stat(s.resolve(p))
	if err == nil {
		return true, nil
	}
	if isNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *FSStore) Stat(p string) (FileInfo, error) {
	info, err := s.fs.Stat(s.resolve(p))
	if err != nil {
		if isNotExist(err) {
			return FileInfo{}, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return FileInfo{}, fmt.Errorf("stat file: %w", err)
	}

	return FileInfo{
		Path:    p,
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}, nil
}

func (s *FSStore) ListDir(p string) ([]FileInfo, error) {
	f, err := s.fs.Open(s.resolve(p))
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	defer f.Close()

	entries, err := f.Readdir(-1)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var files []FileInfo
	for _, info := range entries {
		if isTempName(info.Name()) || info.Name() == "." || info.Name() == ".." {
			continue
		}
		files = append(files, FileInfo{
			Path:    path.Join(clean(p), info.Name()),
			Size:    info.Size(),
			Mode:    info.Mode(),
			ModTime: info.ModTime(),
			IsDir:   info.IsDir(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// replace renames from onto to. File systems that refuse to rename over
// an existing file get the target removed first.
func (s *FSStore) replace(from, to string) error {
	err := s.fs.Rename(from, to)
	if err == nil {
		return nil
	}
	if _, statErr := s.fs.Stat(to); statErr != nil {
		return err
	}
	if rmErr := s.fs.Remove(to); rmErr != nil {
		return err
	}
	return s.fs.Rename(from, to)
}

func (s *FSStore) resolveConflict(p, full string) (string, error) {
	if _, err := s.fs.Stat(full); err != nil {
		if isNotExist(err) {
			return full, nil
		}
		return "", fmt.Errorf("stat destination: %w", err)
	}

	switch s.conflictStrategy {
	case ConflictError:
		return "", fmt.Errorf("%w: %s", ErrDestinationExists, p)
	case ConflictSkip:
		return "", fmt.Errorf("%w: %s", ErrSkipped, p)
	case ConflictRename:
		ext := path.Ext(full)
		base := strings.TrimSuffix(full, ext)
		for i := 1; ; i++ {
			candidate := fmt.Sprintf("%s.conflict-%d%s", base, i, ext)
			if _, err := s.fs.Stat(candidate); isNotExist(err) {
				return candidate, nil
			}
		}
	default:
		return full, nil
	}
}

// resolve maps p to an absolute path under root. Dot-dot segments cannot
// climb above root.
func (s *FSStore) resolve(p string) string {
	return path.Join(s.root, clean(p))
}

func (s *FSStore) relative(full string) string {
	return strings.TrimPrefix(strings.TrimPrefix(full, s.root), "/")
}

func isNotExist(err error) bool {
	return err != nil && (errors.Is(err, os.ErrNotExist) || os.IsNotExist(err))
}

// MemScheme prefixes locations served from process-wide in-memory file
// systems.
const MemScheme = "mem://"

var (
	memMu  sync.Mutex
	memFSs = map[string]absfs.FileSystem{}
)

// MemFS returns the in-memory file system registered under name, creating
// it on first use. Stores opened on the same name share their files.
func MemFS(name string) (absfs.FileSystem, error) {
	memMu.Lock()
	defer memMu.Unlock()

	if fsys, ok := memFSs[name]; ok {
		return fsys, nil
	}

	fsys, err := memfs.NewFS()
	if err != nil {
		return nil, fmt.Errorf("create memory file system: %w", err)
	}
	memFSs[name] = fsys
	return fsys, nil
}

// ParseMemURL splits mem://name/dir into its parts.
func ParseMemURL(location string) (name, dir string, err error) {
	rest := strings.TrimPrefix(location, MemScheme)
	if rest == location {
		return "", "", fmt.Errorf("not a mem url: %q", location)
	}

	name, dir, _ = strings.Cut(rest, "/")
	if name == "" {
		return "", "", fmt.Errorf("mem url without name: %q", location)
	}
	return name, "/" + strings.Trim(dir, "/"), nil
}
