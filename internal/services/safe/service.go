package safe

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TheMichaelB/safe/internal/config"
	"github.com/TheMichaelB/safe/internal/crypto"
	"github.com/TheMichaelB/safe/internal/events"
	"github.com/TheMichaelB/safe/internal/models"
	"github.com/TheMichaelB/safe/internal/state"
	"github.com/TheMichaelB/safe/internal/storage"
)

// fileMode is used for every file the service writes.
const fileMode = 0600

// Opener returns the store rooted at a directory or s3:// location.
type Opener func(ctx context.Context, location string) (storage.BlobStore, error)

// Request names one file to transform. Name may be a bare file name, a
// path or a file:// URI; only its base name is used, both to find the
// source in SourceDir and to name the output in DestDir.
type Request struct {
	SourceDir string
	DestDir   string
	Name      string
	Password  []byte

	// Conflict overrides the configured strategy when set.
	Conflict storage.ConflictStrategy

	// RemoveSource deletes the source file once the output is written.
	RemoveSource bool
}

// Result describes the file an operation produced.
type Result struct {
	Name    string               `json:"name"`
	Path    string               `json:"path"`
	URI     string               `json:"uri"`
	Info    models.ContainerInfo `json:"info"`
	Size    int64                `json:"size"`
	SHA256  string               `json:"sha256"`
	Skipped bool                 `json:"skipped,omitempty"`

	// Modified is set by Inspect.
	Modified      time.Time `json:"modified,omitzero"`
	SourceRemoved bool      `json:"source_removed,omitempty"`
}

// Service encrypts and decrypts files between two directories.
type Service struct {
	cipher   crypto.VaultCipher
	journal  state.Store
	open     Opener
	conflict storage.ConflictStrategy
	workers  int
	logger   *events.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithOpener replaces how directories are turned into stores.
func WithOpener(open Opener) Option {
	return func(s *Service) {
		s.open = open
	}
}

// WithWorkers sets the batch concurrency.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithClock replaces the time source used for journal records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates the file service. A nil journal records nothing.
func NewService(
	cfg *config.Config,
	cipher crypto.VaultCipher,
	journal state.Store,
	logger *events.Logger,
	opts ...Option,
) *Service {
	if journal == nil {
		journal = state.NopStore{}
	}

	// Validate rejects unknown strategies, so a parse failure keeps the default
	conflict, err := storage.ParseConflictStrategy(cfg.Storage.Conflict)
	if err != nil {
		conflict = storage.ConflictOverwrite
	}

	s := &Service{
		cipher:   cipher,
		journal:  journal,
		conflict: conflict,
		workers:  cfg.Workers.MaxConcurrent,
		logger:   logger.WithField("service", "safe"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.open = func(ctx context.Context, location string) (storage.BlobStore, error) {
		return storage.Open(ctx, &cfg.Storage, location, logger)
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.workers <= 0 {
		s.workers = 1
	}

	return s
}

// Encrypt reads Name from SourceDir, seals it into a container and writes
// the container to DestDir under the same name.
func (s *Service) Encrypt(ctx context.Context, req Request) (*Result, error) {
	ctx, log := s.begin(ctx, models.OpEncrypt)

	name, err := s.validate(req)
	if err != nil {
		return nil, fail(models.OpEncrypt, req.Name, err)
	}
	srcPath := join(req.SourceDir, name)
	log = log.WithField("file", name)

	src, err := s.openStore(ctx, models.OpEncrypt, req.SourceDir)
	if err != nil {
		return nil, err
	}

	plaintext, err := src.Read(name)
	if err != nil {
		return nil, fail(models.OpEncrypt, srcPath, fmt.Errorf("read source: %w", err))
	}
	defer crypto.Zero(plaintext)

	dst, skipped, err := s.destination(ctx, models.OpEncrypt, req, name)
	if err != nil {
		return nil, err
	}
	if skipped != nil {
		s.record(log, skipped, srcPath, models.OpEncrypt)
		return skipped, nil
	}

	log.WithField("size", len(plaintext)).Debug("Encrypting file")

	container, err := s.cipher.Encrypt(plaintext, req.Password)
	if err != nil {
		return nil, fail(models.OpEncrypt, srcPath, err)
	}

	blob, err := container.MarshalBinary()
	if err != nil {
		return nil, fail(models.OpEncrypt, srcPath, err)
	}

	res, err := s.write(ctx, models.OpEncrypt, dst, req, name, blob)
	if err != nil {
		return nil, err
	}
	res.Info = container.Info()

	s.record(log, res, srcPath, models.OpEncrypt)
	s.removeSource(log, src, req, name, res)
	log.WithFields(map[string]interface{}{
		"dest":   res.Path,
		"cipher": res.Info.Cipher,
		"kdf":    res.Info.KDF,
	}).Info("File encrypted")

	return res, nil
}

// Decrypt reads the container Name from SourceDir, opens it and writes the
// plaintext to DestDir under the same name. Nothing is written when the
// container is malformed or the password is wrong.
func (s *Service) Decrypt(ctx context.Context, req Request) (*Result, error) {
	ctx, log := s.begin(ctx, models.OpDecrypt)

	name, err := s.validate(req)
	if err != nil {
		return nil, fail(models.OpDecrypt, req.Name, err)
	}
	srcPath := join(req.SourceDir, name)
	log = log.WithField("file", name)

	src, err := s.openStore(ctx, models.OpDecrypt, req.SourceDir)
	if err != nil {
		return nil, err
	}

	data, err := src.Read(name)
	if err != nil {
		return nil, fail(models.OpDecrypt, srcPath, fmt.Errorf("read source: %w", err))
	}

	container, err := crypto.ParseContainer(data)
	if err != nil {
		return nil, fail(models.OpDecrypt, srcPath, err)
	}

	dst, skipped, err := s.destination(ctx, models.OpDecrypt, req, name)
	if err != nil {
		return nil, err
	}
	if skipped != nil {
		s.record(log, skipped, srcPath, models.OpDecrypt)
		return skipped, nil
	}

	log.WithFields(map[string]interface{}{
		"cipher": container.Suite.String(),
		"kdf":    container.KDF.String(),
	}).Debug("Decrypting file")

	plaintext, err := s.cipher.Decrypt(container, req.Password)
	if err != nil {
		if errors.Is(err, crypto.ErrAuthentication) {
			log.Warn("Authentication failed")
		}
		return nil, fail(models.OpDecrypt, srcPath, err)
	}
	defer crypto.Zero(plaintext)

	res, err := s.write(ctx, models.OpDecrypt, dst, req, name, plaintext)
	if err != nil {
		return nil, err
	}
	res.Info = container.Info()

	s.record(log, res, srcPath, models.OpDecrypt)
	s.removeSource(log, src, req, name, res)
	log.WithField("dest", res.Path).Info("File decrypted")

	return res, nil
}

// Rekey replaces the container name in dir with a new container holding
// the same plaintext under newPassword. The new container gets a fresh
// salt and nonce and uses the service's current algorithms. The old file
// stays intact until the new one is completely written.
func (s *Service) Rekey(ctx context.Context, dir, name string, oldPassword, newPassword []byte) (*Result, error) {
	ctx, log := s.begin(ctx, models.OpRekey)

	base, err := FileName(name)
	if err != nil {
		return nil, fail(models.OpRekey, name, err)
	}
	if dir == "" {
		return nil, fail(models.OpRekey, name, fmt.Errorf("%w: directory is required", crypto.ErrInvalidInput))
	}
	if len(oldPassword) == 0 || len(newPassword) == 0 {
		return nil, fail(models.OpRekey, name, fmt.Errorf("%w: password is empty", crypto.ErrInvalidInput))
	}
	location := join(dir, base)
	log = log.WithField("file", base)

	store, err := s.openStore(ctx, models.OpRekey, dir)
	if err != nil {
		return nil, err
	}

	data, err := store.Read(base)
	if err != nil {
		return nil, fail(models.OpRekey, location, fmt.Errorf("read container: %w", err))
	}

	old, err := crypto.ParseContainer(data)
	if err != nil {
		return nil, fail(models.OpRekey, location, err)
	}

	plaintext, err := s.cipher.Decrypt(old, oldPassword)
	if err != nil {
		return nil, fail(models.OpRekey, location, err)
	}
	defer crypto.Zero(plaintext)

	container, err := s.cipher.Encrypt(plaintext, newPassword)
	if err != nil {
		return nil, fail(models.OpRekey, location, err)
	}

	blob, err := container.MarshalBinary()
	if err != nil {
		return nil, fail(models.OpRekey, location, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fail(models.OpRekey, location, err)
	}

	store.SetConflictStrategy(storage.ConflictOverwrite)
	written, err := store.Write(base, blob, fileMode)
	if err != nil {
		return nil, fail(models.OpRekey, location, fmt.Errorf("write container: %w", err))
	}

	res := s.result(store, written, blob)
	res.Info = container.Info()

	s.record(log, res, location, models.OpRekey)
	log.WithFields(map[string]interface{}{
		"from_cipher": old.Suite.String(),
		"to_cipher":   container.Suite.String(),
		"from_kdf":    old.KDF.String(),
		"to_kdf":      container.KDF.String(),
	}).Info("Container rekeyed")

	return res, nil
}

// Inspect reports the header of the container name in dir. No password is
// needed.
func (s *Service) Inspect(ctx context.Context, dir, name string) (*Result, error) {
	ctx, log := s.begin(ctx, models.OpInspect)

	base, err := FileName(name)
	if err != nil {
		return nil, fail(models.OpInspect, name, err)
	}
	if dir == "" {
		return nil, fail(models.OpInspect, name, fmt.Errorf("%w: directory is required", crypto.ErrInvalidInput))
	}
	location := join(dir, base)

	store, err := s.openStore(ctx, models.OpInspect, dir)
	if err != nil {
		return nil, err
	}

	stat, err := store.Stat(base)
	if err != nil {
		return nil, fail(models.OpInspect, location, fmt.Errorf("stat container: %w", err))
	}
	if stat.IsDir {
		return nil, fail(models.OpInspect, location, fmt.Errorf("%w: %s is a directory", crypto.ErrInvalidInput, base))
	}
	if stat.Size < crypto.MinContainerSize {
		return nil, fail(models.OpInspect, location, fmt.Errorf("%w: %d bytes is below the minimum container size", crypto.ErrMalformedContainer, stat.Size))
	}

	data, err := store.Read(base)
	if err != nil {
		return nil, fail(models.OpInspect, location, fmt.Errorf("read container: %w", err))
	}

	info, err := crypto.Inspect(data)
	if err != nil {
		return nil, fail(models.OpInspect, location, err)
	}

	res := s.result(store, base, data)
	res.Info = info
	res.Modified = stat.ModTime

	log.WithFields(map[string]interface{}{
		"file":   base,
		"cipher": info.Cipher,
		"kdf":    info.KDF,
	}).Debug("Container inspected")

	return res, nil
}

// List returns the names of the regular files directly in dir, sorted.
func (s *Service) List(ctx context.Context, dir string) ([]string, error) {
	ctx, log := s.begin(ctx, models.OpList)

	if dir == "" {
		return nil, fail(models.OpList, dir, fmt.Errorf("%w: directory is required", crypto.ErrInvalidInput))
	}

	store, err := s.openStore(ctx, models.OpList, dir)
	if err != nil {
		return nil, err
	}

	entries, err := store.ListDir("")
	if err != nil {
		return nil, fail(models.OpList, dir, fmt.Errorf("list directory: %w", err))
	}

	var names []string
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		names = append(names, path.Base(e.Path))
	}
	sort.Strings(names)

	log.WithFields(map[string]interface{}{
		"dir":   dir,
		"count": len(names),
	}).Debug("Directory listed")

	return names, nil
}

// FileName returns the base name of a file name, path or file:// URI.
func FileName(p string) (string, error) {
	name := p
	if strings.HasPrefix(name, "file://") {
		name = strings.TrimPrefix(name, "file://")
		if i := strings.IndexAny(name, "?#"); i >= 0 {
			name = name[:i]
		}
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
	}

	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: no file name in %q", crypto.ErrInvalidInput, p)
	}
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: file name contains NUL", crypto.ErrInvalidInput)
	}

	return name, nil
}

// begin tags ctx and the logger with a request ID and the operation.
func (s *Service) begin(ctx context.Context, op string) (context.Context, *events.Logger) {
	ctx = events.EnsureRequestID(ctx)
	log := s.logger.WithFields(map[string]interface{}{
		"request_id": events.GetRequestID(ctx),
		"op":         op,
	})
	return events.WithLogger(ctx, log), log
}

func (s *Service) validate(req Request) (string, error) {
	if req.SourceDir == "" {
		return "", fmt.Errorf("%w: source directory is required", crypto.ErrInvalidInput)
	}
	if req.DestDir == "" {
		return "", fmt.Errorf("%w: destination directory is required", crypto.ErrInvalidInput)
	}
	if len(req.Password) == 0 {
		return "", fmt.Errorf("%w: password is empty", crypto.ErrInvalidInput)
	}
	if req.Conflict != "" {
		if _, err := storage.ParseConflictStrategy(string(req.Conflict)); err != nil {
			return "", fmt.Errorf("%w: %v", crypto.ErrInvalidInput, err)
		}
	}
	return FileName(req.Name)
}

func (s *Service) openStore(ctx context.Context, op, location string) (storage.BlobStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(op, location, err)
	}

	store, err := s.open(ctx, location)
	if err != nil {
		return nil, &models.VaultError{
			Code: models.ErrCodeConfig,
			Op:   op,
			Path: location,
			Err:  fmt.Errorf("open store: %w", err),
		}
	}
	return store, nil
}

// destination opens the destination store of req with the effective
// conflict strategy. With skip or error, an existing file is reported
// here, before any key is derived; the check in Write still covers a file
// that appears in the meantime.
func (s *Service) destination(ctx context.Context, op string, req Request, name string) (storage.BlobStore, *Result, error) {
	destPath := join(req.DestDir, name)

	dst, err := s.openStore(ctx, op, req.DestDir)
	if err != nil {
		return nil, nil, err
	}

	strategy := req.Conflict
	if strategy == "" {
		strategy = s.conflict
	}
	dst.SetConflictStrategy(strategy)

	if strategy != storage.ConflictSkip && strategy != storage.ConflictError {
		return dst, nil, nil
	}

	exists, err := dst.Exists(name)
	if err != nil {
		return nil, nil, fail(op, destPath, fmt.Errorf("check destination: %w", err))
	}
	if !exists {
		return dst, nil, nil
	}

	if strategy == storage.ConflictSkip {
		res := s.result(dst, name, nil)
		res.Skipped = true
		return dst, res, nil
	}
	return nil, nil, fail(op, destPath, fmt.Errorf("write destination: %w: %s", storage.ErrDestinationExists, name))
}

// write streams data to dst. A canceled ctx stops the write so a
// discarded operation leaves nothing behind.
func (s *Service) write(ctx context.Context, op string, dst storage.BlobStore, req Request, name string, data []byte) (*Result, error) {
	destPath := join(req.DestDir, name)

	if err := ctx.Err(); err != nil {
		return nil, fail(op, destPath, err)
	}

	written, err := dst.WriteStream(name, bytes.NewReader(data), fileMode)
	if errors.Is(err, storage.ErrSkipped) {
		res := s.result(dst, name, nil)
		res.Skipped = true
		return res, nil
	}
	if err != nil {
		return nil, fail(op, destPath, fmt.Errorf("write destination: %w", err))
	}

	return s.result(dst, written, data), nil
}

// removeSource deletes the source of req after its output was written.
// The output is already in place, so a failure is logged and not returned.
func (s *Service) removeSource(log *events.Logger, src storage.BlobStore, req Request, name string, res *Result) {
	if !req.RemoveSource || res.Skipped {
		return
	}

	if err := src.Delete(name); err != nil {
		log.WithError(err).Warn("Failed to remove source")
		return
	}
	res.SourceRemoved = true
	log.WithField("source", join(req.SourceDir, name)).Info("Source removed")
}

func (s *Service) result(store storage.BlobStore, name string, data []byte) *Result {
	location := store.Location(name)
	res := &Result{
		Name: name,
		Path: location,
		URI:  fileURI(location),
	}
	if data != nil {
		sum := sha256.Sum256(data)
		res.Size = int64(len(data))
		res.SHA256 = hex.EncodeToString(sum[:])
	}
	return res
}

// record journals a written artifact. The file is already in place, so a
// journal failure is logged and not returned.
func (s *Service) record(log *events.Logger, res *Result, source, op string) {
	if res.Skipped {
		log.WithField("dest", res.Path).Info("Destination exists, skipped")
		return
	}

	artifact := &models.Artifact{
		Path:      res.Path,
		Source:    source,
		Operation: op,
		Size:      res.Size,
		SHA256:    res.SHA256,
		CreatedAt: s.now(),
	}
	if artifact.IsEncrypted() {
		artifact.Cipher = res.Info.Cipher
		artifact.KDF = res.Info.KDF
	}

	if err := s.journal.Record(artifact); err != nil {
		log.WithError(err).Warn("Failed to record artifact")
	}
}

// fail wraps err in a VaultError with a code matching its cause.
func fail(op, location string, err error) error {
	return &models.VaultError{
		Code: classify(err),
		Op:   op,
		Path: location,
		Err:  err,
	}
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.ErrCodeCanceled
	case errors.Is(err, crypto.ErrAuthentication):
		return models.ErrCodeAuth
	case errors.Is(err, crypto.ErrMalformedContainer):
		return models.ErrCodeMalformed
	case errors.Is(err, crypto.ErrInvalidInput):
		return models.ErrCodeInvalidInput
	default:
		return models.ErrCodeIO
	}
}

// join builds a display path for logs and errors.
func join(dir, name string) string {
	if config.IsRemote(dir) || strings.Contains(dir, "://") {
		return strings.TrimSuffix(dir, "/") + "/" + name
	}
	return filepath.Join(dir, name)
}

// fileURI turns a local path into a file:// URI. Locations that already
// carry a scheme are returned as they are.
func fileURI(location string) string {
	if strings.Contains(location, "://") {
		return location
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(location)}
	return u.String()
}
