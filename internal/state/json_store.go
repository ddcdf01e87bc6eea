package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/TheMichaelB/safe/internal/events"
	"github.com/TheMichaelB/safe/internal/models"
)

// journalFile is the on-disk layout of a JSONStore.
type journalFile struct {
	SchemaVersion int                `json:"schema_version"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Artifacts     []*models.Artifact `json:"artifacts"`
	Checksum      string             `json:"checksum,omitempty"`
}

// JSONStore keeps the journal in a single JSON file. The whole file is
// rewritten atomically on every change and the previous version is kept
// as a backup.
type JSONStore struct {
	path   string
	logger *events.Logger

	mu        sync.RWMutex
	artifacts map[string]*models.Artifact
}

// NewJSONStore opens or creates a JSON journal at path.
func NewJSONStore(path string, logger *events.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	s := &JSONStore{
		path:      path,
		logger:    logger.WithField("component", "json_journal"),
		artifacts: make(map[string]*models.Artifact),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

// Record inserts or replaces an artifact.
func (s *JSONStore) Record(a *models.Artifact) error {
	if err := validateArtifact(a); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"path":      a.Path,
		"operation": a.Operation,
	}).Debug("Recording artifact")

	previous, existed := s.artifacts[a.Path]
	s.artifacts[a.Path] = copyArtifact(a)

	if err := s.save(); err != nil {
		if existed {
			s.artifacts[a.Path] = previous
		} else {
			delete(s.artifacts, a.Path)
		}
		return err
	}

	return nil
}

// Get returns the artifact for path.
func (s *JSONStore) Get(path string) (*models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artifacts[path]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	return copyArtifact(a), nil
}

// List returns all artifacts, oldest first.
func (s *JSONStore) List() ([]*models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshot(), nil
}

// Forget removes the artifact for path.
func (s *JSONStore) Forget(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.artifacts[path]
	if !ok {
		return nil
	}

	s.logger.WithField("path", path).Info("Forgetting artifact")

	delete(s.artifacts, path)
	if err := s.save(); err != nil {
		s.artifacts[path] = previous
		return err
	}
	return nil
}

// Migrate copies all artifacts into target.
func (s *JSONStore) Migrate(target Store) error {
	return migrate(s, target, s.logger)
}

// Close releases resources.
func (s *JSONStore) Close() error {
	return nil
}

// Helper methods

func (s *JSONStore) snapshot() []*models.Artifact {
	artifacts := make([]*models.Artifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		artifacts = append(artifacts, copyArtifact(a))
	}
	sortArtifacts(artifacts)
	return artifacts
}

func (s *JSONStore) backupPath() string {
	return s.path + ".backup"
}

// load reads the journal, falling back to the backup when the main file is
// corrupt. A missing file is an empty journal.
func (s *JSONStore) load() error {
	journal, err := readJournal(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		s.logger.WithError(err).Warn("Journal unreadable, trying backup")

		backup, backupErr := readJournal(s.backupPath())
		if backupErr != nil {
			return fmt.Errorf("%w: %s", ErrJournalCorrupt, s.path)
		}
		s.logger.Warn("Loaded journal from backup due to corruption")
		journal = backup
	}

	if journal.SchemaVersion != CurrentSchemaVersion {
		s.logger.WithField("version", journal.SchemaVersion).Warn("Journal schema version mismatch")
	}

	for _, a := range journal.Artifacts {
		if a != nil && a.Path != "" {
			s.artifacts[a.Path] = a
		}
	}

	return nil
}

// save writes the journal atomically. Must be called with s.mu held.
func (s *JSONStore) save() error {
	journal := journalFile{
		SchemaVersion: CurrentSchemaVersion,
		UpdatedAt:     time.Now().UTC(),
		Artifacts:     s.snapshot(),
	}

	checksum, err := journalChecksum(journal)
	if err != nil {
		return err
	}
	journal.Checksum = checksum

	data, err := json.MarshalIndent(journal, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}

	// Create backup of existing file
	if _, err := os.Stat(s.path); err == nil {
		if err := copyFile(s.path, s.backupPath()); err != nil {
			s.logger.WithError(err).Warn("Failed to create backup")
		}
	}

	// Write atomically
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename journal file: %w", err)
	}

	return nil
}

func readJournal(path string) (*journalFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var journal journalFile
	if err := json.Unmarshal(data, &journal); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJournalCorrupt, err)
	}

	// Verify checksum if present
	if journal.Checksum != "" {
		calculated, err := journalChecksum(journal)
		if err != nil {
			return nil, err
		}
		if calculated != journal.Checksum {
			return nil, fmt.Errorf("%w: checksum mismatch", ErrJournalCorrupt)
		}
	}

	return &journal, nil
}

// journalChecksum hashes the journal with the checksum field left empty.
func journalChecksum(journal journalFile) (string, error) {
	journal.Checksum = ""

	data, err := json.Marshal(journal)
	if err != nil {
		return "", fmt.Errorf("marshal journal for checksum: %w", err)
	}

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
