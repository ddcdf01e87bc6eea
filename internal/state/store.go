package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/TheMichaelB/safe/internal/config"
	"github.com/TheMichaelB/safe/internal/events"
	"github.com/TheMichaelB/safe/internal/models"
)

// Store is the artifact journal: a record of every file the vault service
// wrote, keyed by output location. It holds no secret material.
type Store interface {
	// Record inserts or replaces the artifact for a.Path.
	Record(a *models.Artifact) error

	// Get returns the artifact recorded for path.
	Get(path string) (*models.Artifact, error)

	// List returns all artifacts, oldest first.
	List() ([]*models.Artifact, error)

	// Forget removes the artifact for path. Forgetting an unknown path is
	// not an error.
	Forget(path string) error

	// Migrate copies every artifact into target.
	Migrate(target Store) error

	// Close releases resources.
	Close() error
}

// Errors
var (
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrJournalCorrupt   = errors.New("journal file is corrupt")
)

// CurrentSchemaVersion for migrations.
const CurrentSchemaVersion = 1

// Open creates the journal selected by cfg.Backend.
func Open(cfg *config.JournalConfig, logger *events.Logger) (Store, error) {
	switch cfg.Backend {
	case "none", "":
		return NopStore{}, nil
	case "json", "sqlite", "bolt":
	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Backend)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteStore(cfg.Path, logger)
	case "bolt":
		return NewBoltStore(cfg.Path, logger)
	default:
		return NewJSONStore(cfg.Path, logger)
	}
}

// migrate copies artifacts from source into target.
func migrate(source, target Store, logger *events.Logger) error {
	artifacts, err := source.List()
	if err != nil {
		return fmt.Errorf("list artifacts: %w", err)
	}

	logger.WithField("count", len(artifacts)).Info("Migrating journal")

	for _, a := range artifacts {
		if err := target.Record(a); err != nil {
			return fmt.Errorf("record %s: %w", a.Path, err)
		}
	}

	return nil
}

// sortArtifacts orders artifacts oldest first, then by path.
func sortArtifacts(artifacts []*models.Artifact) {
	sort.Slice(artifacts, func(i, j int) bool {
		if !artifacts[i].CreatedAt.Equal(artifacts[j].CreatedAt) {
			return artifacts[i].CreatedAt.Before(artifacts[j].CreatedAt)
		}
		return artifacts[i].Path < artifacts[j].Path
	})
}

func validateArtifact(a *models.Artifact) error {
	if a == nil || a.Path == "" {
		return fmt.Errorf("artifact path is required")
	}
	return nil
}

func copyArtifact(a *models.Artifact) *models.Artifact {
	c := *a
	return &c
}

// NopStore discards every record.
type NopStore struct{}

func (NopStore) Record(*models.Artifact) error { return nil }

func (NopStore) Get(path string) (*models.Artifact, error) { return nil, ErrArtifactNotFound }

func (NopStore) List() ([]*models.Artifact, error) { return nil, nil }

func (NopStore) Forget(string) error { return nil }

func (NopStore) Migrate(Store) error { return nil }

func (NopStore) Close() error { return nil }
