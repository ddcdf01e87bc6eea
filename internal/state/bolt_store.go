package state

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/TheMichaelB/safe/internal/events"
	"github.com/TheMichaelB/safe/internal/models"
)

// Bucket names
var (
	metaBucket      = []byte("meta")
	artifactsBucket = []byte("artifacts")

	schemaKey = []byte("schema_version")
)

// BoltStore keeps the journal in a bbolt database. Each artifact is a JSON
// value keyed by its path.
type BoltStore struct {
	db     *bolt.DB
	logger *events.Logger
}

// NewBoltStore opens or creates a bbolt journal. Opening fails after one
// second if another process holds the database.
func NewBoltStore(path string, logger *events.Logger) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &BoltStore{
		db:     db,
		logger: logger.WithField("component", "bolt_journal"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

func (s *BoltStore) initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{metaBucket, artifactsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}

		meta := tx.Bucket(metaBucket)
		if v := meta.Get(schemaKey); v != nil {
			version, err := strconv.Atoi(string(v))
			if err != nil || version > CurrentSchemaVersion {
				return fmt.Errorf("%w: unsupported schema version %q", ErrJournalCorrupt, v)
			}
			return nil
		}
		return meta.Put(schemaKey, []byte(strconv.Itoa(CurrentSchemaVersion)))
	})
}

// Record inserts or replaces an artifact.
func (s *BoltStore) Record(a *models.Artifact) error {
	if err := validateArtifact(a); err != nil {
		return err
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"path":      a.Path,
		"operation": a.Operation,
	}).Debug("Recording artifact")

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(artifactsBucket).Put([]byte(a.Path), data)
	})
}

// Get returns the artifact for path.
func (s *BoltStore) Get(path string) (*models.Artifact, error) {
	var a *models.Artifact
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(artifactsBucket).Get([]byte(path))
		if v == nil {
			return ErrArtifactNotFound
		}
		var err error
		a, err = decodeArtifact(v)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// List returns all artifacts, oldest first.
func (s *BoltStore) List() ([]*models.Artifact, error) {
	var artifacts []*models.Artifact
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(artifactsBucket).ForEach(func(k, v []byte) error {
			a, err := decodeArtifact(v)
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			artifacts = append(artifacts, a)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortArtifacts(artifacts)
	return artifacts, nil
}

// Forget removes the artifact for path.
func (s *BoltStore) Forget(path string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(artifactsBucket).Delete([]byte(path))
	})
}

// Migrate copies all artifacts into target.
func (s *BoltStore) Migrate(target Store) error {
	return migrate(s, target, s.logger)
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// decodeArtifact parses a stored value. The value is only valid inside the
// transaction, and json.Unmarshal copies what it keeps.
func decodeArtifact(v []byte) (*models.Artifact, error) {
	var a models.Artifact
	if err := json.Unmarshal(v, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJournalCorrupt, err)
	}
	return &a, nil
}
