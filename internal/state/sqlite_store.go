package state

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/safe/internal/events"
	"github.com/TheMichaelB/safe/internal/models"
)

// SQLiteStore keeps the journal in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
}

// NewSQLiteStore opens or creates a SQLite journal.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_journal"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// initialize creates tables and indexes.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS artifacts (
        path TEXT PRIMARY KEY,
        source TEXT NOT NULL DEFAULT '',
        operation TEXT NOT NULL,
        cipher TEXT NOT NULL DEFAULT '',
        kdf TEXT NOT NULL DEFAULT '',
        size INTEGER NOT NULL DEFAULT 0,
        sha256 TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMP NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_artifacts_created ON artifacts(created_at);

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Record inserts or replaces an artifact.
func (s *SQLiteStore) Record(a *models.Artifact) error {
	if err := validateArtifact(a); err != nil {
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"path":      a.Path,
		"operation": a.Operation,
	}).Debug("Recording artifact")

	_, err := s.db.Exec(`
        INSERT INTO artifacts (path, source, operation, cipher, kdf, size, sha256, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(path) DO UPDATE SET
            source = excluded.source,
            operation = excluded.operation,
            cipher = excluded.cipher,
            kdf = excluded.kdf,
            size = excluded.size,
            sha256 = excluded.sha256,
            created_at = excluded.created_at
    `, a.Path, a.Source, a.Operation, a.Cipher, a.KDF, a.Size, a.SHA256, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert artifact: %w", err)
	}

	return nil
}

// Get returns the artifact for path.
func (s *SQLiteStore) Get(path string) (*models.Artifact, error) {
	row := s.db.QueryRow(`
        SELECT path, source, operation, cipher, kdf, size, sha256, created_at
        FROM artifacts
        WHERE path = ?
    `, path)

	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query artifact: %w", err)
	}
	return a, nil
}

// List returns all artifacts, oldest first.
func (s *SQLiteStore) List() ([]*models.Artifact, error) {
	rows, err := s.db.Query(`
        SELECT path, source, operation, cipher, kdf, size, sha256, created_at
        FROM artifacts
        ORDER BY created_at, path
    `)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*models.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact row: %w", err)
		}
		artifacts = append(artifacts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}

	return artifacts, nil
}

// Forget removes the artifact for path.
func (s *SQLiteStore) Forget(path string) error {
	s.logger.WithField("path", path).Info("Forgetting artifact")

	if _, err := s.db.Exec("DELETE FROM artifacts WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}

	return nil
}

// Migrate copies all artifacts into target.
func (s *SQLiteStore) Migrate(target Store) error {
	return migrate(s, target, s.logger)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArtifact(row rowScanner) (*models.Artifact, error) {
	var a models.Artifact
	if err := row.Scan(&a.Path, &a.Source, &a.Operation, &a.Cipher, &a.KDF, &a.Size, &a.SHA256, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}
