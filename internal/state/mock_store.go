package state

import (
	"sync"

	"github.com/TheMichaelB/safe/internal/models"
)

// MockStore provides an in-memory journal for testing.
type MockStore struct {
	mu        sync.RWMutex
	artifacts map[string]*models.Artifact

	// Fail, when set, makes Record return it.
	Fail error
}

// NewMockStore creates a mock journal.
func NewMockStore() *MockStore {
	return &MockStore{
		artifacts: make(map[string]*models.Artifact),
	}
}

// Record stores a copy of the artifact.
func (m *MockStore) Record(a *models.Artifact) error {
	if err := validateArtifact(a); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail != nil {
		return m.Fail
	}

	m.artifacts[a.Path] = copyArtifact(a)
	return nil
}

// Get returns the artifact for path.
func (m *MockStore) Get(path string) (*models.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if a, ok := m.artifacts[path]; ok {
		return copyArtifact(a), nil
	}
	return nil, ErrArtifactNotFound
}

// List returns all artifacts, oldest first.
func (m *MockStore) List() ([]*models.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	artifacts := make([]*models.Artifact, 0, len(m.artifacts))
	for _, a := range m.artifacts {
		artifacts = append(artifacts, copyArtifact(a))
	}
	sortArtifacts(artifacts)
	return artifacts, nil
}

// Forget removes the artifact for path.
func (m *MockStore) Forget(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.artifacts, path)
	return nil
}

// Migrate copies all artifacts into target.
func (m *MockStore) Migrate(target Store) error {
	artifacts, _ := m.List()
	for _, a := range artifacts {
		if err := target.Record(a); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the store (no-op for mock).
func (m *MockStore) Close() error {
	return nil
}

// Len returns the number of recorded artifacts.
func (m *MockStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.artifacts)
}
