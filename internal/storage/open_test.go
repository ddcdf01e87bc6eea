package storage_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/safe/internal/config"
	"github.com/TheMichaelB/safe/internal/events"
	"github.com/TheMichaelB/safe/internal/storage"
)

func TestOpenLocal(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "json", &buf)

	cfg := config.DefaultConfig().Storage
	cfg.Conflict = "error"
	cfg.MaxFileSize = 4

	dir := filepath.Join(t.TempDir(), "out")

	store, err := storage.Open(context.Background(), &cfg, "file://"+dir, logger)
	require.NoError(t, err)

	local, ok := store.(*storage.LocalStore)
	require.True(t, ok)
	assert.Equal(t, dir, local.BaseDir())
	assert.NoDirExists(t, dir, "opening a store creates nothing")

	_, err = store.Write("a", []byte("1234"), 0644)
	require.NoError(t, err)

	_, err = store.Write("a", []byte("5678"), 0644)
	assert.ErrorIs(t, err, storage.ErrDestinationExists)

	_, err = store.Write("b", []byte("12345"), 0644)
	assert.ErrorIs(t, err, storage.ErrTooLarge)
}

func TestOpenRejectsUnknownConflict(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "json", &buf)

	cfg := config.DefaultConfig().Storage
	cfg.Conflict = "merge"

	_, err := storage.Open(context.Background(), &cfg, t.TempDir(), logger)
	assert.Error(t, err)
}

func TestMockStore(t *testing.T) {
	store := storage.NewMockStore()

	written, err := store.Write("/dir/file.txt", []byte("data"), 0644)
	require.NoError(t, err)
	assert.Equal(t, "dir/file.txt", written)
	assert.True(t, store.FileExists("dir/file.txt"))

	store.SetConflictStrategy(storage.ConflictRename)
	renamed, err := store.Write("dir/file.txt", []byte("more"), 0644)
	require.NoError(t, err)
	assert.Equal(t, "dir/file.conflict-1.txt", renamed)

	files, err := store.ListDir("dir")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	store.Fail = assert.AnError
	_, err = store.Write("other", []byte("x"), 0644)
	assert.ErrorIs(t, err, assert.AnError)

	_, err = store.Read("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	store.Clear()
	assert.Empty(t, store.Files())
}
