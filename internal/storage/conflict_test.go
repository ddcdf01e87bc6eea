package storage_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/safe/internal/storage"
)

func TestConflictStrategies(t *testing.T) {
	t.Run("overwrite strategy", func(t *testing.T) {
		store, _ := newLocalStore(t)
		store.SetConflictStrategy(storage.ConflictOverwrite)

		path := "conflict-test.txt"

		_, err := store.Write(path, []byte("original"), 0644)
		require.NoError(t, err)

		written, err := store.Write(path, []byte("new content"), 0644)
		require.NoError(t, err)
		assert.Equal(t, path, written)

		data, err := store.Read(path)
		require.NoError(t, err)
		assert.Equal(t, "new content", string(data))
	})

	t.Run("rename strategy", func(t *testing.T) {
		store, _ := newLocalStore(t)
		store.SetConflictStrategy(storage.ConflictRename)

		path := "rename-test.txt"

		_, err := store.Write(path, []byte("original"), 0644)
		require.NoError(t, err)

		first, err := store.Write(path, []byte("conflict"), 0644)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(first, "rename-test.conflict-"), first)
		assert.True(t, strings.HasSuffix(first, ".txt"), first)

		second, err := store.Write(path, []byte("conflict again"), 0644)
		require.NoError(t, err)
		assert.NotEqual(t, first, second)

		// Original should be unchanged
		data, err := store.Read(path)
		require.NoError(t, err)
		assert.Equal(t, "original", string(data))

		data, err = store.Read(first)
		require.NoError(t, err)
		assert.Equal(t, "conflict", string(data))

		files, err := store.ListDir("")
		require.NoError(t, err)
		assert.Len(t, files, 3)
	})

	t.Run("error strategy", func(t *testing.T) {
		store, _ := newLocalStore(t)
		store.SetConflictStrategy(storage.ConflictError)

		path := "error-test.txt"

		_, err := store.Write(path, []byte("original"), 0644)
		require.NoError(t, err)

		_, err = store.Write(path, []byte("conflict"), 0644)
		assert.ErrorIs(t, err, storage.ErrDestinationExists)

		data, err := store.Read(path)
		require.NoError(t, err)
		assert.Equal(t, "original", string(data))
	})

	t.Run("skip strategy", func(t *testing.T) {
		store, _ := newLocalStore(t)
		store.SetConflictStrategy(storage.ConflictSkip)

		path := "skip-test.txt"

		_, err := store.Write(path, []byte("original"), 0644)
		require.NoError(t, err)

		_, err = store.Write(path, []byte("skipped"), 0644)
		assert.ErrorIs(t, err, storage.ErrSkipped)

		data, err := store.Read(path)
		require.NoError(t, err)
		assert.Equal(t, "original", string(data))
	})
}

func TestParseConflictStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    storage.ConflictStrategy
		wantErr bool
	}{
		{"", storage.ConflictOverwrite, false},
		{"overwrite", storage.ConflictOverwrite, false},
		{"rename", storage.ConflictRename, false},
		{"error", storage.ConflictError, false},
		{"skip", storage.ConflictSkip, false},
		{"merge", "", true},
	}

	for _, tt := range tests {
		got, err := storage.ParseConflictStrategy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
