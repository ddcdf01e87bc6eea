package storage_test

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathSanitization(t *testing.T) {
	store, tmpDir := newLocalStore(t)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{
			name:    "normal path",
			path:    "notes/test.md",
			wantErr: false,
		},
		{
			name:    "path with dots",
			path:    "notes/./test.md",
			wantErr: false, // Should be normalized
		},
		{
			name:    "dots inside a name",
			path:    "report..final.pdf",
			wantErr: false,
		},
		{
			name:    "parent directory traversal",
			path:    "../etc/passwd",
			wantErr: true,
		},
		{
			name:    "embedded parent traversal",
			path:    "notes/../../etc/passwd",
			wantErr: true,
		},
		{
			name:    "absolute path",
			path:    "/etc/passwd",
			wantErr: false, // Gets normalized to etc/passwd
		},
		{
			name:    "null bytes",
			path:    "test\x00.md",
			wantErr: true,
		},
		{
			name:    "very long path",
			path:    strings.Repeat("a/", 2500) + "file.md",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Write(tt.path, []byte("test"), 0644)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "path")
			} else {
				assert.NoError(t, err)

				// Verify file was created in safe location
				exists, _ := store.Exists(tt.path)
				assert.True(t, exists)
				assert.True(t, strings.HasPrefix(store.Location(tt.path), tmpDir))

				// Clean up
				_ = store.Delete(tt.path)
			}
		})
	}
}

func TestWindowsReservedNames(t *testing.T) {
	if runtime.GOOS != "windows" {
		t.Skip("Windows-specific test")
	}

	store, _ := newLocalStore(t)

	reserved := []string{"CON", "PRN", "AUX", "NUL", "COM1", "LPT1"}

	for _, name := range reserved {
		t.Run(name, func(t *testing.T) {
			// Test exact name
			_, err := store.Write(name+".txt", []byte("test"), 0644)
			assert.Error(t, err)

			// Test in subdirectory
			_, err = store.Write("folder/"+name+".txt", []byte("test"), 0644)
			assert.Error(t, err)
		})
	}

	// Test invalid characters
	invalidChars := `<>:"|?*`
	for _, char := range invalidChars {
		path := fmt.Sprintf("file%c.txt", char)
		_, err := store.Write(path, []byte("test"), 0644)
		assert.Error(t, err)
	}
}

func TestSymlinkHandling(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Symlink test requires Unix-like OS")
	}

	store, tmpDir := newLocalStore(t)

	// Create a file
	_, err := store.Write("target.txt", []byte("target content"), 0644)
	require.NoError(t, err)

	// Create symlink outside of store
	externalPath := filepath.Join(t.TempDir(), "external.txt")
	err = os.WriteFile(externalPath, []byte("external"), 0644)
	require.NoError(t, err)

	linkPath := filepath.Join(tmpDir, "link.txt")
	err = os.Symlink(externalPath, linkPath)
	require.NoError(t, err)

	// Stat does not follow the link
	info, err := store.Stat("link.txt")
	assert.NoError(t, err)
	assert.True(t, info.IsSymlink)
	assert.Equal(t, externalPath, info.LinkTarget)

	// Store should not follow symlinks by default
	_, err = store.Read("link.txt")
	assert.Error(t, err)
}
