package files

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStorageUploadAndRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStorage(dir, "file://store/")
	require.NoError(t, err)

	content := []byte("hello file storage")
	stored, err := s.Upload(context.Background(), 9, "notes backup.txt", "text/plain", bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), stored.Size)
	assert.True(t, strings.HasPrefix(stored.URL, "file://store/9/"))
	assert.True(t, strings.HasSuffix(stored.URL, ".txt"))

	rel := strings.TrimPrefix(stored.URL, "file://store/")
	onDisk, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, content, onDisk)

	require.NoError(t, s.Remove(context.Background(), stored.URL))
	_, err = os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
	assert.True(t, os.IsNotExist(err))
}

func TestDiskStorageRemoveForeignURL(t *testing.T) {
	s, err := NewDiskStorage(t.TempDir(), "file://store")
	require.NoError(t, err)

	err = s.Remove(context.Background(), "https://elsewhere.example/x")
	assert.Error(t, err)
}

func TestDiskStorageRemoveMissingIsQuiet(t *testing.T) {
	s, err := NewDiskStorage(t.TempDir(), "file://store")
	require.NoError(t, err)

	assert.NoError(t, s.Remove(context.Background(), "file://store/9/gone.txt"))
}

func TestUploadsGetDistinctKeys(t *testing.T) {
	s, err := NewDiskStorage(t.TempDir(), "file://store")
	require.NoError(t, err)

	a, err := s.Upload(context.Background(), 1, "same.txt", "text/plain", bytes.NewReader([]byte("a")))
	require.NoError(t, err)
	b, err := s.Upload(context.Background(), 1, "same.txt", "text/plain", bytes.NewReader([]byte("b")))
	require.NoError(t, err)
	assert.NotEqual(t, a.URL, b.URL)
}
