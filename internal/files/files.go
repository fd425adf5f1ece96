// Package files is the file-content storage collaborator. The engine only
// stores metadata; bytes go through this interface.
package files

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Stored describes where uploaded content ended up.
type Stored struct {
	URL          string
	ThumbnailURL string
	Size         int64
}

// Storage uploads and removes file content. Implementations own chunking,
// thumbnailing and transport.
type Storage interface {
	Upload(ctx context.Context, userID int64, name, mimeType string, r io.Reader) (Stored, error)
	Remove(ctx context.Context, url string) error
}

// DiskStorage keeps content under a local directory, one subdirectory per
// user. URLs are paths joined onto BaseURL.
type DiskStorage struct {
	dir     string
	baseURL string
}

func NewDiskStorage(dir, baseURL string) (*DiskStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating files directory: %v", err)
	}
	return &DiskStorage{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *DiskStorage) Upload(ctx context.Context, userID int64, name, mimeType string, r io.Reader) (Stored, error) {
	userDir := filepath.Join(s.dir, fmt.Sprintf("%d", userID))
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return Stored{}, fmt.Errorf("error creating user directory: %v", err)
	}

	key := uuid.New().String() + sanitizeExt(name)
	path := filepath.Join(userDir, key)

	f, err := os.Create(path)
	if err != nil {
		return Stored{}, fmt.Errorf("error creating file: %v", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return Stored{}, fmt.Errorf("error writing file: %v", err)
	}

	return Stored{
		URL:  fmt.Sprintf("%s/%d/%s", s.baseURL, userID, key),
		Size: size,
	}, nil
}

func (s *DiskStorage) Remove(ctx context.Context, url string) error {
	rel, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok {
		return fmt.Errorf("url %q not managed by this storage", url)
	}
	path := filepath.Join(s.dir, filepath.FromSlash(rel))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error removing file: %v", err)
	}
	return nil
}

func sanitizeExt(name string) string {
	ext := filepath.Ext(name)
	if len(ext) > 10 {
		return ""
	}
	return ext
}
