package receipts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const fileScheme = "file://"

// LocalStore keeps receipts under a directory on disk.
type LocalStore struct {
	root string
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("NewLocalStore: resolving %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("NewLocalStore: creating %q: %w", abs, err)
	}
	return &LocalStore{root: abs}, nil
}

// Put implements BlobStore.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("LocalStore.Put: creating directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("LocalStore.Put: writing %s: %w", path, err)
	}
	return fileScheme + path, nil
}

// Get implements BlobStore.
func (s *LocalStore) Get(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(uri, fileScheme) {
		return nil, fmt.Errorf("LocalStore.Get: unsupported URI: %s", uri)
	}

	path := filepath.Clean(strings.TrimPrefix(uri, fileScheme))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("LocalStore.Get: %s is outside the receipt directory", uri)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LocalStore.Get: reading %s: %w", path, err)
	}
	return data, nil
}

func (s *LocalStore) resolve(name string) (string, error) {
	path := filepath.Join(s.root, filepath.FromSlash(name))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("LocalStore: object name %q escapes the receipt directory", name)
	}
	return path, nil
}

var _ BlobStore = (*LocalStore)(nil)
