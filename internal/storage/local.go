package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage writes objects into a directory tree, one sub-directory per
// parent identifier. It backs dry runs and tests.
type LocalStorage struct {
	Root string
}

// NewLocalStorage creates a LocalStorage rooted at root.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create local storage root: %w", err)
	}
	return &LocalStorage{Root: root}, nil
}

// CreateObject copies body to Root/parentID/name and returns the relative key.
func (s *LocalStorage) CreateObject(ctx context.Context, obj Object, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := joinKey(obj.ParentID, obj.Name)
	dest := filepath.Join(s.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed creating directory for %s: %w", dest, err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed creating %s: %w", dest, err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		_ = os.Remove(dest)
		return "", fmt.Errorf("failed writing %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed writing %s: %w", dest, err)
	}
	return key, nil
}

// ListObjects lists the files directly under Root/parentID.
func (s *LocalStorage) ListObjects(ctx context.Context, parentID string) ([]ObjectInfo, error) {
	dir := filepath.Join(s.Root, filepath.FromSlash(parentID))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	results := make([]ObjectInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, err
		}
		results = append(results, ObjectInfo{
			ID:           joinKey(parentID, e.Name()),
			Name:         e.Name(),
			Size:         fi.Size(),
			ModifiedTime: fi.ModTime(),
		})
	}
	return results, nil
}

var (
	_ ObjectStorage = (*LocalStorage)(nil)
	_ Lister        = (*LocalStorage)(nil)
)
