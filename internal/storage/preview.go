package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sitesmith/internal/domain"
)

// PreviewStore writes generated sites onto the local filesystem so they can
// be served statically. Intended for development and single-node setups
// where an object store is not available.
type PreviewStore struct {
	basePath string
}

// NewPreviewStore initializes a PreviewStore rooted at basePath.
func NewPreviewStore(basePath string) (*PreviewStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &PreviewStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *PreviewStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// WriteSite replaces the preview directory for a project with the given
// file set. The reserved reasoning key is never written to disk.
func (s *PreviewStore) WriteSite(ctx context.Context, projectID string, files domain.FileSet) error {
	if s == nil {
		return errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	siteDir := filepath.Join(s.basePath, projectID)
	if err := os.RemoveAll(siteDir); err != nil {
		return fmt.Errorf("storage: clear site dir: %w", err)
	}
	for name, content := range files.WithoutReserved() {
		cleanKey, err := sanitizeKey(name)
		if err != nil {
			return err
		}
		fullPath := filepath.Join(siteDir, filepath.FromSlash(cleanKey))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return fmt.Errorf("storage: ensure directory: %w", err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("storage: write file: %w", err)
		}
	}
	return nil
}

// sanitizeKey cleans a relative key and rejects directory traversal.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: empty key")
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") || clean == ".." {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return clean, nil
}
