package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// BundleDir stores exported package bundles on the local filesystem. Files
// live under <base>/<packageID>/<artifact>; callers always address them by
// that relative path.
type BundleDir struct {
	base string
}

// NewBundleDir creates the base directory if needed and returns a handle.
func NewBundleDir(base string) (*BundleDir, error) {
	if base == "" {
		base = "./bundles"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create bundle directory: %w", err)
	}
	return &BundleDir{base: base}, nil
}

// Save writes one bundle artifact and returns its relative path.
func (d *BundleDir) Save(relPath string, data []byte) (string, error) {
	target := d.abs(relPath)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("prepare bundle directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write bundle artifact: %w", err)
	}
	return relPath, nil
}

// Open returns a read-only handle for a stored artifact.
func (d *BundleDir) Open(relPath string) (*os.File, error) {
	file, err := os.Open(d.abs(relPath))
	if err != nil {
		return nil, fmt.Errorf("open bundle artifact: %w", err)
	}
	return file, nil
}

// CleanupOlderThan deletes artifacts whose mtime is past the TTL. Bundles
// outlive their signed download tokens by design; this is the backstop that
// keeps the directory from growing without bound.
func (d *BundleDir) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	var removed []string
	err := filepath.WalkDir(d.base, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		if rel, relErr := filepath.Rel(d.base, path); relErr == nil {
			removed = append(removed, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup bundles: %w", err)
	}
	return removed, nil
}

func (d *BundleDir) abs(relPath string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}
	return filepath.Join(d.base, relPath)
}
