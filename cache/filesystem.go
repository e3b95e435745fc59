package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

const (
	locksDirName    = ".locks"
	completeDirName = ".complete"
	tmpDirName      = ".tmp"
)

// FilesystemCache implements Cache using the local filesystem.
//
// Layout under the root:
//
//	<name>/              extracted runtime
//	<name><ext>          downloaded archive, removed after extraction
//	.complete/<name>     written only once <name>/ is fully extracted
//	.locks/<name>.lock   per-entry lock file
//	.tmp/<name>-*/       staging directory an archive is expanded into
type FilesystemCache struct {
	baseDir string
	locker  *Locker
}

// NewFilesystemCache creates a new filesystem-based cache at the given directory.
func NewFilesystemCache(baseDir string) *FilesystemCache {
	return &FilesystemCache{
		baseDir: baseDir,
		locker:  NewLocker(filepath.Join(baseDir, locksDirName)),
	}
}

// Root returns the cache root directory.
func (c *FilesystemCache) Root() string {
	return c.baseDir
}

// EnsureRoot creates the cache root directory, including parents.
func (c *FilesystemCache) EnsureRoot() error {
	if err := os.MkdirAll(c.baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	return nil
}

// Dir returns the extracted directory for an entry.
func (c *FilesystemCache) Dir(name string) string {
	return filepath.Join(c.baseDir, name)
}

// ArchivePath returns the location of the transient archive for an entry.
func (c *FilesystemCache) ArchivePath(name, ext string) string {
	return filepath.Join(c.baseDir, name+ext)
}

// StagingDir creates a unique directory under .tmp. A failed extraction
// leaves it behind for inspection; it is never read as a cache entry.
func (c *FilesystemCache) StagingDir(name string) (string, error) {
	tmpBase := filepath.Join(c.baseDir, tmpDirName)
	if err := os.MkdirAll(tmpBase, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	dir, err := os.MkdirTemp(tmpBase, name+"-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	return dir, nil
}

// Commit moves <staging>/<name> to the entry directory. Anything else the
// archive put in staging is discarded with it.
func (c *FilesystemCache) Commit(name, staging string) error {
	src := filepath.Join(staging, name)
	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("failed to stat staged entry: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("staged entry %s is not a directory", src)
	}

	finalDir := c.Dir(name)
	if err := os.RemoveAll(finalDir); err != nil {
		return fmt.Errorf("failed to remove previous cache entry: %w", err)
	}
	if err := os.Rename(src, finalDir); err != nil {
		return fmt.Errorf("failed to move entry into cache: %w", err)
	}
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("failed to remove staging directory: %w", err)
	}
	return nil
}

func (c *FilesystemCache) markerPath(name string) string {
	return filepath.Join(c.baseDir, completeDirName, name)
}

// Has reports whether the entry directory and its completion marker both exist.
// A directory without a marker is what an interrupted extraction leaves behind
// and is not a hit.
func (c *FilesystemCache) Has(name string) (bool, error) {
	info, err := os.Stat(c.Dir(name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat cache entry: %w", err)
	}
	if !info.IsDir() {
		return false, nil
	}

	if _, err := os.Stat(c.markerPath(name)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat completion marker: %w", err)
	}
	return true, nil
}

// MarkComplete writes the completion marker for an entry.
func (c *FilesystemCache) MarkComplete(name string) error {
	path := c.markerPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create marker directory: %w", err)
	}
	if err := os.WriteFile(path, nil, 0644); err != nil {
		return fmt.Errorf("failed to write completion marker: %w", err)
	}
	return nil
}

// Invalidate removes the marker first, then the entry directory, so a crash
// in between never leaves a marker pointing at a partial directory.
func (c *FilesystemCache) Invalidate(name string) error {
	if err := os.Remove(c.markerPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove completion marker: %w", err)
	}
	if err := os.RemoveAll(c.Dir(name)); err != nil {
		return fmt.Errorf("failed to remove cache entry: %w", err)
	}
	return nil
}

// Lock acquires the per-entry file lock. It is safe across processes.
func (c *FilesystemCache) Lock(ctx context.Context, name string) (func() error, error) {
	return c.locker.AcquireExclusive(ctx, name)
}
