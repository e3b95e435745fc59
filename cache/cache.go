package cache

import "context"

// Cache defines the interface for storing extracted runtime directories.
// Entries are keyed by archive name, e.g. "nwjs-sdk-v0.50.0-win-ia32".
type Cache interface {
	// EnsureRoot creates the cache root directory if it does not exist.
	EnsureRoot() error

	// Has reports whether a complete entry exists for name.
	Has(name string) (bool, error)

	// Dir returns the directory an entry for name is extracted to.
	Dir(name string) string

	// ArchivePath returns where the downloaded archive for name is stored
	// before extraction.
	ArchivePath(name, ext string) string

	// StagingDir creates an empty directory an archive for name is expanded
	// into before Commit moves its runtime directory into place.
	StagingDir(name string) (string, error)

	// Commit replaces the entry for name with <staging>/<name> and removes
	// the staging directory.
	Commit(name, staging string) error

	// MarkComplete records that the entry for name was fully extracted.
	MarkComplete(name string) error

	// Invalidate removes the entry for name and its completion record.
	Invalidate(name string) error

	// Lock acquires an exclusive lock on name. The returned function releases it.
	Lock(ctx context.Context, name string) (unlock func() error, err error)
}
