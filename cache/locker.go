package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryInterval is how often a contended lock is retried.
const lockRetryInterval = 100 * time.Millisecond

// lockNameReplacer flattens entry names into a single lock file name.
var lockNameReplacer = strings.NewReplacer("/", "-", "\\", "-", ":", "-")

// Locker hands out one flock-backed lock file per cache entry.
type Locker struct {
	locksDir string
}

// NewLocker creates a Locker keeping its lock files in locksDir.
func NewLocker(locksDir string) *Locker {
	return &Locker{locksDir: locksDir}
}

func (l *Locker) lockPath(name string) string {
	return filepath.Join(l.locksDir, lockNameReplacer.Replace(name)+".lock")
}

// AcquireExclusive blocks until it holds the lock for name or ctx ends.
// The lock file is kept after unlock so later holders reuse it.
func (l *Locker) AcquireExclusive(ctx context.Context, name string) (unlock func() error, err error) {
	if err := os.MkdirAll(l.locksDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create locks directory: %w", err)
	}

	path := l.lockPath(name)
	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, lockRetryInterval)
	switch {
	case err != nil:
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	case !locked:
		return nil, fmt.Errorf("failed to lock %s: %w", path, ctx.Err())
	}

	return func() error {
		if err := fl.Unlock(); err != nil {
			return fmt.Errorf("failed to unlock %s: %w", path, err)
		}
		return nil
	}, nil
}
