// Package lock provides the cross-process advisory lock that serializes
// every tree-mutating operation across the CLI and the watch daemon, built
// on github.com/gofrs/flock.
package lock

import (
	"context"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/hometree/hometree/internal/herror"
)

// FileName is the lock file's name under the state directory.
const FileName = "hometree.lock"

// Manager owns the single exclusive lock for one hometree installation.
type Manager struct {
	path string
}

// New returns a Manager whose lock file lives at
// {stateDir}/hometree.lock.
func New(stateDir string) *Manager {
	return &Manager{path: filepath.Join(stateDir, FileName)}
}

// Releaser is returned by a successful acquire; callers must Release it on
// every exit path.
type Releaser struct {
	fl *flock.Flock
}

// Release drops the lock. Safe to call multiple times.
func (r *Releaser) Release() error {
	if r.fl == nil {
		return nil
	}
	return r.fl.Unlock()
}

// Acquire blocks until the lock is held or ctx is done. Used by
// deploy/rollback/snapshot/track/secret operations, for which failure to
// acquire is fatal.
func (m *Manager) Acquire(ctx context.Context) (*Releaser, error) {
	fl := flock.New(m.path)

	locked, err := fl.TryLockContext(ctx, defaultRetryInterval)
	if err != nil {
		return nil, herror.Wrap(herror.Busy, err, "failed to acquire hometree lock")
	}
	if !locked {
		return nil, herror.New(herror.Busy, "hometree lock is held by another process")
	}

	return &Releaser{fl: fl}, nil
}

// TryAcquire attempts to acquire the lock without blocking. Used by the
// watch daemon's flush loop: a busy lock means requeue and retry on the
// next flush cycle, not a fatal error.
func (m *Manager) TryAcquire() (*Releaser, bool, error) {
	fl := flock.New(m.path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, herror.Wrap(herror.Busy, err, "failed to try-acquire hometree lock")
	}
	if !locked {
		return nil, false, nil
	}

	return &Releaser{fl: fl}, true, nil
}
