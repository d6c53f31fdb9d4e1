package diskqueue

import (
	"errors"
	"os"

	"github.com/danjacques/gofslock/fslock"

	"github.com/bft-labs/bulkship/internal/domain"
)

// flockSuffix names the sidecar file that carries the advisory lock.
const flockSuffix = ".flock"

// FlockLocker locks a batch with an advisory lock on a sidecar file and
// leaves the batch under its stored name. The operating system drops the
// lock when the holder dies, so no stale-lock sweep is needed.
type FlockLocker struct{}

// TryAcquire takes the advisory lock for path.
func (FlockLocker) TryAcquire(path string) (Handle, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Handle{}, domain.ErrGone
		}
		return Handle{}, err
	}

	held, err := fslock.Lock(path + flockSuffix)
	if err != nil {
		if errors.Is(err, fslock.ErrLockHeld) {
			return Handle{}, domain.ErrBusy
		}
		return Handle{}, err
	}

	// The batch may have been removed between the stat and the lock.
	if _, err := os.Stat(path); err != nil {
		_ = held.Unlock()
		_ = removeIfExists(path + flockSuffix)
		return Handle{}, domain.ErrGone
	}

	return Handle{Path: path, LockedPath: path, unlock: held.Unlock}, nil
}

// Release drops the advisory lock.
func (FlockLocker) Release(h Handle) error {
	if h.unlock == nil {
		return nil
	}
	return h.unlock()
}

// Remove deletes the batch and its sidecar, then drops the lock.
func (l FlockLocker) Remove(h Handle) error {
	err := removeIfExists(h.Path)
	_ = removeIfExists(h.Path + flockSuffix)
	if uerr := l.Release(h); err == nil {
		err = uerr
	}
	return err
}
