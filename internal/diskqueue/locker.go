package diskqueue

import (
	"errors"
	"os"
	"time"

	"github.com/bft-labs/bulkship/internal/domain"
)

// Handle identifies a stored batch that is locked for retransmission.
type Handle struct {
	// Path is the at-rest name of the batch ({id}_{ts}.bulk).
	Path string

	// LockedPath is where the batch can be read while the lock is held.
	LockedPath string

	unlock func() error
}

// Locker decides who may retransmit a stored batch.
//
// TryAcquire returns domain.ErrGone when the batch no longer exists and
// domain.ErrBusy when someone else holds it. Release gives the batch back
// for a later attempt; Remove deletes it. Both must tolerate a batch that
// has already disappeared.
type Locker interface {
	TryAcquire(path string) (Handle, error)
	Release(h Handle) error
	Remove(h Handle) error
}

// RenameLocker locks a batch by renaming it to its .lock name. The rename
// must be atomic on the storage filesystem.
type RenameLocker struct{}

// TryAcquire renames path to path.lock and refreshes its timestamps so the
// stale-lock sweep measures the age of the lock, not of the batch.
func (RenameLocker) TryAcquire(path string) (Handle, error) {
	locked := lockedPath(path)
	if err := os.Rename(path, locked); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Handle{}, domain.ErrGone
		}
		return Handle{}, err
	}
	now := time.Now()
	_ = os.Chtimes(locked, now, now)
	return Handle{Path: path, LockedPath: locked}, nil
}

// Release renames the lock file back to its stored name.
func (RenameLocker) Release(h Handle) error {
	if err := os.Rename(h.LockedPath, h.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Remove deletes the lock file.
func (RenameLocker) Remove(h Handle) error {
	return removeIfExists(h.LockedPath)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
