package shared

import (
	"fmt"

	"github.com/gofrs/flock"
)

// RunLock is the exclusive lock held for the duration of one reconciliation
// pass. A concurrent pass would double-fetch and double-create playlists, so
// acquisition failure is fatal to the invocation.
type RunLock struct {
	fl *flock.Flock
}

// AcquireLock takes a non-blocking exclusive lock on the given file.
// Returns ErrLockHeld when another process holds it.
func AcquireLock(path string) (*RunLock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &RunLock{fl: fl}, nil
}

// Release unlocks the run lock.
func (l *RunLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
