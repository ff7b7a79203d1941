package shared

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestRunLock(t *testing.T) {
	t.Run("acquire and release", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "curator.lock")

		lock, err := AcquireLock(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := lock.Release(); err != nil {
			t.Errorf("release failed: %v", err)
		}
	})

	t.Run("second acquisition fails while held", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "curator.lock")

		lock, err := AcquireLock(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer lock.Release()

		if _, err := AcquireLock(path); !errors.Is(err, ErrLockHeld) {
			t.Errorf("expected ErrLockHeld, got %v", err)
		}
	})

	t.Run("reacquire after release", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "curator.lock")

		lock, err := AcquireLock(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := lock.Release(); err != nil {
			t.Fatal(err)
		}

		again, err := AcquireLock(path)
		if err != nil {
			t.Fatalf("expected reacquisition to succeed, got %v", err)
		}
		again.Release()
	})

	t.Run("nil lock releases safely", func(t *testing.T) {
		var lock *RunLock
		if err := lock.Release(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
