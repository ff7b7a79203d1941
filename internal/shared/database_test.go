package shared

import (
	"path/filepath"
	"testing"
)

func TestNewDatabase(t *testing.T) {
	t.Run("opens in-memory database with pool bounds", func(t *testing.T) {
		db, err := NewDatabase(":memory:", 1, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer db.Close()

		if got := db.Stats().MaxOpenConnections; got != 1 {
			t.Errorf("expected 1 max open connection, got %d", got)
		}
		if _, err := db.Exec("CREATE TABLE t (id TEXT PRIMARY KEY)"); err != nil {
			t.Errorf("expected usable connection: %v", err)
		}
	})

	t.Run("non-positive bounds keep defaults", func(t *testing.T) {
		db, err := NewDatabase(":memory:", 0, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer db.Close()

		if got := db.Stats().MaxOpenConnections; got != 0 {
			t.Errorf("expected unlimited open connections, got %d", got)
		}
	})

	t.Run("unreachable path fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "cache.db")
		if _, err := NewDatabase(path, 1, 1); err == nil {
			t.Error("expected error for unreachable database path")
		}
	})
}
