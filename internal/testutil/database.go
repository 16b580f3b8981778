package testutil

import (
	"path/filepath"
	"testing"

	"fim-go/internal/database"
)

// NewTestStore creates a snapshot store in a temporary directory with the
// schema applied. It is closed when the test completes.
func NewTestStore(t *testing.T) *database.SQLiteStore {
	t.Helper()
	return NewTestStoreAt(t, filepath.Join(t.TempDir(), "snapshot.db"))
}

// NewTestStoreAt creates a snapshot store at path.
func NewTestStoreAt(t *testing.T, path string) *database.SQLiteStore {
	t.Helper()
	store, err := database.OpenOrCreate(path, false)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
