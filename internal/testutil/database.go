package testutil

import (
	"testing"

	"mdhl/internal/database"
	"mdhl/internal/hl"
)

// NewTestStore creates a new in-memory SQLite store with the schema applied
// via migrations. The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) hl.Store {
	t.Helper()

	store, err := database.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := store.Migrate(); err != nil {
		store.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
