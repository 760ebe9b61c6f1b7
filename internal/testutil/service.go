package testutil

import (
	"path/filepath"
	"testing"

	"mdhl/internal/backup"
	"mdhl/internal/hl"
)

// ServiceFixture bundles a fully wired Service with the stubs behind it.
type ServiceFixture struct {
	Service   *hl.Service
	Store     hl.Store
	Backups   *backup.Store
	Clock     *StubClock
	ExportDir string
}

// NewTestService wires a Service against an in-memory store, a temp-dir
// backup store, a stub clock, and sequential IDs.
func NewTestService(t *testing.T) *ServiceFixture {
	t.Helper()

	store := NewTestStore(t)

	backups, err := backup.NewStore(filepath.Join(t.TempDir(), "backups"))
	if err != nil {
		t.Fatalf("failed to create backup store: %v", err)
	}

	clock := FixedClock()
	exportDir := filepath.Join(t.TempDir(), "exports")
	svc := hl.NewService(store, backups, exportDir, hl.NewNopLogger(), clock, NewStubIDGenerator())

	return &ServiceFixture{
		Service:   svc,
		Store:     store,
		Backups:   backups,
		Clock:     clock,
		ExportDir: exportDir,
	}
}
