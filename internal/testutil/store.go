package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ykondo/sshmux/internal/registry"
)

// NewStore opens a migrated registry store in a per-test temp dir.
func NewStore(t *testing.T) (*registry.Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := registry.Open(ctx, filepath.Join(t.TempDir(), "sshmux-test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := registry.ApplyMigrations(ctx, store.DB()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return store, ctx
}
