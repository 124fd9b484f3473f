package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ykondo/sshmux/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, ApplyMigrations(ctx, store.DB()))
	return store
}

func TestRegisterReplacesExistingRow(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id := model.ConnectionID("00112233aabbccdd")
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Register(ctx, id, "root@10.0.0.5", base))
	require.NoError(t, store.Register(ctx, id, "root@10.0.0.5", base.Add(time.Minute)))

	rows, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "root@10.0.0.5", rows[0].Target)
	assert.True(t, rows[0].RegisteredAt.Equal(base.Add(time.Minute)))
}

func TestUnregisterMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	require.NoError(t, store.Unregister(ctx, "deadbeefdeadbeef"))
}

func TestLookupsReturnNotFound(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.TargetByID(ctx, "deadbeefdeadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.RegisteredAt(ctx, "deadbeefdeadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrdersOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Register(ctx, "1111111111111111", "a@h1", base.Add(2*time.Minute)))
	require.NoError(t, store.Register(ctx, "2222222222222222", "b@h2", base))
	require.NoError(t, store.Register(ctx, "3333333333333333", "c@h3", base.Add(time.Minute)))

	rows, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "b@h2", rows[0].Target)
	assert.Equal(t, "c@h3", rows[1].Target)
	assert.Equal(t, "a@h1", rows[2].Target)

	oldest, err := store.Oldest(ctx, 2)
	require.NoError(t, err)
	require.Len(t, oldest, 2)
	assert.Equal(t, "b@h2", oldest[0].Target)
}

func TestListOrdersSubsecondTimestamps(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	// .12 sorts before .1 under the trimmed RFC3339Nano encoding, so the
	// newer row would win a lexicographic ORDER BY. The fixed-width
	// encoding keeps text order equal to timestamp order.
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Register(ctx, "2222222222222222", "b@newer", base.Add(120*time.Millisecond)))
	require.NoError(t, store.Register(ctx, "1111111111111111", "a@older", base.Add(100*time.Millisecond)))

	rows, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a@older", rows[0].Target)
	assert.Equal(t, "b@newer", rows[1].Target)

	oldest, err := store.Oldest(ctx, 1)
	require.NoError(t, err)
	require.Len(t, oldest, 1)
	assert.Equal(t, "a@older", oldest[0].Target)

	got, err := store.LastTarget(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b@newer", got)
}

func TestPruneMissing(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	now := time.Now().UTC()
	require.NoError(t, store.Register(ctx, "1111111111111111", "a@h1", now))
	require.NoError(t, store.Register(ctx, "2222222222222222", "b@h2", now))

	pruned, err := store.PruneMissing(ctx, map[model.ConnectionID]bool{"1111111111111111": true})
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	rows, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.ConnectionID("1111111111111111"), rows[0].ConnectionID)
}

func TestLastTargetSlotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.SetLastTarget(ctx, "root@10.0.0.5:2222", time.Now().UTC()))
	got, err := store.LastTarget(ctx)
	require.NoError(t, err)
	assert.Equal(t, "root@10.0.0.5:2222", got)
}

func TestLastTargetFallsBackToNewestRow(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Register(ctx, "1111111111111111", "a@h1", base))
	require.NoError(t, store.Register(ctx, "2222222222222222", "b@h2", base.Add(time.Hour)))

	got, err := store.LastTarget(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b@h2", got)
}

func TestLastTargetEmptyEverywhere(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.LastTarget(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}
