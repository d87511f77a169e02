package dbmanager

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grafeodb/server/engine"
	"grafeodb/server/engine/memgraph"
	"grafeodb/server/internal/logging"
)

func newTestManager(t *testing.T, root string) *Manager {
	t.Helper()
	log := logging.New(logging.Config{Service: "test"})
	return New(memgraph.New(), root, nil, log)
}

func TestDefaultEntryExistsAndIsNotDeletable(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "")
	_, err := m.Discover(ctx)
	require.NoError(t, err)

	_, err = m.Get(DefaultName)
	require.NoError(t, err)

	err = m.Delete(ctx, DefaultName)
	var se interface{ Error() string }
	require.ErrorAs(t, err, &se)
	assert.Contains(t, err.Error(), "forbidden")
}

func TestCreateDuplicateConflicts(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "")

	_, err := m.Create(ctx, "alpha", engine.KindPropertyGraph, engine.StorageInMemory, engine.Options{}, "")
	require.NoError(t, err)

	_, err = m.Create(ctx, "alpha", engine.KindPropertyGraph, engine.StorageInMemory, engine.Options{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict")
}

func TestListReflectsCreateAndDelete(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "")

	_, err := m.Create(ctx, "alpha", engine.KindPropertyGraph, engine.StorageInMemory, engine.Options{}, "")
	require.NoError(t, err)

	names := func() []string {
		var out []string
		for _, s := range m.List(ctx) {
			out = append(out, s.Name)
		}
		return out
	}

	assert.Contains(t, names(), "alpha")

	require.NoError(t, m.Delete(ctx, "alpha"))
	assert.NotContains(t, names(), "alpha")
}

func TestDiscoverRehydratesPersistentEntries(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(root, 0o755))

	m1 := newTestManager(t, root)
	_, err := m1.Discover(ctx)
	require.NoError(t, err)

	opts := engine.Options{WorkerCount: 4, ReverseEdgeIndex: true}
	_, err = m1.Create(ctx, "beta", engine.KindPropertyGraph, engine.StoragePersistent, opts, "")
	require.NoError(t, err)

	m2 := newTestManager(t, root)
	_, err = m2.Discover(ctx)
	require.NoError(t, err)

	entry, err := m2.Get("beta")
	require.NoError(t, err)
	assert.Equal(t, engine.KindPropertyGraph, entry.Kind)
	assert.True(t, entry.Options.ReverseEdgeIndex)
	assert.Equal(t, 4, entry.Options.WorkerCount)
}

func TestInvalidNameRejected(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "")

	_, err := m.Create(ctx, "", engine.KindPropertyGraph, engine.StorageInMemory, engine.Options{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad_request")
}
