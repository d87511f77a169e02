package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grafeodb/server/engine"
	"grafeodb/server/engine/memgraph"
)

// fakeHandle adapts a raw engine.Handle to the session.Handle interface.
type fakeHandle struct {
	eh       engine.Handle
	sessions int
}

func (f *fakeHandle) EngineHandle() engine.Handle { return f.eh }
func (f *fakeHandle) IncrementSessions()          { f.sessions++ }
func (f *fakeHandle) DecrementSessions()          { f.sessions-- }

type fakeLookup struct {
	handles map[string]*fakeHandle
}

func (l *fakeLookup) Get(name string) (Handle, error) {
	h, ok := l.handles[name]
	if !ok {
		return nil, assertNotFound{}
	}
	return h, nil
}

type assertNotFound struct{}

func (assertNotFound) Error() string { return "not found" }

func newTestRegistry(t *testing.T) (*Registry, *fakeLookup) {
	t.Helper()
	eng := memgraph.New()
	h, err := eng.Open(context.Background(), "default", engine.KindPropertyGraph, engine.StorageInMemory, "", engine.Options{}, "")
	require.NoError(t, err)

	lookup := &fakeLookup{handles: map[string]*fakeHandle{"default": {eh: h}}}
	reg := New(Config{TTL: 50 * time.Millisecond, Lookup: lookup})
	return reg, lookup
}

func TestCommitThenUseIsNotFound(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	s, err := reg.Begin(ctx, "default")
	require.NoError(t, err)

	require.NoError(t, reg.Commit(ctx, s.ID))

	_, _, err = reg.Use(s.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_found")
}

func TestConcurrentUseIsBusy(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	s, err := reg.Begin(ctx, "default")
	require.NoError(t, err)

	_, release, err := reg.Use(s.ID)
	require.NoError(t, err)
	defer release()

	_, _, err = reg.Use(s.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict")
}

func TestReaperRollsBackIdleSessions(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	s, err := reg.Begin(ctx, "default")
	require.NoError(t, err)

	require.NoError(t, reg.Start(ctx))
	defer reg.Stop(ctx)

	require.Eventually(t, func() bool {
		_, _, err := reg.Use(s.ID)
		return err != nil
	}, time.Second, 10*time.Millisecond)
}
