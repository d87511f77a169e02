package resources

import (
	"testing"

	"github.com/stretchr/testify/require"

	"grafeodb/server/engine"
	"grafeodb/server/internal/logging"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	log := logging.New(logging.Config{Service: "test"})
	return New(Config{SupportedKinds: []engine.Kind{engine.KindPropertyGraph}}, log)
}

func TestSnapshotReportsHostMemory(t *testing.T) {
	tr := newTestTracker(t)
	inv := tr.Snapshot()
	require.GreaterOrEqual(t, inv.TotalMemoryBytes, int64(0))
	require.Equal(t, []engine.Kind{engine.KindPropertyGraph}, inv.SupportedKinds)
}

func TestReserveRejectsOverAllocation(t *testing.T) {
	tr := newTestTracker(t)
	inv := tr.Snapshot()
	if inv.TotalMemoryBytes == 0 {
		t.Skip("memory probe unavailable in this environment")
	}
	require.False(t, tr.Reserve(inv.TotalMemoryBytes+1))
}

func TestReserveThenReleaseRoundTrips(t *testing.T) {
	tr := newTestTracker(t)
	require.True(t, tr.Reserve(1024))
	before := tr.Snapshot().AllocatedMemoryBytes
	require.Equal(t, int64(1024), before)
	tr.Release(1024)
	after := tr.Snapshot().AllocatedMemoryBytes
	require.Equal(t, int64(0), after)
}
