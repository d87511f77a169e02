package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grafeodb/server/engine"
)

// listCursor is a minimal engine.Cursor backed by a plain slice, used to
// exercise the streamer without depending on the memgraph package.
type listCursor struct {
	rows [][]engine.Value
	idx  int
}

func (c *listCursor) Columns() []string { return []string{"v"} }
func (c *listCursor) Next(ctx context.Context) ([]engine.Value, bool, error) {
	if c.idx >= len(c.rows) {
		return nil, false, nil
	}
	row := c.rows[c.idx]
	c.idx++
	return row, true, nil
}
func (c *listCursor) ExecutionTime() time.Duration { return 0 }
func (c *listCursor) RowsScanned() int64           { return int64(c.idx) }
func (c *listCursor) Close() error                 { return nil }

func intRows(n int) [][]engine.Value {
	rows := make([][]engine.Value, n)
	for i := 0; i < n; i++ {
		v := int64(i)
		rows[i] = []engine.Value{{Int: &v}}
	}
	return rows
}

func TestBatchesRespectSize(t *testing.T) {
	cur := &listCursor{rows: intRows(2500)}
	s := New(cur, 1000)
	ctx := context.Background()

	var sizes []int
	for {
		batch, ok, err := s.NextBatch(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		sizes = append(sizes, len(batch))
	}
	assert.Equal(t, []int{1000, 1000, 500}, sizes)
}

func TestZeroBatchSizeClampedToOne(t *testing.T) {
	cur := &listCursor{rows: intRows(3)}
	s := New(cur, 0)
	ctx := context.Background()

	batch, ok, err := s.NextBatch(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, batch, 1)
}

func TestStreamingMatchesMaterialized(t *testing.T) {
	rows := intRows(37)

	streamed := [][]engine.Value{}
	s := New(&listCursor{rows: rows}, 10)
	ctx := context.Background()
	for {
		batch, ok, err := s.NextBatch(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		streamed = append(streamed, batch...)
	}

	materialized, err := Materialize(ctx, &listCursor{rows: rows})
	require.NoError(t, err)

	require.Equal(t, len(materialized), len(streamed))
	for i := range materialized {
		assert.Equal(t, *materialized[i][0].Int, *streamed[i][0].Int)
	}
}
