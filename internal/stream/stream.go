// Package stream wraps an engine cursor into fixed-size batches so encoded
// output memory is bounded by batch size rather than result size
// (spec.md §4.4).
package stream

import (
	"context"
	"time"

	"grafeodb/server/engine"
)

const defaultBatchSize = 1000

// Streamer wraps an engine.Cursor into a finite lazy sequence of batches.
type Streamer struct {
	cur       engine.Cursor
	batchSize int
	done      bool
}

// New builds a Streamer. batchSize <= 0 is clamped to 1 (spec: "batch_size
// = 0 is clamped to 1"); batchSize == 0 passed by a caller wanting the
// server default should use NewDefault instead.
func New(cur engine.Cursor, batchSize int) *Streamer {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Streamer{cur: cur, batchSize: batchSize}
}

// NewDefault builds a Streamer using the default batch size (1000).
func NewDefault(cur engine.Cursor) *Streamer {
	return &Streamer{cur: cur, batchSize: defaultBatchSize}
}

// Columns delegates to the underlying cursor.
func (s *Streamer) Columns() []string { return s.cur.Columns() }

// NextBatch returns up to batchSize rows, or ok=false once the cursor is
// exhausted. The final batch may be shorter than batchSize.
func (s *Streamer) NextBatch(ctx context.Context) (rows [][]engine.Value, ok bool, err error) {
	if s.done {
		return nil, false, nil
	}

	batch := make([][]engine.Value, 0, s.batchSize)
	for len(batch) < s.batchSize {
		row, hasRow, err := s.cur.Next(ctx)
		if err != nil {
			s.done = true
			return batch, len(batch) > 0, err
		}
		if !hasRow {
			s.done = true
			break
		}
		batch = append(batch, row)
	}

	if len(batch) == 0 {
		return nil, false, nil
	}
	return batch, true, nil
}

// Close releases the underlying cursor.
func (s *Streamer) Close() error { return s.cur.Close() }

// ExecutionTime and RowsScanned delegate to the underlying cursor for the
// header/summary frame once execution has run.
func (s *Streamer) ExecutionTime() time.Duration { return s.cur.ExecutionTime() }
func (s *Streamer) RowsScanned() int64           { return s.cur.RowsScanned() }

// Materialize drains the cursor directly into one slice, bypassing
// batching. Used to prove byte-identical output between the streaming and
// materialized paths (spec invariant 4).
func Materialize(ctx context.Context, cur engine.Cursor) ([][]engine.Value, error) {
	var rows [][]engine.Value
	for {
		row, ok, err := cur.Next(ctx)
		if err != nil {
			return rows, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, row)
	}
}
