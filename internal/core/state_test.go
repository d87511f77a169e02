package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grafeodb/server/engine"
	"grafeodb/server/engine/memgraph"
	"grafeodb/server/internal/config"
	"grafeodb/server/internal/dispatch"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	cfg := config.Config{WorkerCount: 4, RateLimit: 1000}
	st, err := New(cfg, WithEngine(memgraph.New()))
	require.NoError(t, err)
	return st
}

func TestStateStartDiscoversDefaultDatabase(t *testing.T) {
	st := newTestState(t)
	ctx := context.Background()

	require.NoError(t, st.Start(ctx))
	defer st.Stop(ctx)

	_, err := st.DB.Get("default")
	require.NoError(t, err)
}

func TestEndToEndInsertAndMatchThroughDispatcher(t *testing.T) {
	st := newTestState(t)
	ctx := context.Background()
	require.NoError(t, st.Start(ctx))
	defer st.Stop(ctx)

	_, err := st.Dispatcher.Dispatch(ctx, dispatchRequest("default", "INSERT (:Widget {color:'red'})"))
	require.NoError(t, err)

	cur, err := st.Dispatcher.Dispatch(ctx, dispatchRequest("default", "MATCH (w:Widget) RETURN w.color"))
	require.NoError(t, err)

	row, ok, err := cur.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "red", *row[0].Str)
}

func dispatchRequest(db, text string) dispatch.Request {
	return dispatch.Request{Database: db, Language: engine.LanguageGQL, Text: text}
}
