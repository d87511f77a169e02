package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grafeodb/server/engine"
	"grafeodb/server/engine/memgraph"
	svcerrors "grafeodb/server/internal/errors"
)

type fakeProvider struct{ eh engine.Handle }

func (p *fakeProvider) EngineHandle() engine.Handle { return p.eh }

type fakeLookup struct {
	handles map[string]*fakeProvider
}

func (l *fakeLookup) Get(name string) (EngineHandleProvider, error) {
	p, ok := l.handles[name]
	if !ok {
		return nil, svcerrors.NotFound("database " + name + " not found")
	}
	return p, nil
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	eng := memgraph.New()
	h, err := eng.Open(context.Background(), "default", engine.KindPropertyGraph, engine.StorageInMemory, "", engine.Options{}, "")
	require.NoError(t, err)

	lookup := &fakeLookup{handles: map[string]*fakeProvider{"default": {eh: h}}}
	return New(Config{Lookup: lookup, WorkerCount: 2})
}

func TestDispatchInsertThenMatch(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, Request{Database: "default", Language: engine.LanguageGQL,
		Text: "INSERT (:Widget {color:'red'})"})
	require.NoError(t, err)

	cur, err := d.Dispatch(ctx, Request{Database: "default", Language: engine.LanguageGQL,
		Text: "MATCH (w:Widget) RETURN w.color"})
	require.NoError(t, err)

	row, ok, err := cur.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, row[0].Str)
	assert.Equal(t, "red", *row[0].Str)
}

func TestDispatchUnsupportedLanguage(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), Request{Database: "default", Language: "not-a-language", Text: "RETURN 1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad_request")
}

func TestDispatchDatabaseNotFound(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), Request{Database: "nope", Language: engine.LanguageGQL, Text: "RETURN 1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_found")
}

func TestDispatchOneMillisecondDeadlineDoesNotPanic(t *testing.T) {
	d := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), Request{Database: "default", Language: engine.LanguageGQL,
		Text: "RETURN 1", DeadlineMS: 1})
	_ = err // a 1ms deadline against an in-memory fake may or may not trip; assert no panic
	time.Sleep(time.Millisecond)
}

func TestBatchAtomicRollsBackOnFailure(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	_, err := d.Batch(ctx, "default", []BatchItem{
		{Language: engine.LanguageGQL, Text: "INSERT (:Widget {color:'blue'})"},
		{Language: engine.LanguageGQL, Text: "NOT VALID %%%"},
	})
	require.Error(t, err)

	cur, err := d.Dispatch(ctx, Request{Database: "default", Language: engine.LanguageGQL,
		Text: "MATCH (w:Widget) RETURN w.color"})
	require.NoError(t, err)
	_, ok, err := cur.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "failed batch must not have committed its insert")
}
