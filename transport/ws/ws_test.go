package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"grafeodb/server/engine/memgraph"
	"grafeodb/server/internal/config"
	"grafeodb/server/internal/core"
)

func newTestServer(t *testing.T) (*core.State, *httptest.Server) {
	t.Helper()
	st, err := core.New(config.Config{WorkerCount: 4, RateLimit: 1000}, core.WithEngine(memgraph.New()))
	require.NoError(t, err)
	require.NoError(t, st.Start(context.Background()))
	t.Cleanup(func() { st.Stop(context.Background()) })

	r := mux.NewRouter()
	New(st).Mount(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return st, srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPingPong(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteJSON(frame{Type: typePing, ID: "1"}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var out frame
	require.NoError(t, conn.ReadJSON(&out))
	require.Equal(t, typePong, out.Type)
	require.Equal(t, "1", out.ID)
}

func TestQueryInsertAndMatchStreams(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteJSON(frame{Type: typeQuery, ID: "a", Query: "INSERT (:Widget {color:'red'})"}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var out frame
	require.NoError(t, conn.ReadJSON(&out))
	require.Equal(t, typeResult, out.Type)
	require.True(t, out.Done)

	require.NoError(t, conn.WriteJSON(frame{Type: typeQuery, ID: "b", Query: "MATCH (w:Widget) RETURN w.color"}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&out))
	require.Equal(t, typeResult, out.Type)
	require.Len(t, out.Rows, 1)
	require.Equal(t, "red", out.Rows[0][0])
}

func TestUnknownMessageTypeReturnsError(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteJSON(frame{Type: "bogus", ID: "x"}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var out frame
	require.NoError(t, conn.ReadJSON(&out))
	require.Equal(t, typeError, out.Type)
}
