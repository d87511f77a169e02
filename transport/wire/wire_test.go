package wire

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"grafeodb/server/engine/memgraph"
	"grafeodb/server/internal/config"
	"grafeodb/server/internal/core"
)

func newTestAdapter(t *testing.T) (*Adapter, *core.State) {
	t.Helper()
	st, err := core.New(config.Config{WorkerCount: 4, RateLimit: 1000}, core.WithEngine(memgraph.New()))
	require.NoError(t, err)
	require.NoError(t, st.Start(context.Background()))
	t.Cleanup(func() { st.Stop(context.Background()) })

	a := New(st, "127.0.0.1:0")
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { a.Stop(context.Background()) })
	return a, st
}

// testClient is a minimal wire-protocol client used only by these tests.
type testClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, a *Adapter) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", a.listener.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(t frameType, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	full := make([]byte, 4+1+len(body))
	binary.BigEndian.PutUint32(full[0:4], uint32(1+len(body)))
	full[4] = byte(t)
	copy(full[5:], body)
	_, err = c.conn.Write(full)
	return err
}

func (c *testClient) recv() (frameType, []byte, error) {
	return readFrame(c.r)
}

func TestHandshakeSucceedsWithoutAuth(t *testing.T) {
	a, _ := newTestAdapter(t)
	c := dial(t, a)

	require.NoError(t, c.send(frameHandshake, handshakePayload{Database: "default"}))
	typ, _, err := c.recv()
	require.NoError(t, err)
	require.Equal(t, frameHandshakeAck, typ)
}

func TestExecuteAutoCommitInsertThenMatch(t *testing.T) {
	a, _ := newTestAdapter(t)
	c := dial(t, a)

	require.NoError(t, c.send(frameHandshake, handshakePayload{Database: "default"}))
	_, _, err := c.recv()
	require.NoError(t, err)

	require.NoError(t, c.send(frameRequest, requestPayload{Op: "execute", Database: "default", Language: "gql", Query: "INSERT (:Widget {color:'red'})"}))
	typ, body, err := c.recv()
	require.NoError(t, err)
	require.Equal(t, frameHeader, typ)
	var hdr headerPayload
	require.NoError(t, json.Unmarshal(body, &hdr))

	typ, _, err = c.recv()
	require.NoError(t, err)
	require.Equal(t, frameSummary, typ)

	require.NoError(t, c.send(frameRequest, requestPayload{Op: "execute", Database: "default", Language: "gql", Query: "MATCH (w:Widget) RETURN w.color"}))
	typ, _, err = c.recv()
	require.NoError(t, err)
	require.Equal(t, frameHeader, typ)

	typ, body, err = c.recv()
	require.NoError(t, err)
	require.Equal(t, frameBatch, typ)
	var batch batchPayload
	require.NoError(t, json.Unmarshal(body, &batch))
	require.Len(t, batch.Rows, 1)
	require.Equal(t, "red", batch.Rows[0][0])

	typ, _, err = c.recv()
	require.NoError(t, err)
	require.Equal(t, frameSummary, typ)
}

func TestBeginCommitRoundTrip(t *testing.T) {
	a, _ := newTestAdapter(t)
	c := dial(t, a)

	require.NoError(t, c.send(frameHandshake, handshakePayload{Database: "default"}))
	_, _, err := c.recv()
	require.NoError(t, err)

	require.NoError(t, c.send(frameRequest, requestPayload{Op: "begin", Database: "default"}))
	typ, body, err := c.recv()
	require.NoError(t, err)
	require.Equal(t, frameSummary, typ)
	var sm summaryPayload
	require.NoError(t, json.Unmarshal(body, &sm))
	require.NotEmpty(t, sm.SessionID)

	require.NoError(t, c.send(frameRequest, requestPayload{Op: "commit", SessionID: sm.SessionID}))
	typ, _, err = c.recv()
	require.NoError(t, err)
	require.Equal(t, frameSummary, typ)
}

func TestUnknownOpReturnsErrorFrame(t *testing.T) {
	a, _ := newTestAdapter(t)
	c := dial(t, a)

	require.NoError(t, c.send(frameHandshake, handshakePayload{Database: "default"}))
	_, _, err := c.recv()
	require.NoError(t, err)

	require.NoError(t, c.send(frameRequest, requestPayload{Op: "bogus"}))
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, _, err := c.recv()
	require.NoError(t, err)
	require.Equal(t, frameError, typ)
}
