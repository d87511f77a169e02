// Package ws implements the persistent full-duplex adapter (spec.md §6
// "Full-duplex surface"): JSON messages tagged by type, dispatched through
// the same service-state operations the HTTP adapter uses.
package ws

import (
	"context"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"grafeodb/server/engine"
	"grafeodb/server/internal/auth"
	"grafeodb/server/internal/core"
	"grafeodb/server/internal/dispatch"
	svcerrors "grafeodb/server/internal/errors"
	"grafeodb/server/internal/logging"
	"grafeodb/server/internal/ratelimit"
	"grafeodb/server/internal/service"
	"grafeodb/server/internal/stream"
)

var languageAliases = map[string]engine.Language{
	"":        engine.LanguageGQL,
	"gql":     engine.LanguageGQL,
	"cypher":  engine.LanguageCypher,
	"graphql": engine.LanguageGraphQL,
	"gremlin": engine.LanguageGremlin,
	"sparql":  engine.LanguageSPARQL,
	"sql":     engine.LanguageSQLPGQ,
}

// messageType enumerates the frame tags of spec.md §6 "Full-duplex
// surface".
type messageType string

const (
	typeQuery  messageType = "query"
	typeResult messageType = "result"
	typeError  messageType = "error"
	typePing   messageType = "ping"
	typePong   messageType = "pong"
)

// frame is the wire shape of every websocket message.
type frame struct {
	Type       messageType            `json:"type"`
	ID         string                 `json:"id,omitempty"`
	Query      string                 `json:"query,omitempty"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Language   string                 `json:"language,omitempty"`
	Database   string                 `json:"database,omitempty"`
	DeadlineMS int64                  `json:"deadline_ms,omitempty"`

	Columns []string        `json:"columns,omitempty"`
	Rows    [][]interface{} `json:"rows,omitempty"`
	Done    bool            `json:"done,omitempty"`

	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *nethttp.Request) bool { return true },
}

// Adapter is the websocket transport, implementing service.Service.
type Adapter struct {
	state *core.State
}

// New builds the websocket adapter.
func New(state *core.State) *Adapter {
	return &Adapter{state: state}
}

// Name implements service.Service.
func (a *Adapter) Name() string { return "ws-adapter" }

// Descriptor implements service.DescriptorProvider.
func (a *Adapter) Descriptor() service.Descriptor {
	return service.Descriptor{Name: a.Name(), Layer: service.LayerIngress}
}

// Start and Stop are no-ops: the websocket adapter mounts its handler onto
// an HTTP router owned elsewhere (see Mount) rather than owning its own
// listener.
func (a *Adapter) Start(ctx context.Context) error { return nil }
func (a *Adapter) Stop(ctx context.Context) error  { return nil }

// Mount registers the /ws route on an existing mux.Router (typically the
// HTTP adapter's router, so both transports share one listener/port).
func (a *Adapter) Mount(r *mux.Router) {
	r.HandleFunc("/ws", a.handleUpgrade)
}

func (a *Adapter) handleUpgrade(w nethttp.ResponseWriter, r *nethttp.Request) {
	if a.state.Auth.Enabled() {
		cred := auth.FromHTTPRequest(r)
		if err := a.state.Auth.Verify(cred); err != nil {
			w.WriteHeader(nethttp.StatusUnauthorized)
			return
		}
	}
	if err := a.state.RateLimiter.Allow(r.Context(), ratelimit.ClientIP(r)); err != nil {
		w.WriteHeader(nethttp.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.state.Log.Warnf("ws adapter: upgrade failed: %v", err)
		return
	}
	c := &connection{adapter: a, conn: conn, outbox: make(chan frame, 16)}
	go c.writeLoop()
	c.readLoop()
}

// connection owns one websocket's read and write goroutines. A dedicated
// writer goroutine serializes outbound frames so streamed result batches
// never interleave with keepalive pongs mid-message.
type connection struct {
	adapter *Adapter
	conn    *websocket.Conn
	outbox  chan frame
	once    sync.Once
}

func (c *connection) close() {
	c.once.Do(func() {
		close(c.outbox)
		_ = c.conn.Close()
	})
}

func (c *connection) writeLoop() {
	for f := range c.outbox {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(f); err != nil {
			return
		}
	}
}

func (c *connection) send(f frame) {
	defer func() { recover() }() // outbox may already be closed by a concurrent read-loop exit
	c.outbox <- f
}

func (c *connection) readLoop() {
	defer c.close()
	for {
		var in frame
		if err := c.conn.ReadJSON(&in); err != nil {
			return
		}
		switch in.Type {
		case typeQuery:
			c.handleQuery(in)
		case typePing:
			c.send(frame{Type: typePong, ID: in.ID})
		default:
			c.send(frame{Type: typeError, ID: in.ID, Error: string(svcerrors.KindBadRequest), Detail: "unknown message type"})
		}
	}
}

func (c *connection) handleQuery(in frame) {
	ctx := logging.WithTraceID(context.Background(), in.ID)

	lang, ok := resolveLanguage(in.Language)
	if !ok {
		c.send(frame{Type: typeError, ID: in.ID, Error: string(svcerrors.KindBadRequest), Detail: "unknown query language"})
		return
	}
	database := in.Database
	if database == "" {
		database = "default"
	}

	cur, err := c.adapter.state.Dispatcher.Dispatch(ctx, dispatch.Request{
		Database: database, Language: lang, Text: in.Query, Params: in.Params, DeadlineMS: in.DeadlineMS,
	})
	if err != nil {
		se := svcerrors.As(err)
		c.send(frame{Type: typeError, ID: in.ID, Error: string(se.Kind), Detail: se.Message})
		return
	}

	s := stream.NewDefault(cur)
	defer s.Close()
	for {
		batch, ok, err := s.NextBatch(ctx)
		if err != nil {
			se := svcerrors.As(err)
			c.send(frame{Type: typeError, ID: in.ID, Error: string(se.Kind), Detail: se.Message})
			return
		}
		if !ok {
			c.send(frame{Type: typeResult, ID: in.ID, Columns: s.Columns(), Done: true})
			return
		}
		rows := make([][]interface{}, 0, len(batch))
		for _, row := range batch {
			rows = append(rows, rowValues(row))
		}
		c.send(frame{Type: typeResult, ID: in.ID, Columns: s.Columns(), Rows: rows})
	}
}

func resolveLanguage(s string) (engine.Language, bool) {
	l, ok := languageAliases[s]
	return l, ok
}

// rowValues converts an engine row into plain JSON-encodable values.
func rowValues(row []engine.Value) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = valueToJSON(v)
	}
	return out
}

func valueToJSON(v engine.Value) interface{} {
	switch {
	case v.Null:
		return nil
	case v.Bool != nil:
		return *v.Bool
	case v.Int != nil:
		return *v.Int
	case v.Float != nil:
		return *v.Float
	case v.Str != nil:
		return *v.Str
	case v.Ident != nil:
		return *v.Ident
	case v.List != nil:
		out := make([]interface{}, len(v.List))
		for i, e := range v.List {
			out[i] = valueToJSON(e)
		}
		return out
	case v.Map != nil:
		out := make(map[string]interface{}, len(v.Map))
		for k, e := range v.Map {
			out[k] = valueToJSON(e)
		}
		return out
	case v.Node != nil:
		return v.Node
	case v.Edge != nil:
		return v.Edge
	default:
		return nil
	}
}
