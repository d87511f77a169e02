// Package wire implements the binary wire adapter (spec.md §6 "Binary
// wire surface"): a length-prefixed, frame-typed protocol over net.Conn
// carrying a session handshake, per-request frames, and a streamed
// header/batch.../summary response envelope (spec §4.4). This is not a
// protoc-generated gRPC codec — see DESIGN.md for why a hand-rolled
// framing was chosen instead over this pack's corpus.
package wire

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"

	"grafeodb/server/engine"
	"grafeodb/server/internal/auth"
	"grafeodb/server/internal/core"
	"grafeodb/server/internal/dispatch"
	svcerrors "grafeodb/server/internal/errors"
	"grafeodb/server/internal/service"
	"grafeodb/server/internal/stream"
)

// frameType tags each frame on the wire.
type frameType uint8

const (
	frameHandshake frameType = iota + 1
	frameHandshakeAck
	frameRequest
	frameHeader
	frameBatch
	frameSummary
	frameError
)

const maxFrameBytes = 64 << 20 // 64MiB guards against a corrupt length prefix

// handshakePayload carries credentials and an optional default database.
type handshakePayload struct {
	BearerToken string `json:"bearer_token,omitempty"`
	APIKey      string `json:"api_key,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	Database    string `json:"database,omitempty"`
}

// requestPayload is one per-request frame (spec §6: "execute, begin,
// commit, rollback, list/create/delete database").
type requestPayload struct {
	Op         string                 `json:"op"`
	Database   string                 `json:"database,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	Language   string                 `json:"language,omitempty"`
	Query      string                 `json:"query,omitempty"`
	Params     map[string]interface{} `json:"params,omitempty"`
	DeadlineMS int64                  `json:"deadline_ms,omitempty"`
	Kind       string                 `json:"kind,omitempty"`
	Persistent bool                   `json:"persistent,omitempty"`
}

type headerPayload struct {
	Columns []string `json:"columns"`
}

type batchPayload struct {
	Rows [][]interface{} `json:"rows"`
}

type summaryPayload struct {
	ExecutionTimeMS int64  `json:"execution_time_ms"`
	RowsScanned     int64  `json:"rows_scanned"`
	SessionID       string `json:"session_id,omitempty"`
	Status          string `json:"status,omitempty"`
}

type errorPayload struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

var languageAliases = map[string]engine.Language{
	"":        engine.LanguageGQL,
	"gql":     engine.LanguageGQL,
	"cypher":  engine.LanguageCypher,
	"graphql": engine.LanguageGraphQL,
	"gremlin": engine.LanguageGremlin,
	"sparql":  engine.LanguageSPARQL,
	"sql":     engine.LanguageSQLPGQ,
}

// Adapter is the binary wire transport, implementing service.Service. It
// owns its own TCP listener rather than sharing the HTTP adapter's port.
type Adapter struct {
	state    *core.State
	addr     string
	listener net.Listener
}

// New builds the wire adapter listening on addr (e.g. ":9090").
func New(state *core.State, addr string) *Adapter {
	return &Adapter{state: state, addr: addr}
}

func (a *Adapter) Name() string { return "wire-adapter" }

func (a *Adapter) Descriptor() service.Descriptor {
	return service.Descriptor{Name: a.Name(), Layer: service.LayerIngress}
}

func (a *Adapter) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("wire adapter: listen: %w", err)
	}
	a.listener = ln
	go a.acceptLoop()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	if a.listener == nil {
		return nil
	}
	return a.listener.Close()
}

func (a *Adapter) acceptLoop() {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			return // listener closed during shutdown
		}
		go a.serveConn(conn)
	}
}

func (a *Adapter) serveConn(conn net.Conn) {
	defer conn.Close()
	c := &session{adapter: a, conn: conn, r: bufio.NewReader(conn)}
	if err := c.handshake(); err != nil {
		_ = c.writeFrame(frameError, errorPayload{Error: string(svcerrors.KindUnauthorized), Detail: err.Error()})
		return
	}
	for {
		req, err := c.readRequest()
		if err != nil {
			return
		}
		c.handle(req)
	}
}

type session struct {
	adapter  *Adapter
	conn     net.Conn
	r        *bufio.Reader
	database string
}

func readFrame(r *bufio.Reader) (frameType, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return 0, nil, fmt.Errorf("wire: frame too large (%d bytes)", n)
	}
	typeAndBody := make([]byte, n)
	if _, err := io.ReadFull(r, typeAndBody); err != nil {
		return 0, nil, err
	}
	if len(typeAndBody) < 1 {
		return 0, nil, fmt.Errorf("wire: empty frame")
	}
	return frameType(typeAndBody[0]), typeAndBody[1:], nil
}

func (s *session) writeFrame(t frameType, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	full := make([]byte, 4+1+len(body))
	binary.BigEndian.PutUint32(full[0:4], uint32(1+len(body)))
	full[4] = byte(t)
	copy(full[5:], body)
	_, err = s.conn.Write(full)
	return err
}

func (s *session) handshake() error {
	typ, body, err := readFrame(s.r)
	if err != nil {
		return err
	}
	if typ != frameHandshake {
		return fmt.Errorf("wire: expected handshake frame, got %d", typ)
	}
	var hp handshakePayload
	if err := json.Unmarshal(body, &hp); err != nil {
		return fmt.Errorf("wire: malformed handshake: %w", err)
	}

	if s.adapter.state.Auth.Enabled() {
		cred := auth.Credential{BearerToken: hp.BearerToken, APIKey: hp.APIKey, Username: hp.Username, Password: hp.Password}
		if err := s.adapter.state.Auth.Verify(cred); err != nil {
			return err
		}
	}

	s.database = hp.Database
	if s.database == "" {
		s.database = "default"
	}
	return s.writeFrame(frameHandshakeAck, summaryPayload{Status: "ok"})
}

func (s *session) readRequest() (requestPayload, error) {
	typ, body, err := readFrame(s.r)
	if err != nil {
		return requestPayload{}, err
	}
	if typ != frameRequest {
		return requestPayload{}, fmt.Errorf("wire: expected request frame, got %d", typ)
	}
	var rp requestPayload
	if err := json.Unmarshal(body, &rp); err != nil {
		return requestPayload{}, fmt.Errorf("wire: malformed request: %w", err)
	}
	return rp, nil
}

func (s *session) handle(req requestPayload) {
	ctx := context.Background()
	database := req.Database
	if database == "" {
		database = s.database
	}

	switch req.Op {
	case "execute":
		s.handleExecute(ctx, database, req)
	case "begin":
		s.handleBegin(ctx, database)
	case "commit":
		s.handleCommit(ctx, req.SessionID)
	case "rollback":
		s.handleRollback(ctx, req.SessionID)
	case "list_db":
		s.handleListDB(ctx)
	case "create_db":
		s.handleCreateDB(ctx, req)
	case "delete_db":
		s.handleDeleteDB(ctx, database)
	default:
		_ = s.writeFrame(frameError, errorPayload{Error: string(svcerrors.KindBadRequest), Detail: "unknown op " + req.Op})
	}
}

func (s *session) handleExecute(ctx context.Context, database string, req requestPayload) {
	lang, ok := languageAliases[req.Language]
	if !ok {
		_ = s.writeFrame(frameError, errorPayload{Error: string(svcerrors.KindBadRequest), Detail: "unknown language"})
		return
	}

	dreq := dispatch.Request{Language: lang, Text: req.Query, Params: req.Params, DeadlineMS: req.DeadlineMS}
	if req.SessionID != "" {
		sess, release, err := s.adapter.state.Sessions.Use(req.SessionID)
		if err != nil {
			s.sendError(err)
			return
		}
		defer release()
		entry, err := s.adapter.state.DB.Get(sess.Database)
		if err != nil {
			s.sendError(err)
			return
		}
		dreq.Session = entry
		dreq.SessionTx = sess.Tx
	} else {
		dreq.Database = database
	}

	cur, err := s.adapter.state.Dispatcher.Dispatch(ctx, dreq)
	if err != nil {
		s.sendError(err)
		return
	}
	s.streamResult(ctx, cur)
}

// streamResult emits the header / batch... / summary envelope described in
// spec §4.4, identical regardless of result size (S6: 2500 rows → two
// 1000-row batches and one 500-row batch).
func (s *session) streamResult(ctx context.Context, cur engine.Cursor) {
	st := stream.NewDefault(cur)
	defer st.Close()

	if err := s.writeFrame(frameHeader, headerPayload{Columns: st.Columns()}); err != nil {
		return
	}

	for {
		batch, ok, err := st.NextBatch(ctx)
		if err != nil {
			s.sendError(err)
			return
		}
		if !ok {
			break
		}
		rows := make([][]interface{}, 0, len(batch))
		for _, row := range batch {
			rows = append(rows, rowValues(row))
		}
		if err := s.writeFrame(frameBatch, batchPayload{Rows: rows}); err != nil {
			return
		}
	}

	_ = s.writeFrame(frameSummary, summaryPayload{
		ExecutionTimeMS: st.ExecutionTime().Milliseconds(),
		RowsScanned:     st.RowsScanned(),
	})
}

func (s *session) handleBegin(ctx context.Context, database string) {
	sess, err := s.adapter.state.Sessions.Begin(ctx, database)
	if err != nil {
		s.sendError(err)
		return
	}
	_ = s.writeFrame(frameSummary, summaryPayload{SessionID: sess.ID, Status: "open"})
}

func (s *session) handleCommit(ctx context.Context, id string) {
	if err := s.adapter.state.Sessions.Commit(ctx, id); err != nil {
		s.sendError(err)
		return
	}
	_ = s.writeFrame(frameSummary, summaryPayload{Status: "committed"})
}

func (s *session) handleRollback(ctx context.Context, id string) {
	if err := s.adapter.state.Sessions.Rollback(ctx, id); err != nil {
		s.sendError(err)
		return
	}
	_ = s.writeFrame(frameSummary, summaryPayload{Status: "rolled_back"})
}

func (s *session) handleListDB(ctx context.Context) {
	summaries := s.adapter.state.DB.List(ctx)
	rows := make([][]interface{}, 0, len(summaries))
	for _, sm := range summaries {
		rows = append(rows, []interface{}{sm.Name, string(sm.Kind), sm.Persistent, sm.Broken})
	}
	_ = s.writeFrame(frameHeader, headerPayload{Columns: []string{"name", "kind", "persistent", "broken"}})
	_ = s.writeFrame(frameBatch, batchPayload{Rows: rows})
	_ = s.writeFrame(frameSummary, summaryPayload{RowsScanned: int64(len(rows))})
}

func (s *session) handleCreateDB(ctx context.Context, req requestPayload) {
	kind := engine.KindPropertyGraph
	if req.Kind != "" {
		kind = engine.Kind(req.Kind)
	}
	mode := engine.StorageInMemory
	if req.Persistent {
		mode = engine.StoragePersistent
	}
	_, err := s.adapter.state.DB.Create(ctx, req.Database, kind, mode, engine.Options{}, "")
	if err != nil {
		s.sendError(err)
		return
	}
	_ = s.writeFrame(frameSummary, summaryPayload{Status: "created"})
}

func (s *session) handleDeleteDB(ctx context.Context, database string) {
	if err := s.adapter.state.DB.Delete(ctx, database); err != nil {
		s.sendError(err)
		return
	}
	_ = s.writeFrame(frameSummary, summaryPayload{Status: "deleted"})
}

func (s *session) sendError(err error) {
	se := svcerrors.As(err)
	_ = s.writeFrame(frameError, errorPayload{Error: string(se.Kind), Detail: se.Message})
}

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
