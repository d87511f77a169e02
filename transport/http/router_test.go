package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"grafeodb/server/engine/memgraph"
	"grafeodb/server/internal/config"
	"grafeodb/server/internal/core"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	st, err := core.New(config.Config{WorkerCount: 4, RateLimit: 1000}, core.WithEngine(memgraph.New()))
	require.NoError(t, err)
	require.NoError(t, st.Start(context.Background()))
	t.Cleanup(func() { st.Stop(context.Background()) })
	return New(st)
}

func TestHealthEndpoint(t *testing.T) {
	a := newTestAdapter(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	a.Router().ServeHTTP(rr, req)
	require.Equal(t, 200, rr.Code)
}

func TestQueryEndpointInsertThenMatch(t *testing.T) {
	a := newTestAdapter(t)

	insertBody, _ := json.Marshal(queryRequestBody{Query: "INSERT (:Widget {color:'red'})"})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/query", bytes.NewReader(insertBody))
	a.Router().ServeHTTP(rr, req)
	require.Equal(t, 200, rr.Code)

	matchBody, _ := json.Marshal(queryRequestBody{Query: "MATCH (w:Widget) RETURN w.color"})
	rr = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/query", bytes.NewReader(matchBody))
	a.Router().ServeHTTP(rr, req)
	require.Equal(t, 200, rr.Code)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	rows, ok := out["rows"].([]interface{})
	require.True(t, ok)
	require.Len(t, rows, 1)
}

func TestListDatabasesIncludesDefault(t *testing.T) {
	a := newTestAdapter(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/db", nil)
	a.Router().ServeHTTP(rr, req)
	require.Equal(t, 200, rr.Code)

	var out []dbSummaryBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	found := false
	for _, s := range out {
		if s.Name == "default" {
			found = true
		}
	}
	require.True(t, found)
}

func TestUnknownLanguageReturnsBadRequest(t *testing.T) {
	a := newTestAdapter(t)
	body, _ := json.Marshal(queryRequestBody{Query: "RETURN 1", Language: "cobol"})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/query", bytes.NewReader(body))
	a.Router().ServeHTTP(rr, req)
	require.Equal(t, 400, rr.Code)
}
