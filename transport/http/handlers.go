// Package http implements the REST adapter over gorilla/mux (spec.md §6
// "HTTP surface (produced)").
package http

import (
	"encoding/json"
	nethttp "net/http"
	"strconv"

	"github.com/gorilla/mux"

	"grafeodb/server/engine"
	"grafeodb/server/internal/core"
	"grafeodb/server/internal/dispatch"
	svcerrors "grafeodb/server/internal/errors"
)

const sessionHeader = "X-Session-Id"

type handlers struct {
	state *core.State
}

func (h *handlers) resolveLanguage(explicit, fallback string) (engine.Language, error) {
	key := explicit
	if key == "" {
		key = fallback
	}
	lang, ok := languageAliases[key]
	if !ok {
		return "", svcerrors.New(svcerrors.KindBadRequest, "unknown query language: "+key)
	}
	return lang, nil
}

func decodeBody(r *nethttp.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return svcerrors.Wrap(svcerrors.KindBadRequest, "malformed JSON body", err)
	}
	return nil
}

// handleQuery serves POST /query and its per-language sugar routes.
func (h *handlers) handleQuery(langHint string) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var body queryRequestBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, err)
			return
		}
		lang, err := h.resolveLanguage(body.Language, langHint)
		if err != nil {
			writeError(w, err)
			return
		}
		database := body.Database
		if database == "" {
			database = "default"
		}

		req := dispatch.Request{Database: database, Language: lang, Text: body.Query, Params: body.Params, DeadlineMS: body.DeadlineMS}
		cur, err := h.state.Dispatcher.Dispatch(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		_ = writeQueryResult(r.Context(), w, cur, 1000)
	}
}

// handleBatch serves POST /batch.
func (h *handlers) handleBatch(w nethttp.ResponseWriter, r *nethttp.Request) {
	var body batchRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	database := body.Database
	if database == "" {
		database = "default"
	}

	items := make([]dispatch.BatchItem, 0, len(body.Queries))
	for _, q := range body.Queries {
		lang, err := h.resolveLanguage(q.Language, "")
		if err != nil {
			writeError(w, err)
			return
		}
		items = append(items, dispatch.BatchItem{Language: lang, Text: q.Query, Params: q.Params})
	}

	results, err := h.state.Dispatcher.Batch(r.Context(), database, items)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(results))
	for _, res := range results {
		rows := make([][]interface{}, 0, len(res.Rows))
		for _, row := range res.Rows {
			rows = append(rows, rowToJSON(row))
		}
		out = append(out, map[string]interface{}{"columns": res.Columns, "rows": rows})
	}
	writeJSON(w, nethttp.StatusOK, map[string]interface{}{"results": out})
}

// --- transaction endpoints ---------------------------------------------

func (h *handlers) handleTxBegin(w nethttp.ResponseWriter, r *nethttp.Request) {
	var body struct {
		Database string `json:"database"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	database := body.Database
	if database == "" {
		database = "default"
	}

	s, err := h.state.Sessions.Begin(r.Context(), database)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nethttp.StatusOK, txBeginResponse{SessionID: s.ID, Status: "open"})
}

func (h *handlers) handleTxQuery(w nethttp.ResponseWriter, r *nethttp.Request) {
	id := r.Header.Get(sessionHeader)
	if id == "" {
		writeError(w, svcerrors.BadRequest("missing "+sessionHeader+" header"))
		return
	}
	var body queryRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	lang, err := h.resolveLanguage(body.Language, "")
	if err != nil {
		writeError(w, err)
		return
	}

	s, release, err := h.state.Sessions.Use(id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer release()

	entry, err := h.state.DB.Get(s.Database)
	if err != nil {
		writeError(w, err)
		return
	}

	cur, err := h.state.Dispatcher.Dispatch(r.Context(), dispatch.Request{
		Database:   s.Database,
		Session:    entry,
		SessionTx:  s.Tx,
		Language:   lang,
		Text:       body.Query,
		Params:     body.Params,
		DeadlineMS: body.DeadlineMS,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	_ = writeQueryResult(r.Context(), w, cur, 1000)
}

func (h *handlers) handleTxCommit(w nethttp.ResponseWriter, r *nethttp.Request) {
	id := r.Header.Get(sessionHeader)
	if err := h.state.Sessions.Commit(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nethttp.StatusOK, map[string]string{"status": "committed"})
}

func (h *handlers) handleTxRollback(w nethttp.ResponseWriter, r *nethttp.Request) {
	id := r.Header.Get(sessionHeader)
	if err := h.state.Sessions.Rollback(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nethttp.StatusOK, map[string]string{"status": "rolled_back"})
}

// --- database admin endpoints -------------------------------------------

func (h *handlers) handleListDB(w nethttp.ResponseWriter, r *nethttp.Request) {
	summaries := h.state.DB.List(r.Context())
	out := make([]dbSummaryBody, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, dbSummaryBody{
			Name: s.Name, Kind: string(s.Kind), Persistent: s.Persistent, Broken: s.Broken,
			Nodes: s.Stats.Nodes, Edges: s.Stats.Edges,
		})
	}
	writeJSON(w, nethttp.StatusOK, out)
}

func (h *handlers) handleCreateDB(w nethttp.ResponseWriter, r *nethttp.Request) {
	var body createDBRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	kind := engine.KindPropertyGraph
	if body.Kind != "" {
		kind = engine.Kind(body.Kind)
	}
	mode := engine.StorageInMemory
	if body.Persistent {
		mode = engine.StoragePersistent
	}

	summary, err := h.state.DB.Create(r.Context(), body.Name, kind, mode, body.Options.toEngineOptions(), body.Schema)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nethttp.StatusOK, dbSummaryBody{
		Name: summary.Name, Kind: string(summary.Kind), Persistent: summary.Persistent,
		Nodes: summary.Stats.Nodes, Edges: summary.Stats.Edges,
	})
}

func (h *handlers) handleGetDB(w nethttp.ResponseWriter, r *nethttp.Request) {
	name := mux.Vars(r)["name"]
	info, err := h.state.DB.Info(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nethttp.StatusOK, map[string]interface{}{
		"name": name, "kind": string(info.Kind), "mode": string(info.Mode), "detail": info.Detail,
	})
}

func (h *handlers) handleDeleteDB(w nethttp.ResponseWriter, r *nethttp.Request) {
	name := mux.Vars(r)["name"]
	if err := h.state.DB.Delete(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(nethttp.StatusNoContent)
}

func (h *handlers) handleDBStats(w nethttp.ResponseWriter, r *nethttp.Request) {
	name := mux.Vars(r)["name"]
	stats, err := h.state.DB.Stats(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nethttp.StatusOK, stats)
}

func (h *handlers) handleDBSchema(w nethttp.ResponseWriter, r *nethttp.Request) {
	name := mux.Vars(r)["name"]
	schema, err := h.state.DB.Schema(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, nethttp.StatusOK, map[string]string{"schema": schema})
}

// --- system endpoints ----------------------------------------------------

func (h *handlers) handleResources(w nethttp.ResponseWriter, r *nethttp.Request) {
	inv := h.state.Resources.Snapshot()
	writeJSON(w, nethttp.StatusOK, map[string]interface{}{
		"total_memory_bytes":     inv.TotalMemoryBytes,
		"allocated_memory_bytes": inv.AllocatedMemoryBytes,
		"free_disk_bytes":        inv.FreeDiskBytes,
		"persistent_available":   inv.PersistentAvailable,
		"supported_kinds":        inv.SupportedKinds,
		"updated_at":             inv.UpdatedAt,
		"warnings":               inv.Warnings,
	})
}

func (h *handlers) handleHealth(w nethttp.ResponseWriter, r *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleOpenAPI(w nethttp.ResponseWriter, r *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, openAPIDocument())
}

func (h *handlers) handleRoot(w nethttp.ResponseWriter, r *nethttp.Request) {
	uiRoot := h.state.Config.UIRoot
	if uiRoot == "" {
		uiRoot = "/ui/"
	}
	nethttp.Redirect(w, r, uiRoot, nethttp.StatusPermanentRedirect)
}

func parseIntQuery(r *nethttp.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
