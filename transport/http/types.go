package http

import (
	"grafeodb/server/engine"
)

// queryRequestBody is the JSON body of POST /query and its per-language
// sugar routes (spec.md §6 "HTTP surface").
type queryRequestBody struct {
	Query      string                 `json:"query"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Language   string                 `json:"language,omitempty"`
	Database   string                 `json:"database,omitempty"`
	DeadlineMS int64                  `json:"deadline_ms,omitempty"`
}

// batchRequestBody is the body of POST /batch.
type batchRequestBody struct {
	Database string             `json:"database,omitempty"`
	Queries  []queryRequestBody `json:"queries"`
}

type createDBRequestBody struct {
	Name        string         `json:"name"`
	Kind        string         `json:"kind,omitempty"`
	Persistent  bool           `json:"persistent,omitempty"`
	Options     optionsBody    `json:"options,omitempty"`
	Schema      string         `json:"schema,omitempty"`
}

type optionsBody struct {
	MemoryLimitBytes int64  `json:"memory_limit_bytes,omitempty"`
	Durability       string `json:"durability,omitempty"`
	ReverseEdgeIndex bool   `json:"reverse_edge_index,omitempty"`
	WorkerCount      int    `json:"worker_count,omitempty"`
	SpillDirectory   string `json:"spill_directory,omitempty"`
}

func (o optionsBody) toEngineOptions() engine.Options {
	return engine.Options{
		MemoryLimitBytes: o.MemoryLimitBytes,
		Durability:       o.Durability,
		ReverseEdgeIndex: o.ReverseEdgeIndex,
		WorkerCount:      o.WorkerCount,
		SpillDirectory:   o.SpillDirectory,
	}
}

type dbSummaryBody struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Persistent bool   `json:"persistent"`
	Broken     bool   `json:"broken"`
	Nodes      int64  `json:"nodes"`
	Edges      int64  `json:"edges"`
}

type errorBody struct {
	Error  string                 `json:"error"`
	Detail string                 `json:"detail"`
	Extra  map[string]interface{} `json:"extra,omitempty"`
}

type txBeginResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
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
