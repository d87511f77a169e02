// Package engine defines the contract the core assumes of an embeddable
// graph engine (spec §6 "Engine contract (consumed)"). The engine itself —
// parsing, planning, execution, storage, WAL, indexes — is out of scope; a
// reference in-memory implementation lives in engine/memgraph for tests.
package engine

import (
	"context"
	"time"
)

// Language identifies a query language the dispatcher can route to.
type Language string

const (
	LanguageGQL      Language = "gql"
	LanguageCypher   Language = "cypher"
	LanguageGraphQL  Language = "graphql"
	LanguageGremlin  Language = "gremlin"
	LanguageSPARQL   Language = "sparql"
	LanguageSQLPGQ   Language = "sqlpgq"
)

// Kind is a supported database kind (spec §3 "Database entry").
type Kind string

const (
	KindPropertyGraph       Kind = "property_graph"
	KindRDFTripleStore      Kind = "rdf_triple_store"
	KindSchemaPropertyGraph Kind = "schema_property_graph"
	KindSchemaRDF           Kind = "schema_rdf"
)

// StorageMode is in-memory vs persistent.
type StorageMode string

const (
	StorageInMemory   StorageMode = "in_memory"
	StoragePersistent StorageMode = "persistent"
)

// Options are the creation-time parameters for a new database (spec §3).
type Options struct {
	MemoryLimitBytes   int64
	Durability         string // e.g. "sync", "async", "none"
	ReverseEdgeIndex   bool
	WorkerCount        int
	SpillDirectory     string
}

// Value is a single cell of the engine's value domain.
type Value struct {
	Null    bool
	Bool    *bool
	Int     *int64
	Float   *float64
	Str     *string
	List    []Value
	Map     map[string]Value
	Ident   *string // identity value
	Node    map[string]interface{} // node snapshot
	Edge    map[string]interface{} // edge snapshot
}

// Stats mirrors the counters named in spec §3.
type Stats struct {
	Nodes       int64
	Edges       int64
	Labels      int64
	EdgeTypes   int64
	PropertyKeys int64
	Indexes     int64
	MemoryBytes int64
	DiskBytes   int64
}

// Cursor is a lazy, finite, non-restartable sequence of row tuples.
type Cursor interface {
	Columns() []string
	// Next returns the next row, or ok=false when exhausted.
	Next(ctx context.Context) (row []Value, ok bool, err error)
	ExecutionTime() time.Duration
	RowsScanned() int64
	Close() error
}

// TxHandle is an opaque engine transaction handle pinned across dispatcher
// calls for the lifetime of a session.
type TxHandle interface {
	ID() string
}

// Handle is a live engine instance for one database entry. The database
// manager is the sole owner of Handles; everything else reaches the engine
// through keyed lookups.
type Handle interface {
	Name() string
	Kind() Kind
	Mode() StorageMode
	Options() Options

	// Execute runs one statement outside any explicit transaction
	// (auto-commit). Cancelling ctx requests cooperative cancellation.
	Execute(ctx context.Context, lang Language, text string, params map[string]interface{}) (Cursor, error)

	// Begin starts an explicit transaction and returns its handle.
	Begin(ctx context.Context) (TxHandle, error)
	// ExecuteTx runs one statement against an open transaction.
	ExecuteTx(ctx context.Context, tx TxHandle, lang Language, text string, params map[string]interface{}) (Cursor, error)
	Commit(ctx context.Context, tx TxHandle) error
	Rollback(ctx context.Context, tx TxHandle) error

	Stats(ctx context.Context) (Stats, error)
	Schema(ctx context.Context) (string, error)
	Info(ctx context.Context) (map[string]interface{}, error)

	// Close flushes and releases the engine's resources. Idempotent.
	Close(ctx context.Context) error
}

// Engine opens and closes Handles. A real engine binding implements this
// against its native library; engine/memgraph implements it in pure Go for
// tests and as a development fallback.
type Engine interface {
	// Open instantiates a new handle. path is empty for in-memory storage.
	Open(ctx context.Context, name string, kind Kind, mode StorageMode, path string, opts Options, schema string) (Handle, error)

	// SupportsKind reports whether this build can open the given kind.
	SupportsKind(k Kind) bool
	// SupportsPersistent reports whether persistent storage mode is available.
	SupportsPersistent() bool
}
