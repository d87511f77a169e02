// Package dispatch routes (database, language) queries to the engine,
// enforces deadlines, and isolates blocking engine calls on a bounded
// worker pool (spec.md §4.3).
package dispatch

import (
	"context"
	"fmt"
	"time"

	"grafeodb/server/engine"
	"grafeodb/server/engine/memgraph"
	svcerrors "grafeodb/server/internal/errors"
	"grafeodb/server/internal/metrics"
)

// DatabaseLookup resolves a database name to its engine handle.
type DatabaseLookup interface {
	Get(name string) (EngineHandleProvider, error)
}

// EngineHandleProvider exposes the raw engine handle backing a database
// entry or an open session.
type EngineHandleProvider interface {
	EngineHandle() engine.Handle
}

// Request is the logical query request described in spec.md §3.
type Request struct {
	Database   string
	Session    EngineHandleProvider // non-nil for in-transaction dispatch
	SessionTx  engine.TxHandle
	Language   engine.Language
	Text       string
	Params     map[string]interface{}
	DeadlineMS int64
}

// Dispatcher resolves requests to engine calls through a bounded
// blocking-worker pool.
type Dispatcher struct {
	lookup         DatabaseLookup
	defaultDeadline time.Duration
	admissionWait  time.Duration
	metrics        *metrics.Metrics

	sem chan struct{} // bounds concurrent blocking-worker usage
}

// Config configures a Dispatcher.
type Config struct {
	Lookup          DatabaseLookup
	WorkerCount     int           // pool size; default 16
	DefaultDeadline time.Duration // used when a call carries no per-call deadline
	AdmissionWait   time.Duration // default 2s, per SPEC_FULL §5
	Metrics         *metrics.Metrics
}

// New builds a Dispatcher.
func New(cfg Config) *Dispatcher {
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 16
	}
	admission := cfg.AdmissionWait
	if admission <= 0 {
		admission = 2 * time.Second
	}
	return &Dispatcher{
		lookup:          cfg.Lookup,
		defaultDeadline: cfg.DefaultDeadline,
		admissionWait:   admission,
		metrics:         cfg.Metrics,
		sem:             make(chan struct{}, workers),
	}
}

var supportedLanguages = map[engine.Language]bool{
	engine.LanguageGQL:     true,
	engine.LanguageCypher:  true,
	engine.LanguageGraphQL: true,
	engine.LanguageGremlin: true,
	engine.LanguageSPARQL:  true,
	engine.LanguageSQLPGQ:  true,
}

// Dispatch resolves req, submits it to the blocking-worker pool with a
// deadline, and returns the resulting cursor.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (engine.Cursor, error) {
	if !supportedLanguages[req.Language] {
		return nil, svcerrors.New(svcerrors.KindBadRequest, fmt.Sprintf("unsupported query language %q", req.Language))
	}

	var eh engine.Handle
	if req.Session != nil {
		eh = req.Session.EngineHandle()
	} else {
		provider, err := d.lookup.Get(req.Database)
		if err != nil {
			return nil, err
		}
		eh = provider.EngineHandle()
	}

	deadline := d.resolveDeadline(req.DeadlineMS)

	callCtx := ctx
	var cancel context.CancelFunc
	if deadline > 0 {
		callCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	if err := d.acquire(callCtx); err != nil {
		return nil, svcerrors.Overloaded("blocking-worker pool saturated")
	}
	defer d.release()

	start := time.Now()
	cur, err := d.execute(callCtx, eh, req)
	elapsed := time.Since(start)

	if d.metrics != nil {
		d.metrics.QueryDuration.WithLabelValues(req.Database, string(req.Language)).Observe(elapsed.Seconds())
	}

	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			if d.metrics != nil {
				d.metrics.QueryErrors.WithLabelValues(req.Database, string(svcerrors.KindTimeout)).Inc()
			}
			return nil, svcerrors.Timeout("query exceeded its deadline")
		}
		kind := svcerrors.KindInternal
		if memgraph.IsParseError(err) {
			kind = svcerrors.KindBadRequest
		}
		if d.metrics != nil {
			d.metrics.QueryErrors.WithLabelValues(req.Database, string(kind)).Inc()
		}
		return nil, svcerrors.Wrap(kind, "query execution failed", err)
	}
	return cur, nil
}

func (d *Dispatcher) execute(ctx context.Context, eh engine.Handle, req Request) (engine.Cursor, error) {
	if req.SessionTx != nil {
		return eh.ExecuteTx(ctx, req.SessionTx, req.Language, req.Text, req.Params)
	}
	return eh.Execute(ctx, req.Language, req.Text, req.Params)
}

func (d *Dispatcher) resolveDeadline(perCallMS int64) time.Duration {
	if perCallMS > 0 {
		return time.Duration(perCallMS) * time.Millisecond
	}
	return d.defaultDeadline
}

func (d *Dispatcher) acquire(ctx context.Context) error {
	select {
	case d.sem <- struct{}{}:
		return nil
	default:
	}
	timer := time.NewTimer(d.admissionWait)
	defer timer.Stop()
	select {
	case d.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("dispatch: admission timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) release() { <-d.sem }

// BatchItem is one statement within an atomic batch.
type BatchItem struct {
	Language engine.Language
	Text     string
	Params   map[string]interface{}
}

// BatchResult holds the materialized rows for one batch item.
type BatchResult struct {
	Columns []string
	Rows    [][]engine.Value
}

// Batch executes items against database within a single implicit
// transaction: begin, execute each, commit on all success, rollback on any
// failure (spec §4.3 "Batch dispatch").
func (d *Dispatcher) Batch(ctx context.Context, database string, items []BatchItem) ([]BatchResult, error) {
	provider, err := d.lookup.Get(database)
	if err != nil {
		return nil, err
	}
	eh := provider.EngineHandle()

	tx, err := eh.Begin(ctx)
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.KindInternal, "failed to begin batch transaction", err)
	}

	results := make([]BatchResult, 0, len(items))
	for _, item := range items {
		cur, err := eh.ExecuteTx(ctx, tx, item.Language, item.Text, item.Params)
		if err != nil {
			_ = eh.Rollback(ctx, tx)
			kind := svcerrors.KindInternal
			if memgraph.IsParseError(err) {
				kind = svcerrors.KindBadRequest
			}
			return nil, svcerrors.Wrap(kind, "batch item failed", err)
		}
		br, err := materialize(ctx, cur)
		if err != nil {
			_ = eh.Rollback(ctx, tx)
			return nil, svcerrors.Wrap(svcerrors.KindInternal, "failed to read batch item results", err)
		}
		results = append(results, br)
	}

	if err := eh.Commit(ctx, tx); err != nil {
		return nil, svcerrors.Wrap(svcerrors.KindInternal, "batch commit failed", err)
	}
	return results, nil
}

func materialize(ctx context.Context, cur engine.Cursor) (BatchResult, error) {
	defer cur.Close()
	br := BatchResult{Columns: cur.Columns()}
	for {
		row, ok, err := cur.Next(ctx)
		if err != nil {
			return br, err
		}
		if !ok {
			break
		}
		br.Rows = append(br.Rows, row)
	}
	return br, nil
}

