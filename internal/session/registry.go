// Package session owns the live set of explicit transaction sessions
// (spec.md §4.2).
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"grafeodb/server/engine"
	svcerrors "grafeodb/server/internal/errors"
	"grafeodb/server/internal/logging"
)

// State is the session's monotonic lifecycle state.
type State int

const (
	StateOpen State = iota
	StateCommitted
	StateRolledBack
)

// Session is one explicit-transaction context.
type Session struct {
	ID         string
	Database   string
	Tx         engine.TxHandle
	CreatedAt  time.Time
	LastTouch  time.Time
	State      State

	mu sync.Mutex // serializes concurrent calls on this one session
}

// DatabaseLookup resolves a database name to its live engine handle. It is
// satisfied by a thin adapter over *dbmanager.Manager (internal/core), so
// this package never imports dbmanager (dbmanager has no need of sessions).
type DatabaseLookup interface {
	Get(name string) (Handle, error)
}

// Handle is the subset of dbmanager.Entry the registry needs.
type Handle interface {
	EngineHandle() engine.Handle
	IncrementSessions()
	DecrementSessions()
}

// Registry is the session store plus idle reaper.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ttl        time.Duration
	lookup     DatabaseLookup
	log        *logging.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	reaped   func() // callback for metrics, invoked once per reaped session
}

// Config configures a Registry.
type Config struct {
	TTL      time.Duration // default 5 minutes if zero
	Lookup   DatabaseLookup
	Log      *logging.Logger
	OnReaped func()
}

// New builds a Registry. Start must be called to launch the reaper.
func New(cfg Config) *Registry {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		lookup:   cfg.Lookup,
		log:      cfg.Log,
		stopCh:   make(chan struct{}),
		reaped:   cfg.OnReaped,
	}
}

func newSessionID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Begin opens a new session against database.
func (r *Registry) Begin(ctx context.Context, database string) (*Session, error) {
	h, err := r.lookup.Get(database)
	if err != nil {
		return nil, err
	}
	eh := h.EngineHandle()
	tx, err := eh.Begin(ctx)
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.KindInternal, "failed to begin transaction", err)
	}

	now := time.Now()
	s := &Session{ID: newSessionID(), Database: database, Tx: tx, CreatedAt: now, LastTouch: now, State: StateOpen}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	h.IncrementSessions()
	return s, nil
}

// Use locks and returns the session for id, enforcing at-most-one
// concurrent call (spec §4.2 "busy" / 409).
func (r *Registry) Use(id string) (*Session, func(), error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, svcerrors.NotFound("session not found")
	}
	if !s.mu.TryLock() {
		return nil, nil, svcerrors.Conflict("session is busy")
	}
	s.LastTouch = time.Now()
	release := func() { s.mu.Unlock() }
	return s, release, nil
}

// Commit finalizes and removes an open session.
func (r *Registry) Commit(ctx context.Context, id string) error {
	return r.finish(ctx, id, StateCommitted)
}

// Rollback finalizes and removes an open session via rollback.
func (r *Registry) Rollback(ctx context.Context, id string) error {
	return r.finish(ctx, id, StateRolledBack)
}

func (r *Registry) finish(ctx context.Context, id string, target State) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return svcerrors.NotFound("session not found")
	}
	if !s.mu.TryLock() {
		r.mu.Unlock()
		return svcerrors.Conflict("session is busy")
	}
	delete(r.sessions, id)
	r.mu.Unlock()
	defer s.mu.Unlock()

	s.State = target
	return r.finalizeTx(ctx, s, target, true)
}

// finalizeTx performs the actual engine commit/rollback, retrying once on
// failure when allowRetry is set (spec §4.2: "partial roll-back is retried
// once then logged").
func (r *Registry) finalizeTx(ctx context.Context, s *Session, target State, allowRetry bool) error {
	h, err := r.lookup.Get(s.Database)
	if err != nil {
		return nil // database already gone; nothing left to finalize
	}
	eh := h.EngineHandle()

	var opErr error
	if target == StateCommitted {
		opErr = eh.Commit(ctx, s.Tx)
	} else {
		opErr = eh.Rollback(ctx, s.Tx)
	}
	h.DecrementSessions()

	if opErr != nil && allowRetry {
		if r.log != nil {
			r.log.Warnf("session %s: %v finalize failed, retrying once: %v", s.ID, target, opErr)
		}
		return r.finalizeTx(ctx, s, target, false)
	}
	if opErr != nil {
		if r.log != nil {
			r.log.Errorf("session %s: %v finalize failed after retry: %v", s.ID, target, opErr)
		}
		return svcerrors.Wrap(svcerrors.KindInternal, "transaction finalize failed", opErr)
	}
	return nil
}

// Size returns the number of currently open sessions.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Name implements service.Service.
func (r *Registry) Name() string { return "session-reaper" }

// Start launches the reaper goroutine at a fixed interval.
func (r *Registry) Start(ctx context.Context) error {
	interval := r.ttl / 5
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	if interval <= 0 {
		interval = time.Second
	}
	go r.reapLoop(interval)
	return nil
}

// Stop halts the reaper goroutine.
func (r *Registry) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stopCh) })
	return nil
}

func (r *Registry) reapLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.reapOnce()
		}
	}
}

func (r *Registry) reapOnce() {
	cutoff := time.Now().Add(-r.ttl)

	r.mu.RLock()
	var expired []string
	for id, s := range r.sessions {
		if s.LastTouch.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range expired {
		ctx := context.Background()
		if err := r.Rollback(ctx, id); err != nil {
			if r.log != nil {
				r.log.Errorf("session reaper: rollback of %s failed: %v", id, err)
			}
			continue
		}
		if r.reaped != nil {
			r.reaped()
		}
	}
}
