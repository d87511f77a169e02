// Package dbmanager owns the only authoritative name → live engine handle
// mapping (spec.md §4.1).
package dbmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	svcerrors "grafeodb/server/internal/errors"
	"grafeodb/server/internal/logging"
	"grafeodb/server/internal/resources"

	"grafeodb/server/engine"
)

// DefaultName is the always-present, non-deletable database entry.
const DefaultName = "default"

var nameRE = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

const metaFileName = "meta.json"

// meta is the on-disk persisted metadata record (spec §6 "Persisted state
// layout"), written with encoding/json — see DESIGN.md for why this one
// narrow record stays on the stdlib codec rather than an ecosystem library.
type meta struct {
	Kind      engine.Kind        `json:"kind"`
	Mode      engine.StorageMode `json:"storage_mode"`
	Options   engine.Options     `json:"options"`
	Schema    string             `json:"schema,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// Entry is one live (or broken) database registration.
type Entry struct {
	Name      string
	Kind      engine.Kind
	Mode      engine.StorageMode
	Options   engine.Options
	Schema    string
	Handle    engine.Handle
	CreatedAt time.Time
	Broken    bool

	activeSessions int64
}

// Summary is the list()/create() response shape.
type Summary struct {
	Name       string
	Kind       engine.Kind
	Persistent bool
	Broken     bool
	Stats      engine.Stats
}

// IncrementSessions / DecrementSessions let the session registry keep each
// entry's live count current without the manager reaching into it.
func (e *Entry) IncrementSessions() { atomic.AddInt64(&e.activeSessions, 1) }
func (e *Entry) DecrementSessions() { atomic.AddInt64(&e.activeSessions, -1) }
func (e *Entry) ActiveSessions() int64 { return atomic.LoadInt64(&e.activeSessions) }

// EngineHandle satisfies the dispatch.EngineHandleProvider and
// session.Handle interfaces without either package importing dbmanager.
func (e *Entry) EngineHandle() engine.Handle { return e.Handle }

// Manager is the name-keyed database registry.
type Manager struct {
	eng  engine.Engine
	root string // persistence root; empty disables persistent mode

	mu      sync.RWMutex
	entries map[string]*Entry

	locks sync.Map // name -> *sync.Mutex, serializes create/delete per name

	resources *resources.Tracker
	log       *logging.Logger
}

// New builds a Manager. root may be empty to disable persistent storage.
func New(eng engine.Engine, root string, res *resources.Tracker, log *logging.Logger) *Manager {
	return &Manager{
		eng:       eng,
		root:      root,
		entries:   make(map[string]*Entry),
		resources: res,
		log:       log,
	}
}

func (m *Manager) nameLock(name string) *sync.Mutex {
	v, _ := m.locks.LoadOrStore(name, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func validateName(name string) error {
	if name == "" || !nameRE.MatchString(name) {
		return svcerrors.BadRequest("invalid database name")
	}
	return nil
}

// List returns one summary per live entry. Ordering unspecified.
func (m *Manager) List(ctx context.Context) []Summary {
	m.mu.RLock()
	entries := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		s := Summary{Name: e.Name, Kind: e.Kind, Persistent: e.Mode == engine.StoragePersistent, Broken: e.Broken}
		if !e.Broken && e.Handle != nil {
			if st, err := e.Handle.Stats(ctx); err == nil {
				s.Stats = st
			}
		}
		out = append(out, s)
	}
	return out
}

// Create instantiates a new database entry.
func (m *Manager) Create(ctx context.Context, name string, kind engine.Kind, mode engine.StorageMode, opts engine.Options, schema string) (Summary, error) {
	if err := validateName(name); err != nil {
		return Summary{}, err
	}

	lock := m.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	_, exists := m.entries[name]
	m.mu.RUnlock()
	if exists {
		return Summary{}, svcerrors.Conflict(fmt.Sprintf("database %q already exists", name))
	}

	if !m.eng.SupportsKind(kind) {
		return Summary{}, svcerrors.New(svcerrors.KindBadRequest, fmt.Sprintf("unsupported database kind %q", kind))
	}
	if mode == engine.StoragePersistent && (!m.eng.SupportsPersistent() || m.root == "") {
		return Summary{}, svcerrors.New(svcerrors.KindBadRequest, "persistent storage mode is not available")
	}

	if m.resources != nil && opts.MemoryLimitBytes > 0 {
		if !m.resources.Reserve(opts.MemoryLimitBytes) {
			return Summary{}, svcerrors.New(svcerrors.KindBadRequest, "requested memory limit would exceed host RAM").WithDetails("kind", "quota")
		}
	}

	var path string
	if mode == engine.StoragePersistent {
		path = filepath.Join(m.root, name)
	}

	handle, err := m.openWithRetry(ctx, name, kind, mode, path, opts, schema)
	if err != nil {
		if m.resources != nil && opts.MemoryLimitBytes > 0 {
			m.resources.Release(opts.MemoryLimitBytes)
		}
		return Summary{}, svcerrors.Wrap(svcerrors.KindInternal, "engine open failed", err)
	}

	if mode == engine.StoragePersistent {
		if err := persistMeta(path, meta{Kind: kind, Mode: mode, Options: opts, Schema: schema, CreatedAt: time.Now()}); err != nil {
			_ = handle.Close(ctx)
			return Summary{}, svcerrors.Wrap(svcerrors.KindInternal, "failed to persist metadata", err)
		}
	}

	entry := &Entry{Name: name, Kind: kind, Mode: mode, Options: opts, Schema: schema, Handle: handle, CreatedAt: time.Now()}

	m.mu.Lock()
	m.entries[name] = entry
	m.mu.Unlock()

	stats, _ := handle.Stats(ctx)
	return Summary{Name: name, Kind: kind, Persistent: mode == engine.StoragePersistent, Stats: stats}, nil
}

// openWithRetry retries engine instantiation a few times on the persistent
// path when the filesystem still has the previous instance's files locked
// (spec §4.1 "Create-after-delete retry").
func (m *Manager) openWithRetry(ctx context.Context, name string, kind engine.Kind, mode engine.StorageMode, path string, opts engine.Options, schema string) (engine.Handle, error) {
	const maxAttempts = 5
	const backoff = 50 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		h, err := m.eng.Open(ctx, name, kind, mode, path, opts, schema)
		if err == nil {
			return h, nil
		}
		lastErr = err
		if mode != engine.StoragePersistent {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// Delete removes a database entry. Forbidden for DefaultName.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if name == DefaultName {
		return svcerrors.Forbidden("the default database cannot be deleted")
	}

	lock := m.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	entry, ok := m.entries[name]
	if !ok {
		m.mu.Unlock()
		return svcerrors.NotFound(fmt.Sprintf("database %q not found", name))
	}
	delete(m.entries, name) // unreachable to new lookups before teardown
	m.mu.Unlock()

	if entry.Handle != nil {
		if err := entry.Handle.Close(ctx); err != nil {
			m.log.Warnf("dbmanager: close of %q returned error: %v", name, err)
		}
	}
	if m.resources != nil && entry.Options.MemoryLimitBytes > 0 {
		m.resources.Release(entry.Options.MemoryLimitBytes)
	}

	if entry.Mode == engine.StoragePersistent && m.root != "" {
		path := filepath.Join(m.root, name)
		if err := os.RemoveAll(path); err != nil {
			return svcerrors.Wrap(svcerrors.KindInternal, "failed to remove database files", err)
		}
	}
	return nil
}

// Get returns the live entry for name, or not-found.
func (m *Manager) Get(name string) (*Entry, error) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()
	if !ok {
		return nil, svcerrors.NotFound(fmt.Sprintf("database %q not found", name))
	}
	if e.Broken {
		return nil, svcerrors.Internal(fmt.Sprintf("database %q is broken", name))
	}
	return e, nil
}

// Discover scans root for database subdirectories and rehydrates each from
// its meta.json, ensuring DefaultName exists (spec §4.1, Open Question b:
// default auto-rehydrates, or is created if missing).
func (m *Manager) Discover(ctx context.Context) (int, error) {
	if m.root == "" {
		return m.ensureDefault(ctx)
	}

	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return 0, fmt.Errorf("dbmanager: cannot create persistence root: %w", err)
	}

	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, fmt.Errorf("dbmanager: cannot read persistence root: %w", err)
	}

	count := 0
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		name := de.Name()
		path := filepath.Join(m.root, name)
		mt, err := loadMeta(path)
		if err != nil {
			m.log.Warnf("dbmanager: discover: %q has unreadable metadata, marking broken: %v", name, err)
			m.mu.Lock()
			m.entries[name] = &Entry{Name: name, Mode: engine.StoragePersistent, Broken: true}
			m.mu.Unlock()
			count++
			continue
		}

		h, err := m.eng.Open(ctx, name, mt.Kind, mt.Mode, path, mt.Options, mt.Schema)
		if err != nil {
			m.log.Warnf("dbmanager: discover: %q failed to open, marking broken: %v", name, err)
			m.mu.Lock()
			m.entries[name] = &Entry{Name: name, Kind: mt.Kind, Mode: mt.Mode, Broken: true, CreatedAt: mt.CreatedAt}
			m.mu.Unlock()
			count++
			continue
		}

		m.mu.Lock()
		m.entries[name] = &Entry{Name: name, Kind: mt.Kind, Mode: mt.Mode, Options: mt.Options, Schema: mt.Schema, Handle: h, CreatedAt: mt.CreatedAt}
		m.mu.Unlock()
		count++
	}

	n, err := m.ensureDefault(ctx)
	return count + n, err
}

func (m *Manager) ensureDefault(ctx context.Context) (int, error) {
	m.mu.RLock()
	_, exists := m.entries[DefaultName]
	m.mu.RUnlock()
	if exists {
		return 0, nil
	}
	if _, err := m.Create(ctx, DefaultName, engine.KindPropertyGraph, engine.StorageInMemory, engine.Options{}, ""); err != nil {
		return 0, fmt.Errorf("dbmanager: failed to create default entry: %w", err)
	}
	return 1, nil
}

// Stats and Schema pass the engine's answer straight through and add no
// metadata; Info adds the entry's kind, mode and options to the engine's
// detail map.
func (m *Manager) Stats(ctx context.Context, name string) (engine.Stats, error) {
	e, err := m.Get(name)
	if err != nil {
		return engine.Stats{}, err
	}
	return e.Handle.Stats(ctx)
}

func (m *Manager) Schema(ctx context.Context, name string) (string, error) {
	e, err := m.Get(name)
	if err != nil {
		return "", err
	}
	return e.Handle.Schema(ctx)
}

type Info struct {
	Kind    engine.Kind
	Mode    engine.StorageMode
	Options engine.Options
	Detail  map[string]interface{}
}

func (m *Manager) Info(ctx context.Context, name string) (Info, error) {
	e, err := m.Get(name)
	if err != nil {
		return Info{}, err
	}
	detail, err := e.Handle.Info(ctx)
	if err != nil {
		return Info{}, err
	}
	return Info{Kind: e.Kind, Mode: e.Mode, Options: e.Options, Detail: detail}, nil
}

// TotalActiveSessions sums per-entry live session counts for metrics.
func (m *Manager) TotalActiveSessions() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, e := range m.entries {
		total += e.ActiveSessions()
	}
	return total
}

// Count returns the number of registered (live or broken) entries.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func persistMeta(dir string, mt meta) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, metaFileName))
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(mt)
}

func loadMeta(dir string) (meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		return meta{}, err
	}
	var mt meta
	if err := json.Unmarshal(data, &mt); err != nil {
		return meta{}, err
	}
	return mt, nil
}
