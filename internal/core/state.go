// Package core owns the service-state aggregate shared by every transport
// adapter (spec.md §9 "Cross-language, cross-transport sharing of the
// service state"). It is constructed once at startup; every transport
// holds the same handle for as long as it runs.
package core

import (
	"context"
	"fmt"

	"grafeodb/server/engine"
	"grafeodb/server/internal/auth"
	"grafeodb/server/internal/config"
	"grafeodb/server/internal/correlate"
	"grafeodb/server/internal/dbmanager"
	"grafeodb/server/internal/dispatch"
	svcerrors "grafeodb/server/internal/errors"
	"grafeodb/server/internal/logging"
	"grafeodb/server/internal/metrics"
	"grafeodb/server/internal/ratelimit"
	"grafeodb/server/internal/resources"
	"grafeodb/server/internal/service"
	"grafeodb/server/internal/session"

	"github.com/go-redis/redis/v8"
)

// dbForDispatch adapts *dbmanager.Manager to dispatch.DatabaseLookup.
// *dbmanager.Entry already satisfies dispatch.EngineHandleProvider, but Go
// requires the lookup method's declared return type to match the
// interface exactly, so a thin adapter bridges the two packages without
// either importing the other.
type dbForDispatch struct{ db *dbmanager.Manager }

func (a dbForDispatch) Get(name string) (dispatch.EngineHandleProvider, error) {
	return a.db.Get(name)
}

// dbForSession adapts *dbmanager.Manager to session.DatabaseLookup.
type dbForSession struct{ db *dbmanager.Manager }

func (a dbForSession) Get(name string) (session.Handle, error) {
	return a.db.Get(name)
}

// State is the owned aggregate: database manager, session registry, query
// dispatcher, auth validator, rate limiter, resource inventory, and
// metrics sink, plus the lifecycle manager every transport attaches to.
type State struct {
	Config config.Config

	Log         *logging.Logger
	Metrics     *metrics.Metrics
	Resources   *resources.Tracker
	DB          *dbmanager.Manager
	Sessions    *session.Registry
	Dispatcher  *dispatch.Dispatcher
	Auth        *auth.Validator
	RateLimiter *ratelimit.Limiter

	manager *service.Manager
}

// Option customizes State construction beyond config.Config, mirroring the
// functional-options pattern used for the teacher's top-level aggregate.
type Option func(*buildOptions)

type buildOptions struct {
	engine engine.Engine
}

// WithEngine sets the engine implementation. New fails when none is given.
func WithEngine(e engine.Engine) Option {
	return func(o *buildOptions) { o.engine = e }
}

// New builds the service state: every leaf component, wired together, plus
// their lifecycle registrations. Start must be called before serving
// traffic (it runs startup discovery and launches background workers).
func New(cfg config.Config, opts ...Option) (*State, error) {
	bo := buildOptions{}
	for _, opt := range opts {
		opt(&bo)
	}
	if bo.engine == nil {
		return nil, fmt.Errorf("core: an engine implementation is required")
	}

	log := logging.New(logging.Config{Service: "grafeodb-server", Level: cfg.LogLevel, Format: cfg.LogFormat})
	m := metrics.New("grafeodb-server")

	res := resources.New(resources.Config{
		PersistenceRoot: cfg.DataDir,
		SupportedKinds:  []engine.Kind{engine.KindPropertyGraph, engine.KindSchemaPropertyGraph},
		PersistentOK:    bo.engine.SupportsPersistent(),
		DefaultOptions:  engine.Options{WorkerCount: cfg.WorkerCount},
	}, log)

	db := dbmanager.New(bo.engine, cfg.DataDir, res, log)

	sessions := session.New(session.Config{
		TTL:      cfg.SessionTTL,
		Lookup:   dbForSession{db},
		Log:      log,
		OnReaped: m.SessionsReaped.Inc,
	})

	dispatcher := dispatch.New(dispatch.Config{
		Lookup:          dbForDispatch{db},
		WorkerCount:     cfg.WorkerCount,
		DefaultDeadline: cfg.DefaultDeadline,
		AdmissionWait:   cfg.AdmissionWait,
		Metrics:         m,
	})

	uiRoot := cfg.UIRoot
	if uiRoot == "" {
		uiRoot = "/ui/"
	}
	validator := auth.New(auth.Config{
		StaticToken:  cfg.AuthToken,
		JWTSecret:    cfg.AuthJWTSecret,
		Username:     cfg.AuthUsername,
		Password:     cfg.AuthPassword,
		PasswordHash: cfg.AuthPasswordHash,
		ExemptPaths:  []string{"/health", "/metrics", "/api/openapi.json", uiRoot},
	})

	var store ratelimit.BucketStore
	var inProcessStore *ratelimit.InProcessStore
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store = ratelimit.NewRedisStore(client, "")
	} else {
		inProcessStore = ratelimit.NewInProcessStore()
		store = inProcessStore
	}
	limiter := ratelimit.New(ratelimit.Config{Limit: cfg.RateLimit, Window: cfg.RateWindow, Store: store, Log: log})

	mgr := service.NewManager()
	_ = mgr.Attach(res)
	_ = mgr.Attach(sessions)
	if inProcessStore != nil {
		_ = mgr.Attach(inProcessStore)
	}

	return &State{
		Config:      cfg,
		Log:         log,
		Metrics:     m,
		Resources:   res,
		DB:          db,
		Sessions:    sessions,
		Dispatcher:  dispatcher,
		Auth:        validator,
		RateLimiter: limiter,
		manager:     mgr,
	}, nil
}

// Attach registers an additional lifecycle service (typically a transport
// adapter) with the state's manager.
func (s *State) Attach(svc service.Service) error {
	return s.manager.Attach(svc)
}

// Start runs startup discovery (spec §5: "Discovery runs exclusively
// before the server accepts traffic") then starts every attached service
// in attachment order.
func (s *State) Start(ctx context.Context) error {
	n, err := s.DB.Discover(ctx)
	if err != nil {
		return fmt.Errorf("core: startup discovery failed: %w", err)
	}
	s.Log.Infof("discovered %d database(s) at startup", n)
	s.Metrics.DatabasesOpen.Set(float64(s.DB.Count()))

	return s.manager.Start(ctx)
}

// Stop stops every attached service in reverse order.
func (s *State) Stop(ctx context.Context) error {
	return s.manager.Stop(ctx)
}

// Descriptors exposes the running service topology for diagnostics.
func (s *State) Descriptors() []service.Descriptor {
	return s.manager.Descriptors()
}

// RequestID resolves a caller-supplied correlation id or mints a fresh one.
func (s *State) RequestID(incoming string) string {
	return correlate.Resolve(incoming)
}

// AsServiceError normalizes any error into the kind-tagged taxonomy for a
// transport to render.
func AsServiceError(err error) *svcerrors.ServiceError {
	return svcerrors.As(err)
}
