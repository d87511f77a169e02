package http

import (
	"context"
	nethttp "net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grafeodb/server/internal/core"
	"grafeodb/server/internal/service"
)

// Adapter is the HTTP transport, implementing service.Service so it can be
// attached to the core service state's lifecycle manager.
type Adapter struct {
	state  *core.State
	srv    *nethttp.Server
	router *mux.Router
}

// New builds the HTTP adapter and wires every route named in spec.md §6,
// in an ordered middleware chain: request-id → logging → auth →
// rate-limit → metrics → handler (SPEC_FULL §6-NEW).
func New(state *core.State) *Adapter {
	h := &handlers{state: state}
	r := mux.NewRouter()

	r.Use(requestIDMiddleware())
	r.Use(loggingMiddleware(state.Log))
	r.Use(authMiddleware(state.Auth))
	r.Use(rateLimitMiddleware(state.RateLimiter))
	r.Use(metricsMiddleware(state.Metrics))

	r.HandleFunc("/", h.handleRoot).Methods(nethttp.MethodGet)

	r.HandleFunc("/query", h.handleQuery("")).Methods(nethttp.MethodPost)
	for _, lang := range []string{"cypher", "graphql", "gremlin", "sparql", "sql"} {
		r.HandleFunc("/"+lang, h.handleQuery(lang)).Methods(nethttp.MethodPost)
	}
	r.HandleFunc("/batch", h.handleBatch).Methods(nethttp.MethodPost)

	r.HandleFunc("/tx/begin", h.handleTxBegin).Methods(nethttp.MethodPost)
	r.HandleFunc("/tx/query", h.handleTxQuery).Methods(nethttp.MethodPost)
	r.HandleFunc("/tx/commit", h.handleTxCommit).Methods(nethttp.MethodPost)
	r.HandleFunc("/tx/rollback", h.handleTxRollback).Methods(nethttp.MethodPost)

	r.HandleFunc("/db", h.handleListDB).Methods(nethttp.MethodGet)
	r.HandleFunc("/db", h.handleCreateDB).Methods(nethttp.MethodPost)
	r.HandleFunc("/db/{name}", h.handleGetDB).Methods(nethttp.MethodGet)
	r.HandleFunc("/db/{name}", h.handleDeleteDB).Methods(nethttp.MethodDelete)
	r.HandleFunc("/db/{name}/stats", h.handleDBStats).Methods(nethttp.MethodGet)
	r.HandleFunc("/db/{name}/schema", h.handleDBSchema).Methods(nethttp.MethodGet)

	r.HandleFunc("/system/resources", h.handleResources).Methods(nethttp.MethodGet)
	r.HandleFunc("/health", h.handleHealth).Methods(nethttp.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(nethttp.MethodGet)
	r.HandleFunc("/api/openapi.json", h.handleOpenAPI).Methods(nethttp.MethodGet)

	return &Adapter{state: state, router: r}
}

// Router exposes the underlying mux.Router, e.g. so cmd/server can mount
// the websocket adapter's /ws route on the same router instance.
func (a *Adapter) Router() *mux.Router { return a.router }

// Name implements service.Service.
func (a *Adapter) Name() string { return "http-adapter" }

// Descriptor implements service.DescriptorProvider.
func (a *Adapter) Descriptor() service.Descriptor {
	return service.Descriptor{Name: a.Name(), Layer: service.LayerIngress}
}

// Start begins serving HTTP on the configured address.
func (a *Adapter) Start(ctx context.Context) error {
	a.srv = &nethttp.Server{Addr: a.state.Config.Addr, Handler: a.router}
	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != nethttp.ErrServerClosed {
			a.state.Log.Errorf("http adapter: serve error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server within ctx's deadline.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.srv == nil {
		return nil
	}
	return a.srv.Shutdown(ctx)
}
