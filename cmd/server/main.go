package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"grafeodb/server/engine/memgraph"
	"grafeodb/server/internal/config"
	"grafeodb/server/internal/core"
	httptransport "grafeodb/server/transport/http"
	"grafeodb/server/transport/wire"
	"grafeodb/server/transport/ws"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides GRAFEODB_ADDR / default :8080)")
	wireAddr := flag.String("wire-addr", "", "binary wire listen address (overrides GRAFEODB_WIRE_ADDR / default :9090)")
	dataDir := flag.String("data-dir", "", "directory for persistent database metadata (overrides GRAFEODB_DATA_DIR)")
	flag.Parse()

	cfg := config.Load()
	if v := strings.TrimSpace(*addr); v != "" {
		cfg.Addr = v
	}
	if v := strings.TrimSpace(*wireAddr); v != "" {
		cfg.WireAddr = v
	}
	if v := strings.TrimSpace(*dataDir); v != "" {
		cfg.DataDir = v
	}

	state, err := core.New(cfg, core.WithEngine(memgraph.New()))
	if err != nil {
		log.Fatalf("initialise service state: %v", err)
	}

	httpAdapter := httptransport.New(state)
	if err := state.Attach(httpAdapter); err != nil {
		log.Fatalf("attach http adapter: %v", err)
	}

	wsAdapter := ws.New(state)
	wsAdapter.Mount(httpAdapter.Router())
	if err := state.Attach(wsAdapter); err != nil {
		log.Fatalf("attach websocket adapter: %v", err)
	}

	wireAdapter := wire.New(state, cfg.WireAddr)
	if err := state.Attach(wireAdapter); err != nil {
		log.Fatalf("attach wire adapter: %v", err)
	}

	ctx := context.Background()
	if err := state.Start(ctx); err != nil {
		log.Fatalf("start service state: %v", err)
	}
	log.Printf("grafeodb server listening: http=%s wire=%s", cfg.Addr, cfg.WireAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := state.Stop(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
