// Copyright 2025 Certen Protocol
//
// cmd/store runs the Store component behind the internal Store RPC
// service: it owns the relational database, the raw block blobs, and
// the three in-memory accumulators, and serializes every write behind
// Store.ApplyBlock.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/miden-node/rollup/pkg/config"
	"github.com/miden-node/rollup/pkg/logx"
	"github.com/miden-node/rollup/pkg/rpc"
	"github.com/miden-node/rollup/pkg/server"
	"github.com/miden-node/rollup/pkg/store"
	"github.com/miden-node/rollup/pkg/storerpc"
)

func main() {
	os.Exit(run())
}

func run() int {
	yamlOverlay := flag.String("config", "", "optional YAML overlay for scheduling cadences and size limits")
	genesisPath := flag.String("genesis", "", "path to a genesis artifact to load if the chain has no tip yet")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "store: load config: %v\n", err)
		return 1
	}
	if *yamlOverlay != "" {
		if err := config.LoadYAMLOverlay(cfg, *yamlOverlay); err != nil {
			fmt.Fprintf(os.Stderr, "store: load config overlay: %v\n", err)
			return 1
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "store: invalid config: %v\n", err)
		return 1
	}

	logx.Init(logx.Config{
		Level:      logx.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	logger := logx.Component("store-main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open store")
		return 1
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing store")
		}
	}()

	if *genesisPath != "" {
		if err := st.LoadGenesisFile(ctx, *genesisPath); err != nil {
			logger.Error().Err(err).Str("path", *genesisPath).Msg("failed to load genesis artifact")
			return 1
		}
	}

	st.StartStatsLoop(ctx)

	rpcSrv, err := rpc.NewServer(cfg.StoreListenAddr)
	if err != nil {
		logger.Error().Err(err).Str("addr", cfg.StoreListenAddr).Msg("failed to start rpc listener")
		return 1
	}
	storerpc.RegisterStoreService(rpcSrv, st)

	metricsSrv := &http.Server{
		Addr:    cfg.StoreMetricsAddr,
		Handler: metricsMux(st),
	}

	var wg errGroup
	wg.Go(func() error {
		logger.Info().Str("addr", rpcSrv.Addr()).Msg("store rpc service listening")
		return rpcSrv.Serve(ctx)
	})
	wg.Go(func() error {
		logger.Info().Str("addr", cfg.StoreMetricsAddr).Msg("store metrics/health listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	<-ctx.Done()
	logger.Info().Msg("shutting down store")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics server shutdown error")
	}
	if err := rpcSrv.Close(); err != nil {
		logger.Warn().Err(err).Msg("rpc server close error")
	}

	if err := wg.Wait(); err != nil {
		logger.Error().Err(err).Msg("store exited with error")
		return 1
	}
	logger.Info().Msg("store stopped")
	return 0
}

func metricsMux(st *store.Store) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", server.Handler())
	mux.Handle("/healthz", server.HealthHandler(server.HealthFunc(func(ctx context.Context) (any, error) {
		return st.Health(ctx)
	})))
	return mux
}

// errGroup is a minimal sync.WaitGroup-plus-first-error helper, enough
// for the two long-lived goroutines this process runs; pulling in
// golang.org/x/sync for two goroutines would be its own form of
// over-engineering.
type errGroup struct {
	errCh chan error
	n     int
}

func (g *errGroup) Go(fn func() error) {
	if g.errCh == nil {
		g.errCh = make(chan error, 8)
	}
	g.n++
	go func() { g.errCh <- fn() }()
}

func (g *errGroup) Wait() error {
	var first error
	for i := 0; i < g.n; i++ {
		if err := <-g.errCh; err != nil && first == nil {
			first = err
		}
	}
	return first
}
