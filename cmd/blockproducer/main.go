// Copyright 2025 Certen Protocol
//
// cmd/blockproducer runs the Block Producer component: the mempool, its
// batch/block/expiry schedulers, and the prover orchestration, dialing
// the Store's RPC service as a client and exposing
// SubmitProvenTransaction for the gateway.
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

	"github.com/miden-node/rollup/pkg/assembler"
	"github.com/miden-node/rollup/pkg/config"
	"github.com/miden-node/rollup/pkg/logx"
	"github.com/miden-node/rollup/pkg/mempool"
	"github.com/miden-node/rollup/pkg/producerrpc"
	"github.com/miden-node/rollup/pkg/prover"
	"github.com/miden-node/rollup/pkg/rpc"
	"github.com/miden-node/rollup/pkg/server"
	"github.com/miden-node/rollup/pkg/storerpc"
)

func main() {
	os.Exit(run())
}

func run() int {
	yamlOverlay := flag.String("config", "", "optional YAML overlay for scheduling cadences and size limits")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "blockproducer: load config: %v\n", err)
		return 1
	}
	if *yamlOverlay != "" {
		if err := config.LoadYAMLOverlay(cfg, *yamlOverlay); err != nil {
			fmt.Fprintf(os.Stderr, "blockproducer: load config overlay: %v\n", err)
			return 1
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "blockproducer: invalid config: %v\n", err)
		return 1
	}

	logx.Init(logx.Config{
		Level:      logx.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	logger := logx.Component("blockproducer-main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storeClient, err := storerpc.Dial(cfg.StoreAddr, cfg.StoreCallTimeout)
	if err != nil {
		logger.Error().Err(err).Str("addr", cfg.StoreAddr).Msg("failed to dial store")
		return 1
	}
	defer storeClient.Close()

	proverClient, closeProver, err := buildProverClient(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build prover client")
		return 1
	}
	defer closeProver()

	proverPool := prover.NewPool(proverClient, prover.PoolConfig{
		MaxConcurrentJobs: cfg.MaxConcurrentProve,
		MaxRetries:        uint64(cfg.ProverMaxRetries),
		InitialInterval:   500 * time.Millisecond,
		MaxInterval:       10 * time.Second,
	})

	pool := mempool.New(&mempool.Config{
		BatchSelectInterval: cfg.BatchSelectInterval,
		BlockSelectInterval: cfg.BlockSelectInterval,
		ExpirySweepInterval: cfg.ExpirySweepInterval,
		MaxAccountsPerBlock: cfg.MaxAccountsPerBlock,
		MaxNotesPerBlock:    cfg.MaxNotesPerBlock,
		MaxInputNotesPerTx:  cfg.MaxInputNotesPerTx,
		MaxOutputNotesPerTx: cfg.MaxOutputNotesPerTx,
		MaxTxPerBatch:       cfg.MaxTxPerBatch,
		MaxBatchesPerBlock:  cfg.MaxBatchesPerBlock,
	}, storeClient)

	batchAssembler := assembler.NewBatchAssembler(pool, storeClient, proverPool)
	blockAssembler := assembler.NewBlockAssembler(pool, storeClient, proverPool)

	batchSched := mempool.NewBatchScheduler(pool, batchAssembler, cfg.BatchSelectInterval)
	blockSched := mempool.NewBlockScheduler(pool, blockAssembler, cfg.BlockSelectInterval)
	expirySched := mempool.NewExpiryScheduler(pool, cfg.ExpirySweepInterval)

	batchSched.Start(ctx)
	blockSched.Start(ctx)
	expirySched.Start(ctx)
	defer batchSched.Stop()
	defer blockSched.Stop()
	defer expirySched.Stop()

	rpcSrv, err := rpc.NewServer(cfg.BlockProducerListenAddr)
	if err != nil {
		logger.Error().Err(err).Str("addr", cfg.BlockProducerListenAddr).Msg("failed to start rpc listener")
		return 1
	}
	producerrpc.RegisterBlockProducerService(rpcSrv, pool)

	metricsSrv := &http.Server{
		Addr:    cfg.BlockProducerMetricsAddr,
		Handler: metricsMux(),
	}

	var wg errGroup
	wg.Go(func() error {
		logger.Info().Str("addr", rpcSrv.Addr()).Msg("block producer rpc service listening")
		return rpcSrv.Serve(ctx)
	})
	wg.Go(func() error {
		logger.Info().Str("addr", cfg.BlockProducerMetricsAddr).Msg("block producer metrics/health listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	<-ctx.Done()
	logger.Info().Msg("shutting down block producer")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics server shutdown error")
	}
	if err := rpcSrv.Close(); err != nil {
		logger.Warn().Err(err).Msg("rpc server close error")
	}

	if err := wg.Wait(); err != nil {
		logger.Error().Err(err).Msg("block producer exited with error")
		return 1
	}
	logger.Info().Msg("block producer stopped")
	return 0
}

// buildProverClient picks the simulated or remote prover client per
// config.
func buildProverClient(cfg *config.Config) (prover.Client, func(), error) {
	if cfg.SimulateProver {
		return &prover.SimulatedClient{}, func() {}, nil
	}
	rc, err := prover.DialRemote(cfg.BatchProverURL, cfg.BlockProverURL, cfg.ProverCallTimeout)
	if err != nil {
		return nil, nil, err
	}
	return rc, func() { rc.Close() }, nil
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", server.Handler())
	mux.Handle("/healthz", server.HealthHandler(nil))
	return mux
}

// errGroup is a minimal sync.WaitGroup-plus-first-error helper, enough
// for the two long-lived goroutines this process runs.
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
