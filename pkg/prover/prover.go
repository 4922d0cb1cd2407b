// Copyright 2025 Certen Protocol
//
// Package prover implements the Block Producer's prover orchestration:
// a Client seam abstracting "submit a witness, get back an opaque
// proof" and a bounded worker Pool that retries transient failures with
// backoff and lets the mempool cancel an outstanding job when its batch
// or block is reverted.
package prover

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/miden-node/rollup/pkg/logx"
	"github.com/miden-node/rollup/pkg/rolluperr"
	"github.com/miden-node/rollup/pkg/rpc"
	"github.com/miden-node/rollup/pkg/server"
)

// Client proves a witness and returns an opaque proof. Both the input
// witness and the returned proof are opaque bytes here; the prover
// itself runs out of process and nothing in this repository verifies
// what it returns.
type Client interface {
	ProveBatch(ctx context.Context, witness []byte) ([]byte, error)
	ProveBlock(ctx context.Context, witness []byte) ([]byte, error)
}

// RemoteClient dials a prover endpoint over pkg/rpc's framed transport.
// The batch and block provers are separately configurable endpoints.
type RemoteClient struct {
	batch *rpc.Client
	block *rpc.Client
}

// DialRemote connects to the configured batch and block prover
// addresses. Either address may be empty if that prover is never called
// by this process.
func DialRemote(batchAddr, blockAddr string, timeout time.Duration) (*RemoteClient, error) {
	rc := &RemoteClient{}
	if batchAddr != "" {
		c, err := rpc.DialTimeout(batchAddr, timeout)
		if err != nil {
			return nil, fmt.Errorf("prover: dial batch prover %s: %w", batchAddr, err)
		}
		rc.batch = c
	}
	if blockAddr != "" {
		c, err := rpc.DialTimeout(blockAddr, timeout)
		if err != nil {
			return nil, fmt.Errorf("prover: dial block prover %s: %w", blockAddr, err)
		}
		rc.block = c
	}
	return rc, nil
}

func (c *RemoteClient) ProveBatch(ctx context.Context, witness []byte) ([]byte, error) {
	if c.batch == nil {
		return nil, rolluperr.Wrap(rolluperr.ErrProverUnavailable, "no batch prover configured")
	}
	return c.batch.Call(ctx, rpc.ProverService, rpc.MethodProveBatch, witness)
}

func (c *RemoteClient) ProveBlock(ctx context.Context, witness []byte) ([]byte, error) {
	if c.block == nil {
		return nil, rolluperr.Wrap(rolluperr.ErrProverUnavailable, "no block prover configured")
	}
	return c.block.Call(ctx, rpc.ProverService, rpc.MethodProveBlock, witness)
}

func (c *RemoteClient) Close() error {
	if c.batch != nil {
		c.batch.Close()
	}
	if c.block != nil {
		c.block.Close()
	}
	return nil
}

// SimulatedClient is the simulated-prover mode for local testing: it
// never calls out, returning a deterministic digest of the witness as a
// stand-in proof.
type SimulatedClient struct {
	// FailBatch/FailBlock, if non-nil, are returned instead of a
	// simulated proof - the seam used by tests exercising the revert
	// path after a prover failure.
	FailBatch error
	FailBlock error
}

func (c *SimulatedClient) ProveBatch(ctx context.Context, witness []byte) ([]byte, error) {
	if c.FailBatch != nil {
		return nil, c.FailBatch
	}
	return simulateProof(witness), nil
}

func (c *SimulatedClient) ProveBlock(ctx context.Context, witness []byte) ([]byte, error) {
	if c.FailBlock != nil {
		return nil, c.FailBlock
	}
	return simulateProof(witness), nil
}

func simulateProof(witness []byte) []byte {
	sum := sha256.Sum256(witness)
	return sum[:]
}

// PoolConfig tunes the worker pool's concurrency and retry policy.
type PoolConfig struct {
	MaxConcurrentJobs int
	MaxRetries        uint64
	InitialInterval   time.Duration
	MaxInterval       time.Duration
}

// DefaultPoolConfig returns conservative defaults, overridden in
// production by pkg/config.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConcurrentJobs: 4,
		MaxRetries:        5,
		InitialInterval:   500 * time.Millisecond,
		MaxInterval:       10 * time.Second,
	}
}

// Pool bounds the number of proving jobs in flight and wraps every call
// in exponential backoff with jitter, capped at MaxRetries.
type Pool struct {
	client Client
	cfg    PoolConfig
	sem    chan struct{}
	logger zerolog.Logger
}

// NewPool builds a pool of cfg.MaxConcurrentJobs workers submitting jobs
// through client.
func NewPool(client Client, cfg PoolConfig) *Pool {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 1
	}
	return &Pool{
		client: client,
		cfg:    cfg,
		sem:    make(chan struct{}, cfg.MaxConcurrentJobs),
		logger: logx.Component("prover-pool"),
	}
}

// ProveBatch acquires a worker slot, then proves witness with retry.
// Blocks until a slot is free, ctx is canceled, or retries are
// exhausted. Cancellation propagation is the caller's responsibility:
// if the underlying batch is reverted while the job is outstanding,
// cancel ctx and discard the returned error/proof.
func (p *Pool) ProveBatch(ctx context.Context, witness []byte) ([]byte, error) {
	return p.run(ctx, "batch", func(ctx context.Context) ([]byte, error) {
		return p.client.ProveBatch(ctx, witness)
	})
}

// ProveBlock is ProveBatch's block-prover counterpart.
func (p *Pool) ProveBlock(ctx context.Context, witness []byte) ([]byte, error) {
	return p.run(ctx, "block", func(ctx context.Context) ([]byte, error) {
		return p.client.ProveBlock(ctx, witness)
	})
}

func (p *Pool) run(ctx context.Context, kind string, call func(context.Context) ([]byte, error)) ([]byte, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.InitialInterval
	bo.MaxInterval = p.cfg.MaxInterval
	var boCtx backoff.BackOff = backoff.WithContext(bo, ctx)
	if p.cfg.MaxRetries > 0 {
		boCtx = backoff.WithMaxRetries(boCtx, p.cfg.MaxRetries)
	}

	var result []byte
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		out, callErr := call(ctx)
		if callErr == nil {
			result = out
			return nil
		}
		if rolluperr.Classify(callErr) == rolluperr.KindValidation {
			// Not retryable: the witness itself is bad.
			return backoff.Permanent(callErr)
		}
		return callErr
	}, boCtx, func(err error, wait time.Duration) {
		server.ProverRetries.WithLabelValues(kind).Inc()
		p.logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("proving attempt failed, retrying")
	})
	if err != nil {
		return nil, rolluperr.Wrap(rolluperr.ErrProverUnavailable, "proving failed after %d attempt(s): %v", attempt, err)
	}
	return result, nil
}
