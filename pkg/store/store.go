// Copyright 2025 Certen Protocol
//
// Package store implements the authoritative chain state engine: the
// relational tables plus the three in-memory cryptographic accumulators
// (block header MMR, nullifier SMT, account SMT), kept coherent under a
// single apply-block critical section.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/miden-node/rollup/pkg/config"
	"github.com/miden-node/rollup/pkg/database"
	"github.com/miden-node/rollup/pkg/logx"
	"github.com/miden-node/rollup/pkg/merkle"
	"github.com/miden-node/rollup/pkg/protocol"
	"github.com/miden-node/rollup/pkg/rolluperr"
)

// Store is the Store component's state engine. ApplyBlock takes the
// exclusive write lock; every other exported method takes the shared
// read lock, matching the "Store serializes writes, reads take shared
// locks" concurrency rule.
type Store struct {
	writeMu sync.RWMutex

	db    *database.Client
	repos *database.Repositories
	accum *merkle.Accumulators

	dataDir string
	tip     protocol.BlockNumber
	hasTip  bool

	cfg    *config.Config
	logger zerolog.Logger

	stopStats chan struct{}
	doneStats chan struct{}
}

// Open opens (or creates) the store's data directory, runs pending
// migrations, and rebuilds the in-memory accumulators from the
// relational tables before returning.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "blocks"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := database.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(ctx); err != nil {
		db.Close()
		return nil, err
	}

	accum, err := merkle.New()
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:      db,
		repos:   database.NewRepositories(db),
		accum:   accum,
		dataDir: cfg.DataDir,
		cfg:     cfg,
		logger:  logx.Component("store"),
	}

	if err := s.recover(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the underlying database handle and stops the stats
// loop if running.
func (s *Store) Close() error {
	s.StopStatsLoop()
	return s.db.Close()
}

// recover rebuilds the tip and the three accumulators from the
// relational tables, and deletes any orphaned block blob beyond the
// recorded tip: an apply_block that crashed between the blob fsync and
// the relational commit never leaves the Store in an inconsistent state
// on restart.
func (s *Store) recover(ctx context.Context) error {
	tip, ok, err := s.repos.Settings.ChainTip(ctx)
	if err != nil {
		return fmt.Errorf("failed to load chain tip: %w", err)
	}
	s.tip = protocol.BlockNumber(tip)
	s.hasTip = ok

	if ok {
		headers, err := s.repos.BlockHeaders.RangeFrom(ctx, 0, int(tip)+1)
		if err != nil {
			return fmt.Errorf("failed to replay block headers: %w", err)
		}
		// Headers are appended to the MMR with the one-block lag: header
		// for block n is appended while "building" block n+1, so on
		// replay we append every header except the current tip's.
		for _, h := range headers {
			if h.BlockNum == s.tip {
				continue
			}
			s.accum.AppendBlockHeader(h)
		}

		nullifiers, err := s.repos.Nullifiers.All(ctx)
		if err != nil {
			return fmt.Errorf("failed to replay nullifiers: %w", err)
		}
		for _, rec := range nullifiers {
			s.accum.MarkNullifierConsumed(rec.Nullifier, rec.BlockNum)
		}

		accounts, err := s.repos.Accounts.All(ctx)
		if err != nil {
			return fmt.Errorf("failed to replay accounts: %w", err)
		}
		for _, acct := range accounts {
			s.accum.SetAccount(acct.ID, acct.Commitment)
		}
	}

	if err := s.pruneOrphanedBlobs(); err != nil {
		return err
	}
	return nil
}

func (s *Store) pruneOrphanedBlobs() error {
	entries, err := os.ReadDir(filepath.Join(s.dataDir, "blocks"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list block blobs: %w", err)
	}
	for _, e := range entries {
		var num uint32
		if _, err := fmt.Sscanf(e.Name(), "%d", &num); err != nil {
			continue
		}
		if !s.hasTip || protocol.BlockNumber(num) > s.tip {
			path := filepath.Join(s.dataDir, "blocks", e.Name())
			s.logger.Warn().Str("path", path).Msg("removing orphaned block blob beyond recorded tip")
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove orphaned blob %s: %w", path, err)
			}
		}
	}
	return nil
}

// Tip returns the highest committed block number and whether the chain
// has committed any blocks yet.
func (s *Store) Tip() (protocol.BlockNumber, bool) {
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()
	return s.tip, s.hasTip
}

func (s *Store) blockBlobPath(num protocol.BlockNumber) string {
	return filepath.Join(s.dataDir, "blocks", fmt.Sprintf("%010d", uint32(num)))
}

// StartStatsLoop launches the background task that periodically
// refreshes sqlite's query planner statistics, grounded in the same
// ticker-loop idiom used by the mempool's schedulers.
func (s *Store) StartStatsLoop(ctx context.Context) {
	s.stopStats = make(chan struct{})
	s.doneStats = make(chan struct{})
	interval := s.cfg.StatsInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		defer close(s.doneStats)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopStats:
				return
			case <-ticker.C:
				analyzeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				if err := s.db.Analyze(analyzeCtx); err != nil {
					s.logger.Warn().Err(err).Msg("failed to refresh query statistics")
				}
				cancel()
			}
		}
	}()
}

// StopStatsLoop stops the background stats task if it was started.
func (s *Store) StopStatsLoop() {
	if s.stopStats == nil {
		return
	}
	close(s.stopStats)
	<-s.doneStats
	s.stopStats = nil
}

// Health reports the Store's health via its database connection,
// exposed through pkg/server's admin surface.
func (s *Store) Health(ctx context.Context) (*database.HealthStatus, error) {
	return s.db.Health(ctx)
}

func wrapUnavailable(err error) error {
	if err == nil {
		return nil
	}
	return rolluperr.Wrap(rolluperr.ErrStoreUnavailable, "%v", err)
}
