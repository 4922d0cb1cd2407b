// Copyright 2025 Certen Protocol
//
// block_scheduler.go drives block selection, proving, and Store commit
// on a slower cadence than batch selection, mirroring
// batch_scheduler.go's shape one tier up the DAG.

package mempool

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/miden-node/rollup/pkg/logx"
)

// BlockAssembler proves a selected block and applies it to the Store.
// batchProofs carries the already-recorded proof for every batch in
// sel.BatchIDs.
type BlockAssembler interface {
	ProveAndApplyBlock(ctx context.Context, sel *BlockSelection, batchProofs map[uuid.UUID][]byte) error
}

// BlockScheduler periodically calls Mempool.SelectBlock and drives the
// resulting block to Committed or Reverted.
type BlockScheduler struct {
	loop      *tickLoop
	pool      *Mempool
	assembler BlockAssembler
	logger    zerolog.Logger
}

// NewBlockScheduler builds a scheduler that selects a block every
// interval and hands it to assembler for proving and Store commit.
func NewBlockScheduler(pool *Mempool, assembler BlockAssembler, interval time.Duration) *BlockScheduler {
	s := &BlockScheduler{pool: pool, assembler: assembler, logger: logx.Component("block-scheduler")}
	s.loop = newTickLoop(interval, s.tick)
	return s
}

func (s *BlockScheduler) Start(ctx context.Context) { s.loop.Start(ctx) }
func (s *BlockScheduler) Stop()                     { s.loop.Stop() }
func (s *BlockScheduler) Pause()                    { s.loop.Pause() }
func (s *BlockScheduler) Resume()                   { s.loop.Resume() }
func (s *BlockScheduler) State() SchedulerState     { return s.loop.State() }

func (s *BlockScheduler) tick(ctx context.Context) {
	sel := s.pool.SelectBlock()
	if sel == nil {
		return
	}

	batchProofs := make(map[uuid.UUID][]byte, len(sel.BatchIDs))
	for _, batchID := range sel.BatchIDs {
		proof, ok := s.pool.BatchProof(batchID)
		if !ok {
			s.logger.Error().Str("batch_id", batchID.String()).Msg("selected batch missing recorded proof")
		}
		batchProofs[batchID] = proof
	}

	if err := s.assembler.ProveAndApplyBlock(ctx, sel, batchProofs); err != nil {
		s.logger.Warn().Err(err).Uint32("block_num", uint32(sel.BlockNum)).Msg("block proving or apply failed, reverting")
		if revertErr := s.pool.RevertBlock(sel.BlockNum, err); revertErr != nil {
			s.logger.Error().Err(revertErr).Uint32("block_num", uint32(sel.BlockNum)).Msg("failed to revert block after proving failure")
		}
		return
	}
	if err := s.pool.CommitBlock(sel.BlockNum); err != nil {
		s.logger.Error().Err(err).Uint32("block_num", uint32(sel.BlockNum)).Msg("block applied but mempool commit failed")
	}
}
