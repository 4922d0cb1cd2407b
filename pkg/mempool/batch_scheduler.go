// Copyright 2025 Certen Protocol
//
// batch_scheduler.go drives batch selection and proving on a fixed
// cadence, the role pkg/batch/scheduler.go's Scheduler plays for
// on-cadence anchoring: pick what's ready, hand it to the prover outside
// the mempool lock, then commit or revert on the result.

package mempool

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/miden-node/rollup/pkg/logx"
)

// BatchProver proves a selected batch's witness.
type BatchProver interface {
	ProveBatch(ctx context.Context, sel *BatchSelection) ([]byte, error)
}

// BatchScheduler periodically calls Mempool.SelectBatch and drives the
// resulting batch to Proven or Reverted.
type BatchScheduler struct {
	loop   *tickLoop
	pool   *Mempool
	prover BatchProver
	logger zerolog.Logger
}

// NewBatchScheduler builds a scheduler that selects a batch every
// interval and proves it with prover.
func NewBatchScheduler(pool *Mempool, prover BatchProver, interval time.Duration) *BatchScheduler {
	s := &BatchScheduler{pool: pool, prover: prover, logger: logx.Component("batch-scheduler")}
	s.loop = newTickLoop(interval, s.tick)
	return s
}

func (s *BatchScheduler) Start(ctx context.Context) { s.loop.Start(ctx) }
func (s *BatchScheduler) Stop()                     { s.loop.Stop() }
func (s *BatchScheduler) Pause()                    { s.loop.Pause() }
func (s *BatchScheduler) Resume()                   { s.loop.Resume() }
func (s *BatchScheduler) State() SchedulerState     { return s.loop.State() }

func (s *BatchScheduler) tick(ctx context.Context) {
	sel := s.pool.SelectBatch()
	if sel == nil {
		return
	}
	proof, err := s.prover.ProveBatch(ctx, sel)
	if err != nil {
		s.logger.Warn().Err(err).Str("batch_id", sel.BatchID.String()).Msg("batch proving failed, reverting")
		s.pool.RevertBatch(sel.BatchID, err)
		return
	}
	if err := s.pool.CompleteBatch(sel.BatchID, proof); err != nil {
		s.logger.Error().Err(err).Str("batch_id", sel.BatchID.String()).Msg("batch proven but mempool lost track of it")
	}
}
