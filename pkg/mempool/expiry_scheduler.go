// Copyright 2025 Certen Protocol
//
// expiry_scheduler.go runs a periodic backstop sweep. Expiration is
// checked inline on every block commit (selection.go), so this mostly
// matters when the chain tip stalls for longer than a transaction's
// expiration window while it still sits Admitted.

package mempool

import (
	"context"
	"time"
)

// ExpiryScheduler periodically sweeps expired Admitted transactions.
type ExpiryScheduler struct {
	loop *tickLoop
	pool *Mempool
}

// NewExpiryScheduler builds a scheduler that runs ExpireSweep every interval.
func NewExpiryScheduler(pool *Mempool, interval time.Duration) *ExpiryScheduler {
	s := &ExpiryScheduler{pool: pool}
	s.loop = newTickLoop(interval, s.tick)
	return s
}

func (s *ExpiryScheduler) Start(ctx context.Context) { s.loop.Start(ctx) }
func (s *ExpiryScheduler) Stop()                     { s.loop.Stop() }
func (s *ExpiryScheduler) Pause()                    { s.loop.Pause() }
func (s *ExpiryScheduler) Resume()                   { s.loop.Resume() }
func (s *ExpiryScheduler) State() SchedulerState     { return s.loop.State() }

func (s *ExpiryScheduler) tick(_ context.Context) {
	s.pool.ExpireSweep()
}
