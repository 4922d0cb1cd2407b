// Copyright 2025 Certen Protocol
//
// scenarios_test.go exercises the mempool's mutating operations
// end-to-end: batch and block selection, completion, revert cascades,
// and expiration. mempool_test.go covers the admission contract in
// isolation.

package mempool

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/miden-node/rollup/pkg/protocol"
)

func admit(t *testing.T, pool *Mempool, tx protocol.Transaction) {
	t.Helper()
	_, _, err := pool.AddTransaction(context.Background(), tx)
	require.NoError(t, err)
}

func TestRevertTransactionCascadesThroughAccountChain(t *testing.T) {
	store := newFakeStore(10)
	acct := account(1)
	store.accounts[acct] = digest(0)
	pool := New(DefaultConfig(), store)

	tx1 := newTx(1, acct, digest(0), digest(1), 100)
	tx2 := newTx(2, acct, digest(1), digest(2), 100)
	tx3 := newTx(3, acct, digest(2), digest(3), 100)
	admit(t, pool, tx1)
	admit(t, pool, tx2)
	admit(t, pool, tx3)

	pool.RevertTransaction(tx1.ID, ErrExpired)

	for _, id := range []protocol.Digest{tx1.ID, tx2.ID, tx3.ID} {
		status, ok := pool.TxStatus(id)
		require.True(t, ok)
		require.Equal(t, TxReverted, status)
	}
	_, hasHead := pool.accountHead[acct]
	require.False(t, hasHead)
}

func TestRevertTransactionCascadesThroughNoteDependency(t *testing.T) {
	store := newFakeStore(10)
	acctA, acctB := account(1), account(2)
	store.accounts[acctA] = digest(0)
	store.accounts[acctB] = digest(0)
	pool := New(DefaultConfig(), store)

	noteID := digest(42)
	tx1 := newTx(1, acctA, digest(0), digest(1), 100)
	tx1.OutputNotes = []protocol.Note{{ID: noteID}}
	admit(t, pool, tx1)

	tx2 := newTx(2, acctB, digest(0), digest(1), 100)
	tx2.UnauthenticatedIDs = []protocol.Digest{noteID}
	admit(t, pool, tx2)

	pool.RevertTransaction(tx1.ID, ErrInvariantViolation)

	status2, ok := pool.TxStatus(tx2.ID)
	require.True(t, ok)
	require.Equal(t, TxReverted, status2)
}

func TestSelectBatchRespectsDependencyOrder(t *testing.T) {
	store := newFakeStore(10)
	acct := account(1)
	store.accounts[acct] = digest(0)
	pool := New(DefaultConfig(), store)

	tx1 := newTx(1, acct, digest(0), digest(1), 100)
	tx2 := newTx(2, acct, digest(1), digest(2), 100)
	admit(t, pool, tx1)
	admit(t, pool, tx2)

	sel := pool.SelectBatch()
	require.NotNil(t, sel)
	require.Len(t, sel.TxIDs, 2)
	require.Equal(t, tx1.ID, sel.TxIDs[0])
	require.Equal(t, tx2.ID, sel.TxIDs[1])

	status1, _ := pool.TxStatus(tx1.ID)
	require.Equal(t, TxInBatch, status1)
}

func TestSelectBatchReturnsNilWhenNothingEligible(t *testing.T) {
	store := newFakeStore(10)
	pool := New(DefaultConfig(), store)
	require.Nil(t, pool.SelectBatch())
}

func TestBatchProverFailureRevertsBatchTransactions(t *testing.T) {
	store := newFakeStore(10)
	acct := account(1)
	store.accounts[acct] = digest(0)
	pool := New(DefaultConfig(), store)

	tx := newTx(1, acct, digest(0), digest(1), 100)
	admit(t, pool, tx)

	sel := pool.SelectBatch()
	require.NotNil(t, sel)

	pool.RevertBatch(sel.BatchID, ErrProverUnavailable)

	status, ok := pool.TxStatus(tx.ID)
	require.True(t, ok)
	require.Equal(t, TxReverted, status)
	b, ok := pool.batches[sel.BatchID]
	require.True(t, ok)
	require.Equal(t, BatchReverted, b.status)
}

func TestCompleteBatchThenSelectBlockThenCommit(t *testing.T) {
	store := newFakeStore(10)
	acct := account(1)
	store.accounts[acct] = digest(0)
	pool := New(DefaultConfig(), store)

	tx := newTx(1, acct, digest(0), digest(1), 100)
	admit(t, pool, tx)

	sel := pool.SelectBatch()
	require.NotNil(t, sel)
	require.NoError(t, pool.CompleteBatch(sel.BatchID, []byte("proof")))

	proof, ok := pool.BatchProof(sel.BatchID)
	require.True(t, ok)
	require.Equal(t, []byte("proof"), proof)

	blockSel := pool.SelectBlock()
	require.NotNil(t, blockSel)
	require.Equal(t, protocol.BlockNumber(11), blockSel.BlockNum)
	require.Contains(t, blockSel.BatchIDs, sel.BatchID)

	require.NoError(t, pool.CommitBlock(blockSel.BlockNum))

	_, stillTracked := pool.txs[tx.ID]
	require.False(t, stillTracked)
	_, stillBatched := pool.batches[sel.BatchID]
	require.False(t, stillBatched)
	tip, hasTip := pool.Tip()
	require.True(t, hasTip)
	require.Equal(t, protocol.BlockNumber(11), tip)
}

func TestSelectBlockNilWhenNoProvenBatches(t *testing.T) {
	store := newFakeStore(10)
	pool := New(DefaultConfig(), store)
	require.Nil(t, pool.SelectBlock())
}

func TestSelectBlockNilWhileBlockAlreadyBuilding(t *testing.T) {
	store := newFakeStore(10)
	acct := account(1)
	store.accounts[acct] = digest(0)
	pool := New(DefaultConfig(), store)

	tx1 := newTx(1, acct, digest(0), digest(1), 100)
	admit(t, pool, tx1)
	sel1 := pool.SelectBatch()
	require.NoError(t, pool.CompleteBatch(sel1.BatchID, nil))
	blockSel := pool.SelectBlock()
	require.NotNil(t, blockSel)

	tx2 := newTx(2, acct, digest(1), digest(2), 100)
	admit(t, pool, tx2)
	sel2 := pool.SelectBatch()
	require.NoError(t, pool.CompleteBatch(sel2.BatchID, nil))

	require.Nil(t, pool.SelectBlock())
}

func TestRevertBlockOnlyAllowedWhileBuilding(t *testing.T) {
	store := newFakeStore(10)
	acct := account(1)
	store.accounts[acct] = digest(0)
	pool := New(DefaultConfig(), store)

	tx := newTx(1, acct, digest(0), digest(1), 100)
	admit(t, pool, tx)
	sel := pool.SelectBatch()
	require.NoError(t, pool.CompleteBatch(sel.BatchID, nil))
	blockSel := pool.SelectBlock()
	require.NotNil(t, blockSel)

	require.NoError(t, pool.RevertBlock(blockSel.BlockNum, ErrProverUnavailable))

	status, ok := pool.TxStatus(tx.ID)
	require.True(t, ok)
	require.Equal(t, TxReverted, status)

	require.ErrorIs(t, pool.RevertBlock(blockSel.BlockNum, ErrProverUnavailable), ErrUnknownTransaction)
}

func TestExpireSweepRevertsAdmittedPastExpiration(t *testing.T) {
	store := newFakeStore(10)
	acct := account(1)
	store.accounts[acct] = digest(0)
	pool := New(DefaultConfig(), store)

	tx := newTx(1, acct, digest(0), digest(1), 11)
	admit(t, pool, tx)

	pool.mu.Lock()
	pool.tip = 11
	pool.mu.Unlock()

	pool.ExpireSweep()

	status, ok := pool.TxStatus(tx.ID)
	require.True(t, ok)
	require.Equal(t, TxReverted, status)
}

// stubBatchProver always succeeds with a fixed proof.
type stubBatchProver struct{ proof []byte }

func (s stubBatchProver) ProveBatch(ctx context.Context, sel *BatchSelection) ([]byte, error) {
	return s.proof, nil
}

// stubBlockAssembler always succeeds without touching the Store.
type stubBlockAssembler struct{}

func (stubBlockAssembler) ProveAndApplyBlock(ctx context.Context, sel *BlockSelection, batchProofs map[uuid.UUID][]byte) error {
	return nil
}

func TestBatchSchedulerTickCompletesEligibleBatch(t *testing.T) {
	store := newFakeStore(10)
	acct := account(1)
	store.accounts[acct] = digest(0)
	pool := New(DefaultConfig(), store)

	tx := newTx(1, acct, digest(0), digest(1), 100)
	admit(t, pool, tx)

	sched := NewBatchScheduler(pool, stubBatchProver{proof: []byte("ok")}, 0)
	sched.tick(context.Background())

	found := false
	for _, b := range pool.batches {
		if b.status == BatchProven {
			found = true
		}
	}
	require.True(t, found)
}

func TestBlockSchedulerTickCommitsEligibleBlock(t *testing.T) {
	store := newFakeStore(10)
	acct := account(1)
	store.accounts[acct] = digest(0)
	pool := New(DefaultConfig(), store)

	tx := newTx(1, acct, digest(0), digest(1), 100)
	admit(t, pool, tx)
	sel := pool.SelectBatch()
	require.NoError(t, pool.CompleteBatch(sel.BatchID, []byte("p")))

	sched := NewBlockScheduler(pool, stubBlockAssembler{}, 0)
	sched.tick(context.Background())

	tip, hasTip := pool.Tip()
	require.True(t, hasTip)
	require.Equal(t, protocol.BlockNumber(11), tip)
}
