// Copyright 2025 Certen Protocol
//
// e2e_test.go drives the full production pipeline - admission, batch
// selection and proving, block selection, witness assembly, apply_block -
// against a real Store on a temporary data directory, with the simulated
// prover standing in for the remote endpoints.

package assembler

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/miden-node/rollup/pkg/config"
	"github.com/miden-node/rollup/pkg/mempool"
	"github.com/miden-node/rollup/pkg/prover"
	"github.com/miden-node/rollup/pkg/protocol"
	"github.com/miden-node/rollup/pkg/store"
)

// localStore adapts an in-process *store.Store to mempool.StoreClient,
// the same surface cmd/blockproducer reaches over RPC.
type localStore struct {
	st *store.Store
}

func (l *localStore) Tip() (protocol.BlockNumber, bool) { return l.st.Tip() }

func (l *localStore) GetTransactionInputs(ctx context.Context, accountID protocol.AccountID, nullifiers []protocol.Nullifier, unauthenticatedNoteIDs []protocol.Digest) (mempool.TransactionInputs, error) {
	in, err := l.st.GetTransactionInputs(ctx, accountID, nullifiers, unauthenticatedNoteIDs)
	if err != nil {
		return mempool.TransactionInputs{}, err
	}
	return mempool.TransactionInputs{
		AccountCommitment:         in.AccountCommitment,
		NullifierBlocks:           in.NullifierBlocks,
		MissingUnauthenticatedIDs: in.MissingUnauthenticatedIDs,
	}, nil
}

type pipeline struct {
	st       *store.Store
	pool     *mempool.Mempool
	batchAsm *BatchAssembler
	blockAsm *BlockAssembler
}

func newPipeline(t *testing.T, genesisAccounts map[protocol.AccountID]protocol.Account) *pipeline {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, &config.Config{
		DataDir:             t.TempDir(),
		DBMaxOpenConns:      4,
		DBMaxIdleConns:      2,
		NullifierPrefixBits: 16,
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	genesis := store.ProvenBlock{
		Header:   protocol.BlockHeader{BlockNum: 0},
		Accounts: genesisAccounts,
	}
	require.NoError(t, st.ApplyBlock(ctx, genesis))

	pool := mempool.New(mempool.DefaultConfig(), &localStore{st: st})
	provers := prover.NewPool(&prover.SimulatedClient{}, prover.DefaultPoolConfig())

	return &pipeline{
		st:       st,
		pool:     pool,
		batchAsm: NewBatchAssembler(pool, st, provers),
		blockAsm: NewBlockAssembler(pool, st, provers),
	}
}

// produceBlock drains every eligible batch, proves each, then selects,
// proves, applies, and commits the next block, returning its number.
func (p *pipeline) produceBlock(t *testing.T) protocol.BlockNumber {
	t.Helper()
	ctx := context.Background()

	proofs := make(map[uuid.UUID][]byte)
	for {
		sel := p.pool.SelectBatch()
		if sel == nil {
			break
		}
		proof, err := p.batchAsm.ProveBatch(ctx, sel)
		require.NoError(t, err)
		require.NoError(t, p.pool.CompleteBatch(sel.BatchID, proof))
		proofs[sel.BatchID] = proof
	}

	blockSel := p.pool.SelectBlock()
	require.NotNil(t, blockSel)
	batchProofs := make(map[uuid.UUID][]byte, len(blockSel.BatchIDs))
	for _, id := range blockSel.BatchIDs {
		batchProofs[id] = proofs[id]
	}
	require.NoError(t, p.blockAsm.ProveAndApplyBlock(ctx, blockSel, batchProofs))
	require.NoError(t, p.pool.CommitBlock(blockSel.BlockNum))
	return blockSel.BlockNum
}

func newE2ETx(id byte, acct protocol.AccountID, initial, final protocol.Digest) protocol.Transaction {
	return protocol.Transaction{
		ID:                 digest(id),
		AccountID:          acct,
		InitialAccountHash: initial,
		FinalAccountHash:   final,
		ExpirationBlockNum: 1000,
	}
}

// TestGenesisThenOneTransaction: one admitted transaction flows through
// a batch into block 1, and every read surface agrees.
func TestGenesisThenOneTransaction(t *testing.T) {
	ctx := context.Background()
	acctA := account(1)
	c0 := digest(10)
	p := newPipeline(t, map[protocol.AccountID]protocol.Account{
		acctA: {ID: acctA, Commitment: c0},
	})

	noteID := digest(0x4E)
	tx := newE2ETx(1, acctA, c0, digest(11))
	tx.OutputNotes = []protocol.Note{{
		ID:       noteID,
		Metadata: protocol.NoteMetadata{Sender: acctA, Tag: 0x12340000},
	}}
	_, _, err := p.pool.AddTransaction(ctx, tx)
	require.NoError(t, err)

	committed := p.produceBlock(t)
	require.Equal(t, protocol.BlockNumber(1), committed)

	acct, err := p.st.GetAccountDetails(ctx, acctA)
	require.NoError(t, err)
	require.Equal(t, digest(11), acct.Commitment)

	notes, err := p.st.GetNotesByID(ctx, []protocol.Digest{noteID})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, protocol.BlockNumber(1), notes[0].BlockNum)

	sync, err := p.st.SyncState(ctx, 0, []protocol.AccountID{acctA}, []uint16{0x1234}, nil)
	require.NoError(t, err)
	require.Equal(t, protocol.BlockNumber(1), sync.Header.BlockNum)
	require.Len(t, sync.AccountUpdates, 1)
}

// TestDoubleSpendRejectedThenNullifierRecorded: a second transaction
// consuming the same nullifier is rejected at admission, and after
// commit the nullifier opens with the consuming block number.
func TestDoubleSpendRejectedThenNullifierRecorded(t *testing.T) {
	ctx := context.Background()
	acctA := account(1)
	c1 := digest(11)
	p := newPipeline(t, map[protocol.AccountID]protocol.Account{
		acctA: {ID: acctA, Commitment: c1},
	})

	nullifier := digest(0x99)
	tx2 := newE2ETx(2, acctA, c1, digest(12))
	tx2.InputNullifiers = []protocol.Nullifier{nullifier}
	_, _, err := p.pool.AddTransaction(ctx, tx2)
	require.NoError(t, err)

	tx3 := newE2ETx(3, acctA, c1, digest(13))
	tx3.InputNullifiers = []protocol.Nullifier{nullifier}
	_, _, err = p.pool.AddTransaction(ctx, tx3)
	require.ErrorIs(t, err, mempool.ErrDoubleSpend)

	committed := p.produceBlock(t)

	results := p.st.CheckNullifiers([]protocol.Nullifier{nullifier})
	require.Len(t, results, 1)
	require.Equal(t, committed, results[0].ConsumedAt)
}

// TestUnauthenticatedNoteSatisfiedInSameBlock: a note created and
// consumed within the same block never exists in the Store when block
// inputs are fetched, and the producer must satisfy it from the block's
// own transactions.
func TestUnauthenticatedNoteSatisfiedInSameBlock(t *testing.T) {
	ctx := context.Background()
	acctA, acctB := account(1), account(2)
	c0 := digest(10)
	p := newPipeline(t, map[protocol.AccountID]protocol.Account{
		acctA: {ID: acctA, Commitment: c0},
	})

	noteID := digest(0x4F)
	txA := newE2ETx(1, acctA, c0, digest(11))
	txA.OutputNotes = []protocol.Note{{ID: noteID, Metadata: protocol.NoteMetadata{Sender: acctA, Tag: 0xBEEF0000}}}
	_, _, err := p.pool.AddTransaction(ctx, txA)
	require.NoError(t, err)

	txB := newE2ETx(2, acctB, protocol.Digest{}, digest(21))
	txB.UnauthenticatedIDs = []protocol.Digest{noteID}
	_, _, err = p.pool.AddTransaction(ctx, txB)
	require.NoError(t, err)

	committed := p.produceBlock(t)

	notes, err := p.st.GetNotesByID(ctx, []protocol.Digest{noteID})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, committed, notes[0].BlockNum)

	acctBDetails, err := p.st.GetAccountDetails(ctx, acctB)
	require.NoError(t, err)
	require.Equal(t, digest(21), acctBDetails.Commitment)
}
