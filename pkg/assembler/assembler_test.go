// Copyright 2025 Certen Protocol

package assembler

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/miden-node/rollup/pkg/mempool"
	"github.com/miden-node/rollup/pkg/merkle"
	"github.com/miden-node/rollup/pkg/prover"
	"github.com/miden-node/rollup/pkg/protocol"
	"github.com/miden-node/rollup/pkg/store"
)

func digest(b byte) protocol.Digest {
	return protocol.Digest{uint64(b), 0, 0, 0}
}

func account(b byte) protocol.AccountID {
	return protocol.AccountID{uint64(b), 0}
}

func accountKey(id protocol.AccountID) protocol.Digest {
	return protocol.Digest{id[0], id[1], 0, 0}
}

// fakeTxSource is a minimal TransactionSource backed by plain maps,
// standing in for *mempool.Mempool.
type fakeTxSource struct {
	txs     map[protocol.Digest]protocol.Transaction
	batches map[uuid.UUID][]protocol.Digest
}

func newFakeTxSource() *fakeTxSource {
	return &fakeTxSource{
		txs:     make(map[protocol.Digest]protocol.Transaction),
		batches: make(map[uuid.UUID][]protocol.Digest),
	}
}

func (f *fakeTxSource) Transaction(id protocol.Digest) (protocol.Transaction, bool) {
	tx, ok := f.txs[id]
	return tx, ok
}

func (f *fakeTxSource) BatchTransactionIDs(batchID uuid.UUID) ([]protocol.Digest, bool) {
	ids, ok := f.batches[batchID]
	return ids, ok
}

// fakeStoreClient answers GetBlockInputs from pre-seeded account/nullifier
// trees and records every ApplyBlock call.
type fakeStoreClient struct {
	header     protocol.BlockHeader
	accounts   *merkle.SMT
	nullifiers *merkle.SMT
	mmr        *merkle.MMR

	applied []store.ProvenBlock
}

func (f *fakeStoreClient) GetBlockInputs(ctx context.Context, accountIDs []protocol.AccountID, nullifiers []protocol.Nullifier, unauthenticatedNoteIDs []protocol.Digest) (store.BlockInputs, error) {
	var out store.BlockInputs
	out.Header = f.header
	out.HasHeader = true
	out.MMRPeaks = f.mmr.Peaks()
	for _, id := range accountIDs {
		key := accountKey(id)
		out.Accounts = append(out.Accounts, store.AccountInput{
			ID:         id,
			Commitment: f.accounts.Get(key),
			Opening:    f.accounts.Prove(key),
		})
	}
	for _, n := range nullifiers {
		out.Nullifiers = append(out.Nullifiers, store.NullifierInput{
			Nullifier: n,
			Opening:   f.nullifiers.Prove(n),
		})
	}
	return out, nil
}

func (f *fakeStoreClient) ApplyBlock(ctx context.Context, block store.ProvenBlock) error {
	f.applied = append(f.applied, block)
	return nil
}

// fakeBatchInputs answers GetBatchInputs with no known notes: every
// requested id comes back missing.
type fakeBatchInputs struct{}

func (fakeBatchInputs) GetBatchInputs(ctx context.Context, unauthenticatedNoteIDs []protocol.Digest) (store.BatchInputs, error) {
	return store.BatchInputs{MissingUnauthenticatedIDs: unauthenticatedNoteIDs}, nil
}

func newTx(id byte, acct protocol.AccountID, initial, final protocol.Digest) protocol.Transaction {
	return protocol.Transaction{
		ID:                 digest(id),
		AccountID:          acct,
		InitialAccountHash: initial,
		FinalAccountHash:   final,
	}
}

func TestBatchAssemblerProveBatchEncodesTransactions(t *testing.T) {
	txs := newFakeTxSource()
	tx := newTx(1, account(1), digest(0), digest(1))
	txs.txs[tx.ID] = tx

	pool := prover.NewPool(&prover.SimulatedClient{}, prover.DefaultPoolConfig())
	a := NewBatchAssembler(txs, fakeBatchInputs{}, pool)

	sel := &mempool.BatchSelection{BatchID: uuid.New(), TxIDs: []protocol.Digest{tx.ID}}
	proof, err := a.ProveBatch(context.Background(), sel)
	require.NoError(t, err)
	require.NotEmpty(t, proof)
}

func TestBatchAssemblerProveBatchMissingTransactionErrors(t *testing.T) {
	txs := newFakeTxSource()
	pool := prover.NewPool(&prover.SimulatedClient{}, prover.DefaultPoolConfig())
	a := NewBatchAssembler(txs, fakeBatchInputs{}, pool)

	sel := &mempool.BatchSelection{BatchID: uuid.New(), TxIDs: []protocol.Digest{digest(9)}}
	_, err := a.ProveBatch(context.Background(), sel)
	require.Error(t, err)
}

func TestBlockAssemblerProveAndApplyBlockFoldsRoots(t *testing.T) {
	acctTree, err := merkle.NewSMT(merkle.AccountTreeDepth)
	require.NoError(t, err)
	nullifierTree, err := merkle.NewSMT(merkle.NullifierTreeDepth)
	require.NoError(t, err)

	acctA := account(1)
	acctB := account(2)
	acctTree.Put(accountKey(acctA), digest(10))
	acctTree.Put(accountKey(acctB), digest(20))

	mmr := merkle.NewMMR()
	mmr.Append(digest(0xAA))

	fakeStore := &fakeStoreClient{
		header: protocol.BlockHeader{
			BlockNum:      4,
			AccountRoot:   acctTree.Root(),
			NullifierRoot: nullifierTree.Root(),
		},
		accounts:   acctTree,
		nullifiers: nullifierTree,
		mmr:        mmr,
	}

	txA := newTx(1, acctA, digest(10), digest(11))
	txA.InputNullifiers = []protocol.Nullifier{digest(100)}
	txB := newTx(2, acctB, digest(20), digest(21))

	txs := newFakeTxSource()
	txs.txs[txA.ID] = txA
	txs.txs[txB.ID] = txB
	batchID := uuid.New()
	txs.batches[batchID] = []protocol.Digest{txA.ID, txB.ID}

	pool := prover.NewPool(&prover.SimulatedClient{}, prover.DefaultPoolConfig())
	a := NewBlockAssembler(txs, fakeStore, pool)

	sel := &mempool.BlockSelection{
		BlockNum:   5,
		BatchIDs:   []uuid.UUID{batchID},
		AccountIDs: []protocol.AccountID{acctA, acctB},
		Nullifiers: []protocol.Nullifier{digest(100)},
	}
	err = a.ProveAndApplyBlock(context.Background(), sel, map[uuid.UUID][]byte{batchID: []byte("batch-proof")})
	require.NoError(t, err)
	require.Len(t, fakeStore.applied, 1)

	applied := fakeStore.applied[0]
	require.Equal(t, protocol.BlockNumber(5), applied.Header.BlockNum)
	require.NotEqual(t, protocol.Digest{}, applied.Header.ProofHash)

	// The header's account root must match independently applying both
	// updates directly against the trees the openings were proved
	// against.
	acctTree.Put(accountKey(acctA), digest(11))
	acctTree.Put(accountKey(acctB), digest(21))
	require.Equal(t, acctTree.Root(), applied.Header.AccountRoot)

	var consumedAt protocol.Digest
	consumedAt[0] = uint64(5)
	nullifierTree.Put(digest(100), consumedAt)
	require.Equal(t, nullifierTree.Root(), applied.Header.NullifierRoot)
}

func TestBlockAssemblerMissingUnauthenticatedNoteErrors(t *testing.T) {
	acctTree, err := merkle.NewSMT(merkle.AccountTreeDepth)
	require.NoError(t, err)
	nullifierTree, err := merkle.NewSMT(merkle.NullifierTreeDepth)
	require.NoError(t, err)
	fakeStore := &fakeStoreClientWithMissingNotes{
		fakeStoreClient: fakeStoreClient{
			header:     protocol.BlockHeader{AccountRoot: acctTree.Root(), NullifierRoot: nullifierTree.Root()},
			accounts:   acctTree,
			nullifiers: nullifierTree,
			mmr:        merkle.NewMMR(),
		},
		missing: []protocol.Digest{digest(77)},
	}

	pool := prover.NewPool(&prover.SimulatedClient{}, prover.DefaultPoolConfig())
	a := NewBlockAssembler(newFakeTxSource(), fakeStore, pool)

	sel := &mempool.BlockSelection{BlockNum: 1, UnauthenticatedNoteIDs: []protocol.Digest{digest(77)}}
	err = a.ProveAndApplyBlock(context.Background(), sel, nil)
	require.Error(t, err)
}

type fakeStoreClientWithMissingNotes struct {
	fakeStoreClient
	missing []protocol.Digest
}

func (f *fakeStoreClientWithMissingNotes) GetBlockInputs(ctx context.Context, accountIDs []protocol.AccountID, nullifiers []protocol.Nullifier, unauthenticatedNoteIDs []protocol.Digest) (store.BlockInputs, error) {
	out, err := f.fakeStoreClient.GetBlockInputs(ctx, accountIDs, nullifiers, unauthenticatedNoteIDs)
	out.MissingUnauthenticatedIDs = f.missing
	return out, err
}
