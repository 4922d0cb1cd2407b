// Copyright 2025 Certen Protocol

package mempool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miden-node/rollup/pkg/protocol"
)

// fakeStore is a minimal in-memory StoreClient stand-in: accounts start
// at a configured commitment, nullifiers are tracked in a set, and every
// note id is "unknown" unless explicitly registered.
type fakeStore struct {
	tip        protocol.BlockNumber
	hasTip     bool
	accounts   map[protocol.AccountID]protocol.Digest
	consumed   map[protocol.Nullifier]protocol.BlockNumber
	knownNotes map[protocol.Digest]bool
}

func newFakeStore(tip protocol.BlockNumber) *fakeStore {
	return &fakeStore{
		tip:        tip,
		hasTip:     true,
		accounts:   make(map[protocol.AccountID]protocol.Digest),
		consumed:   make(map[protocol.Nullifier]protocol.BlockNumber),
		knownNotes: make(map[protocol.Digest]bool),
	}
}

func (f *fakeStore) Tip() (protocol.BlockNumber, bool) { return f.tip, f.hasTip }

func (f *fakeStore) GetTransactionInputs(ctx context.Context, accountID protocol.AccountID, nullifiers []protocol.Nullifier, unauthenticatedNoteIDs []protocol.Digest) (TransactionInputs, error) {
	blocks := make(map[protocol.Nullifier]protocol.BlockNumber, len(nullifiers))
	for _, n := range nullifiers {
		blocks[n] = f.consumed[n]
	}
	var missing []protocol.Digest
	for _, id := range unauthenticatedNoteIDs {
		if !f.knownNotes[id] {
			missing = append(missing, id)
		}
	}
	return TransactionInputs{
		AccountCommitment:         f.accounts[accountID],
		NullifierBlocks:           blocks,
		MissingUnauthenticatedIDs: missing,
	}, nil
}

func digest(b byte) protocol.Digest {
	return protocol.Digest{uint64(b), 0, 0, 0}
}

func account(b byte) protocol.AccountID {
	return protocol.AccountID{uint64(b), 0}
}

func newTx(id byte, acct protocol.AccountID, initial, final protocol.Digest, expiry protocol.BlockNumber) protocol.Transaction {
	return protocol.Transaction{
		ID:                 digest(id),
		AccountID:          acct,
		InitialAccountHash: initial,
		FinalAccountHash:   final,
		ExpirationBlockNum: expiry,
	}
}

func TestAddTransactionGenesisAccount(t *testing.T) {
	store := newFakeStore(10)
	acct := account(1)
	store.accounts[acct] = digest(0)

	pool := New(DefaultConfig(), store)
	tx := newTx(1, acct, digest(0), digest(1), 100)

	id, tip, err := pool.AddTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, tx.ID, id)
	require.Equal(t, protocol.BlockNumber(10), tip)

	status, ok := pool.TxStatus(tx.ID)
	require.True(t, ok)
	require.Equal(t, TxAdmitted, status)
}

func TestAddTransactionIsIdempotent(t *testing.T) {
	store := newFakeStore(10)
	acct := account(1)
	store.accounts[acct] = digest(0)

	pool := New(DefaultConfig(), store)
	tx := newTx(1, acct, digest(0), digest(1), 100)

	id1, tip1, err := pool.AddTransaction(context.Background(), tx)
	require.NoError(t, err)
	id2, tip2, err := pool.AddTransaction(context.Background(), tx)
	require.NoError(t, err)

	require.Equal(t, id1, id2)
	require.Equal(t, tip1, tip2)
	require.Len(t, pool.txs, 1)
}

func TestAddTransactionRejectsAccountStateMismatch(t *testing.T) {
	store := newFakeStore(10)
	acct := account(1)
	store.accounts[acct] = digest(0)

	pool := New(DefaultConfig(), store)
	tx := newTx(1, acct, digest(99), digest(1), 100) // wrong initial hash

	_, _, err := pool.AddTransaction(context.Background(), tx)
	require.ErrorIs(t, err, ErrAccountStateMismatch)
}

func TestAddTransactionChainsOnAccount(t *testing.T) {
	store := newFakeStore(10)
	acct := account(1)
	store.accounts[acct] = digest(0)

	pool := New(DefaultConfig(), store)
	tx1 := newTx(1, acct, digest(0), digest(1), 100)
	_, _, err := pool.AddTransaction(context.Background(), tx1)
	require.NoError(t, err)

	tx2 := newTx(2, acct, digest(1), digest(2), 100)
	_, _, err = pool.AddTransaction(context.Background(), tx2)
	require.NoError(t, err)

	require.Equal(t, tx2.ID, pool.accountHead[acct])
	require.Equal(t, tx1.ID, pool.txs[tx2.ID].accountParent)
}

func TestAddTransactionRejectsExpired(t *testing.T) {
	store := newFakeStore(10)
	acct := account(1)
	store.accounts[acct] = digest(0)

	pool := New(DefaultConfig(), store)
	tx := newTx(1, acct, digest(0), digest(1), 10) // expiration == tip

	_, _, err := pool.AddTransaction(context.Background(), tx)
	require.ErrorIs(t, err, ErrExpired)
}

func TestAddTransactionRejectsDoubleSpendAcrossTransactions(t *testing.T) {
	store := newFakeStore(10)
	acctA := account(1)
	acctB := account(2)
	store.accounts[acctA] = digest(0)
	store.accounts[acctB] = digest(0)

	pool := New(DefaultConfig(), store)
	nullifier := digest(50)

	tx1 := newTx(1, acctA, digest(0), digest(1), 100)
	tx1.InputNullifiers = []protocol.Nullifier{nullifier}
	_, _, err := pool.AddTransaction(context.Background(), tx1)
	require.NoError(t, err)

	tx2 := newTx(2, acctB, digest(0), digest(1), 100)
	tx2.InputNullifiers = []protocol.Nullifier{nullifier}
	_, _, err = pool.AddTransaction(context.Background(), tx2)
	require.ErrorIs(t, err, ErrDoubleSpend)
}

func TestAddTransactionRejectsAlreadyConsumedOnChain(t *testing.T) {
	store := newFakeStore(10)
	acct := account(1)
	store.accounts[acct] = digest(0)
	nullifier := digest(50)
	store.consumed[nullifier] = 3

	pool := New(DefaultConfig(), store)
	tx := newTx(1, acct, digest(0), digest(1), 100)
	tx.InputNullifiers = []protocol.Nullifier{nullifier}

	_, _, err := pool.AddTransaction(context.Background(), tx)
	require.ErrorIs(t, err, ErrDoubleSpend)
}

func TestAddTransactionUnauthenticatedNoteSatisfiedByMempool(t *testing.T) {
	store := newFakeStore(10)
	acctA := account(1)
	acctB := account(2)
	store.accounts[acctA] = digest(0)
	store.accounts[acctB] = digest(0)

	pool := New(DefaultConfig(), store)

	noteID := digest(77)
	tx1 := newTx(1, acctA, digest(0), digest(1), 100)
	tx1.OutputNotes = []protocol.Note{{ID: noteID}}
	_, _, err := pool.AddTransaction(context.Background(), tx1)
	require.NoError(t, err)

	tx2 := newTx(2, acctB, digest(0), digest(1), 100)
	tx2.UnauthenticatedIDs = []protocol.Digest{noteID}
	_, _, err = pool.AddTransaction(context.Background(), tx2)
	require.NoError(t, err)

	require.Contains(t, pool.txs[tx1.ID].children, tx2.ID)
}

func TestAddTransactionRejectsUnknownUnauthenticatedNote(t *testing.T) {
	store := newFakeStore(10)
	acct := account(1)
	store.accounts[acct] = digest(0)

	pool := New(DefaultConfig(), store)
	tx := newTx(1, acct, digest(0), digest(1), 100)
	tx.UnauthenticatedIDs = []protocol.Digest{digest(200)}

	_, _, err := pool.AddTransaction(context.Background(), tx)
	require.ErrorIs(t, err, ErrUnknownUnauthenticatedNote)
}

func TestAddTransactionRejectsLimitExceeded(t *testing.T) {
	store := newFakeStore(10)
	acct := account(1)
	store.accounts[acct] = digest(0)

	cfg := DefaultConfig()
	cfg.MaxOutputNotesPerTx = 1
	pool := New(cfg, store)

	tx := newTx(1, acct, digest(0), digest(1), 100)
	tx.OutputNotes = []protocol.Note{{ID: digest(10)}, {ID: digest(11)}}

	_, _, err := pool.AddTransaction(context.Background(), tx)
	require.ErrorIs(t, err, ErrLimitExceeded)
}
