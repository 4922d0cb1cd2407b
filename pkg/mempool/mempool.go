// Copyright 2025 Certen Protocol
//
// Package mempool implements the Block Producer's in-memory DAG of
// transaction/batch/block nodes: admission, batch/block selection,
// revert propagation, and expiration sweep. The pool is an arena of DAG
// nodes addressed by stable ids, plus the indices needed to walk
// per-account and per-note dependency chains.
package mempool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/miden-node/rollup/pkg/logx"
	"github.com/miden-node/rollup/pkg/protocol"
	"github.com/miden-node/rollup/pkg/rolluperr"
	"github.com/miden-node/rollup/pkg/server"
)

// TransactionInputs is the subset of the Store's get_transaction_inputs
// response admission needs. Declared locally (rather than importing
// pkg/store) so the mempool can run against either an in-process Store
// or an RPC client implementing the same shape - the Store and Block
// Producer are separate services connected only by pkg/rpc.
type TransactionInputs struct {
	AccountCommitment         protocol.Digest
	NullifierBlocks           map[protocol.Nullifier]protocol.BlockNumber
	MissingUnauthenticatedIDs []protocol.Digest
}

// StoreClient is the Store surface the mempool depends on. It abstracts
// "ask the source of truth" so the mempool never imports pkg/store
// directly and can run against either an in-process Store or an RPC
// client.
type StoreClient interface {
	GetTransactionInputs(ctx context.Context, accountID protocol.AccountID, nullifiers []protocol.Nullifier, unauthenticatedNoteIDs []protocol.Digest) (TransactionInputs, error)
	Tip() (protocol.BlockNumber, bool)
}

// Config holds the mempool's scheduling cadences and size limits,
// mirroring pkg/config.Config's mempool knobs so cmd/blockproducer can
// pass them through unchanged.
type Config struct {
	BatchSelectInterval time.Duration
	BlockSelectInterval time.Duration
	ExpirySweepInterval time.Duration

	MaxAccountsPerBlock int
	MaxNotesPerBlock    int
	MaxInputNotesPerTx  int
	MaxOutputNotesPerTx int
	MaxTxPerBatch       int
	MaxBatchesPerBlock  int
}

// DefaultConfig returns conservative defaults, overridden in production
// by pkg/config.
func DefaultConfig() *Config {
	return &Config{
		BatchSelectInterval: 2 * time.Second,
		BlockSelectInterval: 5 * time.Second,
		ExpirySweepInterval: 10 * time.Second,
		MaxAccountsPerBlock: 64,
		MaxNotesPerBlock:    1024,
		MaxInputNotesPerTx:  16,
		MaxOutputNotesPerTx: 16,
		MaxTxPerBatch:       32,
		MaxBatchesPerBlock:  16,
	}
}

// RevertHook, if set, is called whenever a transaction is reverted.
// Left unset by default: whether a revert should notify the submitting
// client is an open product question, so only the seam exists here.
type RevertHook func(txID protocol.Digest, reason error)

type txNode struct {
	tx       protocol.Transaction
	status   TxStatus
	batchID  uuid.UUID
	blockNum protocol.BlockNumber
	seq      uint64 // submission order, used for age-based FIFO batch selection

	accountParent protocol.Digest // zero if this is the first inflight tx on its account
	noteParents   []protocol.Digest
	children      []protocol.Digest // account successor plus note consumers
}

type batchNode struct {
	id            uuid.UUID
	txIDs         []protocol.Digest
	status        BatchStatus
	blockNum      protocol.BlockNumber
	parentBatches map[uuid.UUID]struct{}
	proof         []byte
	seq           uint64
}

type blockNode struct {
	blockNum protocol.BlockNumber
	batchIDs []uuid.UUID
	status   BlockStatus
}

// Mempool is the Block Producer's single process-wide mutable state.
// Every mutating operation acquires mu, does a bounded amount of work,
// and releases before any external I/O runs.
type Mempool struct {
	mu     sync.Mutex
	cfg    *Config
	store  StoreClient
	logger zerolog.Logger

	revertHook RevertHook

	txs     map[protocol.Digest]*txNode
	batches map[uuid.UUID]*batchNode
	blocks  map[protocol.BlockNumber]*blockNode

	accountHead    map[protocol.AccountID]protocol.Digest
	nullifierOwner map[protocol.Nullifier]protocol.Digest
	noteCreator    map[protocol.Digest]protocol.Digest
	noteConsumer   map[protocol.Digest][]protocol.Digest

	tip    protocol.BlockNumber
	hasTip bool

	nextSeq      uint64
	nextBatchSeq uint64
}

// New builds a Mempool backed by store. It loads the current tip so the
// first admission's expiration check has a reference point even before
// any block commits through this process.
func New(cfg *Config, store StoreClient) *Mempool {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	tip, hasTip := store.Tip()
	return &Mempool{
		cfg:            cfg,
		store:          store,
		logger:         logx.Component("mempool"),
		txs:            make(map[protocol.Digest]*txNode),
		batches:        make(map[uuid.UUID]*batchNode),
		blocks:         make(map[protocol.BlockNumber]*blockNode),
		accountHead:    make(map[protocol.AccountID]protocol.Digest),
		nullifierOwner: make(map[protocol.Nullifier]protocol.Digest),
		noteCreator:    make(map[protocol.Digest]protocol.Digest),
		noteConsumer:   make(map[protocol.Digest][]protocol.Digest),
		tip:            tip,
		hasTip:         hasTip,
	}
}

// SetRevertHook installs the callback invoked on every transaction
// revert. It takes the mempool mutex, so it may be called concurrently
// with mutating operations.
func (m *Mempool) SetRevertHook(hook RevertHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revertHook = hook
}

// AddTransaction admits a pre-verified transaction: the expected
// account commitment, nullifier freshness, unauthenticated-note
// dependencies, and expiration are all checked before the node joins
// the DAG. Idempotent: re-submitting an already-admitted transaction
// (same protocol.Transaction.ID) returns its existing id without
// mutating state.
func (m *Mempool) AddTransaction(ctx context.Context, tx protocol.Transaction) (protocol.Digest, protocol.BlockNumber, error) {
	m.mu.Lock()
	if _, ok := m.txs[tx.ID]; ok {
		tip, hasTip := m.tip, m.hasTip
		m.mu.Unlock()
		if !hasTip {
			return tx.ID, 0, nil
		}
		return tx.ID, tip, nil
	}
	tip, hasTip := m.tip, m.hasTip
	accountParent, hasParent := m.accountHead[tx.AccountID]
	noteParents := m.collectNoteParentsLocked(tx.UnauthenticatedIDs)
	m.mu.Unlock()

	if !hasTip {
		return protocol.Digest{}, 0, rolluperr.Wrap(rolluperr.ErrMalformed, "chain has no genesis yet")
	}
	if tx.ExpirationBlockNum <= tip {
		return protocol.Digest{}, 0, rolluperr.Wrap(rolluperr.ErrExpired, "expiration_block %d does not exceed tip %d", tx.ExpirationBlockNum, tip)
	}

	var expected protocol.Digest
	var nullifierBlocks map[protocol.Nullifier]protocol.BlockNumber
	var storeMissing []protocol.Digest
	if hasParent {
		m.mu.Lock()
		parent, ok := m.txs[accountParent]
		m.mu.Unlock()
		if !ok {
			return protocol.Digest{}, 0, rolluperr.Wrap(rolluperr.ErrInvariantViolation, "account head %x references an unknown transaction", accountParent.Bytes())
		}
		expected = parent.tx.FinalAccountHash
	}

	// Notes already satisfied by another inflight mempool transaction
	// never need to reach the Store.
	var storeQueryNotes []protocol.Digest
	for _, id := range tx.UnauthenticatedIDs {
		if _, satisfied := noteParents[id]; !satisfied {
			storeQueryNotes = append(storeQueryNotes, id)
		}
	}

	inputs, err := m.store.GetTransactionInputs(ctx, tx.AccountID, tx.InputNullifiers, storeQueryNotes)
	if err != nil {
		return protocol.Digest{}, 0, rolluperr.Wrap(rolluperr.ErrStoreUnavailable, "get_transaction_inputs: %v", err)
	}
	nullifierBlocks = inputs.NullifierBlocks
	storeMissing = inputs.MissingUnauthenticatedIDs
	if !hasParent {
		expected = inputs.AccountCommitment
	}

	if tx.InitialAccountHash != expected {
		return protocol.Digest{}, 0, rolluperr.Wrap(rolluperr.ErrAccountStateMismatch,
			"transaction %x initial commitment does not match expected %x", tx.ID.Bytes(), expected.Bytes())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check the account chain under the lock: a concurrent admission
	// on the same account may have advanced accountHead since we read it.
	if currentHead, ok := m.accountHead[tx.AccountID]; ok != hasParent || currentHead != accountParent {
		return protocol.Digest{}, 0, rolluperr.Wrap(rolluperr.ErrAccountStateMismatch,
			"account %x advanced concurrently during admission", tx.AccountID.Bytes())
	}

	// Re-check nullifiers against mempool state under the lock: another
	// admission may have claimed one since the store round trip.
	seen := make(map[protocol.Nullifier]bool, len(tx.InputNullifiers))
	for _, n := range tx.InputNullifiers {
		if seen[n] {
			return protocol.Digest{}, 0, rolluperr.Wrap(rolluperr.ErrDoubleSpend, "nullifier double-spent within the same transaction")
		}
		seen[n] = true
		if _, owned := m.nullifierOwner[n]; owned {
			return protocol.Digest{}, 0, rolluperr.Wrap(rolluperr.ErrDoubleSpend, "nullifier already claimed in mempool")
		}
		if consumedAt, ok := nullifierBlocks[n]; ok && consumedAt != 0 {
			return protocol.Digest{}, 0, rolluperr.Wrap(rolluperr.ErrDoubleSpend, "nullifier already consumed on chain at block %d", consumedAt)
		}
	}

	missing := make(map[protocol.Digest]bool, len(storeMissing))
	for _, id := range storeMissing {
		missing[id] = true
	}
	for _, id := range tx.UnauthenticatedIDs {
		if _, satisfiedByMempool := noteParents[id]; satisfiedByMempool {
			continue
		}
		if missing[id] {
			return protocol.Digest{}, 0, rolluperr.Wrap(rolluperr.ErrUnknownUnauthenticatedNote, "unauthenticated note %x not found", id.Bytes())
		}
	}

	if len(tx.UnauthenticatedIDs) > m.cfg.MaxInputNotesPerTx {
		return protocol.Digest{}, 0, rolluperr.Wrap(rolluperr.ErrLimitExceeded, "transaction references %d unauthenticated notes, limit %d", len(tx.UnauthenticatedIDs), m.cfg.MaxInputNotesPerTx)
	}
	if len(tx.OutputNotes) > m.cfg.MaxOutputNotesPerTx {
		return protocol.Digest{}, 0, rolluperr.Wrap(rolluperr.ErrLimitExceeded, "transaction creates %d notes, limit %d", len(tx.OutputNotes), m.cfg.MaxOutputNotesPerTx)
	}

	node := &txNode{
		tx:            tx,
		status:        TxAdmitted,
		accountParent: accountParent,
		seq:           m.nextSeq,
	}
	m.nextSeq++
	m.txs[tx.ID] = node
	m.accountHead[tx.AccountID] = tx.ID
	if hasParent {
		m.addChildLocked(accountParent, tx.ID)
	}
	for _, n := range tx.InputNullifiers {
		m.nullifierOwner[n] = tx.ID
	}
	creatorSeen := make(map[protocol.Digest]bool, len(noteParents))
	for noteID, creatorTx := range noteParents {
		m.noteConsumer[noteID] = append(m.noteConsumer[noteID], tx.ID)
		if !creatorSeen[creatorTx] {
			creatorSeen[creatorTx] = true
			node.noteParents = append(node.noteParents, creatorTx)
			m.addChildLocked(creatorTx, tx.ID)
		}
	}
	for _, n := range tx.OutputNotes {
		m.noteCreator[n.ID] = tx.ID
	}

	if err := m.verifyMempoolInvariants(); err != nil {
		m.logger.Error().Err(err).Msg("mempool invariant violation after admission")
		return protocol.Digest{}, 0, err
	}

	server.MempoolTransactionsAdmitted.Inc()
	m.logger.Info().
		Str("account_id", hexAccountID(tx.AccountID)).
		Uint32("expiration_block", uint32(tx.ExpirationBlockNum)).
		Msg("transaction admitted")
	return tx.ID, tip, nil
}

// collectNoteParentsLocked returns, of noteIDs, those created by an
// already-admitted mempool transaction, mapped to that transaction's id.
// Callers must already hold m.mu.
func (m *Mempool) collectNoteParentsLocked(noteIDs []protocol.Digest) map[protocol.Digest]protocol.Digest {
	out := make(map[protocol.Digest]protocol.Digest)
	for _, id := range noteIDs {
		if creator, ok := m.noteCreator[id]; ok {
			if n, ok := m.txs[creator]; ok && n.status != TxReverted {
				out[id] = creator
			}
		}
	}
	return out
}

func (m *Mempool) addChildLocked(parent, child protocol.Digest) {
	if n, ok := m.txs[parent]; ok {
		n.children = append(n.children, child)
	}
}

func hexAccountID(id protocol.AccountID) string {
	b := id.Bytes()
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0xf]
	}
	return string(out)
}

// Tip returns the mempool's current view of the committed chain tip.
func (m *Mempool) Tip() (protocol.BlockNumber, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tip, m.hasTip
}

// TxStatus returns the current status of a tracked transaction.
func (m *Mempool) TxStatus(id protocol.Digest) (TxStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.txs[id]
	if !ok {
		return "", false
	}
	return n.status, true
}

// Transaction returns the full record for a still-tracked transaction,
// used by witness assembly to recover the created notes, deltas, and
// account ids a selection's ids alone don't carry.
func (m *Mempool) Transaction(id protocol.Digest) (protocol.Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.txs[id]
	if !ok {
		return protocol.Transaction{}, false
	}
	return n.tx, true
}

// BatchTransactionIDs returns the ordered transaction ids of a tracked
// batch.
func (m *Mempool) BatchTransactionIDs(batchID uuid.UUID) ([]protocol.Digest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return nil, false
	}
	out := make([]protocol.Digest, len(b.txIDs))
	copy(out, b.txIDs)
	return out, true
}
