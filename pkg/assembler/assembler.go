// Copyright 2025 Certen Protocol
//
// Package assembler is the Block Producer's witness-assembly layer: it
// turns a mempool selection plus the Store's get_batch_inputs/get_block_inputs
// results into the opaque witness bytes a prover.Client proves, and, for
// blocks, folds the selection's effects against those openings into the
// next header's roots and hands the result to Store.ApplyBlock. It is the
// concrete BatchProver/BlockAssembler the mempool's schedulers drive.
package assembler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/miden-node/rollup/pkg/logx"
	"github.com/miden-node/rollup/pkg/mempool"
	"github.com/miden-node/rollup/pkg/prover"
	"github.com/miden-node/rollup/pkg/protocol"
	"github.com/miden-node/rollup/pkg/rolluperr"
	"github.com/miden-node/rollup/pkg/rpc"
	"github.com/miden-node/rollup/pkg/server"
	"github.com/miden-node/rollup/pkg/store"
)

// TransactionSource recovers the full transaction bodies a selection's
// ids alone don't carry. *mempool.Mempool satisfies this directly.
type TransactionSource interface {
	Transaction(id protocol.Digest) (protocol.Transaction, bool)
	BatchTransactionIDs(batchID uuid.UUID) ([]protocol.Digest, bool)
}

// StoreClient is the subset of the Store's RPC surface witness assembly
// needs: the openings to fold a block's effects against, and the
// apply-block call that commits the result.
type StoreClient interface {
	GetBlockInputs(ctx context.Context, accountIDs []protocol.AccountID, nullifiers []protocol.Nullifier, unauthenticatedNoteIDs []protocol.Digest) (store.BlockInputs, error)
	ApplyBlock(ctx context.Context, block store.ProvenBlock) error
}

// BatchInputSource is the Store surface batch witness assembly needs:
// authentication info for the unauthenticated notes the Store already
// holds.
type BatchInputSource interface {
	GetBatchInputs(ctx context.Context, unauthenticatedNoteIDs []protocol.Digest) (store.BatchInputs, error)
}

// BatchWitness is the opaque payload handed to the batch prover: the
// selected transactions in execution order plus authentication info for
// every unauthenticated input note the Store already holds. The prover
// proves that executing them against AccountRoot/NullifierRoot-consistent
// inputs yields each transaction's claimed FinalAccountHash/output
// notes; the returned proof is never inspected here.
type BatchWitness struct {
	BatchID      uuid.UUID
	Transactions []protocol.Transaction
	NoteProofs   []store.NoteAuthenticationInfo
}

// BlockWitness is the opaque payload handed to the block prover: the
// proposed header, its transactions in batch order, and the already
// recorded per-batch proofs it aggregates.
type BlockWitness struct {
	Header       protocol.BlockHeader
	Transactions []protocol.Transaction
	BatchProofs  map[uuid.UUID][]byte
}

// BatchAssembler implements mempool.BatchProver: it recovers a selected
// batch's transaction bodies, fetches get_batch_inputs from the Store,
// and proves the result via a prover.Pool.
type BatchAssembler struct {
	txs    TransactionSource
	store  BatchInputSource
	prover *prover.Pool
	logger zerolog.Logger
}

// NewBatchAssembler builds a BatchAssembler drawing transaction bodies
// from txs, batch inputs from storeClient, and proving through pool.
func NewBatchAssembler(txs TransactionSource, storeClient BatchInputSource, pool *prover.Pool) *BatchAssembler {
	return &BatchAssembler{txs: txs, store: storeClient, prover: pool, logger: logx.Component("batch-assembler")}
}

var _ mempool.BatchProver = (*BatchAssembler)(nil)

// ProveBatch recovers sel's transactions, encodes a BatchWitness, and
// proves it.
func (a *BatchAssembler) ProveBatch(ctx context.Context, sel *mempool.BatchSelection) ([]byte, error) {
	timer := server.NewTimer()
	txs := make([]protocol.Transaction, 0, len(sel.TxIDs))
	for _, id := range sel.TxIDs {
		tx, ok := a.txs.Transaction(id)
		if !ok {
			return nil, rolluperr.Wrap(rolluperr.ErrMalformed, "batch %s: transaction %x no longer tracked", sel.BatchID, id.Bytes())
		}
		txs = append(txs, tx)
	}
	inputs, err := a.store.GetBatchInputs(ctx, sel.UnauthenticatedNoteIDs)
	if err != nil {
		return nil, err
	}

	witness, err := rpc.Encode(BatchWitness{BatchID: sel.BatchID, Transactions: txs, NoteProofs: inputs.NoteProofs})
	if err != nil {
		return nil, rolluperr.Wrap(rolluperr.ErrMalformed, "encode batch witness: %v", err)
	}
	proof, err := a.prover.ProveBatch(ctx, witness)
	if err != nil {
		return nil, err
	}
	server.BatchesProven.Inc()
	timer.ObserveDuration(server.BatchProveDuration)
	a.logger.Debug().Str("batch_id", sel.BatchID.String()).Int("tx_count", len(txs)).Msg("batch proven")
	return proof, nil
}

// BlockAssembler implements mempool.BlockAssembler: it fetches block
// inputs from the Store, folds the selection's effects into the next
// header's roots, proves the result, and applies it.
type BlockAssembler struct {
	txs      TransactionSource
	store    StoreClient
	prover   *prover.Pool
	logger   zerolog.Logger
	nowFunc  func() time.Time
}

// NewBlockAssembler builds a BlockAssembler wired to the given
// transaction source, Store client, and proving pool.
func NewBlockAssembler(txs TransactionSource, storeClient StoreClient, pool *prover.Pool) *BlockAssembler {
	return &BlockAssembler{
		txs:     txs,
		store:   storeClient,
		prover:  pool,
		logger:  logx.Component("block-assembler"),
		nowFunc: time.Now,
	}
}

var _ mempool.BlockAssembler = (*BlockAssembler)(nil)

// ProveAndApplyBlock recovers sel's transactions, fetches get_block_inputs
// openings, computes the next header's roots, proves the block, and
// submits it to the Store.
func (a *BlockAssembler) ProveAndApplyBlock(ctx context.Context, sel *mempool.BlockSelection, batchProofs map[uuid.UUID][]byte) error {
	timer := server.NewTimer()
	txs, err := a.orderedTransactions(sel)
	if err != nil {
		return err
	}

	inputs, err := a.store.GetBlockInputs(ctx, sel.AccountIDs, sel.Nullifiers, sel.UnauthenticatedNoteIDs)
	if err != nil {
		return err
	}
	// Notes the Store has never seen are fine as long as a transaction in
	// this same block creates them; anything else is unresolvable.
	createdHere := make(map[protocol.Digest]bool)
	for _, t := range txs {
		for _, n := range t.OutputNotes {
			createdHere[n.ID] = true
		}
	}
	for _, id := range inputs.MissingUnauthenticatedIDs {
		if !createdHere[id] {
			return rolluperr.Wrap(rolluperr.ErrUnknownUnauthenticatedNote,
				"block %d: unauthenticated note %x not in the store and not created by any transaction in this block", sel.BlockNum, id.Bytes())
		}
	}

	header, accounts, deltas, notes, err := a.buildHeader(sel.BlockNum, inputs, txs)
	if err != nil {
		return err
	}

	witness, err := rpc.Encode(BlockWitness{Header: header, Transactions: txs, BatchProofs: batchProofs})
	if err != nil {
		return rolluperr.Wrap(rolluperr.ErrMalformed, "encode block witness: %v", err)
	}
	proof, err := a.prover.ProveBlock(ctx, witness)
	if err != nil {
		return err
	}
	header.ProofHash = protocol.HashBytes(proof)

	block := store.ProvenBlock{
		Header:       header,
		Transactions: txs,
		Accounts:     accounts,
		Deltas:       deltas,
		Notes:        notes,
	}
	if err := a.store.ApplyBlock(ctx, block); err != nil {
		return err
	}
	server.BlocksProven.Inc()
	timer.ObserveDuration(server.BlockProveDuration)
	a.logger.Info().Uint32("block_num", uint32(sel.BlockNum)).Int("tx_count", len(txs)).Msg("block proven and applied")
	return nil
}

// orderedTransactions recovers every transaction in sel's batches,
// preserving batch order and each batch's internal execution order.
func (a *BlockAssembler) orderedTransactions(sel *mempool.BlockSelection) ([]protocol.Transaction, error) {
	var txs []protocol.Transaction
	for _, batchID := range sel.BatchIDs {
		txIDs, ok := a.txs.BatchTransactionIDs(batchID)
		if !ok {
			return nil, rolluperr.Wrap(rolluperr.ErrMalformed, "block %d: batch %s no longer tracked", sel.BlockNum, batchID)
		}
		for _, id := range txIDs {
			tx, ok := a.txs.Transaction(id)
			if !ok {
				return nil, rolluperr.Wrap(rolluperr.ErrMalformed, "block %d: transaction %x no longer tracked", sel.BlockNum, id.Bytes())
			}
			txs = append(txs, tx)
		}
	}
	return txs, nil
}
