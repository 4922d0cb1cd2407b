// Copyright 2025 Certen Protocol
//
// revert.go implements the transitive revert closure: reverting a
// transaction reverts every descendant reachable via either the
// per-account chain or an unauthenticated-note dependency edge, before
// the call that triggered it returns.

package mempool

import (
	"github.com/google/uuid"

	"github.com/miden-node/rollup/pkg/protocol"
	"github.com/miden-node/rollup/pkg/rolluperr"
	"github.com/miden-node/rollup/pkg/server"
)

// revertTransactionLocked marks txID and every transitive descendant
// Reverted, cleaning up the accountHead/nullifierOwner/noteCreator
// indices as it goes. Callers must hold m.mu. Idempotent: reverting an
// already-Reverted transaction is a no-op.
func (m *Mempool) revertTransactionLocked(txID protocol.Digest, reason error) {
	stack := []protocol.Digest{txID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n, ok := m.txs[id]
		if !ok || n.status == TxReverted {
			continue
		}
		prior := n.status
		n.status = TxReverted

		// Restore the account head to the parent only while the parent is
		// itself still inflight; a committed (removed) or reverted parent
		// means the next admission must consult the Store again.
		if m.accountHead[n.tx.AccountID] == id {
			if p, ok := m.txs[n.accountParent]; ok && p.status != TxReverted {
				m.accountHead[n.tx.AccountID] = n.accountParent
			} else {
				delete(m.accountHead, n.tx.AccountID)
			}
		}
		for _, nullifier := range n.tx.InputNullifiers {
			if m.nullifierOwner[nullifier] == id {
				delete(m.nullifierOwner, nullifier)
			}
		}
		for _, note := range n.tx.OutputNotes {
			if m.noteCreator[note.ID] == id {
				delete(m.noteCreator, note.ID)
			}
		}

		server.MempoolTransactionsReverted.WithLabelValues(string(rolluperr.Classify(reason))).Inc()
		if m.revertHook != nil {
			m.revertHook(id, reason)
		}

		// A reverted transaction invalidates whatever container holds it:
		// the batch's (or block's) parent invariant no longer holds once
		// one of its transactions is gone.
		switch prior {
		case TxInBatch:
			m.revertBatchLocked(n.batchID, reason)
		case TxInBlock:
			m.revertBlockLocked(n.blockNum, reason)
		}

		stack = append(stack, n.children...)
	}
}

// RevertTransaction reverts txID and its transitive descendants.
func (m *Mempool) RevertTransaction(txID protocol.Digest, reason error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revertTransactionLocked(txID, reason)
	if err := m.verifyMempoolInvariants(); err != nil {
		m.logger.Error().Err(err).Msg("mempool invariant violation after transaction revert")
	}
}

// revertBatchLocked reverts every transaction in a batch (and, via
// cascade, their descendants outside the batch), then marks the batch
// itself Reverted.
func (m *Mempool) revertBatchLocked(batchID uuid.UUID, reason error) {
	b, ok := m.batches[batchID]
	if !ok || b.status == BatchReverted {
		return
	}
	// Marked before the per-transaction walk so the cascade back through
	// a contained transaction's container check terminates here.
	b.status = BatchReverted
	for _, txID := range b.txIDs {
		m.revertTransactionLocked(txID, reason)
	}
}

// RevertBatch reverts an entire batch and its descendants.
func (m *Mempool) RevertBatch(batchID uuid.UUID, reason error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revertBatchLocked(batchID, reason)
	if err := m.verifyMempoolInvariants(); err != nil {
		m.logger.Error().Err(err).Msg("mempool invariant violation after batch revert")
	}
}

// revertBlockLocked reverts an in-flight block and every batch it
// contains, removing the block node first so the cascade back through a
// contained transaction terminates. Callers must hold m.mu.
func (m *Mempool) revertBlockLocked(blockNum protocol.BlockNumber, reason error) {
	blk, ok := m.blocks[blockNum]
	if !ok {
		return
	}
	if blk.status != BlockBuilding && blk.status != BlockProving {
		return
	}
	blk.status = BlockReverted
	delete(m.blocks, blockNum)
	for _, batchID := range blk.batchIDs {
		m.revertBatchLocked(batchID, reason)
	}
}

// RevertBlock reverts an in-flight block and every batch it contains.
// Permitted only while the block is still Building or Proving - never
// after apply_block has already succeeded.
func (m *Mempool) RevertBlock(blockNum protocol.BlockNumber, reason error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	blk, ok := m.blocks[blockNum]
	if !ok {
		return ErrUnknownTransaction
	}
	if blk.status != BlockBuilding && blk.status != BlockProving {
		return ErrInvariantViolation
	}
	m.revertBlockLocked(blockNum, reason)

	if err := m.verifyMempoolInvariants(); err != nil {
		m.logger.Error().Err(err).Msg("mempool invariant violation after block revert")
		return err
	}
	return nil
}
