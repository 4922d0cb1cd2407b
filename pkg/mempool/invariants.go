// Copyright 2025 Certen Protocol
//
// invariants.go checks the mempool's internal consistency after a
// commit/revert batch of mutations: one Add() call per invariant,
// joined into a single error. A violation here is fatal - it means the
// DAG indices have drifted from the node map, and the process should
// not keep admitting transactions against corrupted state.

package mempool

import "github.com/miden-node/rollup/pkg/rolluperr"

// verifyMempoolInvariants walks the mempool's indices against its node
// maps and reports any inconsistency. Callers must hold m.mu.
func (m *Mempool) verifyMempoolInvariants() error {
	var inv rolluperr.Invariants

	for account, txID := range m.accountHead {
		n, ok := m.txs[txID]
		inv.Add(ok, "accountHead[%x] references unknown transaction %x", account.Bytes(), txID.Bytes())
		if ok {
			inv.Add(n.status != TxReverted, "accountHead[%x] references reverted transaction %x", account.Bytes(), txID.Bytes())
			inv.Add(n.tx.AccountID == account, "accountHead[%x] maps to transaction %x owned by a different account", account.Bytes(), txID.Bytes())
		}
	}

	for nullifier, txID := range m.nullifierOwner {
		n, ok := m.txs[txID]
		inv.Add(ok, "nullifierOwner[%x] references unknown transaction %x", nullifier.Bytes(), txID.Bytes())
		if ok {
			inv.Add(n.status != TxReverted, "nullifierOwner[%x] references reverted transaction %x", nullifier.Bytes(), txID.Bytes())
		}
	}

	for noteID, txID := range m.noteCreator {
		n, ok := m.txs[txID]
		inv.Add(ok, "noteCreator[%x] references unknown transaction %x", noteID.Bytes(), txID.Bytes())
		if ok {
			inv.Add(n.status != TxReverted, "noteCreator[%x] references reverted transaction %x", noteID.Bytes(), txID.Bytes())
		}
	}

	for noteID, consumers := range m.noteConsumer {
		for _, txID := range consumers {
			_, ok := m.txs[txID]
			inv.Add(ok, "noteConsumer[%x] references unknown transaction %x", noteID.Bytes(), txID.Bytes())
		}
	}

	for batchID, b := range m.batches {
		for _, txID := range b.txIDs {
			n, ok := m.txs[txID]
			inv.Add(ok, "batch %s references unknown transaction %x", batchID, txID.Bytes())
			if ok {
				inv.Add(n.batchID == batchID, "transaction %x claims batch %s but batch %s lists it", txID.Bytes(), n.batchID, batchID)
			}
		}
		for parentID := range b.parentBatches {
			_, ok := m.batches[parentID]
			inv.Add(ok || parentID == b.id, "batch %s lists unknown parent batch %s", batchID, parentID)
		}
	}

	for blockNum, blk := range m.blocks {
		inv.Add(blk.blockNum == blockNum, "block map key %d does not match node's blockNum %d", blockNum, blk.blockNum)
		for _, batchID := range blk.batchIDs {
			b, ok := m.batches[batchID]
			inv.Add(ok, "block %d references unknown batch %s", blockNum, batchID)
			if ok {
				inv.Add(b.blockNum == blockNum, "batch %s claims block %d but block %d lists it", batchID, b.blockNum, blockNum)
			}
		}
	}

	return inv.Err()
}
