// Copyright 2025 Certen Protocol
//
// selection.go implements batch and block selection, completion, and
// commit: the mutating operations the two schedulers in
// batch_scheduler.go/block_scheduler.go drive. Every method here acquires
// the mempool mutex, does a bounded amount of bookkeeping, and returns -
// proving and Store calls happen outside the lock in the schedulers.

package mempool

import (
	"sort"

	"github.com/google/uuid"

	"github.com/miden-node/rollup/pkg/protocol"
)

// BatchSelection is the witness request the batch prover needs: the
// selected transactions plus their accounts, nullifiers and
// unauthenticated notes (the latter resolved through get_batch_inputs).
type BatchSelection struct {
	BatchID                uuid.UUID
	TxIDs                  []protocol.Digest
	AccountIDs             []protocol.AccountID
	Nullifiers             []protocol.Nullifier
	UnauthenticatedNoteIDs []protocol.Digest
}

// SelectBatch picks an ordered subset of Admitted transactions whose
// parents are all settled (InBatch/InBlock/committed-and-removed, or
// picked earlier into this same batch), oldest first, up to
// MaxTxPerBatch, and marks them InBatch. Returns nil if nothing is
// eligible.
func (m *Mempool) SelectBatch() *BatchSelection {
	m.mu.Lock()
	defer m.mu.Unlock()

	var admitted []*txNode
	for _, n := range m.txs {
		if n.status == TxAdmitted {
			admitted = append(admitted, n)
		}
	}
	sort.Slice(admitted, func(i, j int) bool { return admitted[i].seq < admitted[j].seq })

	picked := make(map[protocol.Digest]bool)
	var candidates []*txNode
	for _, n := range admitted {
		if m.cfg.MaxTxPerBatch > 0 && len(candidates) >= m.cfg.MaxTxPerBatch {
			break
		}
		if !m.parentsSettledLocked(n, picked) {
			continue
		}
		picked[n.tx.ID] = true
		candidates = append(candidates, n)
	}
	if len(candidates) == 0 {
		return nil
	}

	id := uuid.New()
	txIDs := make([]protocol.Digest, len(candidates))
	accountSet := make(map[protocol.AccountID]struct{})
	var nullifiers []protocol.Nullifier
	var noteIDs []protocol.Digest
	parentBatches := make(map[uuid.UUID]struct{})

	for i, n := range candidates {
		txIDs[i] = n.tx.ID
		n.status = TxInBatch
		n.batchID = id
		accountSet[n.tx.AccountID] = struct{}{}
		nullifiers = append(nullifiers, n.tx.InputNullifiers...)
		noteIDs = append(noteIDs, n.tx.UnauthenticatedIDs...)

		if n.accountParent != (protocol.Digest{}) {
			if p, ok := m.txs[n.accountParent]; ok && p.batchID != uuid.Nil {
				parentBatches[p.batchID] = struct{}{}
			}
		}
		for _, np := range n.noteParents {
			if p, ok := m.txs[np]; ok && p.batchID != uuid.Nil {
				parentBatches[p.batchID] = struct{}{}
			}
		}
	}

	m.batches[id] = &batchNode{
		id:            id,
		txIDs:         txIDs,
		status:        BatchProposed,
		parentBatches: parentBatches,
		seq:           m.nextBatchSeq,
	}
	m.nextBatchSeq++

	accounts := make([]protocol.AccountID, 0, len(accountSet))
	for a := range accountSet {
		accounts = append(accounts, a)
	}

	return &BatchSelection{
		BatchID:                id,
		TxIDs:                  txIDs,
		AccountIDs:             accounts,
		Nullifiers:             nullifiers,
		UnauthenticatedNoteIDs: noteIDs,
	}
}

// parentsSettledLocked reports whether every dependency of n has left
// the Admitted state or is in picked (already chosen for the batch being
// built). A parent absent from m.txs has already been committed and
// removed, which also counts as settled.
func (m *Mempool) parentsSettledLocked(n *txNode, picked map[protocol.Digest]bool) bool {
	if n.accountParent != (protocol.Digest{}) {
		if p, ok := m.txs[n.accountParent]; ok && ((p.status == TxAdmitted && !picked[p.tx.ID]) || p.status == TxReverted) {
			return false
		}
	}
	for _, np := range n.noteParents {
		if p, ok := m.txs[np]; ok && ((p.status == TxAdmitted && !picked[p.tx.ID]) || p.status == TxReverted) {
			return false
		}
	}
	return true
}

// CompleteBatch marks batchID Proven and records its proof, called after
// the batch prover succeeds.
func (m *Mempool) CompleteBatch(batchID uuid.UUID, proof []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return ErrUnknownTransaction
	}
	b.status = BatchProven
	b.proof = proof
	return nil
}

// BatchProof returns a Proven batch's stored proof.
func (m *Mempool) BatchProof(batchID uuid.UUID) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return nil, false
	}
	return b.proof, true
}

// BlockSelection is the witness request the block prover and
// get_block_inputs need for the next block.
type BlockSelection struct {
	BlockNum               protocol.BlockNumber
	BatchIDs               []uuid.UUID
	AccountIDs             []protocol.AccountID
	Nullifiers             []protocol.Nullifier
	UnauthenticatedNoteIDs []protocol.Digest
}

// SelectBlock picks an ordered subset of Proven batches whose parent
// batches are all settled, respecting the per-block account and note
// caps: a batch that would push the block past either cap is excluded
// from this round rather than failing the whole selection. Returns nil
// if a block is already building at the next height or nothing is
// eligible.
func (m *Mempool) SelectBlock() *BlockSelection {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasTip {
		return nil
	}
	nextBlockNum := m.tip + 1
	if _, building := m.blocks[nextBlockNum]; building {
		return nil
	}

	var candidates []*batchNode
	for _, b := range m.batches {
		if b.status != BatchProven {
			continue
		}
		if !m.batchParentsSettledLocked(b) {
			continue
		}
		candidates = append(candidates, b)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].seq < candidates[j].seq })

	var selected []*batchNode
	accountSet := make(map[protocol.AccountID]struct{})
	noteCount := 0
	for _, b := range candidates {
		if m.cfg.MaxBatchesPerBlock > 0 && len(selected) >= m.cfg.MaxBatchesPerBlock {
			break
		}
		batchAccounts := make(map[protocol.AccountID]struct{})
		batchNotes := 0
		for _, txID := range b.txIDs {
			if n, ok := m.txs[txID]; ok {
				batchAccounts[n.tx.AccountID] = struct{}{}
				batchNotes += len(n.tx.OutputNotes)
			}
		}
		projectedAccounts := len(accountSet)
		for a := range batchAccounts {
			if _, already := accountSet[a]; !already {
				projectedAccounts++
			}
		}
		if m.cfg.MaxAccountsPerBlock > 0 && projectedAccounts > m.cfg.MaxAccountsPerBlock {
			continue
		}
		if m.cfg.MaxNotesPerBlock > 0 && noteCount+batchNotes > m.cfg.MaxNotesPerBlock {
			continue
		}
		for a := range batchAccounts {
			accountSet[a] = struct{}{}
		}
		noteCount += batchNotes
		selected = append(selected, b)
	}
	if len(selected) == 0 {
		return nil
	}

	batchIDs := make([]uuid.UUID, len(selected))
	var nullifiers []protocol.Nullifier
	var noteIDs []protocol.Digest
	for i, b := range selected {
		batchIDs[i] = b.id
		b.status = BatchInBlock
		b.blockNum = nextBlockNum
		for _, txID := range b.txIDs {
			if n, ok := m.txs[txID]; ok {
				n.status = TxInBlock
				n.blockNum = nextBlockNum
				nullifiers = append(nullifiers, n.tx.InputNullifiers...)
				noteIDs = append(noteIDs, n.tx.UnauthenticatedIDs...)
			}
		}
	}

	m.blocks[nextBlockNum] = &blockNode{
		blockNum: nextBlockNum,
		batchIDs: batchIDs,
		status:   BlockBuilding,
	}

	accounts := make([]protocol.AccountID, 0, len(accountSet))
	for a := range accountSet {
		accounts = append(accounts, a)
	}

	return &BlockSelection{
		BlockNum:               nextBlockNum,
		BatchIDs:               batchIDs,
		AccountIDs:             accounts,
		Nullifiers:             nullifiers,
		UnauthenticatedNoteIDs: noteIDs,
	}
}

func (m *Mempool) batchParentsSettledLocked(b *batchNode) bool {
	for parentID := range b.parentBatches {
		if p, ok := m.batches[parentID]; ok && (p.status == BatchProposed || p.status == BatchReverted) {
			return false
		}
	}
	return true
}

// CommitBlock marks blockNum Committed, removes its batches and
// transactions from the mempool, advances the mempool's view of the
// tip, and runs the expiration sweep. Called only after apply_block
// has succeeded on the Store.
func (m *Mempool) CommitBlock(blockNum protocol.BlockNumber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	blk, ok := m.blocks[blockNum]
	if !ok {
		return ErrUnknownTransaction
	}

	for _, batchID := range blk.batchIDs {
		b, ok := m.batches[batchID]
		if !ok {
			continue
		}
		for _, txID := range b.txIDs {
			n, ok := m.txs[txID]
			if !ok {
				continue
			}
			delete(m.txs, txID)
			if m.accountHead[n.tx.AccountID] == txID {
				delete(m.accountHead, n.tx.AccountID)
			}
			for _, nullifier := range n.tx.InputNullifiers {
				if m.nullifierOwner[nullifier] == txID {
					delete(m.nullifierOwner, nullifier)
				}
			}
			for _, note := range n.tx.OutputNotes {
				if m.noteCreator[note.ID] == txID {
					delete(m.noteCreator, note.ID)
				}
				delete(m.noteConsumer, note.ID)
			}
		}
		delete(m.batches, batchID)
	}
	delete(m.blocks, blockNum)

	m.tip = blockNum
	m.hasTip = true
	m.expireSweepLocked(blockNum)

	if err := m.verifyMempoolInvariants(); err != nil {
		m.logger.Error().Err(err).Msg("mempool invariant violation after block commit")
		return err
	}
	return nil
}

// ExpireSweep reverts every Admitted transaction expired against the
// current tip. Safe to call even when no block has just committed.
func (m *Mempool) ExpireSweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasTip {
		return
	}
	m.expireSweepLocked(m.tip)
}

// expireSweepLocked reverts every Admitted transaction whose
// expiration_block has reached newTip. Callers must hold m.mu.
func (m *Mempool) expireSweepLocked(newTip protocol.BlockNumber) {
	var expired []protocol.Digest
	for id, n := range m.txs {
		if n.status == TxAdmitted && n.tx.ExpirationBlockNum <= newTip {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		m.revertTransactionLocked(id, ErrExpired)
	}
}
