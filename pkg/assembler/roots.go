// Copyright 2025 Certen Protocol

package assembler

import (
	"github.com/miden-node/rollup/pkg/merkle"
	"github.com/miden-node/rollup/pkg/protocol"
	"github.com/miden-node/rollup/pkg/rolluperr"
	"github.com/miden-node/rollup/pkg/store"
)

// buildHeader folds a block's transactions against inputs into the next
// header's roots, and derives the account/delta/note rows ApplyBlock
// needs alongside it. It never touches a live merkle.Accumulators -
// SelectBlock only runs once a tip exists (genesis is loaded directly by
// cmd/store, never through this path), so inputs.Header is always
// present here.
func (a *BlockAssembler) buildHeader(blockNum protocol.BlockNumber, inputs store.BlockInputs, txs []protocol.Transaction) (protocol.BlockHeader, map[protocol.AccountID]protocol.Account, []protocol.AccountDelta, []protocol.Note, error) {
	if !inputs.HasHeader {
		return protocol.BlockHeader{}, nil, nil, nil, rolluperr.Wrap(rolluperr.ErrInvalidBlock, "block %d: get_block_inputs returned no prior header", blockNum)
	}

	accountRoot, accounts, deltas, err := a.foldAccounts(blockNum, inputs, txs)
	if err != nil {
		return protocol.BlockHeader{}, nil, nil, nil, err
	}
	nullifierRoot, err := a.foldNullifiers(blockNum, inputs, txs)
	if err != nil {
		return protocol.BlockHeader{}, nil, nil, nil, err
	}

	// Stamp each created note with the block committing it and its leaf
	// position in that block's note tree.
	var notes []protocol.Note
	for _, t := range txs {
		for _, n := range t.OutputNotes {
			n.BlockNum = blockNum
			n.LeafIndex = len(notes)
			notes = append(notes, n)
		}
	}
	noteRoot := noteTreeRoot(notes)

	// The MMR leaf for the current tip is inserted while building this
	// block, so the new header's chain root covers every header up to and
	// including the tip's - the one-block lag.
	prevHash := inputs.Header.Hash()
	chainPeaks := merkle.PeaksAfterAppend(inputs.MMRPeaks, int(inputs.Header.BlockNum), prevHash)

	header := protocol.BlockHeader{
		Version:       protocol.HeaderVersion,
		PrevHash:      prevHash,
		BlockNum:      blockNum,
		ChainRoot:     merkle.RootFromPeaks(chainPeaks),
		AccountRoot:   accountRoot,
		NullifierRoot: nullifierRoot,
		NoteRoot:      noteRoot,
		TxHash:        txSetDigest(txs),
		// The kernel procedure set only changes across node releases, so
		// each block runs under the same kernel as its predecessor.
		KernelRoot: inputs.Header.KernelRoot,
		Timestamp:  a.nowFunc().Unix(),
	}
	return header, accounts, deltas, notes, nil
}

// foldAccounts derives the final commitment each touched account reaches
// in this block (the last transaction touching an account wins, per the
// admission contract's account-chain ordering) and folds those updates
// against the account tree openings get_block_inputs returned.
func (a *BlockAssembler) foldAccounts(blockNum protocol.BlockNumber, inputs store.BlockInputs, txs []protocol.Transaction) (protocol.Digest, map[protocol.AccountID]protocol.Account, []protocol.AccountDelta, error) {
	openings := make(map[protocol.AccountID]merkle.Opening, len(inputs.Accounts))
	for _, ai := range inputs.Accounts {
		openings[ai.ID] = ai.Opening
	}

	finalHash := make(map[protocol.AccountID]protocol.Digest)
	for _, t := range txs {
		finalHash[t.AccountID] = t.FinalAccountHash
	}

	var updates []merkle.LeafUpdate
	accounts := make(map[protocol.AccountID]protocol.Account, len(finalHash))
	var deltas []protocol.AccountDelta
	for id, commitment := range finalHash {
		opening, ok := openings[id]
		if !ok {
			return protocol.Digest{}, nil, nil, rolluperr.Wrap(rolluperr.ErrInvalidBlock, "block %d: no account opening returned for %x", blockNum, id.Bytes())
		}
		updates = append(updates, merkle.LeafUpdate{Key: opening.Key, Opening: opening, Value: commitment})
		// Execution (nonce, vault/storage/code roots) is the prover's
		// domain; the core only needs the resulting commitment to update
		// the account tree, so non-commitment fields carry forward as
		// zero rather than being recomputed here.
		accounts[id] = protocol.Account{ID: id, Commitment: commitment}
		deltas = append(deltas, protocol.AccountDelta{AccountID: id, BlockNum: blockNum, NonceDelta: 1})
	}

	root := inputs.Header.AccountRoot
	if len(updates) > 0 {
		root = merkle.FoldUpdates(merkle.AccountTreeDepth, updates)
	}
	return root, accounts, deltas, nil
}

// foldNullifiers marks every transaction's input nullifiers consumed at
// blockNum and folds those updates against the nullifier tree openings.
func (a *BlockAssembler) foldNullifiers(blockNum protocol.BlockNumber, inputs store.BlockInputs, txs []protocol.Transaction) (protocol.Digest, error) {
	openings := make(map[protocol.Nullifier]merkle.Opening, len(inputs.Nullifiers))
	for _, ni := range inputs.Nullifiers {
		openings[ni.Nullifier] = ni.Opening
	}

	var consumedValue protocol.Digest
	consumedValue[0] = uint64(blockNum)

	seen := make(map[protocol.Nullifier]bool)
	var updates []merkle.LeafUpdate
	for _, t := range txs {
		for _, n := range t.InputNullifiers {
			if seen[n] {
				continue
			}
			seen[n] = true
			opening, ok := openings[n]
			if !ok {
				return protocol.Digest{}, rolluperr.Wrap(rolluperr.ErrInvalidBlock, "block %d: no nullifier opening returned for %x", blockNum, n.Bytes())
			}
			updates = append(updates, merkle.LeafUpdate{Key: opening.Key, Opening: opening, Value: consumedValue})
		}
	}

	if len(updates) == 0 {
		return inputs.Header.NullifierRoot, nil
	}
	return merkle.FoldUpdates(merkle.NullifierTreeDepth, updates), nil
}

// noteTreeRoot builds the per-block note tree and returns its root, or
// the zero digest for a block that creates no notes.
func noteTreeRoot(notes []protocol.Note) protocol.Digest {
	if len(notes) == 0 {
		return protocol.Digest{}
	}
	leaves := make([]protocol.Digest, len(notes))
	for i, n := range notes {
		leaves[i] = n.ID
	}
	tree, err := merkle.BuildNoteTree(leaves)
	if err != nil {
		return protocol.Digest{}
	}
	return tree.Root()
}

// txSetDigest folds a block's transaction ids into a single digest,
// left to right, with the same pairwise hash (HashDigests) pkg/merkle
// uses; it is a running chain, not a balanced tree.
func txSetDigest(txs []protocol.Transaction) protocol.Digest {
	if len(txs) == 0 {
		return protocol.Digest{}
	}
	acc := txs[0].ID
	for _, t := range txs[1:] {
		acc = protocol.HashDigests(acc, t.ID)
	}
	return acc
}
