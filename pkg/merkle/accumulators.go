// Copyright 2025 Certen Protocol
//
// Accumulators bundles the three cryptographic accumulators the Store
// keeps in memory and mutates atomically with the relational write in
// apply_block: the block header MMR, the nullifier SMT, and the account
// commitment SMT.
package merkle

import (
	"github.com/miden-node/rollup/pkg/protocol"
)

const (
	// NullifierTreeDepth is the sparse Merkle tree depth for the
	// nullifier accumulator.
	NullifierTreeDepth = 256
	// AccountTreeDepth is the sparse Merkle tree depth for the account
	// commitment accumulator.
	AccountTreeDepth = 64
)

// Accumulators holds the Store's three in-memory cryptographic
// structures. None of its methods take an external lock; callers
// (pkg/store.Store) serialize writers themselves since the accumulator
// update must be atomic with the relational transaction it accompanies.
type Accumulators struct {
	BlockMMR      *MMR
	NullifierTree *SMT
	AccountTree   *SMT
}

// New builds empty accumulators, used at genesis.
func New() (*Accumulators, error) {
	nullifiers, err := NewSMT(NullifierTreeDepth)
	if err != nil {
		return nil, err
	}
	accounts, err := NewSMT(AccountTreeDepth)
	if err != nil {
		return nil, err
	}
	return &Accumulators{
		BlockMMR:      NewMMR(),
		NullifierTree: nullifiers,
		AccountTree:   accounts,
	}, nil
}

// MarkNullifierConsumed sets nullifier's leaf to the consuming block
// number, per the convention that a zero leaf means "unconsumed."
func (a *Accumulators) MarkNullifierConsumed(nullifier protocol.Digest, blockNum protocol.BlockNumber) {
	var v protocol.Digest
	v[0] = uint64(blockNum)
	a.NullifierTree.Put(nullifier, v)
}

// IsNullifierConsumed reports whether nullifier has a non-zero leaf, and
// if so at which block it was consumed.
func (a *Accumulators) IsNullifierConsumed(nullifier protocol.Digest) (protocol.BlockNumber, bool) {
	v := a.NullifierTree.Get(nullifier)
	if v.IsZero() {
		return 0, false
	}
	return protocol.BlockNumber(v[0]), true
}

// SetAccount writes an account's current commitment into the account
// tree, keyed by its ID digest.
func (a *Accumulators) SetAccount(id protocol.AccountID, commitment protocol.Digest) {
	a.AccountTree.Put(accountKey(id), commitment)
}

// AccountCommitment returns the account tree's current leaf for id.
func (a *Accumulators) AccountCommitment(id protocol.AccountID) protocol.Digest {
	return a.AccountTree.Get(accountKey(id))
}

// AppendBlockHeader appends a committed header's digest to the MMR. Per
// the one-block-lag rule, the Store calls this while building block n+1,
// using block n's header - never a block's own header.
func (a *Accumulators) AppendBlockHeader(h protocol.BlockHeader) {
	a.BlockMMR.Append(h.Hash())
}

// ChainRoot returns the MMR root to embed as the next block header's
// ChainRoot field.
func (a *Accumulators) ChainRoot() protocol.Digest {
	return a.BlockMMR.Root()
}

// AccountOpening returns an inclusion/non-inclusion opening for id's leaf
// in the account tree, used by get_account_proofs and get_block_inputs.
func (a *Accumulators) AccountOpening(id protocol.AccountID) Opening {
	return a.AccountTree.Prove(accountKey(id))
}

// NullifierOpening returns an inclusion/non-inclusion opening for
// nullifier in the nullifier tree, used by check_nullifiers and
// get_block_inputs.
func (a *Accumulators) NullifierOpening(nullifier protocol.Digest) Opening {
	return a.NullifierTree.Prove(nullifier)
}

func accountKey(id protocol.AccountID) protocol.Digest {
	return protocol.Digest{id[0], id[1], 0, 0}
}
