// Copyright 2025 Certen Protocol
//
// Binary Merkle tree over a single block's created notes. Every
// committed block has exactly one: leaves are note ids in creation
// order, the root is the header's note_root, and a note's inclusion
// proof is the path produced here at the leaf index the note was
// assigned. Trees are built once from a fixed leaf set and never
// mutated, so they need no locking.

package merkle

import (
	"errors"
	"fmt"

	"github.com/miden-node/rollup/pkg/protocol"
)

var ErrEmptyNoteTree = errors.New("cannot build note tree from zero leaves")

// NoteTree is the per-block note tree. An odd node at any level is
// promoted unpaired to the next level rather than hashed with itself.
type NoteTree struct {
	levels [][]protocol.Digest // levels[0] = leaves, last level = [root]
}

// BuildNoteTree constructs the tree for one block's notes, in leaf
// order.
func BuildNoteTree(leaves []protocol.Digest) (*NoteTree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyNoteTree
	}
	levels := [][]protocol.Digest{append([]protocol.Digest(nil), leaves...)}
	for len(levels[len(levels)-1]) > 1 {
		cur := levels[len(levels)-1]
		next := make([]protocol.Digest, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			if i+1 < len(cur) {
				next = append(next, protocol.HashDigests(cur[i], cur[i+1]))
			} else {
				next = append(next, cur[i])
			}
		}
		levels = append(levels, next)
	}
	return &NoteTree{levels: levels}, nil
}

// Root returns the tree's root digest.
func (t *NoteTree) Root() protocol.Digest {
	return t.levels[len(t.levels)-1][0]
}

// Size returns the number of leaves.
func (t *NoteTree) Size() int {
	return len(t.levels[0])
}

// NoteProofStep is one sibling on the path from a leaf to the root.
// Left reports whether the sibling sits to the left of the running
// hash.
type NoteProofStep struct {
	Sibling protocol.Digest
	Left    bool
}

// NoteInclusionProof proves one leaf's membership in a block's note
// tree. A level where the running node was promoted unpaired
// contributes no step.
type NoteInclusionProof struct {
	LeafIndex int
	TreeSize  int
	Path      []NoteProofStep
}

// Prove returns the inclusion proof for the leaf at index.
func (t *NoteTree) Prove(index int) (NoteInclusionProof, error) {
	if index < 0 || index >= len(t.levels[0]) {
		return NoteInclusionProof{}, fmt.Errorf("leaf index %d out of range [0, %d)", index, len(t.levels[0]))
	}
	proof := NoteInclusionProof{LeafIndex: index, TreeSize: len(t.levels[0])}
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := index ^ 1
		if sibling < len(level) {
			proof.Path = append(proof.Path, NoteProofStep{Sibling: level[sibling], Left: sibling < index})
		}
		index /= 2
	}
	return proof, nil
}

// VerifyNoteProof recomputes the root implied by proof and compares it
// against expectedRoot.
func VerifyNoteProof(leaf protocol.Digest, proof NoteInclusionProof, expectedRoot protocol.Digest) bool {
	current := leaf
	for _, step := range proof.Path {
		if step.Left {
			current = protocol.HashDigests(step.Sibling, current)
		} else {
			current = protocol.HashDigests(current, step.Sibling)
		}
	}
	return current == expectedRoot
}
