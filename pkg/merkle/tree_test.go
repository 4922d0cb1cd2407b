// Copyright 2025 Certen Protocol

package merkle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miden-node/rollup/pkg/protocol"
)

func noteLeaves(n int) []protocol.Digest {
	leaves := make([]protocol.Digest, n)
	for i := range leaves {
		leaves[i] = protocol.Digest{uint64(i + 1), 0, 0, 0}
	}
	return leaves
}

func TestBuildNoteTreeRejectsEmptyLeaves(t *testing.T) {
	_, err := BuildNoteTree(nil)
	require.ErrorIs(t, err, ErrEmptyNoteTree)
}

func TestBuildNoteTreeSingleLeafRootIsLeaf(t *testing.T) {
	leaf := protocol.Digest{42, 0, 0, 0}
	tree, err := BuildNoteTree([]protocol.Digest{leaf})
	require.NoError(t, err)
	require.Equal(t, leaf, tree.Root())
	require.Equal(t, 1, tree.Size())
}

func TestBuildNoteTreeTwoLeaves(t *testing.T) {
	leaves := noteLeaves(2)
	tree, err := BuildNoteTree(leaves)
	require.NoError(t, err)
	require.Equal(t, protocol.HashDigests(leaves[0], leaves[1]), tree.Root())
}

func TestNoteTreeRootIsDeterministic(t *testing.T) {
	a, err := BuildNoteTree(noteLeaves(7))
	require.NoError(t, err)
	b, err := BuildNoteTree(noteLeaves(7))
	require.NoError(t, err)
	require.Equal(t, a.Root(), b.Root())
}

func TestNoteTreeRootDependsOnLeafOrder(t *testing.T) {
	leaves := noteLeaves(4)
	a, err := BuildNoteTree(leaves)
	require.NoError(t, err)

	swapped := append([]protocol.Digest(nil), leaves...)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	b, err := BuildNoteTree(swapped)
	require.NoError(t, err)

	require.NotEqual(t, a.Root(), b.Root())
}

// Odd leaf counts exercise the unpaired-promotion path: the lone node at
// a level carries up without a sibling, and its proof is one step
// shorter at that level.
func TestNoteTreeProveVerifyAllSizes(t *testing.T) {
	for size := 1; size <= 9; size++ {
		leaves := noteLeaves(size)
		tree, err := BuildNoteTree(leaves)
		require.NoError(t, err)

		root := tree.Root()
		for i, leaf := range leaves {
			proof, err := tree.Prove(i)
			require.NoError(t, err)
			require.Equal(t, i, proof.LeafIndex)
			require.Equal(t, size, proof.TreeSize)
			require.True(t, VerifyNoteProof(leaf, proof, root),
				"leaf %d of %d failed to verify", i, size)
		}
	}
}

func TestNoteTreeProveOutOfRange(t *testing.T) {
	tree, err := BuildNoteTree(noteLeaves(3))
	require.NoError(t, err)

	_, err = tree.Prove(-1)
	require.Error(t, err)
	_, err = tree.Prove(3)
	require.Error(t, err)
}

func TestVerifyNoteProofRejectsWrongLeaf(t *testing.T) {
	leaves := noteLeaves(4)
	tree, err := BuildNoteTree(leaves)
	require.NoError(t, err)

	proof, err := tree.Prove(2)
	require.NoError(t, err)

	wrong := protocol.Digest{0xFF, 0, 0, 0}
	require.False(t, VerifyNoteProof(wrong, proof, tree.Root()))
}

func TestVerifyNoteProofRejectsWrongRoot(t *testing.T) {
	leaves := noteLeaves(4)
	tree, err := BuildNoteTree(leaves)
	require.NoError(t, err)

	proof, err := tree.Prove(1)
	require.NoError(t, err)
	require.False(t, VerifyNoteProof(leaves[1], proof, protocol.Digest{1, 2, 3, 4}))
}
