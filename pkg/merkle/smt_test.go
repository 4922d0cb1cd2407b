// Copyright 2025 Certen Protocol

package merkle

import (
	"testing"

	"github.com/miden-node/rollup/pkg/protocol"
	"github.com/stretchr/testify/require"
)

func TestSMTEmptyRootIsDeterministic(t *testing.T) {
	a, err := NewSMT(64)
	require.NoError(t, err)
	b, err := NewSMT(64)
	require.NoError(t, err)
	require.Equal(t, a.Root(), b.Root())
}

func TestSMTPutChangesRoot(t *testing.T) {
	tree, err := NewSMT(64)
	require.NoError(t, err)
	empty := tree.Root()

	key := protocol.Digest{1, 2, 3, 4}
	tree.Put(key, protocol.Digest{9, 9, 9, 9})
	require.NotEqual(t, empty, tree.Root())
	require.Equal(t, protocol.Digest{9, 9, 9, 9}, tree.Get(key))
}

func TestSMTDeleteRestoresEmptyRoot(t *testing.T) {
	tree, err := NewSMT(64)
	require.NoError(t, err)
	empty := tree.Root()

	key := protocol.Digest{1, 2, 3, 4}
	tree.Put(key, protocol.Digest{9, 9, 9, 9})
	tree.Put(key, protocol.Digest{}) // write the default value back
	require.Equal(t, empty, tree.Root())
}

func TestSMTProveVerifyRoundTrip(t *testing.T) {
	tree, err := NewSMT(64)
	require.NoError(t, err)

	keyA := protocol.Digest{1, 0, 0, 0}
	keyB := protocol.Digest{2, 0, 0, 0}
	tree.Put(keyA, protocol.Digest{11, 0, 0, 0})
	tree.Put(keyB, protocol.Digest{22, 0, 0, 0})

	root := tree.Root()
	proofA := tree.Prove(keyA)
	require.True(t, Verify(proofA, tree.Depth(), root))

	// A proof for an absent key must still verify (non-inclusion).
	absent := protocol.Digest{3, 0, 0, 0}
	proofAbsent := tree.Prove(absent)
	require.Equal(t, protocol.Digest{}, proofAbsent.Value)
	require.True(t, Verify(proofAbsent, tree.Depth(), root))
}

func TestSMTRejectsInvalidDepth(t *testing.T) {
	_, err := NewSMT(0)
	require.Error(t, err)
	_, err = NewSMT(257)
	require.Error(t, err)
}
