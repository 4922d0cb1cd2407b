// Copyright 2025 Certen Protocol

package merkle

import (
	"testing"

	"github.com/miden-node/rollup/pkg/protocol"
	"github.com/stretchr/testify/require"
)

func TestMMREmptyRoot(t *testing.T) {
	m := NewMMR()
	require.Equal(t, protocol.Digest{}, m.Root())
	require.Equal(t, 0, m.Len())
}

func TestMMRAppendChangesRoot(t *testing.T) {
	m := NewMMR()
	r0 := m.Root()
	m.Append(protocol.Digest{1, 1, 1, 1})
	require.NotEqual(t, r0, m.Root())
	require.Equal(t, 1, m.Len())
}

func TestMMRProveVerifyRoundTrip(t *testing.T) {
	m := NewMMR()
	leaves := []protocol.Digest{
		{1, 0, 0, 0}, {2, 0, 0, 0}, {3, 0, 0, 0}, {4, 0, 0, 0}, {5, 0, 0, 0},
	}
	for _, l := range leaves {
		m.Append(l)
	}
	root := m.Root()
	for i, leaf := range leaves {
		proof, ok := m.Prove(i)
		require.True(t, ok)
		require.True(t, VerifyInclusion(leaf, proof, root), "leaf %d failed to verify", i)
	}
}

func TestMMRProveOutOfRange(t *testing.T) {
	m := NewMMR()
	m.Append(protocol.Digest{1, 0, 0, 0})
	_, ok := m.Prove(5)
	require.False(t, ok)
}
