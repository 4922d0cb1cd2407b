// Copyright 2025 Certen Protocol
//
// Merkle Mountain Range over committed block headers. Block n's header
// digest is appended to the MMR while building block n+1 - the
// "one-block lag" the Store's chain root carries: a block's own header
// never commits to its own position in the range, only to the range as
// it stood after the previous block.
package merkle

import (
	"sync"

	"github.com/miden-node/rollup/pkg/protocol"
)

// MMR is an append-only Merkle mountain range: a forest of perfect binary
// trees ("peaks") whose sizes are the binary-expansion of the leaf
// count.
type MMR struct {
	mu     sync.RWMutex
	leaves []protocol.Digest // leaf digests in append order
}

// NewMMR returns an empty Merkle mountain range.
func NewMMR() *MMR {
	return &MMR{}
}

// Append adds a new leaf (typically a BlockHeader.Hash()) to the range.
func (m *MMR) Append(leaf protocol.Digest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves = append(m.leaves, leaf)
}

// Len returns the number of leaves appended so far.
func (m *MMR) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.leaves)
}

// Peaks returns the roots of the range's perfect-binary-tree peaks,
// ordered from largest to smallest, recomputed from the leaf log. Real
// deployments would maintain these incrementally; recomputation is
// simple and the leaf count here is bounded by the chain height, not by
// per-block data volume.
func (m *MMR) Peaks() []protocol.Digest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peaksLocked()
}

func (m *MMR) peaksLocked() []protocol.Digest {
	n := len(m.leaves)
	if n == 0 {
		return nil
	}
	var peaks []protocol.Digest
	start := 0
	size := n
	for size > 0 {
		treeSize := largestPowerOfTwoLE(size)
		peaks = append(peaks, m.subtreeRoot(m.leaves[start:start+treeSize]))
		start += treeSize
		size -= treeSize
	}
	return peaks
}

// Root bags the peaks into a single digest: the value the Store embeds
// as a block header's ChainRoot.
func (m *MMR) Root() protocol.Digest {
	return RootFromPeaks(m.Peaks())
}

func (m *MMR) subtreeRoot(leaves []protocol.Digest) protocol.Digest {
	if len(leaves) == 1 {
		return leaves[0]
	}
	mid := len(leaves) / 2
	left := m.subtreeRoot(leaves[:mid])
	right := m.subtreeRoot(leaves[mid:])
	return protocol.HashDigests(left, right)
}

// RootFromPeaks bags a set of peaks returned by Peaks() into the same
// digest Root would produce, without needing a live *MMR - the Block
// Producer only ever sees peaks fetched once over get_block_inputs, not
// a reference to the Store's own range.
func RootFromPeaks(peaks []protocol.Digest) protocol.Digest {
	if len(peaks) == 0 {
		return protocol.Digest{}
	}
	acc := peaks[len(peaks)-1]
	for i := len(peaks) - 2; i >= 0; i-- {
		acc = protocol.HashDigests(peaks[i], acc)
	}
	return acc
}

// PeaksAfterAppend returns the peaks an MMR of size leafCount would have
// after appending one more leaf, given its current peaks. Appending
// merges the new leaf with the existing smallest peaks once per trailing
// set bit of leafCount, largest-to-smallest peak order preserved. Like
// RootFromPeaks, it lets a caller holding only peaks fetched once over
// get_block_inputs extend the range by the tip's own header without a
// live *MMR.
func PeaksAfterAppend(peaks []protocol.Digest, leafCount int, leaf protocol.Digest) []protocol.Digest {
	out := append([]protocol.Digest(nil), peaks...)
	carry := leaf
	for n := leafCount; n&1 == 1; n >>= 1 {
		carry = protocol.HashDigests(out[len(out)-1], carry)
		out = out[:len(out)-1]
	}
	return append(out, carry)
}

func largestPowerOfTwoLE(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}

// InclusionProof identifies which peak a leaf belongs to and the sibling
// path within that peak's subtree. SubtreeIndex is the leaf's position
// within its peak; its bits, LSB first, give the left/right direction at
// each level of Path.
type InclusionProof struct {
	LeafIndex    int
	Peaks        []protocol.Digest
	PeakIndex    int
	SubtreeIndex int
	Path         []protocol.Digest
}

// Prove returns an InclusionProof for the leaf at index.
func (m *MMR) Prove(index int) (InclusionProof, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if index < 0 || index >= len(m.leaves) {
		return InclusionProof{}, false
	}

	n := len(m.leaves)
	start := 0
	size := n
	peakIdx := 0
	for size > 0 {
		treeSize := largestPowerOfTwoLE(size)
		if index >= start && index < start+treeSize {
			leaves := m.leaves[start : start+treeSize]
			path := m.subtreePath(leaves, index-start)
			return InclusionProof{
				LeafIndex:    index,
				Peaks:        m.peaksLocked(),
				PeakIndex:    peakIdx,
				SubtreeIndex: index - start,
				Path:         path,
			}, true
		}
		start += treeSize
		size -= treeSize
		peakIdx++
	}
	return InclusionProof{}, false
}

func (m *MMR) subtreePath(leaves []protocol.Digest, index int) []protocol.Digest {
	if len(leaves) == 1 {
		return nil
	}
	mid := len(leaves) / 2
	if index < mid {
		sibling := m.subtreeRoot(leaves[mid:])
		return append(m.subtreePath(leaves[:mid], index), sibling)
	}
	sibling := m.subtreeRoot(leaves[:mid])
	return append(m.subtreePath(leaves[mid:], index-mid), sibling)
}

// VerifyInclusion checks an InclusionProof against leaf and an expected
// MMR root.
func VerifyInclusion(leaf protocol.Digest, proof InclusionProof, expectedRoot protocol.Digest) bool {
	if proof.PeakIndex < 0 || proof.PeakIndex >= len(proof.Peaks) {
		return false
	}
	current := leaf
	for level, sibling := range proof.Path {
		if (proof.SubtreeIndex>>uint(level))&1 == 0 {
			current = protocol.HashDigests(current, sibling)
		} else {
			current = protocol.HashDigests(sibling, current)
		}
	}
	if current != proof.Peaks[proof.PeakIndex] {
		return false
	}
	return RootFromPeaks(proof.Peaks) == expectedRoot
}
