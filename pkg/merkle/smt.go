// Copyright 2025 Certen Protocol
//
// Sparse Merkle Tree over protocol.Digest keys, used for both the
// nullifier accumulator (depth 256) and the account commitment
// accumulator (depth 64). Unlike Tree in tree.go, the SMT holds a
// sparse, default-filled universe addressed by key rather than a dense
// leaf list addressed by index.
package merkle

import (
	"fmt"
	"sync"

	"github.com/miden-node/rollup/pkg/protocol"
)

// SMT is a fixed-depth sparse Merkle tree keyed by protocol.Digest. The
// empty-subtree hash at each level is precomputed once so unpopulated
// branches never need to be materialized. Depth may be up to 256 (one
// level per bit of a Digest's 32-byte encoding), covering both the
// nullifier tree (256) and the account tree (64).
type SMT struct {
	mu sync.RWMutex

	depth       int
	emptyHashAt []protocol.Digest // [0] = empty leaf value, [depth] = empty root
	leaves      map[protocol.Digest]protocol.Digest
	// nodes caches internal nodes keyed by (level, path-prefix-as-string);
	// unpopulated branches are never materialized, matching the empty
	// tree's implicit default.
	nodes map[nodeKey]protocol.Digest
}

type nodeKey struct {
	level int
	path  string // the node's path from the root, depth-level bits, MSB first
}

// NewSMT builds an empty SMT of the given depth.
func NewSMT(depth int) (*SMT, error) {
	if depth <= 0 || depth > 256 {
		return nil, fmt.Errorf("smt depth must be in (0, 256], got %d", depth)
	}
	t := &SMT{
		depth:  depth,
		leaves: make(map[protocol.Digest]protocol.Digest),
		nodes:  make(map[nodeKey]protocol.Digest),
	}
	t.emptyHashAt = make([]protocol.Digest, depth+1)
	for level := 1; level <= depth; level++ {
		t.emptyHashAt[level] = protocol.HashDigests(t.emptyHashAt[level-1], t.emptyHashAt[level-1])
	}
	return t, nil
}

// Depth returns the tree's fixed depth.
func (t *SMT) Depth() int { return t.depth }

// Get returns the value stored at key, or the default (zero) digest if
// key has never been written.
func (t *SMT) Get(key protocol.Digest) protocol.Digest {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if v, ok := t.leaves[key]; ok {
		return v
	}
	return t.emptyHashAt[0]
}

// Put writes value at key and updates every ancestor hash up to the
// root. It is the only mutating operation; callers hold whatever outer
// lock (Store.writeMu) makes this atomic with respect to the relational
// write it accompanies.
func (t *SMT) Put(key protocol.Digest, value protocol.Digest) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if value == t.emptyHashAt[0] {
		delete(t.leaves, key)
	} else {
		t.leaves[key] = value
	}

	bits := keyBits(key, t.depth)
	// The leaf itself is the level-0 node, read back as a sibling by
	// neighbouring keys' updates and openings.
	if value == t.emptyHashAt[0] {
		delete(t.nodes, nodeKey{level: 0, path: bits})
	} else {
		t.nodes[nodeKey{level: 0, path: bits}] = value
	}
	current := value
	// path[level] is the bit string of the node at `level` (0 = leaf's
	// own position, depth = root), i.e. bits[0:depth-level].
	for level := 0; level < t.depth; level++ {
		parentBits := bits[:t.depth-level-1]
		siblingBit := byte('0')
		if bits[t.depth-level-1] == '0' {
			siblingBit = '1'
		}
		siblingPath := parentBits + string(siblingBit)
		sibling := t.nodeValue(level, siblingPath)

		var parent protocol.Digest
		if bits[t.depth-level-1] == '0' {
			parent = protocol.HashDigests(current, sibling)
		} else {
			parent = protocol.HashDigests(sibling, current)
		}

		newLevel := level + 1
		if parent == t.emptyHashAt[newLevel] {
			delete(t.nodes, nodeKey{level: newLevel, path: parentBits})
		} else {
			t.nodes[nodeKey{level: newLevel, path: parentBits}] = parent
		}
		current = parent
	}
}

// nodeValue returns the cached node at (level, path), or the empty
// subtree hash for that level if nothing was ever written there. path is
// the node's bit string from the root (length == depth-level).
func (t *SMT) nodeValue(level int, path string) protocol.Digest {
	if v, ok := t.nodes[nodeKey{level: level, path: path}]; ok {
		return v
	}
	return t.emptyHashAt[level]
}

// Root returns the current tree root.
func (t *SMT) Root() protocol.Digest {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodeValue(t.depth, "")
}

// Opening is an inclusion/non-inclusion proof for a single key: the
// sibling digest at every level from leaf to root.
type Opening struct {
	Key   protocol.Digest
	Value protocol.Digest
	Path  []protocol.Digest // siblings, leaf to root
}

// Prove returns an Opening for key, valid whether or not key currently
// holds a non-default value (an SMT opening proves non-inclusion just as
// naturally as inclusion).
func (t *SMT) Prove(key protocol.Digest) Opening {
	t.mu.RLock()
	defer t.mu.RUnlock()

	bits := keyBits(key, t.depth)
	siblings := make([]protocol.Digest, t.depth)
	for level := 0; level < t.depth; level++ {
		parentBits := bits[:t.depth-level-1]
		siblingBit := byte('0')
		if bits[t.depth-level-1] == '0' {
			siblingBit = '1'
		}
		siblings[level] = t.nodeValue(level, parentBits+string(siblingBit))
	}
	value, ok := t.leaves[key]
	if !ok {
		value = t.emptyHashAt[0]
	}
	return Opening{Key: key, Value: value, Path: siblings}
}

// Verify recomputes the root implied by an Opening and compares it
// against root, returning true if the opening is consistent.
func Verify(o Opening, depth int, root protocol.Digest) bool {
	bits := keyBits(o.Key, depth)
	current := o.Value
	for level := 0; level < depth; level++ {
		bit := bits[depth-level-1]
		sibling := o.Path[level]
		if bit == '0' {
			current = protocol.HashDigests(current, sibling)
		} else {
			current = protocol.HashDigests(sibling, current)
		}
	}
	return current == root
}

// LeafUpdate is one leaf's new value plus the Opening it was proved
// against, the unit FoldUpdates combines.
type LeafUpdate struct {
	Key     protocol.Digest
	Opening Opening
	Value   protocol.Digest
}

// FoldUpdates computes the root that would result from writing every
// update in updates into the tree the openings were all proved against,
// without needing a live *SMT. A single update is just a path
// recomputation (RootAfterUpdate's case); folding more than one requires
// care when two updated leaves share an ancestor node, since the second
// leaf's opening carries that ancestor's *pre-update* sibling digest.
// FoldUpdates tracks every node it has itself recomputed in an override
// map keyed exactly like SMT's own nodeKey, consulting it before falling
// back to the opening's sibling - so later updates in the same call see
// earlier ones' effect on shared ancestors. Used by witness assembly,
// which only has the openings get_block_inputs returned once, never a
// reference to the Store's own tree.
func FoldUpdates(depth int, updates []LeafUpdate) protocol.Digest {
	overrides := make(map[nodeKey]protocol.Digest)
	var root protocol.Digest
	for _, u := range updates {
		bits := keyBits(u.Key, depth)
		current := u.Value
		overrides[nodeKey{level: 0, path: bits}] = u.Value
		for level := 0; level < depth; level++ {
			parentBits := bits[:depth-level-1]
			siblingBit := byte('0')
			if bits[depth-level-1] == '0' {
				siblingBit = '1'
			}
			siblingKey := nodeKey{level: level, path: parentBits + string(siblingBit)}
			sibling, ok := overrides[siblingKey]
			if !ok {
				sibling = u.Opening.Path[level]
			}
			var parent protocol.Digest
			if bits[depth-level-1] == '0' {
				parent = protocol.HashDigests(current, sibling)
			} else {
				parent = protocol.HashDigests(sibling, current)
			}
			overrides[nodeKey{level: level + 1, path: parentBits}] = parent
			current = parent
		}
		root = current
	}
	return root
}

// RootAfterUpdate is FoldUpdates for a single leaf.
func RootAfterUpdate(o Opening, depth int, newValue protocol.Digest) protocol.Digest {
	return FoldUpdates(depth, []LeafUpdate{{Key: o.Key, Opening: o, Value: newValue}})
}

// keyBits returns the top `depth` bits of key's big-endian byte
// encoding as a '0'/'1' string, MSB first, used to address SMT nodes.
func keyBits(key protocol.Digest, depth int) string {
	b := key.Bytes()
	bits := make([]byte, depth)
	for i := 0; i < depth; i++ {
		byteIdx := i / 8
		bitIdx := 7 - uint(i%8)
		if (b[byteIdx]>>bitIdx)&1 == 1 {
			bits[i] = '1'
		} else {
			bits[i] = '0'
		}
	}
	return string(bits)
}
