// Copyright 2025 Certen Protocol

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miden-node/rollup/pkg/config"
	"github.com/miden-node/rollup/pkg/merkle"
	"github.com/miden-node/rollup/pkg/protocol"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:             t.TempDir(),
		DBMaxOpenConns:      4,
		DBMaxIdleConns:      2,
		NullifierPrefixBits: 16,
		MaxAccountsPerBlock: 64,
		MaxNotesPerBlock:    1024,
	}
}

func header(num protocol.BlockNumber, prev, chainRoot protocol.Digest) protocol.BlockHeader {
	return protocol.BlockHeader{
		BlockNum:  num,
		PrevHash:  prev,
		ChainRoot: chainRoot,
	}
}

func TestApplyBlockTipBookkeeping(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, testConfig(t))
	require.NoError(t, err)
	defer s.Close()

	_, hasTip := s.Tip()
	require.False(t, hasTip)

	emptyRoot := merkle.NewMMR().Root()
	genesis := header(0, protocol.Digest{}, emptyRoot)
	require.NoError(t, s.ApplyBlock(ctx, ProvenBlock{Header: genesis}))

	tip, hasTip := s.Tip()
	require.True(t, hasTip)
	require.Equal(t, protocol.BlockNumber(0), tip)

	oneLeaf := merkle.NewMMR()
	oneLeaf.Append(genesis.Hash())
	block1 := header(1, genesis.Hash(), oneLeaf.Root())
	require.NoError(t, s.ApplyBlock(ctx, ProvenBlock{Header: block1}))

	tip, hasTip = s.Tip()
	require.True(t, hasTip)
	require.Equal(t, protocol.BlockNumber(1), tip)
}

// TestApplyBlockChainRootHasOneBlockLag: block i's header must
// reference the MMR root at size i - every header up
// to and including its immediate predecessor, but never its own. The
// predecessor's leaf is appended while block i itself is applied.
func TestApplyBlockChainRootHasOneBlockLag(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, testConfig(t))
	require.NoError(t, err)
	defer s.Close()

	emptyRoot := merkle.NewMMR().Root()
	genesis := header(0, protocol.Digest{}, emptyRoot)
	require.NoError(t, s.ApplyBlock(ctx, ProvenBlock{Header: genesis}))

	// Block 1's chain_root covers exactly one leaf: genesis's header. The
	// empty root (lagging one block too far) must be rejected.
	badBlock1 := header(1, genesis.Hash(), emptyRoot)
	require.Error(t, s.ApplyBlock(ctx, ProvenBlock{Header: badBlock1}))

	oneLeaf := merkle.NewMMR()
	oneLeaf.Append(genesis.Hash())
	block1 := header(1, genesis.Hash(), oneLeaf.Root())
	require.NoError(t, s.ApplyBlock(ctx, ProvenBlock{Header: block1}))

	// Block 2's chain_root covers genesis and block 1 - but never block 2
	// itself, which is what a root computed over three leaves would imply.
	twoLeaves := merkle.NewMMR()
	twoLeaves.Append(genesis.Hash())
	twoLeaves.Append(block1.Hash())

	badBlock2 := header(2, block1.Hash(), oneLeaf.Root())
	require.Error(t, s.ApplyBlock(ctx, ProvenBlock{Header: badBlock2}))

	goodBlock2 := header(2, block1.Hash(), twoLeaves.Root())
	require.NoError(t, s.ApplyBlock(ctx, ProvenBlock{Header: goodBlock2}))

	tip, _ := s.Tip()
	require.Equal(t, protocol.BlockNumber(2), tip)
}

func TestApplyBlockRejectsWrongGenesis(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, testConfig(t))
	require.NoError(t, err)
	defer s.Close()

	emptyRoot := merkle.NewMMR().Root()
	genesis := header(0, protocol.Digest{}, emptyRoot)
	require.NoError(t, s.ApplyBlock(ctx, ProvenBlock{Header: genesis}))

	// Submitting another block 0 once the chain already has a tip must
	// fail rather than silently overwrite genesis.
	err = s.ApplyBlock(ctx, ProvenBlock{Header: genesis})
	require.Error(t, err)
}

// TestCheckNullifiersOpenings: a committed nullifier opens with the
// block it was consumed at; a never-seen one
// opens as non-inclusion with value zero, and both openings verify
// against the nullifier tree root.
func TestCheckNullifiersOpenings(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, testConfig(t))
	require.NoError(t, err)
	defer s.Close()

	emptyRoot := merkle.NewMMR().Root()
	genesis := header(0, protocol.Digest{}, emptyRoot)
	require.NoError(t, s.ApplyBlock(ctx, ProvenBlock{Header: genesis}))

	nullifier := protocol.Digest{0x99, 0, 0, 0}
	oneLeaf := merkle.NewMMR()
	oneLeaf.Append(genesis.Hash())
	block1 := header(1, genesis.Hash(), oneLeaf.Root())
	require.NoError(t, s.ApplyBlock(ctx, ProvenBlock{
		Header: block1,
		Transactions: []protocol.Transaction{{
			ID:              protocol.Digest{1, 0, 0, 0},
			InputNullifiers: []protocol.Nullifier{nullifier},
		}},
	}))

	unseen := protocol.Digest{0x77, 0, 0, 0}
	results := s.CheckNullifiers([]protocol.Nullifier{nullifier, unseen})
	require.Len(t, results, 2)

	require.Equal(t, protocol.BlockNumber(1), results[0].ConsumedAt)
	require.False(t, results[0].Opening.Value.IsZero())
	require.Equal(t, protocol.BlockNumber(0), results[1].ConsumedAt)
	require.True(t, results[1].Opening.Value.IsZero())

	root := s.accum.NullifierTree.Root()
	require.True(t, merkle.Verify(results[0].Opening, merkle.NullifierTreeDepth, root))
	require.True(t, merkle.Verify(results[1].Opening, merkle.NullifierTreeDepth, root))
}

func TestCheckNullifiersByPrefixRejectsNon16BitLength(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, testConfig(t))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.CheckNullifiersByPrefix(ctx, 8, []uint16{0x1234}, 0, 10)
	require.Error(t, err)
	_, err = s.CheckNullifiersByPrefix(ctx, 17, []uint16{0x1234}, 0, 10)
	require.Error(t, err)
}

// TestGetAccountStateDeltaMergeRules exercises the delta reconstruction
// merge semantics: scalar and map slots take the latest write, fungible
// deltas sum per faucet, and non-fungible presence follows the most
// recent add/remove action per vault key.
func TestGetAccountStateDeltaMergeRules(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, testConfig(t))
	require.NoError(t, err)
	defer s.Close()

	acct := protocol.AccountID{1, 0}
	faucet := protocol.AccountID{9, 0}
	asset := protocol.Digest{0xAB, 0, 0, 0}

	emptyRoot := merkle.NewMMR().Root()
	genesis := header(0, protocol.Digest{}, emptyRoot)
	require.NoError(t, s.ApplyBlock(ctx, ProvenBlock{
		Header: genesis,
		Deltas: []protocol.AccountDelta{{
			AccountID:       acct,
			BlockNum:        0,
			ScalarSlots:     map[uint8]protocol.Digest{3: {1, 0, 0, 0}},
			FungibleDeltas:  map[protocol.AccountID]int64{faucet: 100},
			NonFungibleAdds: []protocol.Digest{asset},
		}},
	}))

	oneLeaf := merkle.NewMMR()
	oneLeaf.Append(genesis.Hash())
	block1 := header(1, genesis.Hash(), oneLeaf.Root())
	require.NoError(t, s.ApplyBlock(ctx, ProvenBlock{
		Header: block1,
		Deltas: []protocol.AccountDelta{{
			AccountID:       acct,
			BlockNum:        1,
			ScalarSlots:     map[uint8]protocol.Digest{3: {2, 0, 0, 0}},
			FungibleDeltas:  map[protocol.AccountID]int64{faucet: -40},
			NonFungibleRems: []protocol.Digest{asset},
		}},
	}))

	// (genesis, block1] - only block 1's rows. fromExclusive is a real
	// exclusion, not an off-by-one.
	delta, err := s.GetAccountStateDelta(ctx, acct, 0, 1)
	require.NoError(t, err)
	require.Equal(t, protocol.Digest{2, 0, 0, 0}, delta.ScalarSlots[3])
	require.Equal(t, int64(-40), delta.FungibleDeltas[faucet])
	require.Equal(t, []protocol.Digest{asset}, delta.NonFungibleRems)
	require.Empty(t, delta.NonFungibleAdds)
}

// TestSyncStateIsMonotone verifies the sync monotonicity law: a later
// from_block can never resolve to an earlier matched block.
func TestSyncStateIsMonotone(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, testConfig(t))
	require.NoError(t, err)
	defer s.Close()

	emptyRoot := merkle.NewMMR().Root()
	genesis := header(0, protocol.Digest{}, emptyRoot)
	require.NoError(t, s.ApplyBlock(ctx, ProvenBlock{Header: genesis}))

	prev := genesis
	mmr := merkle.NewMMR()
	for num := protocol.BlockNumber(1); num <= 3; num++ {
		mmr.Append(prev.Hash())
		next := header(num, prev.Hash(), mmr.Root())
		require.NoError(t, s.ApplyBlock(ctx, ProvenBlock{Header: next}))
		prev = next
	}

	first, err := s.SyncState(ctx, 0, nil, []uint16{0xFFFF}, nil)
	require.NoError(t, err)
	second, err := s.SyncState(ctx, 2, nil, []uint16{0xFFFF}, nil)
	require.NoError(t, err)
	require.LessOrEqual(t, first.Header.BlockNum, second.Header.BlockNum)
}

// TestRecoverPrunesOrphanedBlockBlob: a block blob written beyond the
// relational tip (the crash window between the blob fsync and the
// relational commit) is pruned on the next recover, never left to be
// served as though it were committed.
func TestRecoverPrunesOrphanedBlockBlob(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	s, err := Open(ctx, cfg)
	require.NoError(t, err)

	emptyRoot := merkle.NewMMR().Root()
	genesis := header(0, protocol.Digest{}, emptyRoot)
	require.NoError(t, s.ApplyBlock(ctx, ProvenBlock{Header: genesis}))
	require.NoError(t, s.Close())

	orphanPath := filepath.Join(cfg.DataDir, "blocks", fmt.Sprintf("%010d", 1))
	require.NoError(t, os.MkdirAll(filepath.Dir(orphanPath), 0o755))
	require.NoError(t, os.WriteFile(orphanPath, []byte("orphaned"), 0o644))

	s2, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer s2.Close()

	_, err = os.Stat(orphanPath)
	require.True(t, os.IsNotExist(err))

	tip, hasTip := s2.Tip()
	require.True(t, hasTip)
	require.Equal(t, protocol.BlockNumber(0), tip)
}
