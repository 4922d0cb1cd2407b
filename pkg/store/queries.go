// Copyright 2025 Certen Protocol
//
// queries.go implements the Store's read-only operations: the witness
// inputs the Block Producer needs to build and prove the next batch/block,
// nullifier/account lookups, and the privacy-preserving sync scans. Every
// exported method here takes the shared read lock; only ApplyBlock takes
// the exclusive write lock.

package store

import (
	"context"
	"fmt"
	"os"

	"github.com/miden-node/rollup/pkg/database"
	"github.com/miden-node/rollup/pkg/merkle"
	"github.com/miden-node/rollup/pkg/protocol"
	"github.com/miden-node/rollup/pkg/rolluperr"
)

// AccountInput carries an account's current commitment plus its opening
// in the account tree, as handed to the Block Producer for witness
// assembly.
type AccountInput struct {
	ID         protocol.AccountID
	Commitment protocol.Digest
	Opening    merkle.Opening
}

// NullifierInput carries a nullifier's current (possibly absent) record
// plus its opening in the nullifier tree.
type NullifierInput struct {
	Nullifier  protocol.Nullifier
	ConsumedAt protocol.BlockNumber // 0 if unconsumed
	Opening    merkle.Opening
}

// BlockInputs is the response to get_block_inputs: everything the Block
// Producer needs to compute the next block's roots and witness.
type BlockInputs struct {
	Header                    protocol.BlockHeader
	HasHeader                 bool
	MMRPeaks                  []protocol.Digest
	Accounts                  []AccountInput
	Nullifiers                []NullifierInput
	UnauthenticatedNotes      []protocol.Note
	MissingUnauthenticatedIDs []protocol.Digest
}

// GetBlockInputs returns the witness material for building the next
// block: the latest header, MMR peaks at tip, per-account and
// per-nullifier openings, and the unauthenticated notes the Store already
// knows about. Notes requested but not found are returned in
// MissingUnauthenticatedIDs - it is then the Block Producer's job to
// require them to be created inside the same block.
func (s *Store) GetBlockInputs(ctx context.Context, accountIDs []protocol.AccountID, nullifiers []protocol.Nullifier, unauthenticatedNoteIDs []protocol.Digest) (BlockInputs, error) {
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()

	var out BlockInputs
	if s.hasTip {
		header, err := s.repos.BlockHeaders.GetByNumber(ctx, s.tip)
		if err != nil {
			return out, wrapUnavailable(err)
		}
		out.Header = header
		out.HasHeader = true
	}
	out.MMRPeaks = s.accum.BlockMMR.Peaks()

	for _, id := range accountIDs {
		out.Accounts = append(out.Accounts, AccountInput{
			ID:         id,
			Commitment: s.accum.AccountCommitment(id),
			Opening:    s.accum.AccountOpening(id),
		})
	}

	for _, n := range nullifiers {
		consumedAt, _ := s.accum.IsNullifierConsumed(n)
		out.Nullifiers = append(out.Nullifiers, NullifierInput{
			Nullifier:  n,
			ConsumedAt: consumedAt,
			Opening:    s.accum.NullifierOpening(n),
		})
	}

	found, missing, err := s.splitFoundNotes(ctx, unauthenticatedNoteIDs)
	if err != nil {
		return out, err
	}
	out.UnauthenticatedNotes = found
	out.MissingUnauthenticatedIDs = missing

	return out, nil
}

// BatchInputs is the response to get_batch_inputs: inclusion proofs for
// the unauthenticated notes the Store already knows about, so the batch
// prover can authenticate them, plus the ids it does not. A missing id
// is not an error at this level; it may be satisfied by a transaction
// in an earlier batch of the same block, which the block-level check
// enforces.
type BatchInputs struct {
	NoteProofs                []NoteAuthenticationInfo
	MissingUnauthenticatedIDs []protocol.Digest
}

// GetBatchInputs returns the witness material for proving a selected
// batch: authentication info for every unauthenticated note the Store
// has, and the ids it has never seen.
func (s *Store) GetBatchInputs(ctx context.Context, unauthenticatedNoteIDs []protocol.Digest) (BatchInputs, error) {
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()

	var out BatchInputs
	found, missing, err := s.splitFoundNotes(ctx, unauthenticatedNoteIDs)
	if err != nil {
		return out, err
	}
	out.MissingUnauthenticatedIDs = missing
	if len(found) == 0 {
		return out, nil
	}

	ids := make([]protocol.Digest, len(found))
	for i, n := range found {
		ids[i] = n.ID
	}
	out.NoteProofs, err = s.noteAuthenticationInfoLocked(ctx, ids)
	return out, err
}

// TransactionInputs is the response to get_transaction_inputs: the
// current account commitment and nullifier history needed to validate a
// single transaction before it is admitted to the mempool.
type TransactionInputs struct {
	AccountCommitment         protocol.Digest // zero if the account does not exist yet
	NullifierBlocks           map[protocol.Nullifier]protocol.BlockNumber
	MissingUnauthenticatedIDs []protocol.Digest
}

// GetTransactionInputs returns the current account commitment (zero if
// the account is unknown), the consuming block for each nullifier (0 if
// unconsumed), and which unauthenticated notes the Store does not know
// about.
func (s *Store) GetTransactionInputs(ctx context.Context, accountID protocol.AccountID, nullifiers []protocol.Nullifier, unauthenticatedNoteIDs []protocol.Digest) (TransactionInputs, error) {
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()

	out := TransactionInputs{
		AccountCommitment: s.accum.AccountCommitment(accountID),
		NullifierBlocks:   make(map[protocol.Nullifier]protocol.BlockNumber, len(nullifiers)),
	}
	for _, n := range nullifiers {
		consumedAt, _ := s.accum.IsNullifierConsumed(n)
		out.NullifierBlocks[n] = consumedAt
	}

	_, missing, err := s.splitFoundNotes(ctx, unauthenticatedNoteIDs)
	if err != nil {
		return out, err
	}
	out.MissingUnauthenticatedIDs = missing
	return out, nil
}

func (s *Store) splitFoundNotes(ctx context.Context, ids []protocol.Digest) (found []protocol.Note, missing []protocol.Digest, err error) {
	for _, id := range ids {
		n, getErr := s.repos.Notes.GetByID(ctx, id)
		if getErr == database.ErrNoteNotFound {
			missing = append(missing, id)
			continue
		}
		if getErr != nil {
			return nil, nil, wrapUnavailable(getErr)
		}
		found = append(found, n)
	}
	return found, missing, nil
}

// CheckNullifiers returns, for each requested nullifier, its opening in
// the nullifier tree plus the block it was consumed at (0 if never
// seen). Opening.Value encodes the same information the ConsumedAt field
// duplicates for callers that don't need the full path.
func (s *Store) CheckNullifiers(nullifiers []protocol.Nullifier) []NullifierInput {
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()

	out := make([]NullifierInput, 0, len(nullifiers))
	for _, n := range nullifiers {
		consumedAt, _ := s.accum.IsNullifierConsumed(n)
		out = append(out, NullifierInput{
			Nullifier:  n,
			ConsumedAt: consumedAt,
			Opening:    s.accum.NullifierOpening(n),
		})
	}
	return out
}

// CheckNullifiersByPrefix returns every nullifier consumed after fromBlock
// whose leading prefixBits bits match one of prefixes. The prefix length
// is fixed at 16 bits; any other value is rejected.
func (s *Store) CheckNullifiersByPrefix(ctx context.Context, prefixBits int, prefixes []uint16, fromBlock protocol.BlockNumber, limit int) ([]protocol.Nullifier, error) {
	if prefixBits != 16 {
		return nil, rolluperr.Wrap(rolluperr.ErrMalformed, "nullifier prefix length must be 16 bits, got %d", prefixBits)
	}
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()

	var out []protocol.Nullifier
	for _, prefix := range prefixes {
		matches, err := s.repos.Nullifiers.ByPrefixFromBlock(ctx, prefix, prefixBits, fromBlock, limit)
		if err != nil {
			return nil, wrapUnavailable(err)
		}
		out = append(out, matches...)
	}
	return out, nil
}

// GetBlockHeaderByNumber returns the header at blockNum, or the latest
// header if blockNum is nil. If includeMMRProof is set, it also returns
// the header's inclusion proof in the *current* MMR (available once the
// header has been superseded by the one-block lag, i.e. for every block
// below tip).
func (s *Store) GetBlockHeaderByNumber(ctx context.Context, blockNum *protocol.BlockNumber, includeMMRProof bool) (protocol.BlockHeader, *merkle.InclusionProof, error) {
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()

	var header protocol.BlockHeader
	var err error
	var num protocol.BlockNumber
	if blockNum == nil {
		if !s.hasTip {
			return header, nil, rolluperr.Wrap(rolluperr.ErrMalformed, "chain has no committed blocks yet")
		}
		header, err = s.repos.BlockHeaders.Latest(ctx)
		num = s.tip
	} else {
		header, err = s.repos.BlockHeaders.GetByNumber(ctx, *blockNum)
		num = *blockNum
	}
	if err == database.ErrBlockHeaderNotFound {
		return header, nil, rolluperr.Wrap(rolluperr.ErrMalformed, "block %d not found", num)
	}
	if err != nil {
		return header, nil, wrapUnavailable(err)
	}

	if !includeMMRProof {
		return header, nil, nil
	}
	proof, ok := s.accum.BlockMMR.Prove(int(num))
	if !ok {
		return header, nil, nil
	}
	return header, &proof, nil
}

// GetBlockByNumber returns the raw block blob written by ApplyBlock.
func (s *Store) GetBlockByNumber(blockNum protocol.BlockNumber) ([]byte, error) {
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()
	return s.readBlockBlobLocked(blockNum)
}

func (s *Store) readBlockBlobLocked(blockNum protocol.BlockNumber) ([]byte, error) {
	data, err := os.ReadFile(s.blockBlobPath(blockNum))
	if err != nil {
		return nil, rolluperr.Wrap(rolluperr.ErrMalformed, "block %d not found: %v", blockNum, err)
	}
	return data, nil
}

// GetNotesByID returns every requested note that the Store knows about.
func (s *Store) GetNotesByID(ctx context.Context, ids []protocol.Digest) ([]protocol.Note, error) {
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()
	notes, err := s.repos.Notes.GetByIDs(ctx, ids)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	return notes, nil
}

// NoteAuthenticationInfo is a single note's inclusion proof in the note
// tree of the block it was created in.
type NoteAuthenticationInfo struct {
	Note     protocol.Note
	BlockNum protocol.BlockNumber
	Proof    merkle.NoteInclusionProof
}

// GetNoteAuthenticationInfo rebuilds the note tree for each requested
// note's creation block (from the notes durably recorded there, in leaf
// order) and returns the note's inclusion proof in it.
func (s *Store) GetNoteAuthenticationInfo(ctx context.Context, ids []protocol.Digest) ([]NoteAuthenticationInfo, error) {
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()
	return s.noteAuthenticationInfoLocked(ctx, ids)
}

func (s *Store) noteAuthenticationInfoLocked(ctx context.Context, ids []protocol.Digest) ([]NoteAuthenticationInfo, error) {
	byBlock := make(map[protocol.BlockNumber][]protocol.Digest)
	notesByID := make(map[protocol.Digest]protocol.Note)
	for _, id := range ids {
		n, err := s.repos.Notes.GetByID(ctx, id)
		if err == database.ErrNoteNotFound {
			continue
		}
		if err != nil {
			return nil, wrapUnavailable(err)
		}
		byBlock[n.BlockNum] = append(byBlock[n.BlockNum], id)
		notesByID[id] = n
	}

	var out []NoteAuthenticationInfo
	for blockNum, wantIDs := range byBlock {
		blockNotes, err := s.repos.Notes.ByBlock(ctx, blockNum)
		if err != nil {
			return nil, wrapUnavailable(err)
		}
		leaves := make([]protocol.Digest, len(blockNotes))
		for i, n := range blockNotes {
			leaves[i] = n.ID
		}
		tree, err := merkle.BuildNoteTree(leaves)
		if err != nil {
			return nil, fmt.Errorf("rebuild note tree for block %d: %w", blockNum, err)
		}
		for _, id := range wantIDs {
			n := notesByID[id]
			proof, err := tree.Prove(n.LeafIndex)
			if err != nil {
				return nil, fmt.Errorf("generate note proof: %w", err)
			}
			out = append(out, NoteAuthenticationInfo{Note: n, BlockNum: blockNum, Proof: proof})
		}
	}
	return out, nil
}

// ListUnconsumedNetworkNotes returns up to limit network-execution notes
// that no committed transaction has consumed yet, oldest block first.
// Administrative; a network-transaction builder polls this to find work.
func (s *Store) ListUnconsumedNetworkNotes(ctx context.Context, limit int) ([]protocol.Note, error) {
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()
	if limit <= 0 {
		limit = 128
	}
	notes, err := s.repos.Notes.UnconsumedNetworkNotes(ctx, limit)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	return notes, nil
}

// GetAccountDetails returns account id's current durable record.
func (s *Store) GetAccountDetails(ctx context.Context, id protocol.AccountID) (protocol.Account, error) {
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()
	acct, err := s.repos.Accounts.Get(ctx, id)
	if err == database.ErrAccountNotFound {
		return protocol.Account{}, rolluperr.Wrap(rolluperr.ErrMalformed, "account not found")
	}
	if err != nil {
		return protocol.Account{}, wrapUnavailable(err)
	}
	return acct, nil
}

// GetAccountStateDelta reconstructs id's cumulative delta over
// (fromExclusive, toInclusive] by merging per-block delta rows: scalar
// slots and map-slot entries take the latest write, fungible deltas sum,
// and non-fungible presence takes the most recent add/remove action per
// vault key.
func (s *Store) GetAccountStateDelta(ctx context.Context, id protocol.AccountID, fromExclusive, toInclusive protocol.BlockNumber) (protocol.AccountDelta, error) {
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()

	rows, err := s.repos.Deltas.RangeForAccount(ctx, id, fromExclusive, toInclusive)
	if err != nil {
		return protocol.AccountDelta{}, wrapUnavailable(err)
	}
	return mergeDeltaRows(id, toInclusive, rows)
}

func mergeDeltaRows(id protocol.AccountID, toInclusive protocol.BlockNumber, rows []database.DeltaRow) (protocol.AccountDelta, error) {
	out := protocol.AccountDelta{
		AccountID:      id,
		BlockNum:       toInclusive,
		ScalarSlots:    make(map[uint8]protocol.Digest),
		MapSlotUpdates: make(map[uint8]map[protocol.Digest]protocol.Digest),
		FungibleDeltas: make(map[protocol.AccountID]int64),
	}
	nonFungiblePresence := make(map[protocol.Digest]bool)
	var nonFungibleOrder []protocol.Digest

	for _, row := range rows {
		switch row.Kind {
		case "scalar_slot":
			v, err := protocol.DigestFromBytes(row.Value)
			if err != nil {
				return out, err
			}
			out.ScalarSlots[uint8(row.Slot)] = v
		case "map_slot":
			key, err := protocol.DigestFromBytes(row.MapKey)
			if err != nil {
				return out, err
			}
			val, err := protocol.DigestFromBytes(row.Value)
			if err != nil {
				return out, err
			}
			if out.MapSlotUpdates[uint8(row.Slot)] == nil {
				out.MapSlotUpdates[uint8(row.Slot)] = make(map[protocol.Digest]protocol.Digest)
			}
			out.MapSlotUpdates[uint8(row.Slot)][key] = val
		case "fungible_asset":
			faucet := protocol.AccountID{uint64(row.FaucetIDHi), uint64(row.FaucetIDLo)}
			out.FungibleDeltas[faucet] += row.AmountDelta
		case "non_fungible_asset":
			key, err := protocol.DigestFromBytes(row.Value)
			if err != nil {
				return out, err
			}
			if _, seen := nonFungiblePresence[key]; !seen {
				nonFungibleOrder = append(nonFungibleOrder, key)
			}
			nonFungiblePresence[key] = row.Added
		}
	}

	for _, key := range nonFungibleOrder {
		if nonFungiblePresence[key] {
			out.NonFungibleAdds = append(out.NonFungibleAdds, key)
		} else {
			out.NonFungibleRems = append(out.NonFungibleRems, key)
		}
	}
	return out, nil
}

// AccountProof bundles an account's current commitment, its opening in
// the account tree, and optionally its header and code, for
// get_account_proofs.
type AccountProof struct {
	ID          protocol.AccountID
	Commitment  protocol.Digest
	Opening     merkle.Opening
	Header      *protocol.BlockHeader
	AccountCode protocol.Digest // zero unless the caller's code_commitments omit the current one
	HasCode     bool
}

// GetAccountProofs returns one AccountProof per requested id.
// account_code is populated only when codeCommitments does not already
// contain the account's current code root.
func (s *Store) GetAccountProofs(ctx context.Context, ids []protocol.AccountID, includeHeaders bool, codeCommitments map[protocol.AccountID]protocol.Digest) ([]AccountProof, error) {
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()

	var header *protocol.BlockHeader
	if includeHeaders && s.hasTip {
		h, err := s.repos.BlockHeaders.GetByNumber(ctx, s.tip)
		if err != nil {
			return nil, wrapUnavailable(err)
		}
		header = &h
	}

	out := make([]AccountProof, 0, len(ids))
	for _, id := range ids {
		p := AccountProof{
			ID:         id,
			Commitment: s.accum.AccountCommitment(id),
			Opening:    s.accum.AccountOpening(id),
			Header:     header,
		}
		acct, err := s.repos.Accounts.Get(ctx, id)
		if err == nil {
			known, hasKnown := codeCommitments[id]
			if !hasKnown || known != acct.CodeRoot {
				p.AccountCode = acct.CodeRoot
				p.HasCode = true
			}
		} else if err != database.ErrAccountNotFound {
			return nil, wrapUnavailable(err)
		}
		out = append(out, p)
	}
	return out, nil
}

// SyncStateResult is the response to sync_state: the first block after
// from_block matching any filter, or the current tip if none matches,
// plus the account/nullifier changes in the window and the MMR delta
// needed to extend a light client's view.
type SyncStateResult struct {
	Header           protocol.BlockHeader
	MatchedOrTip     protocol.BlockNumber
	AccountUpdates   []protocol.Account
	NullifierUpdates []protocol.Nullifier
	MMRPeaks         []protocol.Digest
}

// SyncState scans forward from fromBlock+1 for the first block whose
// notes table contains a note matching noteTagPrefixes (truncated to 16
// bits so exact tags are never disclosed) or whose nullifiers match
// nullifierPrefixes, returning everything the caller needs to catch up
// to that point (or to the tip, if nothing matches).
func (s *Store) SyncState(ctx context.Context, fromBlock protocol.BlockNumber, accountIDs []protocol.AccountID, noteTagPrefixes []uint16, nullifierPrefixes []uint16) (SyncStateResult, error) {
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()

	var out SyncStateResult
	if !s.hasTip {
		return out, rolluperr.Wrap(rolluperr.ErrMalformed, "chain has no committed blocks yet")
	}

	matched := s.tip
	for _, prefix := range noteTagPrefixes {
		notes, err := s.repos.Notes.ByTagPrefixFromBlock(ctx, prefix, fromBlock, 1)
		if err != nil {
			return out, wrapUnavailable(err)
		}
		if len(notes) > 0 && notes[0].BlockNum < matched {
			matched = notes[0].BlockNum
		}
	}
	for _, prefix := range nullifierPrefixes {
		nulls, err := s.repos.Nullifiers.ByPrefixFromBlock(ctx, prefix, 16, fromBlock, 1)
		if err != nil {
			return out, wrapUnavailable(err)
		}
		if len(nulls) > 0 {
			if consumedAt, ok := s.accum.IsNullifierConsumed(nulls[0]); ok && consumedAt < matched {
				matched = consumedAt
			}
		}
	}
	if len(noteTagPrefixes) == 0 && len(nullifierPrefixes) == 0 {
		matched = s.tip
	}

	header, err := s.repos.BlockHeaders.GetByNumber(ctx, matched)
	if err != nil {
		return out, wrapUnavailable(err)
	}
	out.Header = header
	out.MatchedOrTip = matched
	out.MMRPeaks = s.accum.BlockMMR.Peaks()

	for _, id := range accountIDs {
		acct, err := s.repos.Accounts.Get(ctx, id)
		if err == database.ErrAccountNotFound {
			continue
		}
		if err != nil {
			return out, wrapUnavailable(err)
		}
		if acct.Commitment != (protocol.Digest{}) {
			out.AccountUpdates = append(out.AccountUpdates, acct)
		}
	}
	for _, prefix := range nullifierPrefixes {
		nulls, err := s.repos.Nullifiers.ByPrefixFromBlock(ctx, prefix, 16, fromBlock, 1000)
		if err != nil {
			return out, wrapUnavailable(err)
		}
		for _, n := range nulls {
			if consumedAt, ok := s.accum.IsNullifierConsumed(n); ok && consumedAt <= matched {
				out.NullifierUpdates = append(out.NullifierUpdates, n)
			}
		}
	}

	return out, nil
}

// SyncNotesResult is the response to sync_notes: the first matching
// block plus the notes in it that matched the caller's tag filter.
type SyncNotesResult struct {
	Header       protocol.BlockHeader
	MatchedOrTip protocol.BlockNumber
	Notes        []protocol.Note
}

// SyncNotes scans forward from fromBlock+1 for the first block
// containing a note matching any of noteTagPrefixes, or returns the tip
// with no notes if nothing matches.
func (s *Store) SyncNotes(ctx context.Context, fromBlock protocol.BlockNumber, noteTagPrefixes []uint16) (SyncNotesResult, error) {
	s.writeMu.RLock()
	defer s.writeMu.RUnlock()

	var out SyncNotesResult
	if !s.hasTip {
		return out, rolluperr.Wrap(rolluperr.ErrMalformed, "chain has no committed blocks yet")
	}

	matched := s.tip
	var matchedNotes []protocol.Note
	for _, prefix := range noteTagPrefixes {
		notes, err := s.repos.Notes.ByTagPrefixFromBlock(ctx, prefix, fromBlock, 64)
		if err != nil {
			return out, wrapUnavailable(err)
		}
		for _, n := range notes {
			if n.BlockNum < matched || matchedNotes == nil {
				if n.BlockNum <= matched {
					matched = n.BlockNum
				}
			}
		}
		matchedNotes = append(matchedNotes, notes...)
	}

	if len(matchedNotes) > 0 {
		first := matched
		filtered := matchedNotes[:0]
		for _, n := range matchedNotes {
			if n.BlockNum == first {
				filtered = append(filtered, n)
			}
		}
		matchedNotes = filtered
	} else {
		matched = s.tip
	}

	header, err := s.repos.BlockHeaders.GetByNumber(ctx, matched)
	if err != nil {
		return out, wrapUnavailable(err)
	}
	out.Header = header
	out.MatchedOrTip = matched
	out.Notes = matchedNotes
	return out, nil
}
