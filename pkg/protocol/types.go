// Copyright 2025 Certen Protocol
//
// Package protocol defines the wire-level data model shared by the Store
// and Block Producer: field-element primitives, the entities built from
// them, and the binary codec used to move them across the internal RPC
// boundary and onto disk.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Digest is a four-field-element hash output, the unit the accumulators
// and account/note identifiers are built from.
type Digest [4]uint64

// Bytes returns the big-endian 32-byte encoding of d.
func (d Digest) Bytes() []byte {
	buf := make([]byte, 32)
	for i, limb := range d {
		binary.BigEndian.PutUint64(buf[i*8:], limb)
	}
	return buf
}

// DigestFromBytes parses the big-endian 32-byte encoding produced by
// Digest.Bytes.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != 32 {
		return d, fmt.Errorf("digest must be 32 bytes, got %d", len(b))
	}
	for i := range d {
		d[i] = binary.BigEndian.Uint64(b[i*8:])
	}
	return d, nil
}

// IsZero reports whether d is the all-zero digest, used as the "absent"
// sentinel (e.g. an unconsumed nullifier leaf, a genesis block's prev
// hash).
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Prefix16 returns the leading 16 bits of d, the truncation used for
// nullifier-prefix and note-tag sync filters so the Store never has to
// disclose exact tags/nullifiers to an unauthenticated peer.
func (d Digest) Prefix16() uint16 {
	return uint16(d[0] >> 48)
}

// AccountID is a two-field-element account identifier. The low bits of
// the first limb encode the account type and storage mode, so the
// metadata travels with the id instead of being carried as separate
// fields everywhere.
type AccountID [2]uint64

type AccountType uint8

const (
	AccountTypeRegularImmutableCode AccountType = iota
	AccountTypeRegularUpdatableCode
	AccountTypeFungibleFaucet
	AccountTypeNonFungibleFaucet
)

type StorageMode uint8

const (
	StorageModePublic StorageMode = iota
	StorageModePrivate
	StorageModeNetwork
)

const (
	accountTypeShift = 0
	accountTypeMask  = 0x3
	storageModeShift = 2
	storageModeMask  = 0x3
)

// NewAccountID builds an AccountID from a raw identifier prefix plus its
// type/mode metadata.
func NewAccountID(prefix uint64, suffix uint64, t AccountType, mode StorageMode) AccountID {
	header := ((uint64(t) & accountTypeMask) << accountTypeShift) | ((uint64(mode) & storageModeMask) << storageModeShift)
	return AccountID{prefix | header, suffix}
}

func (id AccountID) Type() AccountType {
	return AccountType(id[0] & accountTypeMask)
}

func (id AccountID) StorageMode() StorageMode {
	return StorageMode((id[0] >> storageModeShift) & storageModeMask)
}

func (id AccountID) Bytes() []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], id[0])
	binary.BigEndian.PutUint64(buf[8:16], id[1])
	return buf
}

func AccountIDFromBytes(b []byte) (AccountID, error) {
	var id AccountID
	if len(b) != 16 {
		return id, fmt.Errorf("account id must be 16 bytes, got %d", len(b))
	}
	id[0] = binary.BigEndian.Uint64(b[0:8])
	id[1] = binary.BigEndian.Uint64(b[8:16])
	return id, nil
}

// BlockNumber identifies a committed block by height.
type BlockNumber uint32

// IsGenesis reports whether n is the chain's genesis block (height 0).
func (n BlockNumber) IsGenesis() bool {
	return n == 0
}

// Nullifier is the digest published when a note is consumed; it is the
// SMT key in the nullifier accumulator.
type Nullifier = Digest

// ExecutionHint packs a 6-bit tag describing when a note may be
// consumed (e.g. "always", "after block", "on block range") with a
// 32-bit tag-specific payload into a single uint64, matching the
// project's native wire format for note metadata.
type ExecutionHint uint64

const executionHintTagBits = 6

// ExecutionHintTag enumerates the recognized hint kinds. Network-hinted
// notes are consumed by the sequencer's own network-transaction builder
// rather than by a client, which is why the Store indexes the unconsumed
// ones separately.
type ExecutionHintTag uint8

const (
	ExecutionHintAlways ExecutionHintTag = iota
	ExecutionHintAfterBlock
	ExecutionHintOnBlockSlot
	ExecutionHintNetwork
)

// executionHintTagMask extracts the tag bits from a packed hint; the
// relational layer applies the same mask in SQL to filter notes by
// execution kind.
const executionHintTagMask = 1<<executionHintTagBits - 1

// Tag returns the hint's 6-bit tag without the payload.
func (h ExecutionHint) Tag() ExecutionHintTag {
	return ExecutionHintTag(uint64(h) & executionHintTagMask)
}

// PackExecutionHint builds an ExecutionHint from a tag and payload. It
// panics if tag does not fit in 6 bits, a programmer error rather than
// something callers should handle.
func PackExecutionHint(tag ExecutionHintTag, payload uint32) ExecutionHint {
	if tag >= 1<<executionHintTagBits {
		panic(fmt.Sprintf("execution hint tag %d does not fit in %d bits", tag, executionHintTagBits))
	}
	return ExecutionHint(uint64(tag) | uint64(payload)<<executionHintTagBits)
}

func (h ExecutionHint) Unpack() (ExecutionHintTag, uint32) {
	payload := uint32(uint64(h) >> executionHintTagBits)
	return h.Tag(), payload
}

// NoteType distinguishes public, private, and encrypted notes.
type NoteType uint8

const (
	NoteTypePublic NoteType = iota
	NoteTypePrivate
	NoteTypeEncrypted
)

// NoteMetadata carries the fields needed for sync filtering and
// execution-eligibility checks without revealing the note's contents.
type NoteMetadata struct {
	Sender        AccountID
	Tag           uint32
	NoteType      NoteType
	ExecutionHint ExecutionHint
	Aux           uint64
}

// Note is a single output of a transaction. Whether it has since been
// consumed is not recorded here; the Store tracks that in its notes table.
type Note struct {
	ID         Digest
	Metadata   NoteMetadata
	Assets     []Asset
	Recipient  Digest // hash(serial_num, script_hash, input_hash)
	BlockNum   BlockNumber
	MerklePath [][]byte // sibling hashes in the block's note tree, leaf to root
	LeafIndex  int
}

// Asset is a single fungible or non-fungible asset carried by a note.
type Asset struct {
	FaucetID AccountID
	// Amount is the fungible quantity; for non-fungible assets it is
	// unused and Data carries the asset's unique payload digest.
	Amount uint64
	Data   Digest
}

// Account is the Store's view of one account's current state.
type Account struct {
	ID          AccountID
	Nonce       uint64
	VaultRoot   Digest
	StorageRoot Digest
	CodeRoot    Digest
	Commitment  Digest // hash of the four fields above
}

// AccountDelta records the changes a single transaction made to an
// account, split by storage-slot kind the way the relational schema
// stores them.
type AccountDelta struct {
	AccountID       AccountID
	BlockNum        BlockNumber
	NonceDelta      uint64
	ScalarSlots     map[uint8]Digest
	MapSlotUpdates  map[uint8]map[Digest]Digest
	FungibleDeltas  map[AccountID]int64
	NonFungibleAdds []Digest
	NonFungibleRems []Digest
}

// HeaderVersion is the protocol version stamped into every header this
// node produces.
const HeaderVersion uint32 = 1

// BlockHeader is the committed header for one block.
type BlockHeader struct {
	Version       uint32
	PrevHash      Digest
	BlockNum      BlockNumber
	ChainRoot     Digest // MMR root over all prior headers (one-block lag)
	AccountRoot   Digest
	NullifierRoot Digest
	NoteRoot      Digest
	TxHash        Digest
	KernelRoot    Digest // root of the kernel procedure set blocks execute under
	ProofHash     Digest
	Timestamp     int64
}

// Hash returns the header's own digest, used as PrevHash in the next
// header and as the MMR leaf inserted while building the next block.
func (h BlockHeader) Hash() Digest {
	// A real implementation hashes the serialized header with the
	// project's field-element hash; this is delegated to Hasher so the
	// accumulator packages stay hash-function agnostic.
	return Hasher(h)
}

// Hasher is the pluggable field-element hash used throughout the
// accumulators. It defaults to a SHA-256-derived compression function;
// tests may substitute a cheaper stand-in.
var Hasher = defaultHashBlockHeader

// Transaction is a single proven state transition submitted by a client.
type Transaction struct {
	ID                 Digest
	AccountID          AccountID
	InitialAccountHash Digest
	FinalAccountHash   Digest
	InputNullifiers    []Nullifier
	UnauthenticatedIDs []Digest // input notes not yet known to the Store
	OutputNotes        []Note
	ExpirationBlockNum BlockNumber
	Proof              []byte
	SubmittedAt        int64
}

// Batch groups transactions proven together into a single batch proof.
type Batch struct {
	ID           uuid.UUID
	Transactions []Digest // transaction IDs, in execution order
	Proof        []byte
	CreatedAt    int64
}

// Block is an in-flight block under construction by the scheduler,
// distinct from the committed BlockHeader the Store persists.
type Block struct {
	BlockNum  BlockNumber
	Batches   []uuid.UUID
	Proof     []byte
	CreatedAt int64
}
