// Copyright 2025 Certen Protocol

package protocol

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestDigestBytesRoundTrip(t *testing.T) {
	d := Digest{1, 2, 3, 4}
	got, err := DigestFromBytes(d.Bytes())
	require.NoError(t, err)
	require.Equal(t, d, got)
}

func TestDigestFromBytesRejectsWrongLength(t *testing.T) {
	_, err := DigestFromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestAccountIDBytesRoundTrip(t *testing.T) {
	id := NewAccountID(0xABCD<<8, 0x1234, AccountTypeFungibleFaucet, StorageModeNetwork)
	got, err := AccountIDFromBytes(id.Bytes())
	require.NoError(t, err)
	require.Equal(t, id, got)
	require.Equal(t, AccountTypeFungibleFaucet, got.Type())
	require.Equal(t, StorageModeNetwork, got.StorageMode())
}

func TestExecutionHintPackUnpack(t *testing.T) {
	h := PackExecutionHint(ExecutionHintAfterBlock, 12345)
	tag, payload := h.Unpack()
	require.Equal(t, ExecutionHintAfterBlock, tag)
	require.Equal(t, uint32(12345), payload)
}

func TestExecutionHintPackRejectsOversizedTag(t *testing.T) {
	require.Panics(t, func() {
		PackExecutionHint(ExecutionHintTag(64), 0)
	})
}

func TestBlockHeaderCodecRoundTrip(t *testing.T) {
	h := BlockHeader{
		Version:       HeaderVersion,
		PrevHash:      Digest{1, 1, 1, 1},
		BlockNum:      7,
		ChainRoot:     Digest{2, 2, 2, 2},
		AccountRoot:   Digest{3, 3, 3, 3},
		NullifierRoot: Digest{4, 4, 4, 4},
		NoteRoot:      Digest{5, 5, 5, 5},
		TxHash:        Digest{6, 6, 6, 6},
		KernelRoot:    Digest{7, 7, 7, 7},
		ProofHash:     Digest{8, 8, 8, 8},
		Timestamp:     1234567890,
	}
	b, err := EncodeBlockHeader(h)
	require.NoError(t, err)
	got, err := DecodeBlockHeader(b)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestTransactionCodecRoundTrip(t *testing.T) {
	tx := Transaction{
		ID:                 Digest{9, 9, 9, 9},
		AccountID:          AccountID{1, 2},
		InitialAccountHash: Digest{1, 2, 3, 4},
		FinalAccountHash:   Digest{5, 6, 7, 8},
		InputNullifiers:    []Nullifier{{1, 1, 1, 1}, {2, 2, 2, 2}},
		OutputNotes: []Note{{
			ID: Digest{3, 3, 3, 3},
			Metadata: NoteMetadata{
				Sender:        AccountID{1, 2},
				Tag:           42,
				NoteType:      NoteTypePublic,
				ExecutionHint: PackExecutionHint(ExecutionHintAlways, 0),
			},
		}},
		ExpirationBlockNum: 100,
		Proof:              []byte{0xde, 0xad, 0xbe, 0xef},
	}
	b, err := EncodeTransaction(tx)
	require.NoError(t, err)
	got, err := DecodeTransaction(b)
	require.NoError(t, err)
	require.Equal(t, tx, got)
}

func TestBatchCodecRoundTrip(t *testing.T) {
	batch := Batch{
		ID:           uuid.New(),
		Transactions: []Digest{{1, 1, 1, 1}, {2, 2, 2, 2}},
		Proof:        []byte{1, 2, 3},
		CreatedAt:    42,
	}
	b, err := EncodeBatch(batch)
	require.NoError(t, err)
	got, err := DecodeBatch(b)
	require.NoError(t, err)
	require.Equal(t, batch, got)
}

func TestHashDigestsDeterministic(t *testing.T) {
	a := Digest{1, 2, 3, 4}
	c := Digest{5, 6, 7, 8}
	require.Equal(t, HashDigests(a, c), HashDigests(a, c))
	require.NotEqual(t, HashDigests(a, c), HashDigests(c, a))
}
