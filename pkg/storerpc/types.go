// Copyright 2025 Certen Protocol
//
// Package storerpc wires pkg/store's operations onto pkg/rpc's framed
// transport: request/response structs for each Store method (§6), a
// RegisterStoreService that exposes pkg/store.Store on an rpc.Server, and
// a Client the Block Producer process dials to reach it. Everything here
// is plain data plus glue; the operations themselves live in pkg/store.
package storerpc

import (
	"github.com/miden-node/rollup/pkg/merkle"
	"github.com/miden-node/rollup/pkg/protocol"
	"github.com/miden-node/rollup/pkg/store"
)

type ApplyBlockRequest struct {
	Block store.ProvenBlock
}

type ApplyBlockResponse struct{}

type GetBlockInputsRequest struct {
	AccountIDs             []protocol.AccountID
	Nullifiers             []protocol.Nullifier
	UnauthenticatedNoteIDs []protocol.Digest
}

type GetBlockInputsResponse struct {
	Inputs store.BlockInputs
}

type GetBatchInputsRequest struct {
	UnauthenticatedNoteIDs []protocol.Digest
}

type GetBatchInputsResponse struct {
	Inputs store.BatchInputs
}

type GetTransactionInputsRequest struct {
	AccountID              protocol.AccountID
	Nullifiers             []protocol.Nullifier
	UnauthenticatedNoteIDs []protocol.Digest
}

type GetTransactionInputsResponse struct {
	Inputs store.TransactionInputs
}

type TipRequest struct{}

type TipResponse struct {
	Tip    protocol.BlockNumber
	HasTip bool
}

type CheckNullifiersRequest struct {
	Nullifiers []protocol.Nullifier
}

type CheckNullifiersResponse struct {
	Results []store.NullifierInput
}

type CheckNullifiersByPrefixRequest struct {
	PrefixBits int
	Prefixes   []uint16
	FromBlock  protocol.BlockNumber
	Limit      int
}

type CheckNullifiersByPrefixResponse struct {
	Nullifiers []protocol.Nullifier
}

type GetBlockHeaderByNumberRequest struct {
	BlockNum        *protocol.BlockNumber
	IncludeMMRProof bool
}

type GetBlockHeaderByNumberResponse struct {
	Header   protocol.BlockHeader
	MMRProof *merkle.InclusionProof
}

type GetBlockByNumberRequest struct {
	BlockNum protocol.BlockNumber
}

type GetBlockByNumberResponse struct {
	Blob []byte
}

type GetNotesByIDRequest struct {
	IDs []protocol.Digest
}

type GetNotesByIDResponse struct {
	Notes []protocol.Note
}

type GetNoteAuthenticationInfoRequest struct {
	IDs []protocol.Digest
}

type GetNoteAuthenticationInfoResponse struct {
	Infos []store.NoteAuthenticationInfo
}

type GetAccountDetailsRequest struct {
	ID protocol.AccountID
}

type GetAccountDetailsResponse struct {
	Account protocol.Account
}

type GetAccountStateDeltaRequest struct {
	ID            protocol.AccountID
	FromExclusive protocol.BlockNumber
	ToInclusive   protocol.BlockNumber
}

type GetAccountStateDeltaResponse struct {
	Delta protocol.AccountDelta
}

type GetAccountProofsRequest struct {
	IDs             []protocol.AccountID
	IncludeHeaders  bool
	CodeCommitments map[protocol.AccountID]protocol.Digest
}

type GetAccountProofsResponse struct {
	Proofs []store.AccountProof
}

type SyncStateRequest struct {
	FromBlock         protocol.BlockNumber
	AccountIDs        []protocol.AccountID
	NoteTagPrefixes   []uint16
	NullifierPrefixes []uint16
}

type SyncStateResponse struct {
	Result store.SyncStateResult
}

type SyncNotesRequest struct {
	FromBlock       protocol.BlockNumber
	NoteTagPrefixes []uint16
}

type SyncNotesResponse struct {
	Result store.SyncNotesResult
}

type ListUnconsumedNetworkNotesRequest struct {
	Limit int
}

type ListUnconsumedNetworkNotesResponse struct {
	Notes []protocol.Note
}
