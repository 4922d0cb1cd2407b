// Copyright 2025 Certen Protocol

package storerpc

import (
	"context"
	"time"

	"github.com/miden-node/rollup/pkg/mempool"
	"github.com/miden-node/rollup/pkg/merkle"
	"github.com/miden-node/rollup/pkg/protocol"
	"github.com/miden-node/rollup/pkg/rpc"
	"github.com/miden-node/rollup/pkg/store"
)

// Client is the Block Producer's handle on a remote Store process. It
// implements mempool.StoreClient directly, so cmd/blockproducer can hand
// one straight to mempool.New without an adapter.
type Client struct {
	rpc     *rpc.Client
	timeout time.Duration
}

var _ mempool.StoreClient = (*Client)(nil)

// Dial connects to a Store process listening at addr. timeout bounds
// every individual call.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	c, err := rpc.DialTimeout(addr, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: c, timeout: timeout}, nil
}

func (c *Client) Close() error { return c.rpc.Close() }

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	payload, err := rpc.Encode(req)
	if err != nil {
		return err
	}
	out, err := c.rpc.Call(ctx, rpc.StoreService, method, payload)
	if err != nil {
		return err
	}
	return rpc.Decode(out, resp)
}

func (c *Client) ApplyBlock(ctx context.Context, block store.ProvenBlock) error {
	var resp ApplyBlockResponse
	return c.call(ctx, rpc.MethodApplyBlock, ApplyBlockRequest{Block: block}, &resp)
}

func (c *Client) GetBlockInputs(ctx context.Context, accountIDs []protocol.AccountID, nullifiers []protocol.Nullifier, unauthenticatedNoteIDs []protocol.Digest) (store.BlockInputs, error) {
	var resp GetBlockInputsResponse
	err := c.call(ctx, rpc.MethodGetBlockInputs, GetBlockInputsRequest{
		AccountIDs:             accountIDs,
		Nullifiers:             nullifiers,
		UnauthenticatedNoteIDs: unauthenticatedNoteIDs,
	}, &resp)
	return resp.Inputs, err
}

func (c *Client) GetBatchInputs(ctx context.Context, unauthenticatedNoteIDs []protocol.Digest) (store.BatchInputs, error) {
	var resp GetBatchInputsResponse
	err := c.call(ctx, rpc.MethodGetBatchInputs, GetBatchInputsRequest{UnauthenticatedNoteIDs: unauthenticatedNoteIDs}, &resp)
	return resp.Inputs, err
}

func (c *Client) GetTransactionInputs(ctx context.Context, accountID protocol.AccountID, nullifiers []protocol.Nullifier, unauthenticatedNoteIDs []protocol.Digest) (mempool.TransactionInputs, error) {
	var resp GetTransactionInputsResponse
	err := c.call(ctx, rpc.MethodGetTransactionInputs, GetTransactionInputsRequest{
		AccountID:              accountID,
		Nullifiers:             nullifiers,
		UnauthenticatedNoteIDs: unauthenticatedNoteIDs,
	}, &resp)
	return mempool.TransactionInputs{
		AccountCommitment:         resp.Inputs.AccountCommitment,
		NullifierBlocks:           resp.Inputs.NullifierBlocks,
		MissingUnauthenticatedIDs: resp.Inputs.MissingUnauthenticatedIDs,
	}, err
}

// Tip satisfies mempool.StoreClient using a short-lived background
// context: Tip is called synchronously from mempool.New at startup and
// has no caller-supplied context to thread through.
func (c *Client) Tip() (protocol.BlockNumber, bool) {
	var resp TipResponse
	if err := c.call(context.Background(), rpc.MethodTip, TipRequest{}, &resp); err != nil {
		return 0, false
	}
	return resp.Tip, resp.HasTip
}

func (c *Client) CheckNullifiers(ctx context.Context, nullifiers []protocol.Nullifier) ([]store.NullifierInput, error) {
	var resp CheckNullifiersResponse
	err := c.call(ctx, rpc.MethodCheckNullifiers, CheckNullifiersRequest{Nullifiers: nullifiers}, &resp)
	return resp.Results, err
}

func (c *Client) CheckNullifiersByPrefix(ctx context.Context, prefixBits int, prefixes []uint16, fromBlock protocol.BlockNumber, limit int) ([]protocol.Nullifier, error) {
	var resp CheckNullifiersByPrefixResponse
	err := c.call(ctx, rpc.MethodCheckNullifiersByPrefix, CheckNullifiersByPrefixRequest{
		PrefixBits: prefixBits, Prefixes: prefixes, FromBlock: fromBlock, Limit: limit,
	}, &resp)
	return resp.Nullifiers, err
}

func (c *Client) GetBlockHeaderByNumber(ctx context.Context, blockNum *protocol.BlockNumber, includeMMRProof bool) (protocol.BlockHeader, *merkle.InclusionProof, error) {
	var resp GetBlockHeaderByNumberResponse
	err := c.call(ctx, rpc.MethodGetBlockHeaderByNumber, GetBlockHeaderByNumberRequest{
		BlockNum: blockNum, IncludeMMRProof: includeMMRProof,
	}, &resp)
	return resp.Header, resp.MMRProof, err
}

func (c *Client) GetBlockByNumber(ctx context.Context, blockNum protocol.BlockNumber) ([]byte, error) {
	var resp GetBlockByNumberResponse
	err := c.call(ctx, rpc.MethodGetBlockByNumber, GetBlockByNumberRequest{BlockNum: blockNum}, &resp)
	return resp.Blob, err
}

func (c *Client) GetNotesByID(ctx context.Context, ids []protocol.Digest) ([]protocol.Note, error) {
	var resp GetNotesByIDResponse
	err := c.call(ctx, rpc.MethodGetNotesByID, GetNotesByIDRequest{IDs: ids}, &resp)
	return resp.Notes, err
}

func (c *Client) GetNoteAuthenticationInfo(ctx context.Context, ids []protocol.Digest) ([]store.NoteAuthenticationInfo, error) {
	var resp GetNoteAuthenticationInfoResponse
	err := c.call(ctx, rpc.MethodGetNoteAuthenticationInfo, GetNoteAuthenticationInfoRequest{IDs: ids}, &resp)
	return resp.Infos, err
}

func (c *Client) GetAccountDetails(ctx context.Context, id protocol.AccountID) (protocol.Account, error) {
	var resp GetAccountDetailsResponse
	err := c.call(ctx, rpc.MethodGetAccountDetails, GetAccountDetailsRequest{ID: id}, &resp)
	return resp.Account, err
}

func (c *Client) GetAccountStateDelta(ctx context.Context, id protocol.AccountID, fromExclusive, toInclusive protocol.BlockNumber) (protocol.AccountDelta, error) {
	var resp GetAccountStateDeltaResponse
	err := c.call(ctx, rpc.MethodGetAccountStateDelta, GetAccountStateDeltaRequest{
		ID: id, FromExclusive: fromExclusive, ToInclusive: toInclusive,
	}, &resp)
	return resp.Delta, err
}

func (c *Client) GetAccountProofs(ctx context.Context, ids []protocol.AccountID, includeHeaders bool, codeCommitments map[protocol.AccountID]protocol.Digest) ([]store.AccountProof, error) {
	var resp GetAccountProofsResponse
	err := c.call(ctx, rpc.MethodGetAccountProofs, GetAccountProofsRequest{
		IDs: ids, IncludeHeaders: includeHeaders, CodeCommitments: codeCommitments,
	}, &resp)
	return resp.Proofs, err
}

func (c *Client) SyncState(ctx context.Context, fromBlock protocol.BlockNumber, accountIDs []protocol.AccountID, noteTagPrefixes, nullifierPrefixes []uint16) (store.SyncStateResult, error) {
	var resp SyncStateResponse
	err := c.call(ctx, rpc.MethodSyncState, SyncStateRequest{
		FromBlock: fromBlock, AccountIDs: accountIDs, NoteTagPrefixes: noteTagPrefixes, NullifierPrefixes: nullifierPrefixes,
	}, &resp)
	return resp.Result, err
}

func (c *Client) SyncNotes(ctx context.Context, fromBlock protocol.BlockNumber, noteTagPrefixes []uint16) (store.SyncNotesResult, error) {
	var resp SyncNotesResponse
	err := c.call(ctx, rpc.MethodSyncNotes, SyncNotesRequest{FromBlock: fromBlock, NoteTagPrefixes: noteTagPrefixes}, &resp)
	return resp.Result, err
}

func (c *Client) ListUnconsumedNetworkNotes(ctx context.Context, limit int) ([]protocol.Note, error) {
	var resp ListUnconsumedNetworkNotesResponse
	err := c.call(ctx, rpc.MethodListUnconsumedNetworkNotes, ListUnconsumedNetworkNotesRequest{Limit: limit}, &resp)
	return resp.Notes, err
}
