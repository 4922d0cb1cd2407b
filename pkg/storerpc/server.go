// Copyright 2025 Certen Protocol

package storerpc

import (
	"context"

	"github.com/miden-node/rollup/pkg/rpc"
	"github.com/miden-node/rollup/pkg/server"
	"github.com/miden-node/rollup/pkg/store"
)

// RegisterStoreService exposes st's operations on srv under
// rpc.StoreService. The Store service is trusted and must not be
// reachable from a public listener.
func RegisterStoreService(srv *rpc.Server, st *store.Store) {
	srv.Register(&rpc.ServiceDescriptor{
		Name:    rpc.StoreService,
		Methods: timedMethods(map[string]rpc.HandlerFunc{
			rpc.MethodApplyBlock:                 handleApplyBlock(st),
			rpc.MethodGetBlockInputs:             handleGetBlockInputs(st),
			rpc.MethodGetBatchInputs:             handleGetBatchInputs(st),
			rpc.MethodGetTransactionInputs:       handleGetTransactionInputs(st),
			rpc.MethodTip:                        handleTip(st),
			rpc.MethodCheckNullifiers:            handleCheckNullifiers(st),
			rpc.MethodCheckNullifiersByPrefix:    handleCheckNullifiersByPrefix(st),
			rpc.MethodGetBlockHeaderByNumber:     handleGetBlockHeaderByNumber(st),
			rpc.MethodGetBlockByNumber:           handleGetBlockByNumber(st),
			rpc.MethodGetNotesByID:               handleGetNotesByID(st),
			rpc.MethodGetNoteAuthenticationInfo:  handleGetNoteAuthenticationInfo(st),
			rpc.MethodGetAccountDetails:          handleGetAccountDetails(st),
			rpc.MethodGetAccountStateDelta:       handleGetAccountStateDelta(st),
			rpc.MethodGetAccountProofs:           handleGetAccountProofs(st),
			rpc.MethodSyncState:                  handleSyncState(st),
			rpc.MethodSyncNotes:                  handleSyncNotes(st),
			rpc.MethodListUnconsumedNetworkNotes: handleListUnconsumedNetworkNotes(st),
		}),
	})
}

// timedMethods wraps every handler so its latency lands in the
// per-method request histogram.
func timedMethods(methods map[string]rpc.HandlerFunc) map[string]rpc.HandlerFunc {
	out := make(map[string]rpc.HandlerFunc, len(methods))
	for name, handler := range methods {
		name, handler := name, handler
		out[name] = func(ctx context.Context, payload []byte) ([]byte, error) {
			timer := server.NewTimer()
			resp, err := handler(ctx, payload)
			timer.ObserveDuration(server.StoreRPCRequestDuration.WithLabelValues(name))
			return resp, err
		}
	}
	return out
}

func handleApplyBlock(st *store.Store) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req ApplyBlockRequest
		if err := rpc.Decode(payload, &req); err != nil {
			return nil, err
		}
		if err := st.ApplyBlock(ctx, req.Block); err != nil {
			return nil, err
		}
		return rpc.Encode(ApplyBlockResponse{})
	}
}

func handleGetBlockInputs(st *store.Store) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req GetBlockInputsRequest
		if err := rpc.Decode(payload, &req); err != nil {
			return nil, err
		}
		inputs, err := st.GetBlockInputs(ctx, req.AccountIDs, req.Nullifiers, req.UnauthenticatedNoteIDs)
		if err != nil {
			return nil, err
		}
		return rpc.Encode(GetBlockInputsResponse{Inputs: inputs})
	}
}

func handleGetBatchInputs(st *store.Store) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req GetBatchInputsRequest
		if err := rpc.Decode(payload, &req); err != nil {
			return nil, err
		}
		inputs, err := st.GetBatchInputs(ctx, req.UnauthenticatedNoteIDs)
		if err != nil {
			return nil, err
		}
		return rpc.Encode(GetBatchInputsResponse{Inputs: inputs})
	}
}

func handleGetTransactionInputs(st *store.Store) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req GetTransactionInputsRequest
		if err := rpc.Decode(payload, &req); err != nil {
			return nil, err
		}
		inputs, err := st.GetTransactionInputs(ctx, req.AccountID, req.Nullifiers, req.UnauthenticatedNoteIDs)
		if err != nil {
			return nil, err
		}
		return rpc.Encode(GetTransactionInputsResponse{Inputs: inputs})
	}
}

func handleTip(st *store.Store) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		tip, hasTip := st.Tip()
		return rpc.Encode(TipResponse{Tip: tip, HasTip: hasTip})
	}
}

func handleCheckNullifiers(st *store.Store) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req CheckNullifiersRequest
		if err := rpc.Decode(payload, &req); err != nil {
			return nil, err
		}
		return rpc.Encode(CheckNullifiersResponse{Results: st.CheckNullifiers(req.Nullifiers)})
	}
}

func handleCheckNullifiersByPrefix(st *store.Store) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req CheckNullifiersByPrefixRequest
		if err := rpc.Decode(payload, &req); err != nil {
			return nil, err
		}
		nulls, err := st.CheckNullifiersByPrefix(ctx, req.PrefixBits, req.Prefixes, req.FromBlock, req.Limit)
		if err != nil {
			return nil, err
		}
		return rpc.Encode(CheckNullifiersByPrefixResponse{Nullifiers: nulls})
	}
}

func handleGetBlockHeaderByNumber(st *store.Store) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req GetBlockHeaderByNumberRequest
		if err := rpc.Decode(payload, &req); err != nil {
			return nil, err
		}
		header, proof, err := st.GetBlockHeaderByNumber(ctx, req.BlockNum, req.IncludeMMRProof)
		if err != nil {
			return nil, err
		}
		return rpc.Encode(GetBlockHeaderByNumberResponse{Header: header, MMRProof: proof})
	}
}

func handleGetBlockByNumber(st *store.Store) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req GetBlockByNumberRequest
		if err := rpc.Decode(payload, &req); err != nil {
			return nil, err
		}
		blob, err := st.GetBlockByNumber(req.BlockNum)
		if err != nil {
			return nil, err
		}
		return rpc.Encode(GetBlockByNumberResponse{Blob: blob})
	}
}

func handleGetNotesByID(st *store.Store) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req GetNotesByIDRequest
		if err := rpc.Decode(payload, &req); err != nil {
			return nil, err
		}
		notes, err := st.GetNotesByID(ctx, req.IDs)
		if err != nil {
			return nil, err
		}
		return rpc.Encode(GetNotesByIDResponse{Notes: notes})
	}
}

func handleGetNoteAuthenticationInfo(st *store.Store) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req GetNoteAuthenticationInfoRequest
		if err := rpc.Decode(payload, &req); err != nil {
			return nil, err
		}
		infos, err := st.GetNoteAuthenticationInfo(ctx, req.IDs)
		if err != nil {
			return nil, err
		}
		return rpc.Encode(GetNoteAuthenticationInfoResponse{Infos: infos})
	}
}

func handleGetAccountDetails(st *store.Store) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req GetAccountDetailsRequest
		if err := rpc.Decode(payload, &req); err != nil {
			return nil, err
		}
		acct, err := st.GetAccountDetails(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		return rpc.Encode(GetAccountDetailsResponse{Account: acct})
	}
}

func handleGetAccountStateDelta(st *store.Store) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req GetAccountStateDeltaRequest
		if err := rpc.Decode(payload, &req); err != nil {
			return nil, err
		}
		delta, err := st.GetAccountStateDelta(ctx, req.ID, req.FromExclusive, req.ToInclusive)
		if err != nil {
			return nil, err
		}
		return rpc.Encode(GetAccountStateDeltaResponse{Delta: delta})
	}
}

func handleGetAccountProofs(st *store.Store) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req GetAccountProofsRequest
		if err := rpc.Decode(payload, &req); err != nil {
			return nil, err
		}
		proofs, err := st.GetAccountProofs(ctx, req.IDs, req.IncludeHeaders, req.CodeCommitments)
		if err != nil {
			return nil, err
		}
		return rpc.Encode(GetAccountProofsResponse{Proofs: proofs})
	}
}

func handleSyncState(st *store.Store) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req SyncStateRequest
		if err := rpc.Decode(payload, &req); err != nil {
			return nil, err
		}
		result, err := st.SyncState(ctx, req.FromBlock, req.AccountIDs, req.NoteTagPrefixes, req.NullifierPrefixes)
		if err != nil {
			return nil, err
		}
		return rpc.Encode(SyncStateResponse{Result: result})
	}
}

func handleListUnconsumedNetworkNotes(st *store.Store) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req ListUnconsumedNetworkNotesRequest
		if err := rpc.Decode(payload, &req); err != nil {
			return nil, err
		}
		notes, err := st.ListUnconsumedNetworkNotes(ctx, req.Limit)
		if err != nil {
			return nil, err
		}
		return rpc.Encode(ListUnconsumedNetworkNotesResponse{Notes: notes})
	}
}

func handleSyncNotes(st *store.Store) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req SyncNotesRequest
		if err := rpc.Decode(payload, &req); err != nil {
			return nil, err
		}
		result, err := st.SyncNotes(ctx, req.FromBlock, req.NoteTagPrefixes)
		if err != nil {
			return nil, err
		}
		return rpc.Encode(SyncNotesResponse{Result: result})
	}
}
