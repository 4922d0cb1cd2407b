// Copyright 2025 Certen Protocol
//
// Package producerrpc wires the Block Producer's single public
// entrypoint, SubmitProvenTransaction, onto pkg/rpc's framed transport,
// the same request/response-struct-plus-registrar shape pkg/storerpc
// uses for the Store service. The gateway
// (out of scope here) would dial this with the same method name; nothing
// else in this repository needs a client, so only the server side and a
// thin Client for tests are provided.
package producerrpc

import (
	"context"

	"github.com/miden-node/rollup/pkg/protocol"
	"github.com/miden-node/rollup/pkg/rpc"
)

// Mempool is the subset of *mempool.Mempool the service needs. Declared
// locally so this package does not have to import pkg/mempool just to
// name its own dependency.
type Mempool interface {
	AddTransaction(ctx context.Context, tx protocol.Transaction) (protocol.Digest, protocol.BlockNumber, error)
}

type SubmitProvenTransactionRequest struct {
	Transaction protocol.Transaction
}

type SubmitProvenTransactionResponse struct {
	TransactionID protocol.Digest
	BlockHeight   protocol.BlockNumber
}

// RegisterBlockProducerService exposes pool's admission entrypoint on srv
// under rpc.BlockProducerService. The caller (the gateway, in a full
// deployment) is assumed to have already verified the transaction's
// proof; this service does not re-verify it.
func RegisterBlockProducerService(srv *rpc.Server, pool Mempool) {
	srv.Register(&rpc.ServiceDescriptor{
		Name: rpc.BlockProducerService,
		Methods: map[string]rpc.HandlerFunc{
			rpc.MethodSubmitProvenTransaction: handleSubmitProvenTransaction(pool),
		},
	})
}

func handleSubmitProvenTransaction(pool Mempool) rpc.HandlerFunc {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req SubmitProvenTransactionRequest
		if err := rpc.Decode(payload, &req); err != nil {
			return nil, err
		}
		id, tip, err := pool.AddTransaction(ctx, req.Transaction)
		if err != nil {
			return nil, err
		}
		return rpc.Encode(SubmitProvenTransactionResponse{TransactionID: id, BlockHeight: tip})
	}
}

// Client is the handle a gateway process (or a test) dials to submit a
// proven transaction to the Block Producer.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to a Block Producer process listening at addr.
func Dial(addr string) (*Client, error) {
	c, err := rpc.Dial(addr)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: c}, nil
}

func (c *Client) Close() error { return c.rpc.Close() }

// SubmitProvenTransaction forwards tx to the Block Producer and returns
// the assigned transaction id and the mempool's current tip view.
func (c *Client) SubmitProvenTransaction(ctx context.Context, tx protocol.Transaction) (protocol.Digest, protocol.BlockNumber, error) {
	payload, err := rpc.Encode(SubmitProvenTransactionRequest{Transaction: tx})
	if err != nil {
		return protocol.Digest{}, 0, err
	}
	out, err := c.rpc.Call(ctx, rpc.BlockProducerService, rpc.MethodSubmitProvenTransaction, payload)
	if err != nil {
		return protocol.Digest{}, 0, err
	}
	var resp SubmitProvenTransactionResponse
	if err := rpc.Decode(out, &resp); err != nil {
		return protocol.Digest{}, 0, err
	}
	return resp.TransactionID, resp.BlockHeight, nil
}
