// Copyright 2025 Certen Protocol

package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/miden-node/rollup/pkg/rolluperr"
)

type echoRequest struct {
	Value string
}

type echoResponse struct {
	Value string
}

func startEchoServer(t *testing.T) (*Server, context.CancelFunc) {
	t.Helper()
	srv, err := NewServer("127.0.0.1:0")
	require.NoError(t, err)

	srv.Register(&ServiceDescriptor{
		Name: "Echo",
		Methods: map[string]HandlerFunc{
			"Echo": func(ctx context.Context, payload []byte) ([]byte, error) {
				var req echoRequest
				if err := Decode(payload, &req); err != nil {
					return nil, err
				}
				return Encode(echoResponse{Value: req.Value})
			},
			"Fail": func(ctx context.Context, payload []byte) ([]byte, error) {
				return nil, rolluperr.Wrap(rolluperr.ErrStoreUnavailable, "backend down")
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	return srv, cancel
}

func TestClientCallRoundTrip(t *testing.T) {
	srv, cancel := startEchoServer(t)
	defer cancel()

	client, err := DialTimeout(srv.Addr(), time.Second)
	require.NoError(t, err)
	defer client.Close()

	payload, err := Encode(echoRequest{Value: "ping"})
	require.NoError(t, err)

	out, err := client.Call(context.Background(), "Echo", "Echo", payload)
	require.NoError(t, err)

	var resp echoResponse
	require.NoError(t, Decode(out, &resp))
	require.Equal(t, "ping", resp.Value)
}

func TestClientCallUnknownMethod(t *testing.T) {
	srv, cancel := startEchoServer(t)
	defer cancel()

	client, err := DialTimeout(srv.Addr(), time.Second)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Call(context.Background(), "Echo", "Nope", nil)
	require.Error(t, err)
}

// TestClientCallPreservesErrorKind asserts that a handler error's
// taxonomy classification survives the trip: the caller must still be
// able to tell a transient failure from a validation one.
func TestClientCallPreservesErrorKind(t *testing.T) {
	srv, cancel := startEchoServer(t)
	defer cancel()

	client, err := DialTimeout(srv.Addr(), time.Second)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Call(context.Background(), "Echo", "Fail", nil)
	require.Error(t, err)
	require.Equal(t, rolluperr.KindTransient, rolluperr.Classify(err))
}

func TestClientCallAfterCloseFails(t *testing.T) {
	srv, cancel := startEchoServer(t)
	defer cancel()

	client, err := DialTimeout(srv.Addr(), time.Second)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = client.Call(context.Background(), "Echo", "Echo", nil)
	require.Error(t, err)
}
