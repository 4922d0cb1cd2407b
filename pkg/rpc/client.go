// Copyright 2025 Certen Protocol

package rpc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/miden-node/rollup/pkg/logx"
	"github.com/miden-node/rollup/pkg/rolluperr"
)

// ErrClientClosed is returned by Call once the client's connection has
// been torn down, either explicitly via Close or after a fatal read
// error.
var ErrClientClosed = errors.New("rpc: client closed")

// pendingCall is the bookkeeping kept for one outstanding request.
type pendingCall struct {
	resultCh chan envelope
}

// Client is a single-connection RPC client shared by every call site
// that needs to reach one remote service (the Store from
// cmd/blockproducer, or a remote prover endpoint from pkg/prover). A
// dedicated reader goroutine demultiplexes responses onto per-call
// channels keyed by request ID, so concurrent Call invocations from
// different goroutines share one connection safely.
type Client struct {
	conn   net.Conn
	logger zerolog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[uint64]*pendingCall
	closed   bool
	closeErr error

	nextID atomic.Uint64
}

// Dial opens a connection to addr and starts the response-reading loop.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	return NewClient(conn), nil
}

// DialTimeout is Dial with a connect deadline.
func DialTimeout(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an already-established connection.
func NewClient(conn net.Conn) *Client {
	c := &Client{
		conn:    conn,
		logger:  logx.Component("rpc-client"),
		pending: make(map[uint64]*pendingCall),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	reader := bufio.NewReader(c.conn)
	for {
		env, err := readEnvelope(reader)
		if err != nil {
			c.shutdown(fmt.Errorf("rpc: connection lost: %w", err))
			return
		}
		if env.Kind != kindResponse {
			continue
		}
		c.mu.Lock()
		call, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.mu.Unlock()
		if !ok {
			continue
		}
		call.resultCh <- env
	}
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, call := range pending {
		close(call.resultCh)
	}
	c.conn.Close()
}

// Call invokes method on service and blocks until a response arrives,
// ctx is done, or the connection is lost. payload should already be
// Encode-d by the caller; the returned bytes should be Decode-d into the
// expected response type.
func (c *Client) Call(ctx context.Context, service, method string, payload []byte) ([]byte, error) {
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		if err == nil {
			err = ErrClientClosed
		}
		return nil, err
	}
	id := c.nextID.Add(1)
	call := &pendingCall{resultCh: make(chan envelope, 1)}
	c.pending[id] = call
	c.mu.Unlock()

	req := envelope{ID: id, Kind: kindRequest, Service: service, Method: method, Payload: payload}
	c.writeMu.Lock()
	err := writeEnvelope(c.conn, req)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("rpc: write request: %w", err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case resp, ok := <-call.resultCh:
		if !ok {
			if c.closeErr != nil {
				return nil, c.closeErr
			}
			return nil, ErrClientClosed
		}
		if resp.Err != "" {
			if resp.ErrKind != "" {
				return nil, &rolluperr.Remote{Kind: rolluperr.Kind(resp.ErrKind), Detail: resp.Err}
			}
			return nil, errors.New(resp.Err)
		}
		return resp.Payload, nil
	}
}

// Close terminates the underlying connection and fails any in-flight
// calls with ErrClientClosed.
func (c *Client) Close() error {
	c.shutdown(ErrClientClosed)
	return nil
}
