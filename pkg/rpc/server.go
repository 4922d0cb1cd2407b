// Copyright 2025 Certen Protocol

package rpc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/miden-node/rollup/pkg/logx"
	"github.com/miden-node/rollup/pkg/rolluperr"
)

// HandlerFunc handles one method call's payload and returns the response
// payload (already encoded, typically via Encode) or an error.
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

// ServiceDescriptor names a group of methods reachable as
// "Service.Method", without depending on a generated stub.
type ServiceDescriptor struct {
	Name    string
	Methods map[string]HandlerFunc
}

// Server accepts connections and dispatches frames to registered
// services. One Server can host multiple ServiceDescriptors, matching
// the internal Store process exposing both the Store service and the
// administrative list endpoints over a single listener.
type Server struct {
	listener net.Listener
	logger   zerolog.Logger

	mu       sync.RWMutex
	services map[string]*ServiceDescriptor

	wg sync.WaitGroup
}

// NewServer starts listening on addr. Call Serve to begin accepting.
func NewServer(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rpc: listen on %s: %w", addr, err)
	}
	return &Server{
		listener: ln,
		logger:   logx.Component("rpc-server"),
		services: make(map[string]*ServiceDescriptor),
	}, nil
}

// Addr returns the listener's bound address, useful when addr was ":0".
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Register adds desc to the server. Must be called before Serve.
func (s *Server) Register(desc *ServiceDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[desc.Name] = desc
}

// Serve accepts connections until ctx is canceled or the listener is
// closed. Each connection is handled on its own goroutine, and each
// request on it is dispatched on a goroutine of its own, so responses
// may be written out of arrival order; clients match them to requests
// by envelope ID.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("rpc: accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops the listener without waiting for in-flight connections to
// drain; callers that need a clean shutdown should cancel the Serve
// context instead.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	var writeMu sync.Mutex

	for {
		env, err := readEnvelope(reader)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("connection closed")
			}
			return
		}
		if env.Kind != kindRequest {
			continue
		}
		go s.dispatch(ctx, conn, &writeMu, env)
	}
}

func (s *Server) dispatch(ctx context.Context, conn net.Conn, writeMu *sync.Mutex, req envelope) {
	resp := envelope{ID: req.ID, Kind: kindResponse, Service: req.Service, Method: req.Method}

	s.mu.RLock()
	svc, ok := s.services[req.Service]
	s.mu.RUnlock()
	if !ok {
		resp.Err = fmt.Sprintf("rpc: unknown service %q", req.Service)
	} else if handler, ok := svc.Methods[req.Method]; !ok {
		resp.Err = fmt.Sprintf("rpc: unknown method %s.%s", req.Service, req.Method)
	} else {
		payload, err := handler(ctx, req.Payload)
		if err != nil {
			resp.Err = err.Error()
			resp.ErrKind = string(rolluperr.Classify(err))
		} else {
			resp.Payload = payload
		}
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if err := writeEnvelope(conn, resp); err != nil {
		s.logger.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("failed to write response frame")
	}
}
