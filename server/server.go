// Package server implements the verb-dispatch server: it reads framed request
// envelopes, routes them by netname and verb to registered handlers, and
// writes back a framed response envelope.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (reads frames, one request at a time)
//	  → decode Request envelope → look up netname/verb handler
//	  → handler(payload) → Response envelope {Ok | NoVerb | Err} → write frame
//
// The protocol carries no sequence numbers, so requests on one connection are
// handled strictly in order — a client leases a connection exclusively per
// round trip, and parallelism comes from multiple connections.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"verbwire/codec"
	"verbwire/message"
	"verbwire/wire"

	"go.uber.org/zap"
)

// HandlerFunc processes one request payload for a verb and returns the
// encoded result. A returned error becomes an "Err" response carrying the
// error message verbatim.
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Server routes framed requests to handlers registered per netname and verb.
type Server struct {
	mu       sync.Mutex
	nets     map[string]map[string]HandlerFunc // netname → verb → handler
	listener net.Listener
	wg       sync.WaitGroup // Tracks in-flight requests for graceful shutdown
	shutdown atomic.Bool    // Set during shutdown to suppress Accept errors
	logger   *zap.Logger
	cdc      codec.Codec
}

// NewServer creates a server with no registered verbs. A nil logger is
// replaced with a no-op logger.
func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		nets:   make(map[string]map[string]HandlerFunc),
		logger: logger,
		cdc:    codec.GetCodec(codec.CodecTypeJSON),
	}
}

// HandleFunc registers a raw handler for verb under netname, replacing any
// previous registration.
func (svr *Server) HandleFunc(netname, verb string, h HandlerFunc) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	verbs, ok := svr.nets[netname]
	if !ok {
		verbs = make(map[string]HandlerFunc)
		svr.nets[netname] = verbs
	}
	verbs[verb] = h
}

// Handle registers a typed handler for verb under netname: the request
// payload is decoded into Req before the call and the returned Resp is
// encoded as the response body.
func Handle[Req any, Resp any](svr *Server, netname, verb string, fn func(ctx context.Context, req Req) (Resp, error)) {
	svr.HandleFunc(netname, verb, func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if err := svr.cdc.Decode(payload, &req); err != nil {
			return nil, fmt.Errorf("decode request: %w", err)
		}
		resp, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		return svr.cdc.Encode(resp)
	})
}

// Serve listens on the given address and enters the Accept loop, one
// goroutine per connection. It returns nil after Shutdown closes the
// listener.
func (svr *Server) Serve(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	svr.listener = listener

	for {
		conn, err := listener.Accept()
		if err != nil {
			// During shutdown, listener.Close() causes Accept to return an
			// error; the flag distinguishes intentional close from failure.
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		go svr.handleConn(conn)
	}
}

// handleConn processes one connection: read a frame, handle the request,
// write the response, repeat until the peer closes or a protocol error
// occurs.
func (svr *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		frame, err := wire.ReadFrame(conn)
		if err != nil {
			return // Connection closed or corrupt frame
		}

		req := message.Request{}
		if err := req.UnmarshalBinary(frame); err != nil {
			svr.logger.Debug("dropping connection on bad request envelope",
				zap.String("remote", conn.RemoteAddr().String()),
				zap.Error(err))
			return
		}
		if req.ProtoVersion != message.ProtoVersion {
			svr.logger.Debug("dropping connection on protocol version mismatch",
				zap.String("remote", conn.RemoteAddr().String()),
				zap.Uint8("version", req.ProtoVersion))
			return
		}

		if err := svr.handleRequest(conn, &req); err != nil {
			return
		}
	}
}

// handleRequest dispatches one decoded request and writes its response frame.
func (svr *Server) handleRequest(conn net.Conn, req *message.Request) error {
	svr.wg.Add(1)
	defer svr.wg.Done()

	resp := svr.dispatch(context.Background(), req)
	raw, err := resp.MarshalBinary()
	if err != nil {
		svr.logger.Error("failed to encode response envelope", zap.Error(err))
		return err
	}
	return wire.WriteFrame(conn, raw)
}

func (svr *Server) dispatch(ctx context.Context, req *message.Request) *message.Response {
	svr.mu.Lock()
	handler := svr.nets[req.Netname][req.Verb]
	svr.mu.Unlock()

	if handler == nil {
		return &message.Response{Kind: message.KindNoVerb}
	}

	body, err := handler(ctx, req.Payload)
	if err != nil {
		return &message.Response{Kind: message.KindError, Body: []byte(err.Error())}
	}
	return &message.Response{Kind: message.KindOK, Body: body}
}

// Shutdown performs graceful shutdown: stop accepting, then wait for
// in-flight requests up to the timeout.
func (svr *Server) Shutdown(timeout time.Duration) error {
	// Set the flag BEFORE closing the listener, so the Accept error in
	// Serve is recognized as intentional.
	svr.shutdown.Store(true)
	if svr.listener != nil {
		svr.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ongoing requests to finish")
	}
}
