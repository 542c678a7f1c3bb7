// Package client implements the request-dispatch engine: per-destination
// connection pooling, a global admission limiter, retry with exponential
// backoff for transient network failures, and response-kind classification.
//
// One Client is meant to be shared by all call sites in a process. Call flow:
//
//	Call → [deadline envelope]
//	  → retry loop (transient errors only, backoff 0.1s·2^i)
//	    → attempt: acquire permit → lease conn → write frame → read frame
//	      → decode envelope → release permit
//	  → classify response kind → decode body
//
// The admission permit is held for one attempt's network phase only, not
// across backoff waits; each retry competes for a fresh permit.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"verbwire/codec"
	"verbwire/message"
	"verbwire/middleware"
	"verbwire/transport"
	"verbwire/wire"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Client is a thread-safe pool of connections to verb-dispatch servers.
// Pool entries are created lazily per destination and live for the lifetime
// of the client.
type Client struct {
	mu      sync.Mutex
	pools   map[string]*transport.ConnPool
	sem     *semaphore.Weighted // Global admission limiter, shared by all destinations
	cdc     codec.Codec
	attempt middleware.HandlerFunc // Middleware chain around doAttempt
	logger  *zap.Logger
	opts    options
}

// New creates a client. The zero set of options gives the production
// defaults: 5 attempts, 100ms backoff base, 60s call timeout, 128 concurrent
// attempts, 32 connections per destination with 5s idle expiry.
func New(opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		pools:  make(map[string]*transport.ConnPool),
		sem:    semaphore.NewWeighted(o.admissionLimit),
		cdc:    codec.GetCodec(o.codecType),
		logger: o.logger,
		opts:   o,
	}
	// Build the middleware chain once; it wraps each individual network
	// attempt, so a retried call passes through it once per attempt.
	c.attempt = middleware.Chain(o.middlewares...)(c.doAttempt)
	return c
}

// Request invokes verb under netname on the server at dest and decodes the
// result into Resp. It is the typed entry point over (*Client).Call.
func Request[Resp any, Req any](ctx context.Context, c *Client, dest, netname, verb string, req Req) (Resp, error) {
	var resp Resp
	err := c.Call(ctx, dest, netname, verb, req, &resp)
	return resp, err
}

// Call invokes verb under netname on the server at dest, encoding args as the
// request payload and decoding the response body into reply.
//
// Transient network failures are retried up to the attempt budget with
// exponential backoff. Protocol and application failures (ErrVerbNotFound,
// ServerError, DecodeError) are returned immediately. The whole call,
// including retries and backoff, is bounded by the call timeout; when it
// fires, Call returns ErrTimeout without waiting for the in-flight attempt.
func (c *Client) Call(ctx context.Context, dest, netname, verb string, args any, reply any) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.callTimeout)
	defer cancel()

	payload, err := c.cdc.Encode(args)
	if err != nil {
		return fmt.Errorf("encode request payload: %w", err)
	}
	req := &message.Request{
		ProtoVersion: message.ProtoVersion,
		Netname:      netname,
		Verb:         verb,
		Payload:      payload,
	}

	// Run the retry loop in its own goroutine so the deadline can abandon a
	// blocked attempt instead of waiting it out. The abandoned attempt keeps
	// running until its connection deadline fires, then closes the
	// connection and releases its permit.
	done := make(chan callResult, 1)
	go func() {
		resp, err := c.dispatch(ctx, dest, req)
		done <- callResult{resp, err}
	}()

	var resp *message.Response
	select {
	case <-ctx.Done():
		return c.ctxError(ctx.Err(), dest, verb)
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return c.ctxError(context.DeadlineExceeded, dest, verb)
			}
			return r.err
		}
		resp = r.resp
	}

	switch resp.Kind {
	case message.KindOK:
		if err := c.cdc.Decode(resp.Body, reply); err != nil {
			return &DecodeError{Err: err}
		}
		return nil
	case message.KindNoVerb:
		return fmt.Errorf("%w: %s/%s at %s", ErrVerbNotFound, netname, verb, dest)
	default:
		return &ServerError{Kind: resp.Kind, Message: string(resp.Body)}
	}
}

type callResult struct {
	resp *message.Response
	err  error
}

// dispatch runs the retry loop: up to maxAttempts attempts, retrying only on
// transient network errors, waiting backoffBase·2^i before retry i+1. The
// final attempt's outcome is returned as-is.
func (c *Client) dispatch(ctx context.Context, dest string, req *message.Request) (*message.Response, error) {
	for i := 0; i < c.opts.maxAttempts-1; i++ {
		resp, err := c.attempt(ctx, dest, req)
		if err == nil || !IsTransient(err) {
			return resp, err
		}
		c.logger.Debug("retrying request on transient network error",
			zap.String("destination", dest),
			zap.String("verb", req.Verb),
			zap.Error(err))
		if serr := sleep(ctx, c.opts.backoffBase*time.Duration(1<<i)); serr != nil {
			return nil, serr
		}
	}
	return c.attempt(ctx, dest, req)
}

// doAttempt performs one network attempt: acquire an admission permit, lease
// a connection, send the framed request, read and decode one framed response.
// The permit is released when this function returns, so it is not held across
// backoff waits.
//
// The connection is returned to the pool only after a fully successful round
// trip with an "Ok" kind; on any failure (and on error kinds) it is closed,
// and the pool recreates capacity lazily.
func (c *Client) doAttempt(ctx context.Context, dest string, req *message.Request) (*message.Response, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	start := time.Now()

	conn, err := c.pool(dest).Get(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{Op: "connect", Err: err}
	}

	// Bound all I/O on this lease by the call deadline, so an attempt
	// abandoned by the caller unblocks, fails, and frees its connection
	// instead of leaking until idle eviction.
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	raw, err := req.MarshalBinary()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("encode request envelope: %w", err)
	}
	if err := wire.WriteFrame(conn, raw); err != nil {
		conn.Close()
		return nil, &NetworkError{Op: "write", Err: err}
	}

	frame, err := wire.ReadFrame(conn)
	if err != nil {
		conn.Close()
		return nil, &NetworkError{Op: "read", Err: err}
	}

	resp := &message.Response{}
	if err := resp.UnmarshalBinary(frame); err != nil {
		// Envelope corruption is indistinguishable from a transport problem
		// and therefore retriable.
		conn.Close()
		return nil, &NetworkError{Op: "decode", Err: err}
	}

	if resp.Kind == message.KindOK {
		c.pool(dest).Put(conn)
	} else {
		conn.Close()
	}

	if elapsed := time.Since(start); elapsed > c.opts.slowThreshold {
		c.logger.Warn("slow request",
			zap.String("destination", dest),
			zap.String("netname", req.Netname),
			zap.String("verb", req.Verb),
			zap.Duration("elapsed", elapsed))
	}
	return resp, nil
}

// pool returns the destination's pool entry, creating it on first use.
// First writer wins; an entry is never replaced afterwards.
func (c *Client) pool(dest string) *transport.ConnPool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pools[dest]
	if !ok {
		p = transport.NewConnPool(dest, c.opts.poolSize, c.opts.idleTimeout, func() (net.Conn, error) {
			return c.opts.dial(dest)
		})
		c.pools[dest] = p
	}
	return p
}

// Close shuts down all pool entries and their idle connections. In-flight
// calls fail on their next pool interaction.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pools {
		p.Close()
	}
	return nil
}

func (c *Client) ctxError(err error, dest, verb string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: verb %s to %s exceeded %v", ErrTimeout, verb, dest, c.opts.callTimeout)
	}
	return err
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
