// Package transport provides the per-destination TCP connection pool.
//
// Connections are used exclusively: a caller leases one connection, performs a
// full request/response round trip on it, and either returns it for reuse or
// closes it. There is no multiplexing — one outstanding request per leased
// connection.
//
// Pool design: a buffered channel holds idle connections (FIFO, goroutine-safe,
// blocking on empty is built-in); a counter bounds the total number of live
// connections, created lazily on demand.
package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

// ErrPoolClosed is returned by Get after the pool has been closed.
var ErrPoolClosed = errors.New("transport: connection pool is closed")

// ConnPool manages reusable TCP connections to a single destination address.
type ConnPool struct {
	mu          sync.Mutex
	idle        chan *PoolConn           // Buffered channel of idle connections
	addr        string                   // Destination address
	maxConns    int                      // Cap on live connections (idle + leased)
	curConns    int                      // Currently live connections
	idleTimeout time.Duration            // Idle connections older than this are discarded on Get
	factory     func() (net.Conn, error) // Connection factory function
	closed      bool
}

// PoolConn wraps a net.Conn with pool bookkeeping. Closing a PoolConn discards
// it and frees its slot in the pool, so capacity lost to failed round trips is
// recreated lazily on the next Get.
type PoolConn struct {
	net.Conn
	pool     *ConnPool
	lastUsed time.Time // Set on Put; zero while leased
	once     sync.Once
	closeErr error
}

// NewConnPool creates a connection pool for one destination.
// Connections are created lazily — the pool starts empty and grows on demand
// up to maxConns. Idle connections older than idleTimeout are dropped and
// replaced the next time they would be handed out.
func NewConnPool(addr string, maxConns int, idleTimeout time.Duration, factory func() (net.Conn, error)) *ConnPool {
	return &ConnPool{
		idle:        make(chan *PoolConn, maxConns),
		addr:        addr,
		maxConns:    maxConns,
		idleTimeout: idleTimeout,
		factory:     factory,
	}
}

// Get leases a connection from the pool.
// Strategy:
//  1. Take an idle connection if one is available (discarding expired ones)
//  2. If none and under the cap, dial a new connection
//  3. At the cap, block until a connection is returned or ctx is done
//
// The dial itself happens outside the pool lock, so a slow connect never
// serializes other callers.
func (p *ConnPool) Get(ctx context.Context) (*PoolConn, error) {
	for {
		select {
		case conn := <-p.idle:
			if p.expired(conn) {
				conn.Close()
				continue
			}
			return conn, nil
		default:
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if p.curConns < p.maxConns {
			// Reserve the slot before dialing; released again on dial failure.
			p.curConns++
			p.mu.Unlock()

			netConn, err := p.factory()
			if err != nil {
				p.mu.Lock()
				p.curConns--
				p.mu.Unlock()
				return nil, err
			}
			return &PoolConn{Conn: netConn, pool: p}, nil
		}
		p.mu.Unlock()

		// At capacity — block until a connection is returned.
		select {
		case conn := <-p.idle:
			if p.expired(conn) {
				conn.Close()
				continue
			}
			return conn, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Put returns a leased connection to the pool for reuse.
// Only call Put after a fully successful round trip; a connection that hit any
// error should be Closed instead.
func (p *ConnPool) Put(conn *PoolConn) {
	conn.lastUsed = time.Now()
	// Clear any per-attempt deadline left by the previous lease.
	conn.Conn.SetDeadline(time.Time{})

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		conn.Close()
		return
	}

	select {
	case p.idle <- conn:
	default:
		// Idle queue full — cannot happen while curConns <= maxConns, but a
		// double-Put must not block forever.
		conn.Close()
	}
}

// Close shuts down the pool and closes all idle connections. Leased
// connections are closed by their holders.
func (p *ConnPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case conn := <-p.idle:
			conn.Close()
		default:
			return nil
		}
	}
}

func (p *ConnPool) expired(conn *PoolConn) bool {
	return p.idleTimeout > 0 && time.Since(conn.lastUsed) > p.idleTimeout
}

// Close discards the connection and frees its pool slot. Safe to call more
// than once; only the first call closes the underlying net.Conn.
func (pc *PoolConn) Close() error {
	pc.once.Do(func() {
		pc.pool.mu.Lock()
		pc.pool.curConns--
		pc.pool.mu.Unlock()
		pc.closeErr = pc.Conn.Close()
	})
	return pc.closeErr
}
