package client

import (
	"net"
	"time"

	"verbwire/codec"
	"verbwire/middleware"

	"go.uber.org/zap"
)

// Defaults for the dispatch engine. All of them are overridable per client,
// which is what keeps the retry/backoff tests fast.
const (
	DefaultCallTimeout    = 60 * time.Second
	DefaultMaxAttempts    = 5
	DefaultBackoffBase    = 100 * time.Millisecond
	DefaultAdmissionLimit = 128
	DefaultPoolSize       = 32
	DefaultIdleTimeout    = 5 * time.Second
	DefaultSlowThreshold  = 3 * time.Second
)

type options struct {
	codecType      codec.CodecType
	callTimeout    time.Duration
	maxAttempts    int
	backoffBase    time.Duration
	admissionLimit int64
	poolSize       int
	idleTimeout    time.Duration
	slowThreshold  time.Duration
	logger         *zap.Logger
	middlewares    []middleware.Middleware
	dial           func(addr string) (net.Conn, error)
}

func defaultOptions() options {
	return options{
		codecType:      codec.CodecTypeJSON,
		callTimeout:    DefaultCallTimeout,
		maxAttempts:    DefaultMaxAttempts,
		backoffBase:    DefaultBackoffBase,
		admissionLimit: DefaultAdmissionLimit,
		poolSize:       DefaultPoolSize,
		idleTimeout:    DefaultIdleTimeout,
		slowThreshold:  DefaultSlowThreshold,
		logger:         zap.NewNop(),
		dial: func(addr string) (net.Conn, error) {
			return net.Dial("tcp", addr)
		},
	}
}

type Option func(*options)

// WithCodecType selects the payload codec.
func WithCodecType(t codec.CodecType) Option {
	return func(o *options) { o.codecType = t }
}

// WithCallTimeout sets the overall wall-clock deadline for one call,
// covering all retries and backoff waits.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) { o.callTimeout = d }
}

// WithMaxAttempts sets how many network attempts one call may make.
func WithMaxAttempts(n int) Option {
	return func(o *options) { o.maxAttempts = n }
}

// WithBackoffBase sets the first backoff interval; each further retry
// doubles it.
func WithBackoffBase(d time.Duration) Option {
	return func(o *options) { o.backoffBase = d }
}

// WithAdmissionLimit caps concurrent network attempts across all
// destinations.
func WithAdmissionLimit(n int64) Option {
	return func(o *options) { o.admissionLimit = n }
}

// WithPoolSize caps live connections per destination.
func WithPoolSize(n int) Option {
	return func(o *options) { o.poolSize = n }
}

// WithIdleTimeout sets how long an idle pooled connection survives before
// it is discarded.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.idleTimeout = d }
}

// WithSlowThreshold sets the round-trip duration above which a successful
// call is logged as slow.
func WithSlowThreshold(d time.Duration) Option {
	return func(o *options) { o.slowThreshold = d }
}

// WithLogger sets the diagnostic logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMiddleware wraps the per-attempt network phase with the given
// middlewares, applied in order.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

// WithDialer replaces the TCP dialer used to create pool connections.
func WithDialer(dial func(addr string) (net.Conn, error)) Option {
	return func(o *options) { o.dial = dial }
}
