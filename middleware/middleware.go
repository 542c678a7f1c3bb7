// Package middleware lets callers wrap the client's per-attempt network phase.
//
// A HandlerFunc performs one network attempt: lease a connection, send the
// framed request envelope, read and decode the response envelope. Middlewares
// compose around it in an onion model:
//
//	Chain(A, B, C)(attempt) → A(B(C(attempt)))
//
// Note that middlewares run once per attempt, not once per logical call — a
// call that retries three times passes through the chain three times. The
// retry loop and the overall deadline live in the client itself, outside the
// chain, because they must span admission permits and backoff waits.
package middleware

import (
	"context"

	"verbwire/message"
)

// HandlerFunc performs one network attempt against dest for the given request
// envelope, returning the decoded response envelope.
type HandlerFunc func(ctx context.Context, dest string, req *message.Request) (*message.Response, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
