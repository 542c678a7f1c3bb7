package middleware

import (
	"context"

	"verbwire/message"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware 创建一个基于令牌桶算法的限流中间件
//
// Attempts over the rate wait for a token instead of failing, bounded by the
// call's context deadline. Because the chain runs per attempt, this also
// dampens retry storms toward an unhealthy destination.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, dest string, req *message.Request) (*message.Response, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return next(ctx, dest, req)
		}
	}
}
