package middleware

import (
	"context"
	"time"

	"verbwire/message"

	"go.uber.org/zap"
)

// LoggingMiddleware logs every network attempt with its destination, verb,
// duration, and outcome.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, dest string, req *message.Request) (*message.Response, error) {
			start := time.Now()
			resp, err := next(ctx, dest, req)
			fields := []zap.Field{
				zap.String("destination", dest),
				zap.String("netname", req.Netname),
				zap.String("verb", req.Verb),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Debug("attempt failed", append(fields, zap.Error(err))...)
				return resp, err
			}
			logger.Debug("attempt completed", append(fields, zap.String("kind", resp.Kind))...)
			return resp, nil
		}
	}
}
