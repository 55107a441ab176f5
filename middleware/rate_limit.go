package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/suplog"
)

// RateLimit rejects requests beyond a token-bucket budget of r requests
// per second with bursts of up to burst. Rejected requests answer
// INTERNAL_ERROR — the wire enum carries no throttle code and its
// ordinals are frozen.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
			if !limiter.Allow() {
				suplog.S().Errorf("rpc %s rid=%s rejected: rate limit exceeded", req.Method, req.RID())
				return failure(req, message.RCodeInternalError)
			}
			return next(ctx, req)
		}
	}
}
