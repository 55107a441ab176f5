package middleware

import (
	"context"
	"time"

	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/suplog"
)

// Timeout bounds handler execution. A handler that overruns keeps
// running on its goroutine, but the caller gets an INTERNAL_ERROR
// response immediately; the late result is discarded.
func Timeout(limit time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
			ctx, cancel := context.WithTimeout(ctx, limit)
			defer cancel()

			done := make(chan *message.RpcResponse, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case rsp := <-done:
				return rsp
			case <-ctx.Done():
				suplog.S().Errorf("rpc %s rid=%s timed out after %s", req.Method, req.RID(), limit)
				return failure(req, message.RCodeInternalError)
			}
		}
	}
}
