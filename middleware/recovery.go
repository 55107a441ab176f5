package middleware

import (
	"context"

	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/suplog"
)

// Recovery converts a panicking handler into an INTERNAL_ERROR response.
// Panics must never cross the dispatch boundary — the read loop behind
// it serves every request on the connection.
func Recovery() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RpcRequest) (rsp *message.RpcResponse) {
			defer func() {
				if r := recover(); r != nil {
					suplog.S().Errorf("rpc %s rid=%s panicked: %v", req.Method, req.RID(), r)
					rsp = failure(req, message.RCodeInternalError)
				}
			}()
			return next(ctx, req)
		}
	}
}
