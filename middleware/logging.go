package middleware

import (
	"context"
	"time"

	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/suplog"
)

// Logging logs every RPC with its method, rid, duration and result code.
func Logging() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse {
			start := time.Now()
			rsp := next(ctx, req)
			duration := time.Since(start)
			if rsp.RCode != message.RCodeOK {
				suplog.S().Errorf("rpc %s rid=%s took %s: %s", req.Method, req.RID(), duration, message.ErrReason(rsp.RCode))
			} else {
				suplog.S().Infof("rpc %s rid=%s took %s", req.Method, req.RID(), duration)
			}
			return rsp
		}
	}
}
