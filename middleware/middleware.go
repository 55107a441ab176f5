// Package middleware wraps the server's RPC dispatch in an onion-model
// chain: Chain(A, B, C)(handler) runs A.before → B.before → C.before →
// handler → C.after → B.after → A.after.
//
// Middlewares operate at the request/response level, after the router
// has decoded and validated the RpcRequest and before the response is
// written back. Failure responses they synthesize carry the request's
// rid like any other response.
package middleware

import (
	"context"

	"github.com/sis-shen/suprpc-json/message"
)

// HandlerFunc processes one RPC request and always yields a response.
type HandlerFunc func(ctx context.Context, req *message.RpcRequest) *message.RpcResponse

// Middleware wraps a handler with additional behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one, applied in the order given.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// failure builds a response for req carrying only an error code.
func failure(req *message.RpcRequest, code message.RCode) *message.RpcResponse {
	rsp := &message.RpcResponse{RCode: code}
	rsp.SetRID(req.RID())
	return rsp
}
