package client

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/suplog"
	"github.com/sis-shen/suprpc-json/transport"
)

// ResultCallback receives the extracted RPC result, or the error when
// the call failed (non-OK rcode, disconnect, or a malformed response).
type ResultCallback func(result any, err error)

// ResultFuture completes with the extracted RPC result rather than the
// raw response message.
type ResultFuture struct {
	ch chan resultOrError
}

type resultOrError struct {
	result any
	err    error
}

// Result blocks until the call completes.
func (f *ResultFuture) Result() (any, error) {
	r := <-f.ch
	return r.result, r.err
}

// RpcCaller wraps the Requestor with the REQ_RPC contract: build the
// request with a fresh rid, gate on rcode OK, extract the result.
type RpcCaller struct {
	requestor *Requestor
}

func NewRpcCaller(requestor *Requestor) *RpcCaller {
	return &RpcCaller{requestor: requestor}
}

func newRpcRequest(method string, params map[string]any) *message.RpcRequest {
	req := &message.RpcRequest{Method: method, Params: params}
	req.SetRID(uuid.NewString())
	return req
}

// Call invokes method synchronously and returns the extracted result.
func (c *RpcCaller) Call(conn transport.Conn, method string, params map[string]any) (any, error) {
	req := newRpcRequest(method, params)
	rsp, err := c.requestor.SendSync(conn, req)
	if err != nil {
		return nil, errors.Wrapf(err, "rpc %s", method)
	}
	return extractResult(method, rsp)
}

// CallAsync invokes method and returns a future for the result.
func (c *RpcCaller) CallAsync(conn transport.Conn, method string, params map[string]any) (*ResultFuture, error) {
	req := newRpcRequest(method, params)
	future := &ResultFuture{ch: make(chan resultOrError, 1)}
	err := c.requestor.SendCallback(conn, req, func(msg message.Message) {
		result, err := extractResult(method, msg)
		future.ch <- resultOrError{result: result, err: err}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "rpc %s", method)
	}
	return future, nil
}

// CallWithCallback invokes method; cb runs with the extracted result
// when the response (or the disconnect failure) arrives.
func (c *RpcCaller) CallWithCallback(conn transport.Conn, method string, params map[string]any, cb ResultCallback) error {
	req := newRpcRequest(method, params)
	err := c.requestor.SendCallback(conn, req, func(msg message.Message) {
		cb(extractResult(method, msg))
	})
	if err != nil {
		return errors.Wrapf(err, "rpc %s", method)
	}
	return nil
}

func extractResult(method string, msg message.Message) (any, error) {
	rsp, ok := msg.(*message.RpcResponse)
	if !ok {
		suplog.S().Errorf("rpc %s: response rid=%s is not an RPC response (%T)", method, msg.RID(), msg)
		return nil, errors.Errorf("rpc %s: unexpected response type %T", method, msg)
	}
	if rsp.RCode != message.RCodeOK {
		return nil, errors.Errorf("rpc %s failed: %s", method, message.ErrReason(rsp.RCode))
	}
	return rsp.Result, nil
}
