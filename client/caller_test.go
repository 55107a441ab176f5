package client

import (
	"testing"
	"time"

	"github.com/sis-shen/suprpc-json/message"
)

// rpcResponder answers every RPC request with the given code and result.
func rpcResponder(r *Requestor, conn *fakeConn, code message.RCode, result any) {
	conn.onSend = func(msg message.Message) {
		req, ok := msg.(*message.RpcRequest)
		if !ok {
			return
		}
		rsp := &message.RpcResponse{RCode: code, Result: result}
		rsp.SetRID(req.RID())
		go r.OnResponse(conn, rsp)
	}
}

func TestCallExtractsResult(t *testing.T) {
	r := NewRequestor()
	conn := &fakeConn{}
	rpcResponder(r, conn, message.RCodeOK, float64(77))

	caller := NewRpcCaller(r)
	result, err := caller.Call(conn, "Add", map[string]any{"num1": 33, "num2": 44})
	if err != nil {
		t.Fatal(err)
	}
	if result != float64(77) {
		t.Fatalf("expect 77, got %v", result)
	}
}

func TestCallFailsOnNonOKCode(t *testing.T) {
	r := NewRequestor()
	conn := &fakeConn{}
	rpcResponder(r, conn, message.RCodeNotFoundService, nil)

	caller := NewRpcCaller(r)
	if _, err := caller.Call(conn, "Mul", map[string]any{}); err == nil {
		t.Fatal("expect error for NOT_FOUND_SERVICE response")
	}
}

func TestCallAsyncFuture(t *testing.T) {
	r := NewRequestor()
	conn := &fakeConn{}
	rpcResponder(r, conn, message.RCodeOK, float64(100))

	caller := NewRpcCaller(r)
	future, err := caller.CallAsync(conn, "Add", map[string]any{"num1": 99, "num2": 1})
	if err != nil {
		t.Fatal(err)
	}
	result, err := future.Result()
	if err != nil {
		t.Fatal(err)
	}
	if result != float64(100) {
		t.Fatalf("expect 100, got %v", result)
	}
}

func TestCallWithCallback(t *testing.T) {
	r := NewRequestor()
	conn := &fakeConn{}
	rpcResponder(r, conn, message.RCodeOK, float64(99))

	caller := NewRpcCaller(r)
	got := make(chan any, 1)
	err := caller.CallWithCallback(conn, "Add", map[string]any{"num1": 55, "num2": 44}, func(result any, err error) {
		if err != nil {
			t.Errorf("callback got error: %v", err)
		}
		got <- result
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case result := <-got:
		if result != float64(99) {
			t.Fatalf("expect 99, got %v", result)
		}
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestCallCompletesOnDisconnect(t *testing.T) {
	r := NewRequestor()
	conn := &fakeConn{}
	// No responder: the request stays pending until the conn dies.
	caller := NewRpcCaller(r)

	future, err := caller.CallAsync(conn, "Add", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	r.OnConnShutdown(conn)

	done := make(chan error, 1)
	go func() {
		_, err := future.Result()
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expect error after disconnect")
		}
	case <-time.After(time.Second):
		t.Fatal("future leaked after disconnect")
	}
}
