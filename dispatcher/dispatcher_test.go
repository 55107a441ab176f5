package dispatcher

import (
	"testing"

	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/transport"
)

// fakeConn records whether Shutdown was called.
type fakeConn struct {
	sent     []message.Message
	shutdown bool
}

func (c *fakeConn) Send(msg message.Message) error { c.sent = append(c.sent, msg); return nil }
func (c *fakeConn) Shutdown()                      { c.shutdown = true }
func (c *fakeConn) Connected() bool                { return !c.shutdown }

var _ transport.Conn = (*fakeConn)(nil)

func TestDispatchToTypedHandler(t *testing.T) {
	d := New()
	var got *message.RpcRequest
	Register(d, message.MTypeReqRPC, func(conn transport.Conn, msg *message.RpcRequest) {
		got = msg
	})

	conn := &fakeConn{}
	req := &message.RpcRequest{Method: "Add", Params: map[string]any{}}
	req.SetRID("rid-d1")
	d.OnMessage(conn, req)

	if got == nil {
		t.Fatal("handler not invoked")
	}
	if got.Method != "Add" {
		t.Errorf("handler got wrong message: %+v", got)
	}
	if conn.shutdown {
		t.Error("connection must stay open on successful dispatch")
	}
}

func TestUnhandledTypeShutsConnDown(t *testing.T) {
	d := New()
	Register(d, message.MTypeReqRPC, func(conn transport.Conn, msg *message.RpcRequest) {})

	conn := &fakeConn{}
	rsp := &message.RpcResponse{RCode: message.RCodeOK}
	d.OnMessage(conn, rsp)

	if !conn.shutdown {
		t.Fatal("expect shutdown for message without a handler")
	}
}

func TestBaseMessageHandlerAcceptsAnyVariant(t *testing.T) {
	// The requestor registers response handlers against the base Message
	// interface; every variant must pass through.
	d := New()
	var got message.Message
	Register(d, message.MTypeRspService, func(conn transport.Conn, msg message.Message) {
		got = msg
	})

	conn := &fakeConn{}
	rsp := &message.ServiceResponse{RCode: message.RCodeOK, Optype: message.ServiceRegistry}
	rsp.SetRID("rid-d2")
	d.OnMessage(conn, rsp)

	if got == nil || got.RID() != "rid-d2" {
		t.Fatalf("base-typed handler did not receive the message: %v", got)
	}
}
