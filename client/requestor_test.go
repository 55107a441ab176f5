package client

import (
	"sync"
	"testing"
	"time"

	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/transport"
)

// fakeConn lets tests script the peer: onSend runs for every outbound
// message, typically feeding a response back into the requestor.
type fakeConn struct {
	mu       sync.Mutex
	sent     []message.Message
	shutdown bool
	onSend   func(msg message.Message)
}

func (c *fakeConn) Send(msg message.Message) error {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	hook := c.onSend
	c.mu.Unlock()
	if hook != nil {
		hook(msg)
	}
	return nil
}

func (c *fakeConn) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown = true
}

func (c *fakeConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.shutdown
}

var _ transport.Conn = (*fakeConn)(nil)

func newTopicReq(rid string) *message.TopicRequest {
	req := &message.TopicRequest{TopicKey: "k", Optype: message.TopicCreate}
	req.SetRID(rid)
	return req
}

func okTopicRsp(rid string) *message.TopicResponse {
	rsp := &message.TopicResponse{RCode: message.RCodeOK}
	rsp.SetRID(rid)
	return rsp
}

func TestSendSyncCompletesOnResponse(t *testing.T) {
	r := NewRequestor()
	conn := &fakeConn{}
	conn.onSend = func(msg message.Message) {
		// Respond from another goroutine like a real read loop would.
		go r.OnResponse(conn, okTopicRsp(msg.RID()))
	}

	rsp, err := r.SendSync(conn, newTopicReq("rid-s1"))
	if err != nil {
		t.Fatal(err)
	}
	if rsp.RID() != "rid-s1" {
		t.Errorf("rid mismatch: %q", rsp.RID())
	}
}

func TestSendAsyncFuture(t *testing.T) {
	r := NewRequestor()
	conn := &fakeConn{}

	future, err := r.SendAsync(conn, newTopicReq("rid-a1"))
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan message.Message, 1)
	go func() { done <- future.Result() }()

	select {
	case <-done:
		t.Fatal("future completed before any response")
	case <-time.After(50 * time.Millisecond):
	}

	r.OnResponse(conn, okTopicRsp("rid-a1"))
	select {
	case rsp := <-done:
		if rsp.RID() != "rid-a1" {
			t.Errorf("rid mismatch: %q", rsp.RID())
		}
	case <-time.After(time.Second):
		t.Fatal("future did not complete after the response")
	}
}

func TestSendCallback(t *testing.T) {
	r := NewRequestor()
	conn := &fakeConn{}

	got := make(chan message.Message, 1)
	err := r.SendCallback(conn, newTopicReq("rid-c1"), func(msg message.Message) {
		got <- msg
	})
	if err != nil {
		t.Fatal(err)
	}

	r.OnResponse(conn, okTopicRsp("rid-c1"))
	select {
	case msg := <-got:
		if msg.RID() != "rid-c1" {
			t.Errorf("rid mismatch: %q", msg.RID())
		}
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestResponseWithoutDescriptorIsDropped(t *testing.T) {
	r := NewRequestor()
	conn := &fakeConn{}
	// Must not panic or corrupt state.
	r.OnResponse(conn, okTopicRsp("rid-unknown"))
}

func TestExactlyOnceCompletion(t *testing.T) {
	r := NewRequestor()
	conn := &fakeConn{}

	calls := 0
	if err := r.SendCallback(conn, newTopicReq("rid-once"), func(msg message.Message) {
		calls++
	}); err != nil {
		t.Fatal(err)
	}

	r.OnResponse(conn, okTopicRsp("rid-once"))
	r.OnResponse(conn, okTopicRsp("rid-once")) // duplicate: dropped
	r.OnConnShutdown(conn)                     // already completed: no synthesis

	if calls != 1 {
		t.Fatalf("sink completed %d times, want exactly 1", calls)
	}
}

func TestConnShutdownSynthesizesDisconnected(t *testing.T) {
	r := NewRequestor()
	conn := &fakeConn{}
	other := &fakeConn{}

	future, err := r.SendAsync(conn, newTopicReq("rid-dc"))
	if err != nil {
		t.Fatal(err)
	}
	otherFuture, err := r.SendAsync(other, newTopicReq("rid-keep"))
	if err != nil {
		t.Fatal(err)
	}

	r.OnConnShutdown(conn)

	done := make(chan message.Message, 1)
	go func() { done <- future.Result() }()
	select {
	case msg := <-done:
		rsp, ok := msg.(message.Response)
		if !ok {
			t.Fatalf("synthetic completion is not a response: %T", msg)
		}
		if rsp.Code() != message.RCodeDisconnected {
			t.Fatalf("expect DISCONNECTED, got %d", rsp.Code())
		}
		if rsp.RID() != "rid-dc" {
			t.Errorf("rid mismatch: %q", rsp.RID())
		}
	case <-time.After(time.Second):
		t.Fatal("blocked future leaked after connection shutdown")
	}

	// The descriptor on the other connection is untouched.
	r.OnResponse(other, okTopicRsp("rid-keep"))
	otherDone := make(chan message.Message, 1)
	go func() { otherDone <- otherFuture.Result() }()
	select {
	case msg := <-otherDone:
		if rsp := msg.(message.Response); rsp.Code() != message.RCodeOK {
			t.Fatalf("unrelated descriptor was completed with %d", rsp.Code())
		}
	case <-time.After(time.Second):
		t.Fatal("unrelated descriptor lost")
	}
}

func TestRequestWithoutRidRejected(t *testing.T) {
	r := NewRequestor()
	conn := &fakeConn{}
	req := &message.TopicRequest{TopicKey: "k", Optype: message.TopicCreate}
	if _, err := r.SendAsync(conn, req); err == nil {
		t.Fatal("expect error for request without rid")
	}
}
