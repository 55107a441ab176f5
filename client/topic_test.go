package client

import (
	"testing"

	"github.com/sis-shen/suprpc-json/message"
)

// topicResponder acknowledges every topic request with the given code.
func topicResponder(r *Requestor, conn *fakeConn, code message.RCode) {
	conn.onSend = func(msg message.Message) {
		req, ok := msg.(*message.TopicRequest)
		if !ok {
			return
		}
		rsp := &message.TopicResponse{RCode: code}
		rsp.SetRID(req.RID())
		go r.OnResponse(conn, rsp)
	}
}

func TestSubscribeInstallsCallback(t *testing.T) {
	r := NewRequestor()
	conn := &fakeConn{}
	topicResponder(r, conn, message.RCodeOK)

	tm := NewTopicManager(r)
	got := make(chan [2]string, 1)
	if err := tm.Subscribe(conn, "news", func(key, msg string) {
		got <- [2]string{key, msg}
	}); err != nil {
		t.Fatal(err)
	}

	push := &message.TopicRequest{TopicKey: "news", Optype: message.TopicPublish, TopicMsg: "hi"}
	push.SetRID("rid-push")
	tm.OnPublish(conn, push)

	select {
	case pair := <-got:
		if pair[0] != "news" || pair[1] != "hi" {
			t.Fatalf("callback got %v", pair)
		}
	default:
		t.Fatal("subscription callback not invoked")
	}
}

func TestSubscribeRollbackOnRefusal(t *testing.T) {
	r := NewRequestor()
	conn := &fakeConn{}
	topicResponder(r, conn, message.RCodeNotFoundTopic)

	tm := NewTopicManager(r)
	if err := tm.Subscribe(conn, "ghost", func(key, msg string) {}); err == nil {
		t.Fatal("expect subscribe failure")
	}
	if tm.getSubscribe("ghost") != nil {
		t.Fatal("refused subscription left its callback installed")
	}
}

func TestCancelRemovesCallback(t *testing.T) {
	r := NewRequestor()
	conn := &fakeConn{}
	topicResponder(r, conn, message.RCodeOK)

	tm := NewTopicManager(r)
	if err := tm.Subscribe(conn, "news", func(key, msg string) {}); err != nil {
		t.Fatal(err)
	}
	if err := tm.Cancel(conn, "news"); err != nil {
		t.Fatal(err)
	}
	if tm.getSubscribe("news") != nil {
		t.Fatal("cancel left the callback installed")
	}
}

func TestPublishSendsTopicMsg(t *testing.T) {
	r := NewRequestor()
	conn := &fakeConn{}
	var sentReq *message.TopicRequest
	conn.onSend = func(msg message.Message) {
		req := msg.(*message.TopicRequest)
		sentReq = req
		rsp := &message.TopicResponse{RCode: message.RCodeOK}
		rsp.SetRID(req.RID())
		go r.OnResponse(conn, rsp)
	}

	tm := NewTopicManager(r)
	if err := tm.Publish(conn, "news", "hello"); err != nil {
		t.Fatal(err)
	}
	if sentReq.Optype != message.TopicPublish || sentReq.TopicMsg != "hello" {
		t.Fatalf("publish request: %+v", sentReq)
	}
}

func TestOnPublishIgnoresOtherOptypes(t *testing.T) {
	r := NewRequestor()
	conn := &fakeConn{}
	tm := NewTopicManager(r)

	invoked := false
	tm.addSubscribe("news", func(key, msg string) { invoked = true })

	stray := &message.TopicRequest{TopicKey: "news", Optype: message.TopicSubscribe}
	stray.SetRID("rid-stray")
	tm.OnPublish(conn, stray)
	if invoked {
		t.Fatal("non-publish inbound message reached the callback")
	}
}
