// Package client implements the client half of suprpc: the Requestor
// correlation table, the RpcCaller, the discovery cache, the topic
// manager, and the composed client types.
package client

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/suplog"
	"github.com/sis-shen/suprpc-json/transport"
)

// RType tags how a request descriptor delivers its completion.
type RType int

const (
	ReqAsync RType = iota
	ReqSync
	ReqCallback
)

// RequestCallback receives the raw response for a callback-style send.
type RequestCallback func(msg message.Message)

// Future completes with the response message, or with a synthetic
// DISCONNECTED response if the connection closes first. Exactly one of
// the two always arrives — Result never blocks forever.
type Future struct {
	ch chan message.Message
}

// Result blocks until the response is delivered.
func (f *Future) Result() message.Message {
	return <-f.ch
}

type requestDescriptor struct {
	request  message.Message
	conn     transport.Conn
	rtype    RType
	ch       chan message.Message // buffered, async/sync sink
	callback RequestCallback
}

// Requestor correlates responses to outstanding requests by rid. The
// descriptor is inserted before the request hits the wire, so a response
// can never beat its descriptor into the table.
type Requestor struct {
	mu      sync.Mutex
	pending map[string]*requestDescriptor
}

func NewRequestor() *Requestor {
	return &Requestor{pending: make(map[string]*requestDescriptor)}
}

// SendAsync sends req and returns a Future for the response.
func (r *Requestor) SendAsync(conn transport.Conn, req message.Message) (*Future, error) {
	desc := &requestDescriptor{
		request: req,
		conn:    conn,
		rtype:   ReqAsync,
		ch:      make(chan message.Message, 1),
	}
	if err := r.send(conn, req, desc); err != nil {
		return nil, err
	}
	return &Future{ch: desc.ch}, nil
}

// SendSync sends req and blocks until the response arrives.
func (r *Requestor) SendSync(conn transport.Conn, req message.Message) (message.Message, error) {
	future, err := r.SendAsync(conn, req)
	if err != nil {
		return nil, err
	}
	return future.Result(), nil
}

// SendCallback sends req; cb is invoked with the response.
func (r *Requestor) SendCallback(conn transport.Conn, req message.Message, cb RequestCallback) error {
	desc := &requestDescriptor{
		request:  req,
		conn:     conn,
		rtype:    ReqCallback,
		callback: cb,
	}
	return r.send(conn, req, desc)
}

func (r *Requestor) send(conn transport.Conn, req message.Message, desc *requestDescriptor) error {
	rid := req.RID()
	if rid == "" {
		return errors.New("request has no rid")
	}
	r.mu.Lock()
	r.pending[rid] = desc
	r.mu.Unlock()

	if err := conn.Send(req); err != nil {
		r.mu.Lock()
		delete(r.pending, rid)
		r.mu.Unlock()
		return err
	}
	return nil
}

// OnResponse routes an inbound response to its descriptor's sink and
// removes the entry. Removal under the lock makes completion exactly
// once; the sink itself runs outside the lock.
func (r *Requestor) OnResponse(conn transport.Conn, msg message.Message) {
	r.mu.Lock()
	desc, ok := r.pending[msg.RID()]
	if ok {
		delete(r.pending, msg.RID())
	}
	r.mu.Unlock()
	if !ok {
		suplog.S().Errorf("response rid=%s has no matching request descriptor, dropped", msg.RID())
		return
	}
	desc.complete(msg)
}

// OnConnShutdown completes every descriptor outstanding on conn with a
// synthetic DISCONNECTED response, waking blocked futures. Registered as
// the connection close handler.
func (r *Requestor) OnConnShutdown(conn transport.Conn) {
	r.mu.Lock()
	var orphaned []*requestDescriptor
	for rid, desc := range r.pending {
		if desc.conn == conn {
			orphaned = append(orphaned, desc)
			delete(r.pending, rid)
		}
	}
	r.mu.Unlock()

	for _, desc := range orphaned {
		rsp, ok := message.NewResponseFor(desc.request)
		if !ok {
			suplog.S().Errorf("pending request rid=%s of type %d has no response variant", desc.request.RID(), desc.request.MType())
			continue
		}
		rsp.SetCode(message.RCodeDisconnected)
		desc.complete(rsp)
	}
}

func (d *requestDescriptor) complete(msg message.Message) {
	switch d.rtype {
	case ReqAsync, ReqSync:
		d.ch <- msg
	case ReqCallback:
		if d.callback != nil {
			d.callback(msg)
		}
	default:
		suplog.S().Errorf("request rid=%s has unknown request type %d", d.request.RID(), d.rtype)
	}
}
