// Package transport implements the TCP transport shared by suprpc
// clients and servers: a framed connection abstraction, the server
// accept/read loops, and the client dialer.
//
// Reads are sequential — one goroutine per connection parses frame
// boundaries from the byte stream. Writes go through a per-connection
// mutex so concurrent senders cannot interleave frames.
package transport

import (
	"bytes"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/protocol"
	"github.com/sis-shen/suprpc-json/suplog"
)

// Conn is a framed connection. Managers hold Conn values as lookup keys
// only; the transport owns the lifetime.
type Conn interface {
	// Send encodes and writes one message. Safe for concurrent use.
	Send(msg message.Message) error
	// Shutdown closes the connection. The close handler fires once, from
	// the read loop, after the underlying socket is closed.
	Shutdown()
	// Connected reports whether the connection is still usable.
	Connected() bool
}

// MessageHandler receives each decoded inbound message.
type MessageHandler func(conn Conn, msg message.Message)

// CloseHandler runs once when a connection is torn down.
type CloseHandler func(conn Conn)

// ConnectHandler runs once when a connection is established.
type ConnectHandler func(conn Conn)

type tcpConn struct {
	raw     net.Conn
	sending sync.Mutex // serializes frame writes
	closed  atomic.Bool
}

func newTCPConn(raw net.Conn) *tcpConn {
	return &tcpConn{raw: raw}
}

func (c *tcpConn) Send(msg message.Message) error {
	if c.closed.Load() {
		return errors.New("send on closed connection")
	}
	frame, err := protocol.Encode(msg)
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}
	c.sending.Lock()
	defer c.sending.Unlock()
	if _, err := c.raw.Write(frame); err != nil {
		c.Shutdown()
		return errors.Wrap(err, "write frame")
	}
	return nil
}

func (c *tcpConn) Shutdown() {
	if c.closed.CompareAndSwap(false, true) {
		_ = c.raw.Close()
	}
}

func (c *tcpConn) Connected() bool {
	return !c.closed.Load()
}

func (c *tcpConn) remoteAddr() string {
	return c.raw.RemoteAddr().String()
}

// readLoop reads chunks into a pending buffer and drains complete frames
// from it. It returns — and fires onClose — when the peer disconnects,
// a frame fails to decode, or the pending buffer exceeds the cap without
// yielding a frame.
func readLoop(c *tcpConn, onMessage MessageHandler, onClose CloseHandler) {
	defer func() {
		c.Shutdown()
		if onClose != nil {
			onClose(c)
		}
	}()

	var pending bytes.Buffer
	chunk := make([]byte, 4096)
	for {
		n, err := c.raw.Read(chunk)
		if n > 0 {
			pending.Write(chunk[:n])
			for protocol.CanProcess(&pending) {
				msg, perr := protocol.OnMessage(&pending)
				if perr != nil {
					suplog.S().Errorf("connection %s: %v", c.remoteAddr(), perr)
					return
				}
				if onMessage != nil {
					onMessage(c, msg)
				}
			}
			if pending.Len() > protocol.MaxPendingBytes {
				suplog.S().Errorf("connection %s: %d pending bytes without a processable frame, shutting down",
					c.remoteAddr(), pending.Len())
				return
			}
		}
		if err != nil {
			return
		}
	}
}
