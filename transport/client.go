package transport

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/sis-shen/suprpc-json/message"
)

// Client dials a framed TCP connection and runs its read loop in the
// background. Connect blocks until the TCP handshake completes.
type Client struct {
	addr string
	conn *tcpConn

	onMessage MessageHandler
	onClose   CloseHandler
}

// NewClient creates a client for the given endpoint. Handlers must be
// set before Connect.
func NewClient(host message.Address) *Client {
	return &Client{addr: host.String()}
}

// SetMessageHandler registers the inbound message callback.
func (c *Client) SetMessageHandler(h MessageHandler) { c.onMessage = h }

// SetCloseHandler registers the connection close callback.
func (c *Client) SetCloseHandler(h CloseHandler) { c.onClose = h }

// Connect dials the server and starts the read loop.
func (c *Client) Connect() error {
	raw, err := net.DialTimeout("tcp", c.addr, 5*time.Second)
	if err != nil {
		return errors.Wrapf(err, "dial %s", c.addr)
	}
	c.conn = newTCPConn(raw)
	go readLoop(c.conn, c.onMessage, c.onClose)
	return nil
}

// Conn returns the live connection, nil before Connect.
func (c *Client) Conn() Conn {
	if c.conn == nil {
		return nil
	}
	return c.conn
}

// Send writes one message on the connection.
func (c *Client) Send(msg message.Message) error {
	if c.conn == nil {
		return errors.New("client is not connected")
	}
	return c.conn.Send(msg)
}

// Shutdown closes the connection.
func (c *Client) Shutdown() {
	if c.conn != nil {
		c.conn.Shutdown()
	}
}

// Connected reports whether the connection is usable.
func (c *Client) Connected() bool {
	return c.conn != nil && c.conn.Connected()
}
