package transport

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/sis-shen/suprpc-json/suplog"
)

// Server accepts framed TCP connections and delivers decoded messages to
// the registered handlers. One read goroutine per connection keeps frame
// parsing sequential; handlers run on that goroutine.
type Server struct {
	port     int
	listener net.Listener
	shutdown atomic.Bool

	onMessage MessageHandler
	onClose   CloseHandler
	onConnect ConnectHandler

	mu    sync.Mutex
	conns map[*tcpConn]struct{}
}

// NewServer creates a server that will listen on the given TCP port on
// all interfaces.
func NewServer(port int) *Server {
	return &Server{
		port:  port,
		conns: make(map[*tcpConn]struct{}),
	}
}

// SetMessageHandler registers the inbound message callback. Must be
// called before Start.
func (s *Server) SetMessageHandler(h MessageHandler) { s.onMessage = h }

// SetCloseHandler registers the connection close callback. Must be
// called before Start.
func (s *Server) SetCloseHandler(h CloseHandler) { s.onClose = h }

// SetConnectHandler registers the new connection callback. Must be
// called before Start.
func (s *Server) SetConnectHandler(h ConnectHandler) { s.onConnect = h }

// Start binds the listener and runs the accept loop until Stop is
// called. It blocks; run it on its own goroutine when composing.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(s.port))
	if err != nil {
		return errors.Wrapf(err, "listen on port %d", s.port)
	}
	s.listener = listener
	suplog.S().Infof("server listening on %s", listener.Addr())

	for {
		raw, err := listener.Accept()
		if err != nil {
			// Stop closes the listener; treat the resulting Accept error
			// as a clean exit.
			if s.shutdown.Load() {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		conn := newTCPConn(raw)
		s.track(conn)
		if s.onConnect != nil {
			s.onConnect(conn)
		}
		go func() {
			readLoop(conn, s.onMessage, s.onClose)
			s.untrack(conn)
		}()
	}
}

// Stop closes the listener and every live connection. Close handlers
// fire from the per-connection read loops.
func (s *Server) Stop() {
	if !s.shutdown.CompareAndSwap(false, true) {
		return
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	conns := make([]*tcpConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.Shutdown()
	}
}

// Addr returns the bound listener address, useful when port 0 was
// requested.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) track(c *tcpConn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *tcpConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}
