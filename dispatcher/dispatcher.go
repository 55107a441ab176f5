// Package dispatcher routes inbound messages to per-MType handlers.
//
// Handlers are registered for a concrete message variant; Register wraps
// the typed function in a closure that down-converts the base message
// before invoking it, so the table itself stays type-erased.
package dispatcher

import (
	"sync"

	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/suplog"
	"github.com/sis-shen/suprpc-json/transport"
)

type handler func(conn transport.Conn, msg message.Message)

// Dispatcher is a thread-safe MType → handler table. A message with no
// registered handler is a protocol violation: it is logged and its
// connection shut down.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[message.MType]handler
}

func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[message.MType]handler)}
}

// Register binds a typed handler to an mtype. The down-conversion to T
// happens inside the stored closure; a variant mismatch (factory bug or
// misregistration) is treated like an unknown type.
func Register[T message.Message](d *Dispatcher, mtype message.MType, fn func(conn transport.Conn, msg T)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[mtype] = func(conn transport.Conn, msg message.Message) {
		typed, ok := msg.(T)
		if !ok {
			suplog.S().Errorf("message of type %d does not match registered handler variant %T", msg.MType(), *new(T))
			conn.Shutdown()
			return
		}
		fn(conn, typed)
	}
}

// OnMessage looks up and invokes the handler for msg. The table lock is
// released before the handler runs.
func (d *Dispatcher) OnMessage(conn transport.Conn, msg message.Message) {
	d.mu.Lock()
	h, ok := d.handlers[msg.MType()]
	d.mu.Unlock()
	if !ok {
		suplog.S().Errorf("received message of unhandled type %d, shutting connection down", msg.MType())
		conn.Shutdown()
		return
	}
	h(conn, msg)
}
