// Package loadbalance provides selection strategies for the client-side
// endpoint cache.
//
// Round-robin is the default policy: successive picks walk the host list
// in insertion order, so k calls against k providers use each one exactly
// once. Random and ConsistentHash are alternatives for callers that want
// spread or affinity instead.
package loadbalance

import "github.com/sis-shen/suprpc-json/message"

// Balancer selects one endpoint from a method's current host list.
// Pick is called on every RPC and must be goroutine-safe. The key is the
// method name; only affinity strategies use it.
type Balancer interface {
	Pick(key string, hosts []message.Address) (message.Address, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// Factory builds a fresh Balancer. Each MethodHost owns its own instance
// so per-method state (cursors) never leaks across methods.
type Factory func() Balancer
