// Package registry mirrors method → provider bindings into an external
// store. The native in-protocol registry (the PDManager server) stays
// authoritative; this mirror lets deployments that already run etcd see
// the same bindings there.
package registry

import "github.com/sis-shen/suprpc-json/message"

// Registry announces and looks up method providers in an external store.
type Registry interface {
	Register(method string, host message.Address, ttl int64) error
	Deregister(method string, host message.Address) error
	Discover(method string) ([]message.Address, error)
	Watch(method string) <-chan []message.Address
}
