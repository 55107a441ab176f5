package loadbalance

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/sis-shen/suprpc-json/message"
)

// RoundRobin walks the host list in insertion order, starting at the
// first host. Uses an atomic cursor for lock-free, goroutine-safe
// operation.
type RoundRobin struct {
	cursor uint64
}

func NewRoundRobin() Balancer {
	return &RoundRobin{}
}

func (b *RoundRobin) Pick(_ string, hosts []message.Address) (message.Address, error) {
	if len(hosts) == 0 {
		return message.Address{}, errors.New("no hosts available")
	}
	idx := (atomic.AddUint64(&b.cursor, 1) - 1) % uint64(len(hosts))
	return hosts[idx], nil
}

func (b *RoundRobin) Name() string {
	return "RoundRobin"
}
