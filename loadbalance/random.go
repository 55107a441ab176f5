package loadbalance

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/sis-shen/suprpc-json/message"
)

// Random picks a uniformly random host. Useful when many clients would
// otherwise round-robin in lockstep against the same provider set.
type Random struct{}

func NewRandom() Balancer {
	return &Random{}
}

func (b *Random) Pick(_ string, hosts []message.Address) (message.Address, error) {
	if len(hosts) == 0 {
		return message.Address{}, errors.New("no hosts available")
	}
	return hosts[rand.Intn(len(hosts))], nil
}

func (b *Random) Name() string {
	return "Random"
}
