package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/sis-shen/suprpc-json/message"
)

// ConsistentHash maps the method name to a host through a hash ring, so
// the same method keeps hitting the same provider until the provider set
// changes.
//
// Each real host is mapped to N virtual nodes on the ring; without them
// a handful of hosts can cluster and skew the distribution. The ring is
// rebuilt when the host list changes (host lists here are small and
// change only on ONLINE/OFFLINE events).
type ConsistentHash struct {
	mu       sync.Mutex
	replicas int
	ring     []uint32
	nodes    map[uint32]message.Address
	built    string // fingerprint of the host list the ring was built from
}

func NewConsistentHash() Balancer {
	return &ConsistentHash{replicas: 100, nodes: make(map[uint32]message.Address)}
}

func (b *ConsistentHash) rebuild(hosts []message.Address) {
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]message.Address, len(hosts)*b.replicas)
	for _, host := range hosts {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", host, i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = host
		}
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

func (b *ConsistentHash) fingerprint(hosts []message.Address) string {
	fp := ""
	for _, h := range hosts {
		fp += h.String() + ";"
	}
	return fp
}

func (b *ConsistentHash) Pick(key string, hosts []message.Address) (message.Address, error) {
	if len(hosts) == 0 {
		return message.Address{}, errors.New("no hosts available")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if fp := b.fingerprint(hosts); fp != b.built {
		b.rebuild(hosts)
		b.built = fp
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= hash })
	// Wrap around: past the last node means the first node owns the key.
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHash) Name() string {
	return "ConsistentHash"
}
