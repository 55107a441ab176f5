package registry

import (
	"context"
	"encoding/json"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/sis-shen/suprpc-json/message"
)

// EtcdRegistry implements Registry on etcd v3.
//
//	Key:   /suprpc/{method}/{ip:port}
//	Value: JSON-encoded Address
//
// Registration uses TTL leases: if the server crashes, the lease expires
// and the entry disappears on its own, so no ghost providers linger.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 3 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// opTimeout bounds every etcd round-trip so a dead mirror cannot hang
// server startup.
const opTimeout = 3 * time.Second

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

func key(method string, host message.Address) string {
	return "/suprpc/" + method + "/" + host.String()
}

// Register puts the binding under a TTL lease and starts KeepAlive to
// renew it. The lease ID stays local so several servers can share one
// EtcdRegistry without racing on it.
func (r *EtcdRegistry) Register(method string, host message.Address, ttl int64) error {
	ctx, cancel := opContext()
	defer cancel()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(host)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, key(method, host), string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return err
	}
	// Drain KeepAlive responses so the channel never fills up.
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes the binding, typically during graceful shutdown.
func (r *EtcdRegistry) Deregister(method string, host message.Address) error {
	ctx, cancel := opContext()
	defer cancel()
	_, err := r.client.Delete(ctx, key(method, host))
	return err
}

// Discover returns every provider currently registered for method.
func (r *EtcdRegistry) Discover(method string) ([]message.Address, error) {
	prefix := "/suprpc/" + method + "/"
	ctx, cancel := opContext()
	defer cancel()
	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	hosts := make([]message.Address, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var host message.Address
		if err := json.Unmarshal(kv.Value, &host); err != nil {
			continue // skip malformed entries
		}
		hosts = append(hosts, host)
	}
	return hosts, nil
}

// Watch emits the full provider list for method whenever it changes.
func (r *EtcdRegistry) Watch(method string) <-chan []message.Address {
	ch := make(chan []message.Address, 1)
	prefix := "/suprpc/" + method + "/"

	go func() {
		watchChan := r.client.Watch(context.TODO(), prefix, clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the full list on any change; simpler than folding
			// individual events.
			hosts, _ := r.Discover(method)
			ch <- hosts
		}
	}()

	return ch
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
