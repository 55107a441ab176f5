package registry

import (
	"testing"
	"time"

	"github.com/sis-shen/suprpc-json/message"
)

// Requires a local etcd at 127.0.0.1:2379; skipped when unreachable.
func TestRegisterAndDiscover(t *testing.T) {
	reg, err := NewEtcdRegistry([]string{"127.0.0.1:2379"})
	if err != nil {
		t.Skipf("etcd not available: %v", err)
	}
	defer reg.Close()

	host1 := message.Address{IP: "127.0.0.1", Port: 8001}
	host2 := message.Address{IP: "127.0.0.1", Port: 8002}

	if err := reg.Register("Echo", host1, 10); err != nil {
		t.Skipf("etcd not available: %v", err)
	}
	if err := reg.Register("Echo", host2, 10); err != nil {
		t.Fatal(err)
	}

	hosts, err := reg.Discover("Echo")
	if err != nil {
		t.Fatal(err)
	}
	if len(hosts) != 2 {
		t.Fatalf("expect 2 hosts, got %d", len(hosts))
	}

	if err := reg.Deregister("Echo", host1); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	hosts, err = reg.Discover("Echo")
	if err != nil {
		t.Fatal(err)
	}
	if len(hosts) != 1 {
		t.Fatalf("expect 1 host after deregister, got %d", len(hosts))
	}
	if !hosts[0].Equal(host2) {
		t.Fatalf("expect %s, got %s", host2, hosts[0])
	}

	reg.Deregister("Echo", host2)
}
