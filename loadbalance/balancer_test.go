package loadbalance

import (
	"fmt"
	"testing"

	"github.com/sis-shen/suprpc-json/message"
)

var testHosts = []message.Address{
	{IP: "127.0.0.1", Port: 8001},
	{IP: "127.0.0.1", Port: 8002},
	{IP: "127.0.0.1", Port: 8003},
}

func TestRoundRobinInsertionOrder(t *testing.T) {
	b := NewRoundRobin()

	// Successive picks must walk the list in insertion order, starting
	// at the first host.
	for round := 0; round < 2; round++ {
		for i, want := range testHosts {
			got, err := b.Pick("Echo", testHosts)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(want) {
				t.Fatalf("round %d pick %d: got %s, want %s", round, i, got, want)
			}
		}
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	b := NewRoundRobin()
	if _, err := b.Pick("Echo", nil); err == nil {
		t.Fatal("expect error for empty host list")
	}
}

func TestRandomCoversHosts(t *testing.T) {
	b := NewRandom()
	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		host, err := b.Pick("Echo", testHosts)
		if err != nil {
			t.Fatal(err)
		}
		seen[host.Port] = true
	}
	if len(seen) != len(testHosts) {
		t.Fatalf("random picks covered %d/%d hosts", len(seen), len(testHosts))
	}
}

func TestConsistentHashAffinity(t *testing.T) {
	b := NewConsistentHash()

	// Same key must keep mapping to the same host.
	first, err := b.Pick("user-123", testHosts)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		got, _ := b.Pick("user-123", testHosts)
		if !got.Equal(first) {
			t.Fatalf("same key mapped to different hosts: %s vs %s", got, first)
		}
	}

	// Many different keys should reach at least two hosts.
	seen := map[int]bool{}
	for i := 0; i < 100; i++ {
		host, _ := b.Pick(fmt.Sprintf("key-%d", i), testHosts)
		seen[host.Port] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 distinct hosts, got %d", len(seen))
	}
}

func TestConsistentHashRebuildOnChange(t *testing.T) {
	b := NewConsistentHash()
	if _, err := b.Pick("k", testHosts); err != nil {
		t.Fatal(err)
	}

	shrunk := testHosts[:1]
	got, err := b.Pick("k", shrunk)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(shrunk[0]) {
		t.Fatalf("after shrink every key must map to the sole host, got %s", got)
	}
}
