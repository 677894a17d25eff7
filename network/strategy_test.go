package network

import (
	"fmt"
	"testing"
)

func TestGetStrategy(t *testing.T) {
	for name, want := range map[string]string{
		"":         "*network.None",
		"none":     "*network.None",
		"loopback": "*network.Loopback",
		"veth":     "*network.Veth",
	} {
		s, err := GetStrategy(name)
		if err != nil {
			t.Fatalf("%q: %v", name, err)
		}
		if got := fmt.Sprintf("%T", s); got != want {
			t.Fatalf("%q resolved to %s, want %s", name, got, want)
		}
	}
	if _, err := GetStrategy("tunnel"); err != ErrNotValidStrategyType {
		t.Fatalf("unknown strategy: got %v", err)
	}
}

func TestNoneCreate(t *testing.T) {
	state := &State{}
	if err := (&None{}).Create("abc", 42, state); err != nil {
		t.Fatal(err)
	}
	if state.Strategy != "none" {
		t.Fatalf("strategy %q", state.Strategy)
	}
	if err := (&None{}).Initialize(state); err != nil {
		t.Fatal(err)
	}
	if err := (&None{}).Destroy(state); err != nil {
		t.Fatal(err)
	}
}

func TestVethNames(t *testing.T) {
	host, peer := vethNames("0123456789abcdef")
	if host != "veth0123456h" || peer != "veth0123456c" {
		t.Fatalf("names %q %q", host, peer)
	}
	if len(host) > 15 || len(peer) > 15 {
		t.Fatal("interface name exceeds IFNAMSIZ")
	}
	host, peer = vethNames("ab")
	if host != "vethabh" || peer != "vethabc" {
		t.Fatalf("short id names %q %q", host, peer)
	}
}
