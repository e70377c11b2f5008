package service

import (
	"strconv"
	"testing"
)

func TestDedupeKeys(t *testing.T) {
	n := &Notifier{seen: make(map[string]struct{})}
	if n.alreadySeen("s1|2026-03-15T14:00:00Z") {
		t.Fatal("fresh key must not be seen")
	}
	n.markSeen("s1|2026-03-15T14:00:00Z")
	if !n.alreadySeen("s1|2026-03-15T14:00:00Z") {
		t.Fatal("marked key must be seen")
	}
	if n.alreadySeen("s1|2026-03-15T15:00:00Z") {
		t.Fatal("next bar is a different key")
	}
}

func TestDedupeEviction(t *testing.T) {
	n := &Notifier{seen: make(map[string]struct{})}
	for i := 0; i < dedupeCap; i++ {
		n.markSeen("k" + strconv.Itoa(i))
	}
	n.markSeen("overflow")
	if !n.alreadySeen("overflow") {
		t.Fatal("overflow key must survive eviction")
	}
	if len(n.seen) > dedupeCap {
		t.Fatalf("seen grew past cap: %d", len(n.seen))
	}
}
