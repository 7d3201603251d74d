package cache

import (
	"testing"
	"time"
)

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("prog", "f", []any{1.0, "x"})
	b := Fingerprint("prog", "f", []any{1.0, "x"})
	if a != b {
		t.Error("identical submissions must fingerprint identically")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
	if a == Fingerprint("prog", "f", []any{2.0, "x"}) {
		t.Error("different args must fingerprint differently")
	}
	if a == Fingerprint("prog", "g", []any{1.0, "x"}) {
		t.Error("different entry points must fingerprint differently")
	}
	if a == Fingerprint("prog2", "f", []any{1.0, "x"}) {
		t.Error("different programs must fingerprint differently")
	}
}

func TestHitMissAndStats(t *testing.T) {
	c := New(10, time.Hour)
	fp := Fingerprint("p", "f", nil)

	if _, ok := c.Get(fp); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	c.Put(fp, 49.0)
	v, ok := c.Get(fp)
	if !ok || v != 49.0 {
		t.Fatalf("Get after Put = %v, %v", v, ok)
	}
	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Size != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(10, 50*time.Millisecond)
	fp := Fingerprint("p", "f", nil)
	c.Put(fp, "v")
	time.Sleep(120 * time.Millisecond)
	if _, ok := c.Get(fp); ok {
		t.Error("entry survived its TTL")
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(2, time.Hour)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // refresh a
	c.Put("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry survived insert-when-full")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("recently used entry was evicted")
	}
}
