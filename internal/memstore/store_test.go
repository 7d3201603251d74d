package memstore

import "testing"

func TestSetGetDelete(t *testing.T) {
	s := New()

	s.Set("k", "v")
	if v, ok := s.Get("k"); !ok || v != "v" {
		t.Errorf("Get after Set = %v, %v", v, ok)
	}

	s.Set("k", "v2")
	if v, _ := s.Get("k"); v != "v2" {
		t.Errorf("overwrite is not last-write-wins: %v", v)
	}

	if !s.Delete("k") {
		t.Error("Delete of existing key returned false")
	}
	if _, ok := s.Get("k"); ok {
		t.Error("key survives delete")
	}
	if s.Delete("k") {
		t.Error("Delete of missing key returned true")
	}
}

func TestKeysAndStats(t *testing.T) {
	s := New()
	s.Set("a", 1)
	s.Set("b", 2)
	if len(s.Keys()) != 2 || s.Len() != 2 {
		t.Errorf("Keys/Len = %v/%d", s.Keys(), s.Len())
	}
	stats := s.Stats()
	if stats.KeyCount != 2 || stats.OperationCount == 0 {
		t.Errorf("Stats = %+v", stats)
	}
}
