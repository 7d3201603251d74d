package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peer_identity")

	first, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("first LoadOrCreate failed: %v", err)
	}
	second, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if first != second {
		t.Errorf("identity rotated across restarts: %s != %s", first, second)
	}
}

func TestLoadOrCreateCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peer_identity")
	if err := os.WriteFile(path, []byte("not-a-uuid"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreate(path); err == nil {
		t.Error("expected error for corrupt identity file")
	}
}
