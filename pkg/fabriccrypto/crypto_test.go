package fabriccrypto

import (
	"bytes"
	"testing"
)

func TestTransformSelfInverse(t *testing.T) {
	key := DeriveKey("owner-1", "doc.txt")
	plain := []byte("the quick brown fox jumps over the lazy dog")

	cipher := Transform(plain, key)
	if bytes.Equal(cipher, plain) {
		t.Error("ciphertext should differ from plaintext")
	}
	back := Transform(cipher, key)
	if !bytes.Equal(back, plain) {
		t.Errorf("double transform did not restore input: %q", back)
	}
}

func TestDeriveKeyDistinct(t *testing.T) {
	a := DeriveKey("owner-1", "doc.txt")
	b := DeriveKey("owner-1", "other.txt")
	c := DeriveKey("owner-2", "doc.txt")
	if a == b || a == c {
		t.Error("keys must differ across filenames and owners")
	}
	if a != DeriveKey("owner-1", "doc.txt") {
		t.Error("key derivation must be deterministic")
	}
}
