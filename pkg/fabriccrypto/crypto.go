// Package fabriccrypto implements the reversible transform applied to files
// stored on behalf of other peers.
//
// The key is derived deterministically from public inputs (the owner's
// stable identity and the filename), so this is an obfuscation layer, not
// confidentiality: anyone who learns the owner's identity can reverse it.
// It exists so storage peers do not hold readable plaintext, and it is
// documented as demonstration-grade only. Deriving from the identity rather
// than the network address keeps ciphertext recoverable after the owner
// rebinds to a new address.
package fabriccrypto

import (
	"crypto/sha256"
	"fmt"
)

const keySalt = "fabric-owned-file"

// Key is the per-file transform key.
type Key [sha256.Size]byte

// DeriveKey derives the per-file key from the owner's identity and the
// filename.
func DeriveKey(ownerID, filename string) Key {
	return sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", ownerID, filename, keySalt)))
}

// Transform XORs data with the key's repeating keystream. The transform is
// its own inverse: applying it twice with the same key restores the input.
func Transform(data []byte, key Key) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}
