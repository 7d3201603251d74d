package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// OwnerRef identifies the owner a stored ciphertext belongs to.
type OwnerRef struct {
	ID   string
	Addr types.Addr
}

// idPrefixLen is how much of the owner id participates in the directory
// name.
const idPrefixLen = 8

// OwnedStore holds ciphertext stored on behalf of other peers. Each owner
// gets a private subdirectory named <host>_<port>_<idPrefix> with 0700
// permissions; files inside are 0600.
type OwnedStore struct {
	mu   sync.Mutex
	base string
	// filename -> owner; reconstructed from disk on restart.
	owners map[string]OwnerRef
}

// OpenOwnedStore opens the store rooted at dir and reconstructs ownership
// metadata from the directory layout.
func OpenOwnedStore(dir string) (*OwnedStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create owned storage dir: %w", err)
	}
	s := &OwnedStore{base: dir, owners: make(map[string]OwnerRef)}
	if err := s.reconstruct(); err != nil {
		return nil, err
	}
	return s, nil
}

func ownerDirName(ref OwnerRef) string {
	prefix := ref.ID
	if len(prefix) > idPrefixLen {
		prefix = prefix[:idPrefixLen]
	}
	return fmt.Sprintf("%s_%d_%s", ref.Addr.Host, ref.Addr.Port, prefix)
}

// parseOwnerDir reverses ownerDirName. The id prefix alone cannot rebuild
// the full identity, so reconstructed refs carry the prefix; verification
// against the tracker completes the check.
func parseOwnerDir(name string) (OwnerRef, bool) {
	parts := strings.Split(name, "_")
	if len(parts) < 3 {
		return OwnerRef{}, false
	}
	prefix := parts[len(parts)-1]
	port, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return OwnerRef{}, false
	}
	host := strings.Join(parts[:len(parts)-2], "_")
	return OwnerRef{ID: prefix, Addr: types.Addr{Host: host, Port: port}}, true
}

func (s *OwnedStore) reconstruct() error {
	entries, err := os.ReadDir(s.base)
	if err != nil {
		return fmt.Errorf("failed to scan owned storage: %w", err)
	}
	for _, dir := range entries {
		if !dir.IsDir() {
			continue
		}
		ref, ok := parseOwnerDir(dir.Name())
		if !ok {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.base, dir.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.Type().IsRegular() {
				s.owners[f.Name()] = ref
			}
		}
	}
	return nil
}

// Store writes ciphertext for (owner, filename).
func (s *OwnedStore) Store(owner OwnerRef, filename string, ciphertext []byte) error {
	name, err := sanitize(filename)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := filepath.Join(s.base, ownerDirName(owner))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create owner dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, ciphertext, 0o600); err != nil {
		return fmt.Errorf("failed to write owned file %s: %w", name, err)
	}
	s.owners[name] = owner
	return nil
}

// Owner returns the recorded owner of filename.
func (s *OwnedStore) Owner(filename string) (OwnerRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.owners[filename]
	return ref, ok
}

// Holds reports whether filename lives in owned storage; such blobs must
// not be served through the public file operations.
func (s *OwnedStore) Holds(filename string) bool {
	_, ok := s.Owner(filename)
	return ok
}

// Load returns the ciphertext for filename.
func (s *OwnedStore) Load(filename string) ([]byte, error) {
	name, err := sanitize(filename)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.owners[name]
	if !ok {
		return nil, wire.Errorf(wire.CodeUnknownFile, "owned file %s not found", name)
	}
	data, err := os.ReadFile(filepath.Join(s.base, ownerDirName(ref), name))
	if err != nil {
		return nil, fmt.Errorf("failed to read owned file %s: %w", name, err)
	}
	return data, nil
}

// Delete removes the ciphertext, returning its former size.
func (s *OwnedStore) Delete(filename string) (int64, error) {
	name, err := sanitize(filename)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.owners[name]
	if !ok {
		return 0, wire.Errorf(wire.CodeUnknownFile, "owned file %s not found", name)
	}
	path := filepath.Join(s.base, ownerDirName(ref), name)
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat owned file %s: %w", name, err)
	}
	if err := os.Remove(path); err != nil {
		return 0, fmt.Errorf("failed to delete owned file %s: %w", name, err)
	}
	delete(s.owners, name)
	return info.Size(), nil
}

// Migrate renames an owner's directory after an address change; metadata is
// rewritten to the new address.
func (s *OwnedStore) Migrate(from, to OwnerRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldDir := filepath.Join(s.base, ownerDirName(from))
	newDir := filepath.Join(s.base, ownerDirName(to))
	if oldDir == newDir {
		return nil
	}
	if _, err := os.Stat(oldDir); err != nil {
		return nil // nothing stored under the old address
	}
	if err := os.Rename(oldDir, newDir); err != nil {
		return fmt.Errorf("failed to migrate owner dir: %w", err)
	}
	for name, ref := range s.owners {
		if ref.Addr == from.Addr && ref.ID == from.ID {
			s.owners[name] = to
		}
	}
	return nil
}

// Files lists every filename held, with its owner.
func (s *OwnedStore) Files() map[string]OwnerRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]OwnerRef, len(s.owners))
	for k, v := range s.owners {
		out[k] = v
	}
	return out
}

// OwnedStats is the owned-store snapshot for the status endpoint.
type OwnedStats struct {
	FileCount int `json:"file_count"`
	Owners    int `json:"owners"`
}

func (s *OwnedStore) Stats() OwnedStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	owners := make(map[string]struct{})
	for _, ref := range s.owners {
		owners[ownerDirName(ref)] = struct{}{}
	}
	return OwnedStats{FileCount: len(s.owners), Owners: len(owners)}
}
