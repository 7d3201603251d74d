// Package tracker implements the coordination service: the peer directory,
// the file-advertisement directory and the persistent owned-file registry.
package tracker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// Registry is the tracker's shared state. One lock covers all three tables;
// the owned-registry persistence write happens inside the lock so the
// on-disk image never trails by more than one mutation.
type Registry struct {
	mu    sync.Mutex
	peers map[string]*types.PeerRecord
	files map[string]map[string]struct{} // filename -> advertising identities
	owned map[string]*types.OwnedFileEntry

	path        string // owned registry file; empty disables persistence
	peerTimeout time.Duration
	log         *zap.Logger
	now         func() time.Time
}

func NewRegistry(path string, peerTimeout time.Duration, log *zap.Logger) (*Registry, error) {
	r := &Registry{
		peers:       make(map[string]*types.PeerRecord),
		files:       make(map[string]map[string]struct{}),
		owned:       make(map[string]*types.OwnedFileEntry),
		path:        path,
		peerTimeout: peerTimeout,
		log:         log,
		now:         time.Now,
	}
	if path != "" {
		if err := r.loadOwned(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register upserts a peer record. An identity re-registering from a new
// address keeps its record; every owned-file entry it owns has its
// last-known owner address rewritten, and legacy placeholder owners whose
// port matches the registrant are upgraded to the stable identity.
func (r *Registry) Register(identity string, addr types.Addr, load float64) error {
	if identity == "" {
		return wire.Errorf(wire.CodeBadRequest, "identity required for registration")
	}
	if addr.Port == 0 {
		return wire.Errorf(wire.CodeBadRequest, "address required for registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	rec, ok := r.peers[identity]
	if ok {
		if rec.Addr != addr {
			r.log.Info("peer address changed",
				zap.String("identity", identity),
				zap.String("old", rec.Addr.String()),
				zap.String("new", addr.String()))
		}
		rec.Addr = addr
		rec.Load = load
		rec.LastSeen = now
	} else {
		r.peers[identity] = &types.PeerRecord{
			Identity:     identity,
			Addr:         addr,
			Load:         load,
			LastSeen:     now,
			RegisteredAt: now,
		}
		r.log.Info("peer registered",
			zap.String("identity", identity), zap.String("address", addr.String()))
	}

	dirty := false
	legacyID := fmt.Sprintf("legacy:%d", addr.Port)
	for filename, entry := range r.owned {
		if entry.OwnerID == legacyID {
			r.log.Info("upgrading legacy owned-file entry",
				zap.String("filename", filename), zap.String("owner", identity))
			entry.OwnerID = identity
			dirty = true
		}
		if entry.OwnerID == identity && entry.OwnerAddr != addr {
			entry.OwnerAddr = addr
			dirty = true
		}
	}
	if dirty {
		if err := r.persistLocked(); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes a peer and its advertisements. Owned-file entries are
// untouched: ownership survives peer absence.
func (r *Registry) Unregister(identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[identity]; !ok {
		return wire.Errorf(wire.CodeBadRequest, "peer %s not registered", identity)
	}
	delete(r.peers, identity)
	r.dropAdvertsLocked(identity)
	r.log.Info("peer unregistered", zap.String("identity", identity))
	return nil
}

// UpdateLoad refreshes a peer's load and heartbeat timestamp.
func (r *Registry) UpdateLoad(identity string, load float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.peers[identity]
	if !ok {
		return wire.Errorf(wire.CodeBadRequest, "peer %s not registered", identity)
	}
	rec.Load = load
	rec.LastSeen = r.now()
	return nil
}

// BestPeer returns the live peer with minimum load, optionally excluding
// the requester. Ties break by earliest registration time.
func (r *Registry) BestPeer(requester string, excludeSelf bool) (types.PeerRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var best *types.PeerRecord
	for id, rec := range r.peers {
		if excludeSelf && id == requester {
			continue
		}
		if !rec.Alive(now, r.peerTimeout) {
			continue
		}
		if best == nil ||
			rec.Load < best.Load ||
			(rec.Load == best.Load && rec.RegisteredAt.Before(best.RegisteredAt)) {
			best = rec
		}
	}
	if best == nil {
		return types.PeerRecord{}, false
	}
	return *best, true
}

// RegisterFile records that a peer advertises holding filename.
func (r *Registry) RegisterFile(identity, filename string) error {
	if filename == "" {
		return wire.Errorf(wire.CodeBadRequest, "filename required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[identity]; !ok {
		return wire.Errorf(wire.CodeBadRequest, "peer %s not registered", identity)
	}
	if r.files[filename] == nil {
		r.files[filename] = make(map[string]struct{})
	}
	r.files[filename][identity] = struct{}{}
	return nil
}

// UnregisterFile drops one peer's advertisement of filename.
func (r *Registry) UnregisterFile(identity, filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.files[filename]
	if !ok {
		return nil
	}
	delete(set, identity)
	if len(set) == 0 {
		delete(r.files, filename)
	}
	return nil
}

// FindFile returns the addresses of live peers advertising filename.
func (r *Registry) FindFile(filename string) []types.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var addrs []types.Addr
	for identity := range r.files[filename] {
		rec, ok := r.peers[identity]
		if ok && rec.Alive(now, r.peerTimeout) {
			addrs = append(addrs, rec.Addr)
		}
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].String() < addrs[j].String() })
	return addrs
}

// RegisterOwnedFile creates or extends the ownership record for filename
// and persists the registry.
func (r *Registry) RegisterOwnedFile(filename, ownerID string, ownerAddr types.Addr,
	storageID string, storageAddr types.Addr) error {
	if filename == "" || ownerID == "" {
		return wire.Errorf(wire.CodeBadRequest, "filename and owner_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.owned[filename]
	if !ok {
		entry = &types.OwnedFileEntry{OwnerID: ownerID, OwnerAddr: ownerAddr}
		r.owned[filename] = entry
	} else if entry.OwnerID != ownerID {
		return wire.Errorf(wire.CodeNotOwner,
			"file %s is already owned by another peer", filename)
	} else {
		entry.OwnerAddr = ownerAddr
	}
	if !entry.HasStorage(storageAddr) {
		entry.Storage = append(entry.Storage, storageAddr)
		entry.StorageIDs = append(entry.StorageIDs, storageID)
	}
	return r.persistLocked()
}

// FindOwnedFile authorizes requesterID against the entry's owner and
// returns the storage addresses. Storage peers that are currently
// registered resolve to their live address; others fall back to the
// persisted one.
func (r *Registry) FindOwnedFile(filename, requesterID string) ([]types.Addr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.owned[filename]
	if !ok {
		return nil, wire.Errorf(wire.CodeUnknownFile, "no ownership record for %s", filename)
	}
	if entry.OwnerID != requesterID {
		return nil, wire.Errorf(wire.CodeNotOwner,
			"peer %s is not the owner of %s", requesterID, filename)
	}
	addrs := make([]types.Addr, 0, len(entry.Storage))
	for i, addr := range entry.Storage {
		if i < len(entry.StorageIDs) && entry.StorageIDs[i] != "" {
			if rec, ok := r.peers[entry.StorageIDs[i]]; ok {
				addrs = append(addrs, rec.Addr)
				continue
			}
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// DeleteOwnedFile removes the ownership record after the same owner
// authorization as FindOwnedFile.
func (r *Registry) DeleteOwnedFile(filename, requesterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.owned[filename]
	if !ok {
		return wire.Errorf(wire.CodeUnknownFile, "no ownership record for %s", filename)
	}
	if entry.OwnerID != requesterID {
		return wire.Errorf(wire.CodeNotOwner,
			"peer %s is not the owner of %s", requesterID, filename)
	}
	delete(r.owned, filename)
	return r.persistLocked()
}

// Evict removes peers whose heartbeat aged out, along with their
// advertisements. Ownership records survive eviction.
func (r *Registry) Evict() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var dead []string
	for id, rec := range r.peers {
		if !rec.Alive(now, r.peerTimeout) {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		delete(r.peers, id)
		r.dropAdvertsLocked(id)
		r.log.Info("evicted stale peer", zap.String("identity", id))
	}
	return len(dead)
}

func (r *Registry) dropAdvertsLocked(identity string) {
	for filename, set := range r.files {
		delete(set, identity)
		if len(set) == 0 {
			delete(r.files, filename)
		}
	}
}

// Snapshot returns the peer directory and entry counts for STATUS.
func (r *Registry) Snapshot() ([]types.PeerRecord, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := make([]types.PeerRecord, 0, len(r.peers))
	for _, rec := range r.peers {
		peers = append(peers, *rec)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].Identity < peers[j].Identity })
	return peers, len(r.owned)
}

// OwnedEntry returns a copy of one ownership record.
func (r *Registry) OwnedEntry(filename string) (types.OwnedFileEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.owned[filename]
	if !ok {
		return types.OwnedFileEntry{}, false
	}
	cp := *entry
	cp.Storage = append([]types.Addr(nil), entry.Storage...)
	cp.StorageIDs = append([]string(nil), entry.StorageIDs...)
	return cp, true
}
