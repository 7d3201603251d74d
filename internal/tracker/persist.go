package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
)

// persistedEntry is the on-disk form of one ownership record. The legacy
// document stored owner_address and storage only; owner_id was introduced
// with stable identities and storage_ids alongside it.
type persistedEntry struct {
	OwnerID    string       `json:"owner_id,omitempty"`
	OwnerAddr  types.Addr   `json:"owner_address"`
	Storage    []types.Addr `json:"storage"`
	StorageIDs []string     `json:"storage_ids,omitempty"`
}

// persistLocked writes the owned-file registry as one JSON document,
// atomically: the document goes to a temp file in the same directory and is
// renamed over the target. Called with the registry lock held so the image
// never trails by more than one mutation.
func (r *Registry) persistLocked() error {
	if r.path == "" {
		return nil
	}
	doc := make(map[string]persistedEntry, len(r.owned))
	for filename, entry := range r.owned {
		doc[filename] = persistedEntry{
			OwnerID:    entry.OwnerID,
			OwnerAddr:  entry.OwnerAddr,
			Storage:    entry.Storage,
			StorageIDs: entry.StorageIDs,
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode owned registry: %w", err)
	}
	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".owned_files-*")
	if err != nil {
		return fmt.Errorf("failed to create temp registry file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to replace registry: %w", err)
	}
	return nil
}

// loadOwned reads the registry document, accepting both the current form
// and the legacy one. A legacy entry has no owner_id; a placeholder keyed
// by the owner's port is synthesized so a later REGISTER from that port can
// upgrade it in place.
func (r *Registry) loadOwned() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read owned registry: %w", err)
	}
	var doc map[string]persistedEntry
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("owned registry %s is corrupt: %w", r.path, err)
	}
	normalized := false
	for filename, pe := range doc {
		entry := &types.OwnedFileEntry{
			OwnerID:    pe.OwnerID,
			OwnerAddr:  pe.OwnerAddr,
			Storage:    pe.Storage,
			StorageIDs: pe.StorageIDs,
		}
		if entry.OwnerID == "" {
			entry.OwnerID = fmt.Sprintf("legacy:%d", entry.OwnerAddr.Port)
			normalized = true
			r.log.Info("normalized legacy owned-file entry",
				zap.String("filename", filename),
				zap.String("placeholder", entry.OwnerID))
		}
		if len(entry.StorageIDs) < len(entry.Storage) {
			ids := make([]string, len(entry.Storage))
			copy(ids, entry.StorageIDs)
			entry.StorageIDs = ids
		}
		r.owned[filename] = entry
	}
	if normalized {
		return r.persistLocked()
	}
	return nil
}
