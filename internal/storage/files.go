// Package storage holds the peer's two blob stores: the local store for
// files this peer owns and advertises, and the owned store for ciphertext
// held on behalf of other peers.
package storage

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dgraph-io/badger"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// BlobStore is the badger-backed local file store. Values are whole blobs
// keyed by filename; ranged reads serve the chunked download protocol.
type BlobStore struct {
	mu  sync.Mutex
	db  *badger.DB
	ops uint64
}

// OpenBlobStore opens (or creates) the store rooted at dir.
func OpenBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create blob store dir: %w", err)
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store at %s: %w", dir, err)
	}
	return &BlobStore{db: db}, nil
}

func (s *BlobStore) Close() error {
	return s.db.Close()
}

// sanitize rejects names that could escape the namespace.
func sanitize(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
		return "", wire.Errorf(wire.CodeBadRequest, "invalid filename %q", filename)
	}
	return name, nil
}

// Put stores data under filename, replacing any previous blob.
func (s *BlobStore) Put(filename string, data []byte) error {
	name, err := sanitize(filename)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(name), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", name, err)
	}
	s.ops++
	return nil
}

// Get returns the blob stored under filename.
func (s *BlobStore) Get(filename string) ([]byte, error) {
	name, err := sanitize(filename)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var data []byte
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, wire.Errorf(wire.CodeUnknownFile, "file %s not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	s.ops++
	return data, nil
}

// Size returns the byte length of a stored blob.
func (s *BlobStore) Size(filename string) (int64, error) {
	name, err := sanitize(filename)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var size int64
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			size = int64(len(val))
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return 0, wire.Errorf(wire.CodeUnknownFile, "file %s not found", name)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	return size, nil
}

// ReadRange returns length bytes of the blob starting at offset, clipped to
// the blob's end.
func (s *BlobStore) ReadRange(filename string, offset, length int64) ([]byte, error) {
	if offset < 0 || length <= 0 {
		return nil, wire.Errorf(wire.CodeBadRequest, "invalid range offset=%d length=%d", offset, length)
	}
	data, err := s.Get(filename)
	if err != nil {
		return nil, err
	}
	if offset >= int64(len(data)) {
		return nil, wire.Errorf(wire.CodeBadRequest,
			"offset %d past end of %s (%d bytes)", offset, filename, len(data))
	}
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[offset:end], nil
}

// Delete removes a blob, returning its former size.
func (s *BlobStore) Delete(filename string) (int64, error) {
	size, err := s.Size(filename)
	if err != nil {
		return 0, err
	}
	name, _ := sanitize(filename)
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(name))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", name, err)
	}
	s.ops++
	return size, nil
}

// List returns all stored filenames.
func (s *BlobStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return names, nil
}

// Stats is the local-store snapshot for the status endpoint.
type Stats struct {
	FileCount      int    `json:"file_count"`
	TotalBytes     int64  `json:"total_bytes"`
	OperationCount uint64 `json:"operation_count"`
}

func (s *BlobStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	st.OperationCount = s.ops
	_ = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			st.FileCount++
			st.TotalBytes += it.Item().ValueSize()
		}
		return nil
	})
	return st
}
