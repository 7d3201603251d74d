// Package cache stores successful task results keyed by a stable
// fingerprint of the task's program, entry point and arguments.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Fingerprint computes the 256-bit digest over program bytes, entry-point
// name and a canonical serialization of the argument list. Identical
// submissions always hash to the same key.
func Fingerprint(program, function string, args []any) string {
	h := sha256.New()
	h.Write([]byte(program))
	h.Write([]byte{0})
	h.Write([]byte(function))
	h.Write([]byte{0})
	canon, err := json.Marshal(args)
	if err != nil {
		// Unserializable args cannot be replayed; fall back to the
		// formatted form so the digest stays stable per submission.
		canon = []byte(fmt.Sprintf("%v", args))
	}
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil))
}

// ResultCache is a TTL+LRU cache of task results. Only successful results
// are stored; expiry is enforced on read and LRU eviction on insert.
type ResultCache struct {
	lru    *lru.LRU[string, any]
	hits   atomic.Uint64
	misses atomic.Uint64
}

func New(capacity int, ttl time.Duration) *ResultCache {
	if capacity <= 0 {
		capacity = 100
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResultCache{lru: lru.NewLRU[string, any](capacity, nil, ttl)}
}

// Get returns the cached result for a fingerprint.
func (c *ResultCache) Get(fingerprint string) (any, bool) {
	v, ok := c.lru.Get(fingerprint)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Put stores a successful result under its fingerprint.
func (c *ResultCache) Put(fingerprint string, result any) {
	c.lru.Add(fingerprint, result)
}

// Stats is the cache snapshot for the status endpoint.
type Stats struct {
	Size    int     `json:"size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

func (c *ResultCache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := Stats{Size: c.lru.Len(), Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}
