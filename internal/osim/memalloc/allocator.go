// Package memalloc simulates a contiguous-block memory arena with
// selectable fit disciplines and eager coalescing of free neighbours.
package memalloc

import (
	"fmt"
	"sync"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// Algorithm selects how the free list is scanned.
type Algorithm string

const (
	FirstFit Algorithm = "FIRST_FIT"
	BestFit  Algorithm = "BEST_FIT"
	WorstFit Algorithm = "WORST_FIT"
	NextFit  Algorithm = "NEXT_FIT"
)

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case FirstFit, BestFit, WorstFit, NextFit:
		return Algorithm(s), nil
	}
	return "", fmt.Errorf("unknown allocation algorithm %q", s)
}

type block struct {
	start int64
	size  int64
	pid   string // empty means free
}

// Allocator manages one arena. Blocks are kept address-ordered; adjacent
// free blocks are merged on every deallocation.
type Allocator struct {
	mu     sync.Mutex
	total  int64
	algo   Algorithm
	blocks []*block
	owner  map[string]*block // pid -> its block
	cursor int               // rotating start index for next-fit
}

func New(total int64, algo Algorithm) *Allocator {
	return &Allocator{
		total:  total,
		algo:   algo,
		blocks: []*block{{start: 0, size: total}},
		owner:  make(map[string]*block),
	}
}

// Allocate reserves size bytes for pid and returns the block offset. A pid
// holds at most one block at a time.
func (a *Allocator) Allocate(pid string, size int64) (int64, error) {
	if size <= 0 {
		return 0, wire.Errorf(wire.CodeBadRequest, "allocation size must be positive, got %d", size)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.owner[pid]; ok {
		return 0, wire.Errorf(wire.CodeBadRequest, "process %s already holds a block", pid)
	}
	idx := a.findLocked(size)
	if idx < 0 {
		return 0, wire.Errorf(wire.CodeOutOfMemory, "no free block of %d bytes", size)
	}
	b := a.blocks[idx]
	if b.size > size {
		rest := &block{start: b.start + size, size: b.size - size}
		b.size = size
		a.blocks = append(a.blocks[:idx+1], append([]*block{rest}, a.blocks[idx+1:]...)...)
	}
	b.pid = pid
	a.owner[pid] = b
	if a.algo == NextFit {
		a.cursor = (idx + 1) % len(a.blocks)
	}
	return b.start, nil
}

// Deallocate releases pid's block and coalesces adjacent free blocks.
func (a *Allocator) Deallocate(pid string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.owner[pid]
	if !ok {
		return wire.Errorf(wire.CodeUnknownPID, "process %s holds no block", pid)
	}
	b.pid = ""
	delete(a.owner, pid)
	a.coalesceLocked()
	return nil
}

func (a *Allocator) findLocked(size int64) int {
	switch a.algo {
	case BestFit:
		best := -1
		for i, b := range a.blocks {
			if b.pid == "" && b.size >= size && (best < 0 || b.size < a.blocks[best].size) {
				best = i
			}
		}
		return best
	case WorstFit:
		worst := -1
		for i, b := range a.blocks {
			if b.pid == "" && b.size >= size && (worst < 0 || b.size > a.blocks[worst].size) {
				worst = i
			}
		}
		return worst
	case NextFit:
		n := len(a.blocks)
		for off := 0; off < n; off++ {
			i := (a.cursor + off) % n
			if b := a.blocks[i]; b.pid == "" && b.size >= size {
				return i
			}
		}
		return -1
	default: // FirstFit
		for i, b := range a.blocks {
			if b.pid == "" && b.size >= size {
				return i
			}
		}
		return -1
	}
}

func (a *Allocator) coalesceLocked() {
	out := a.blocks[:0]
	for _, b := range a.blocks {
		if len(out) > 0 {
			last := out[len(out)-1]
			if last.pid == "" && b.pid == "" && last.start+last.size == b.start {
				last.size += b.size
				continue
			}
		}
		out = append(out, b)
	}
	a.blocks = out
	if a.cursor >= len(a.blocks) {
		a.cursor = 0
	}
}

// FragInfo reports free-space fragmentation: the share of free bytes not in
// the largest free block.
type FragInfo struct {
	Total          int64   `json:"total_bytes"`
	Allocated      int64   `json:"allocated_bytes"`
	Free           int64   `json:"free_bytes"`
	LargestFree    int64   `json:"largest_free_block"`
	FreeBlocks     int     `json:"free_blocks"`
	Fragmentation  float64 `json:"fragmentation"`
	Algorithm      string  `json:"algorithm"`
	AllocatedProcs int     `json:"allocated_processes"`
}

func (a *Allocator) Fragmentation() FragInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	info := FragInfo{Total: a.total, Algorithm: string(a.algo), AllocatedProcs: len(a.owner)}
	for _, b := range a.blocks {
		if b.pid == "" {
			info.Free += b.size
			info.FreeBlocks++
			if b.size > info.LargestFree {
				info.LargestFree = b.size
			}
		} else {
			info.Allocated += b.size
		}
	}
	if info.Free > 0 {
		info.Fragmentation = 1.0 - float64(info.LargestFree)/float64(info.Free)
	}
	return info
}

// adjacentFree reports whether any two neighbouring blocks are both free;
// it exists for invariant checking in tests.
func (a *Allocator) adjacentFree() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 1; i < len(a.blocks); i++ {
		if a.blocks[i-1].pid == "" && a.blocks[i].pid == "" {
			return true
		}
	}
	return false
}
