// Package quota enforces per-peer admission limits: a sliding-window count
// of compute submissions plus cumulative key and storage-byte counters.
package quota

import (
	"sync"
	"time"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// Ledger tracks quota consumption. All checks happen at admission time.
type Ledger struct {
	mu sync.Mutex

	maxCPUTasks   int
	maxMemoryKeys int
	maxStorage    int64
	window        time.Duration

	taskTimes    []time.Time
	storageBytes int64

	now func() time.Time
}

func New(maxCPUTasks, maxMemoryKeys int, maxStorage int64, window time.Duration) *Ledger {
	return &Ledger{
		maxCPUTasks:   maxCPUTasks,
		maxMemoryKeys: maxMemoryKeys,
		maxStorage:    maxStorage,
		window:        window,
		now:           time.Now,
	}
}

// AdmitTask records one compute submission if the sliding window has room.
func (l *Ledger) AdmitTask() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.pruneLocked(now)
	if len(l.taskTimes) >= l.maxCPUTasks {
		return wire.Errorf(wire.CodeQuotaExceeded,
			"cpu task quota exceeded (%d per %s)", l.maxCPUTasks, l.window)
	}
	l.taskTimes = append(l.taskTimes, now)
	return nil
}

// CheckKeys admits a new memory key given the store's current key count.
func (l *Ledger) CheckKeys(currentKeys int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if currentKeys >= l.maxMemoryKeys {
		return wire.Errorf(wire.CodeQuotaExceeded,
			"memory quota exceeded (max %d keys)", l.maxMemoryKeys)
	}
	return nil
}

// ReserveStorage accounts for n new bytes, rejecting if the limit would be
// passed.
func (l *Ledger) ReserveStorage(n int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.storageBytes+n > l.maxStorage {
		return wire.Errorf(wire.CodeQuotaExceeded,
			"storage quota exceeded (max %d bytes)", l.maxStorage)
	}
	l.storageBytes += n
	return nil
}

// ReleaseStorage returns n bytes to the quota after a delete.
func (l *Ledger) ReleaseStorage(n int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.storageBytes -= n
	if l.storageBytes < 0 {
		l.storageBytes = 0
	}
}

func (l *Ledger) pruneLocked(now time.Time) {
	cut := 0
	for cut < len(l.taskTimes) && now.Sub(l.taskTimes[cut]) >= l.window {
		cut++
	}
	l.taskTimes = l.taskTimes[cut:]
}

// Usage is the ledger snapshot for the status endpoint.
type Usage struct {
	CPUTasksUsed  int     `json:"cpu_tasks_used"`
	CPUTasksLimit int     `json:"cpu_tasks_limit"`
	WindowSeconds float64 `json:"window_seconds"`
	MemoryKeyMax  int     `json:"memory_keys_limit"`
	StorageUsed   int64   `json:"storage_used_bytes"`
	StorageLimit  int64   `json:"storage_limit_bytes"`
}

func (l *Ledger) Usage() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.now())
	return Usage{
		CPUTasksUsed:  len(l.taskTimes),
		CPUTasksLimit: l.maxCPUTasks,
		WindowSeconds: l.window.Seconds(),
		MemoryKeyMax:  l.maxMemoryKeys,
		StorageUsed:   l.storageBytes,
		StorageLimit:  l.maxStorage,
	}
}
