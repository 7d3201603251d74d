// Package history keeps a bounded log of completed tasks and computes
// statistics over the retained records on demand.
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
)

// Record is one immutable entry for a completed task.
type Record struct {
	TaskID     string            `json:"task_id"`
	TaskType   string            `json:"task_type"`
	Status     types.TaskStatus  `json:"status"`
	Role       types.HistoryRole `json:"role"`
	Timestamp  time.Time         `json:"timestamp"`
	ExecSec    float64           `json:"execution_time"`
	Error      string            `json:"error,omitempty"`
	Result     string            `json:"result,omitempty"`
	ExecutedBy string            `json:"executed_by,omitempty"`
	Requester  string            `json:"requested_by,omitempty"`
	CacheHit   bool              `json:"cache_hit,omitempty"`
}

// Log is a fixed-capacity ring of records. Appends never fail; the oldest
// record is dropped once the ring is full.
type Log struct {
	mu    sync.Mutex
	ring  []Record
	head  int
	count int
	byID  map[string]Record
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Log{
		ring: make([]Record, capacity),
		byID: make(map[string]Record),
	}
}

// Append records one completed task.
func (l *Log) Append(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == len(l.ring) {
		evicted := l.ring[l.head]
		if cur, ok := l.byID[evicted.TaskID]; ok && cur.Timestamp.Equal(evicted.Timestamp) {
			delete(l.byID, evicted.TaskID)
		}
	}
	l.ring[l.head] = rec
	l.head = (l.head + 1) % len(l.ring)
	if l.count < len(l.ring) {
		l.count++
	}
	l.byID[rec.TaskID] = rec
}

// Recent returns up to limit most recent records, oldest first, optionally
// filtered by task type.
func (l *Log) Recent(limit int, taskType string) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > l.count {
		limit = l.count
	}
	out := make([]Record, 0, limit)
	start := l.head - l.count
	for i := 0; i < l.count; i++ {
		idx := (start + i + len(l.ring)) % len(l.ring)
		rec := l.ring[idx]
		if taskType != "" && rec.TaskType != taskType {
			continue
		}
		out = append(out, rec)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Get returns the retained record for a task id.
func (l *Log) Get(taskID string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.byID[taskID]
	return rec, ok
}

// Stats aggregates the retained buffer.
type Stats struct {
	Total       int     `json:"total_tasks"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	Cancelled   int     `json:"cancelled"`
	TimedOut    int     `json:"timed_out"`
	SuccessRate float64 `json:"success_rate"`
	AvgExecSec  float64 `json:"average_execution_time"`
}

func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	var s Stats
	s.Total = l.count
	if l.count == 0 {
		return s
	}
	var execSum float64
	var execN int
	start := l.head - l.count
	for i := 0; i < l.count; i++ {
		rec := l.ring[(start+i+len(l.ring))%len(l.ring)]
		switch rec.Status {
		case types.TaskCompleted:
			s.Successful++
		case types.TaskFailed:
			s.Failed++
		case types.TaskCancelled:
			s.Cancelled++
		case types.TaskTimedOut:
			s.TimedOut++
		}
		if rec.ExecSec > 0 {
			execSum += rec.ExecSec
			execN++
		}
	}
	s.SuccessRate = float64(s.Successful) / float64(s.Total)
	if execN > 0 {
		s.AvgExecSec = execSum / float64(execN)
	}
	return s
}

// Summarize renders a result value into the truncated form stored in a
// record.
func Summarize(v any) string {
	if v == nil {
		return ""
	}
	s := fmt.Sprintf("%v", v)
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
