package sched

import (
	"container/heap"
	"time"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
)

// job is one queued task plus its accounting state.
type job struct {
	task        *types.Task
	cb          Callback
	index       int
	seq         uint64
	enqueuedAt  time.Time
	retriesLeft int
	cancelled   bool
}

// readyQueue is a heap whose ordering follows the active discipline. Ties
// always break by enqueue sequence, which tracks the monotonic clock.
type readyQueue struct {
	jobs       []*job
	discipline Discipline
}

func (q *readyQueue) Len() int { return len(q.jobs) }

func (q *readyQueue) Less(i, j int) bool {
	a, b := q.jobs[i], q.jobs[j]
	switch q.discipline {
	case SJF:
		if a.task.EstimatedSec != b.task.EstimatedSec {
			return a.task.EstimatedSec < b.task.EstimatedSec
		}
	case Priority:
		if a.task.Priority != b.task.Priority {
			return a.task.Priority > b.task.Priority
		}
	}
	return a.seq < b.seq
}

func (q *readyQueue) Swap(i, j int) {
	q.jobs[i], q.jobs[j] = q.jobs[j], q.jobs[i]
	q.jobs[i].index = i
	q.jobs[j].index = j
}

func (q *readyQueue) Push(x any) {
	j := x.(*job)
	j.index = len(q.jobs)
	q.jobs = append(q.jobs, j)
}

func (q *readyQueue) Pop() any {
	old := q.jobs
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	q.jobs = old[:n-1]
	return j
}

// setDiscipline switches the ordering and restores the heap property.
func (q *readyQueue) setDiscipline(d Discipline) {
	q.discipline = d
	heap.Init(q)
}
