// Package sched runs the peer's task scheduler: a single dispatch worker
// draining a ready queue under one of four disciplines. Execution is
// non-preemptive; cancellation only affects queued tasks, and a per-task
// timeout abandons the measurement of a running callable without
// terminating it.
package sched

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/osim/proctable"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/osim/resource"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// Discipline selects the ready-queue ordering.
type Discipline string

const (
	FCFS       Discipline = "FCFS"
	SJF        Discipline = "SJF"
	Priority   Discipline = "PRIORITY"
	RoundRobin Discipline = "RR"
)

// ParseDiscipline validates a discipline name.
func ParseDiscipline(s string) (Discipline, error) {
	switch Discipline(s) {
	case FCFS, SJF, Priority, RoundRobin:
		return Discipline(s), nil
	}
	return "", fmt.Errorf("unknown scheduling algorithm %q", s)
}

// Executor runs one task's callable.
type Executor interface {
	Execute(ctx context.Context, task *types.Task) (any, error)
}

// Result is delivered to the submitter's callback when a task leaves the
// scheduler.
type Result struct {
	TaskID     string
	Status     types.TaskStatus
	Value      any
	Err        error
	Exec       time.Duration
	Wait       time.Duration
	Turnaround time.Duration
}

// Callback receives a task's final result.
type Callback func(Result)

// ErrTimedOut marks a task whose callable outlived its budget.
var ErrTimedOut = errors.New("task execution timed out")

// Scheduler owns the ready queue and the dispatch worker.
type Scheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   readyQueue
	byID    map[string]*job
	running map[string]bool
	stopped bool
	seq     uint64

	procs   *proctable.Table
	arbiter *resource.Arbiter
	exec    Executor
	log     *zap.Logger

	defaultTimeout time.Duration
	quantum        time.Duration
	retryDelay     time.Duration

	stats   statCounters
	started time.Time
}

type statCounters struct {
	submitted     uint64
	completed     uint64
	failed        uint64
	cancelled     uint64
	timedOut      uint64
	retries       uint64
	quanta        uint64
	waitSum       time.Duration
	turnaroundSum time.Duration
	execSum       time.Duration
	finished      uint64
}

// Option configures optional scheduler knobs.
type Option func(*Scheduler)

// WithRetryDelay sets the base delay before a failed task re-enters the
// queue.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.retryDelay = d }
}

// WithQuantum sets the round-robin accounting quantum.
func WithQuantum(d time.Duration) Option {
	return func(s *Scheduler) { s.quantum = d }
}

func New(d Discipline, exec Executor, procs *proctable.Table, arbiter *resource.Arbiter,
	defaultTimeout time.Duration, log *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		byID:           make(map[string]*job),
		running:        make(map[string]bool),
		procs:          procs,
		arbiter:        arbiter,
		exec:           exec,
		log:            log,
		defaultTimeout: defaultTimeout,
		quantum:        time.Second,
		retryDelay:     500 * time.Millisecond,
		started:        time.Now(),
	}
	s.queue.discipline = d
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the dispatch worker.
func (s *Scheduler) Start() {
	go s.loop()
}

// Stop wakes the worker and lets it drain out.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Submit enqueues a task. The callback fires exactly once with the task's
// final result.
func (s *Scheduler) Submit(task *types.Task, cb Callback) {
	if task.SubmittedAt.IsZero() {
		task.SubmittedAt = time.Now()
	}
	s.mu.Lock()
	s.seq++
	j := &job{
		task:        task,
		cb:          cb,
		seq:         s.seq,
		enqueuedAt:  time.Now(),
		retriesLeft: task.MaxRetries,
	}
	s.byID[task.ID] = j
	heap.Push(&s.queue, j)
	s.stats.submitted++
	s.mu.Unlock()
	s.cond.Signal()
}

// Cancel marks a task. Queued tasks are dropped at their turn; running
// tasks record the request but keep executing. The returned state is one of
// "cancelled", "running" or "unknown".
func (s *Scheduler) Cancel(taskID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[taskID] {
		return "running"
	}
	j, ok := s.byID[taskID]
	if !ok {
		return "unknown"
	}
	j.cancelled = true
	return "cancelled"
}

// SetDiscipline switches the queue ordering at runtime.
func (s *Scheduler) SetDiscipline(d Discipline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.setDiscipline(d)
}

// Discipline returns the active ordering.
func (s *Scheduler) Discipline() Discipline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.discipline
}

// Load is the scheduler's contribution to the peer's reported load: queue
// length plus a small weight for the running task.
func (s *Scheduler) Load() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.queue.Len()) + 0.5*float64(len(s.running))
}

func (s *Scheduler) loop() {
	for {
		s.mu.Lock()
		for s.queue.Len() == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped {
			s.mu.Unlock()
			return
		}
		j := heap.Pop(&s.queue).(*job)
		if j.cancelled {
			delete(s.byID, j.task.ID)
			s.stats.cancelled++
			s.mu.Unlock()
			s.deliver(j, Result{
				TaskID: j.task.ID,
				Status: types.TaskCancelled,
				Err:    wire.Errorf(wire.CodeCancelled, "task %s cancelled before execution", j.task.ID),
			})
			continue
		}
		s.running[j.task.ID] = true
		delete(s.byID, j.task.ID)
		s.mu.Unlock()

		res := s.execute(j)

		s.mu.Lock()
		delete(s.running, j.task.ID)
		retry := res.Status != types.TaskCompleted && res.Status != types.TaskCancelled && j.retriesLeft > 0
		if retry {
			j.retriesLeft--
			s.stats.retries++
		} else {
			s.recordLocked(res)
		}
		s.mu.Unlock()

		if retry {
			s.requeueLater(j)
			continue
		}
		s.deliver(j, res)
	}
}

// requeueLater re-enqueues a failed job after the retry delay without
// blocking the dispatch worker.
func (s *Scheduler) requeueLater(j *job) {
	attempt := j.task.MaxRetries - j.retriesLeft
	delay := s.retryDelay * time.Duration(1<<uint(attempt-1))
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.seq++
		j.seq = s.seq
		j.enqueuedAt = time.Now()
		s.byID[j.task.ID] = j
		heap.Push(&s.queue, j)
		s.mu.Unlock()
		s.cond.Signal()
	})
}

func (s *Scheduler) execute(j *job) Result {
	task := j.task
	start := time.Now()
	wait := start.Sub(j.enqueuedAt)

	pid, err := s.procs.Create(task.ID, "", "")
	if err != nil {
		return Result{TaskID: task.ID, Status: types.TaskFailed, Err: err, Wait: wait}
	}
	_ = s.procs.SetState(pid, types.ProcReady)

	if len(task.Resources) > 0 {
		s.arbiter.RegisterProcess(pid, task.Resources)
		if err := s.acquireResources(pid, task.Resources); err != nil {
			s.arbiter.Unregister(pid)
			_ = s.procs.Terminate(pid)
			return Result{TaskID: task.ID, Status: types.TaskFailed, Err: err, Wait: wait}
		}
	}

	_ = s.procs.SetState(pid, types.ProcRunning)
	timeout := task.Timeout(s.defaultTimeout)

	// The callable runs on its own goroutine so a timeout can abandon it:
	// the result channel is buffered and the goroutine is left to finish
	// into the void. No preemption happens.
	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		v, err := s.exec.Execute(ctx, task)
		done <- outcome{value: v, err: err}
	}()

	var res Result
	res.TaskID = task.ID
	select {
	case out := <-done:
		res.Exec = time.Since(start)
		if out.err != nil {
			res.Status = types.TaskFailed
			res.Err = out.err
		} else {
			res.Status = types.TaskCompleted
			res.Value = out.value
		}
	case <-time.After(timeout):
		res.Exec = time.Since(start)
		res.Status = types.TaskTimedOut
		res.Err = fmt.Errorf("%w after %s", ErrTimedOut, timeout)
	}

	if len(task.Resources) > 0 {
		// Unregister folds every held unit back into the pool.
		s.arbiter.Unregister(pid)
	}
	s.procs.AddCPUTime(pid, res.Exec)
	_ = s.procs.Terminate(pid)

	res.Wait = wait
	res.Turnaround = time.Since(task.SubmittedAt)
	s.mu.Lock()
	if s.queue.discipline == RoundRobin && s.quantum > 0 {
		s.stats.quanta += uint64((res.Exec + s.quantum - 1) / s.quantum)
	}
	s.mu.Unlock()
	return res
}

// acquireResources requests each declared need in full.
func (s *Scheduler) acquireResources(pid string, needs map[string]int) error {
	acquired := make(map[string]int)
	for name, units := range needs {
		if err := s.arbiter.Request(pid, name, units); err != nil {
			for rname, runits := range acquired {
				_ = s.arbiter.Release(pid, rname, runits)
			}
			return err
		}
		acquired[name] = units
	}
	return nil
}

func (s *Scheduler) recordLocked(res Result) {
	switch res.Status {
	case types.TaskCompleted:
		s.stats.completed++
	case types.TaskFailed:
		s.stats.failed++
	case types.TaskTimedOut:
		s.stats.timedOut++
	case types.TaskCancelled:
		s.stats.cancelled++
	}
	s.stats.finished++
	s.stats.waitSum += res.Wait
	s.stats.turnaroundSum += res.Turnaround
	s.stats.execSum += res.Exec
}

func (s *Scheduler) deliver(j *job, res Result) {
	if j.cb == nil {
		return
	}
	j.cb(res)
	if s.log != nil {
		s.log.Debug("task left scheduler",
			zap.String("task_id", res.TaskID),
			zap.String("status", string(res.Status)),
			zap.Duration("exec", res.Exec),
			zap.Duration("wait", res.Wait))
	}
}

// Stats is the scheduler snapshot for the status endpoint.
type Stats struct {
	Algorithm     string  `json:"algorithm"`
	QueueLength   int     `json:"queue_length"`
	Running       int     `json:"running"`
	Submitted     uint64  `json:"submitted"`
	Completed     uint64  `json:"completed"`
	Failed        uint64  `json:"failed"`
	Cancelled     uint64  `json:"cancelled"`
	TimedOut      uint64  `json:"timed_out"`
	Retries       uint64  `json:"retries"`
	Quanta        uint64  `json:"quanta,omitempty"`
	AvgWaitSec    float64 `json:"average_waiting_time"`
	AvgTurnSec    float64 `json:"average_turnaround_time"`
	AvgExecSec    float64 `json:"average_execution_time"`
	ThroughputSec float64 `json:"throughput_per_second"`
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Algorithm:   string(s.queue.discipline),
		QueueLength: s.queue.Len(),
		Running:     len(s.running),
		Submitted:   s.stats.submitted,
		Completed:   s.stats.completed,
		Failed:      s.stats.failed,
		Cancelled:   s.stats.cancelled,
		TimedOut:    s.stats.timedOut,
		Retries:     s.stats.retries,
		Quanta:      s.stats.quanta,
	}
	if n := s.stats.finished; n > 0 {
		st.AvgWaitSec = s.stats.waitSum.Seconds() / float64(n)
		st.AvgTurnSec = s.stats.turnaroundSum.Seconds() / float64(n)
		st.AvgExecSec = s.stats.execSum.Seconds() / float64(n)
	}
	if elapsed := time.Since(s.started).Seconds(); elapsed > 0 {
		st.ThroughputSec = float64(s.stats.completed) / elapsed
	}
	return st
}
