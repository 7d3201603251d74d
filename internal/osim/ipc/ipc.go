// Package ipc provides the simulated inter-process primitives: named
// bounded message queues and counting semaphores with FIFO waiter lists.
// The scheduler and peer server use these for coordination of simulated
// processes; they are not the Go-level synchronization of the fabric.
package ipc

import (
	"sync"
	"time"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// Message is one queue entry. Receiver "*" addresses any process.
type Message struct {
	Sender   string    `json:"sender"`
	Receiver string    `json:"receiver"`
	Payload  any       `json:"payload"`
	SentAt   time.Time `json:"sent_at"`
}

// Queue is a bounded FIFO of messages with receiver filtering.
type Queue struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	name     string
	capacity int
	items    []Message
	sent     uint64
}

func newQueue(name string, capacity int) *Queue {
	q := &Queue{name: name, capacity: capacity}
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Send appends a message. With block=false a full queue is an error; with
// block=true the caller waits until room exists.
func (q *Queue) Send(msg Message, block bool) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) >= q.capacity {
		if !block {
			return wire.Errorf(wire.CodeExceedsAvailable, "queue %s is full", q.name)
		}
		q.notFull.Wait()
	}
	q.items = append(q.items, msg)
	q.sent++
	return nil
}

// Receive removes and returns the oldest message addressed to pid or to the
// broadcast receiver, waiting up to timeout for one to arrive. A zero
// timeout polls once.
func (q *Queue) Receive(pid string, timeout time.Duration) (Message, bool) {
	deadline := time.Now().Add(timeout)
	const pollInterval = 10 * time.Millisecond
	for {
		q.mu.Lock()
		for i, msg := range q.items {
			if msg.Receiver == pid || msg.Receiver == "*" {
				q.items = append(q.items[:i], q.items[i+1:]...)
				q.notFull.Broadcast()
				q.mu.Unlock()
				return msg, true
			}
		}
		q.mu.Unlock()
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Message{}, false
		}
		if remaining < pollInterval {
			time.Sleep(remaining)
		} else {
			time.Sleep(pollInterval)
		}
	}
}

// QueueStats is a queue snapshot.
type QueueStats struct {
	Name     string `json:"name"`
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
	Sent     uint64 `json:"sent"`
}

func (q *Queue) stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{Name: q.name, Size: len(q.items), Capacity: q.capacity, Sent: q.sent}
}

// Semaphore is a counting semaphore. Wait decrements; a negative count
// parks the pid on a FIFO waiter list. Signal increments and wakes the head
// waiter. There is no priority inheritance.
type Semaphore struct {
	mu      sync.Mutex
	name    string
	value   int
	waiters []string
	ops     uint64
}

func newSemaphore(name string, initial int) *Semaphore {
	return &Semaphore{name: name, value: initial}
}

// Wait performs the P operation for pid. It reports whether the semaphore
// was acquired immediately; otherwise the pid is parked.
func (s *Semaphore) Wait(pid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops++
	s.value--
	if s.value < 0 {
		s.waiters = append(s.waiters, pid)
		return false
	}
	return true
}

// Signal performs the V operation and returns the pid woken, if any.
func (s *Semaphore) Signal() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops++
	s.value++
	if len(s.waiters) > 0 {
		woken := s.waiters[0]
		s.waiters = s.waiters[1:]
		return woken, true
	}
	return "", false
}

// Value returns the current count (negative when processes are parked).
func (s *Semaphore) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// SemStats is a semaphore snapshot.
type SemStats struct {
	Name    string `json:"name"`
	Value   int    `json:"value"`
	Waiters int    `json:"waiters"`
	Ops     uint64 `json:"operations"`
}

func (s *Semaphore) stats() SemStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SemStats{Name: s.name, Value: s.value, Waiters: len(s.waiters), Ops: s.ops}
}

// Manager owns the named queues and semaphores of one peer.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*Queue
	sems   map[string]*Semaphore
}

func NewManager() *Manager {
	return &Manager{
		queues: make(map[string]*Queue),
		sems:   make(map[string]*Semaphore),
	}
}

// CreateQueue registers a new bounded queue.
func (m *Manager) CreateQueue(name string, capacity int) error {
	if capacity <= 0 {
		capacity = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[name]; ok {
		return wire.Errorf(wire.CodeBadRequest, "queue %s already exists", name)
	}
	m.queues[name] = newQueue(name, capacity)
	return nil
}

// Queue looks up a queue by name.
func (m *Manager) Queue(name string) (*Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[name]
	if !ok {
		return nil, wire.Errorf(wire.CodeBadRequest, "queue %s not found", name)
	}
	return q, nil
}

// CreateSemaphore registers a new counting semaphore.
func (m *Manager) CreateSemaphore(name string, initial int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sems[name]; ok {
		return wire.Errorf(wire.CodeBadRequest, "semaphore %s already exists", name)
	}
	m.sems[name] = newSemaphore(name, initial)
	return nil
}

// Semaphore looks up a semaphore by name.
func (m *Manager) Semaphore(name string) (*Semaphore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sems[name]
	if !ok {
		return nil, wire.Errorf(wire.CodeBadRequest, "semaphore %s not found", name)
	}
	return s, nil
}

// Stats is the IPC snapshot for the status endpoint.
type Stats struct {
	Queues     []QueueStats `json:"queues"`
	Semaphores []SemStats   `json:"semaphores"`
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	queues := make([]*Queue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	sems := make([]*Semaphore, 0, len(m.sems))
	for _, s := range m.sems {
		sems = append(sems, s)
	}
	m.mu.Unlock()

	var out Stats
	for _, q := range queues {
		out.Queues = append(out.Queues, q.stats())
	}
	for _, s := range sems {
		out.Semaphores = append(out.Semaphores, s.stats())
	}
	return out
}
