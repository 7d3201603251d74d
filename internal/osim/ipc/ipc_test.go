package ipc

import (
	"testing"
	"time"
)

func TestQueueReceiverFiltering(t *testing.T) {
	m := NewManager()
	if err := m.CreateQueue("q", 10); err != nil {
		t.Fatal(err)
	}
	q, err := m.Queue("q")
	if err != nil {
		t.Fatal(err)
	}

	if err := q.Send(Message{Sender: "P1", Receiver: "P2", Payload: "for-p2"}, false); err != nil {
		t.Fatal(err)
	}
	if err := q.Send(Message{Sender: "P1", Receiver: "*", Payload: "broadcast"}, false); err != nil {
		t.Fatal(err)
	}

	// P3 sees only the broadcast.
	msg, ok := q.Receive("P3", 0)
	if !ok || msg.Payload != "broadcast" {
		t.Fatalf("P3 received %v, %v", msg, ok)
	}
	// P2 gets its addressed message.
	msg, ok = q.Receive("P2", 0)
	if !ok || msg.Payload != "for-p2" {
		t.Fatalf("P2 received %v, %v", msg, ok)
	}
	// Nothing left.
	if _, ok := q.Receive("P2", 0); ok {
		t.Error("queue should be empty")
	}
}

func TestQueueFullNonBlocking(t *testing.T) {
	m := NewManager()
	m.CreateQueue("q", 1)
	q, _ := m.Queue("q")
	if err := q.Send(Message{Receiver: "*"}, false); err != nil {
		t.Fatal(err)
	}
	if err := q.Send(Message{Receiver: "*"}, false); err == nil {
		t.Error("expected error on full queue without blocking")
	}
}

func TestQueueBlockingReceive(t *testing.T) {
	m := NewManager()
	m.CreateQueue("q", 10)
	q, _ := m.Queue("q")

	go func() {
		time.Sleep(50 * time.Millisecond)
		q.Send(Message{Sender: "P1", Receiver: "P2", Payload: 42}, false)
	}()

	msg, ok := q.Receive("P2", 2*time.Second)
	if !ok {
		t.Fatal("blocking receive timed out")
	}
	if msg.Payload != 42 {
		t.Errorf("payload = %v", msg.Payload)
	}
}

func TestSemaphoreFIFOWaiters(t *testing.T) {
	m := NewManager()
	if err := m.CreateSemaphore("s", 1); err != nil {
		t.Fatal(err)
	}
	s, _ := m.Semaphore("s")

	if !s.Wait("P1") {
		t.Fatal("first wait should acquire")
	}
	if s.Wait("P2") {
		t.Fatal("second wait should park")
	}
	if s.Wait("P3") {
		t.Fatal("third wait should park")
	}
	if s.Value() != -2 {
		t.Errorf("value = %d, want -2", s.Value())
	}

	// Signals wake waiters in FIFO order.
	woken, ok := s.Signal()
	if !ok || woken != "P2" {
		t.Errorf("first signal woke %q, want P2", woken)
	}
	woken, ok = s.Signal()
	if !ok || woken != "P3" {
		t.Errorf("second signal woke %q, want P3", woken)
	}
	if _, ok := s.Signal(); ok {
		t.Error("no waiters should remain")
	}
	if s.Value() != 1 {
		t.Errorf("final value = %d, want 1", s.Value())
	}
}

func TestDuplicateNames(t *testing.T) {
	m := NewManager()
	m.CreateQueue("q", 1)
	if err := m.CreateQueue("q", 1); err == nil {
		t.Error("duplicate queue must error")
	}
	m.CreateSemaphore("s", 0)
	if err := m.CreateSemaphore("s", 0); err == nil {
		t.Error("duplicate semaphore must error")
	}
	if _, err := m.Queue("missing"); err == nil {
		t.Error("unknown queue must error")
	}
}
