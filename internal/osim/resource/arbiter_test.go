package resource

import (
	"testing"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	werr, ok := err.(*wire.Error)
	if !ok || werr.Code != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

// The literal banker scenario: R has 10 units; P1 max=7 holds 5, P2 max=4
// holds 2, P3 max=9 holds 2. P3 asking 2 more exceeds the single available
// unit; asking 1 would leave no safe ordering. P3 acquires its units under
// a modest claim and then revises it upward, which is how the unsafe claim
// pattern arises without the grants themselves being unsafe.
func TestBankerSafetyDenial(t *testing.T) {
	a := New()
	a.RegisterResource("R", "CPU", 10)
	a.RegisterProcess("P1", map[string]int{"R": 7})
	a.RegisterProcess("P2", map[string]int{"R": 4})
	a.RegisterProcess("P3", map[string]int{"R": 2})

	if err := a.Request("P1", "R", 5); err != nil {
		t.Fatal(err)
	}
	if err := a.Request("P2", "R", 2); err != nil {
		t.Fatal(err)
	}
	if err := a.Request("P3", "R", 2); err != nil {
		t.Fatal(err)
	}
	if err := a.SetMaxNeed("P3", "R", 9); err != nil {
		t.Fatal(err)
	}

	wantCode(t, a.Request("P3", "R", 2), wire.CodeExceedsAvailable)
	wantCode(t, a.Request("P3", "R", 1), wire.CodeUnsafe)

	// The denied request must leave no trace.
	stats := a.Stats()
	if stats.Resources[0].Available != 1 {
		t.Errorf("available = %d after rollback, want 1", stats.Resources[0].Available)
	}
	if got := stats.Resources[0].Allocations["P3"]; got != 2 {
		t.Errorf("P3 allocation = %d after rollback, want 2", got)
	}
	// With the revised claim the standing state itself has no safe
	// ordering, which is exactly why the one-unit request was refused.
	if stats.SafeState {
		t.Error("revised claim should leave the state unsafe")
	}
}

func TestRequestValidation(t *testing.T) {
	a := New()
	a.RegisterResource("R", "CPU", 4)
	a.RegisterProcess("P1", map[string]int{"R": 2})

	if err := a.Request("P1", "R", 0); err != nil {
		t.Errorf("zero-unit request must be a no-op, got %v", err)
	}
	wantCode(t, a.Request("P1", "R", 3), wire.CodeExceedsNeed)
	wantCode(t, a.Request("P9", "R", 1), wire.CodeUnknownPID)
	wantCode(t, a.Request("P1", "X", 1), wire.CodeUnknownResource)
}

func TestReleaseReturnsUnits(t *testing.T) {
	a := New()
	a.RegisterResource("R", "CPU", 4)
	a.RegisterProcess("P1", map[string]int{"R": 4})
	if err := a.Request("P1", "R", 3); err != nil {
		t.Fatal(err)
	}
	if err := a.Release("P1", "R", 2); err != nil {
		t.Fatal(err)
	}
	stats := a.Stats()
	if stats.Resources[0].Available != 3 {
		t.Errorf("available = %d, want 3", stats.Resources[0].Available)
	}
	wantCode(t, a.Release("P1", "R", 5), wire.CodeBadRequest)
}

func TestDeadlockCycle(t *testing.T) {
	a := New()
	a.RegisterResource("A", "DISK", 1)
	a.RegisterResource("B", "DISK", 1)
	a.RegisterProcess("P1", map[string]int{"A": 1})
	a.RegisterProcess("P2", map[string]int{"B": 1})

	if err := a.Request("P1", "A", 1); err != nil {
		t.Fatal(err)
	}
	if err := a.Request("P2", "B", 1); err != nil {
		t.Fatal(err)
	}
	// Each process then claims the other's resource and asks for it.
	if err := a.SetMaxNeed("P1", "B", 1); err != nil {
		t.Fatal(err)
	}
	if err := a.SetMaxNeed("P2", "A", 1); err != nil {
		t.Fatal(err)
	}
	wantCode(t, a.Request("P1", "B", 1), wire.CodeExceedsAvailable)
	wantCode(t, a.Request("P2", "A", 1), wire.CodeExceedsAvailable)

	cycle := a.CheckDeadlock()
	if len(cycle) != 2 || cycle[0] != "P1" || cycle[1] != "P2" {
		t.Errorf("cycle = %v, want [P1 P2]", cycle)
	}
}

func TestNoDeadlockWithoutCycle(t *testing.T) {
	a := New()
	a.RegisterResource("A", "DISK", 1)
	a.RegisterProcess("P1", map[string]int{"A": 1})
	if err := a.Request("P1", "A", 1); err != nil {
		t.Fatal(err)
	}
	if cycle := a.CheckDeadlock(); len(cycle) != 0 {
		t.Errorf("unexpected cycle: %v", cycle)
	}
}
