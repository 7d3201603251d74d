package memalloc

import (
	"testing"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

func TestFirstFitAllocateAndSplit(t *testing.T) {
	a := New(1000, FirstFit)

	off1, err := a.Allocate("P1", 100)
	if err != nil || off1 != 0 {
		t.Fatalf("first allocation: off=%d err=%v", off1, err)
	}
	off2, err := a.Allocate("P2", 200)
	if err != nil || off2 != 100 {
		t.Fatalf("second allocation: off=%d err=%v", off2, err)
	}
	if _, err := a.Allocate("P1", 10); err == nil {
		t.Error("double allocation for one pid must fail")
	}
	if _, err := a.Allocate("P3", 10_000); err == nil {
		t.Error("oversized allocation must fail")
	} else if werr, ok := err.(*wire.Error); !ok || werr.Code != wire.CodeOutOfMemory {
		t.Errorf("expected OUT_OF_MEMORY, got %v", err)
	}
}

func TestCoalescingInvariant(t *testing.T) {
	a := New(1000, FirstFit)
	for _, pid := range []string{"P1", "P2", "P3", "P4"} {
		if _, err := a.Allocate(pid, 100); err != nil {
			t.Fatal(err)
		}
	}
	// Free in an order that creates adjacent free blocks each step.
	for _, pid := range []string{"P2", "P3", "P1", "P4"} {
		if err := a.Deallocate(pid); err != nil {
			t.Fatal(err)
		}
		if a.adjacentFree() {
			t.Fatalf("adjacent free blocks after freeing %s", pid)
		}
	}
	info := a.Fragmentation()
	if info.Free != 1000 || info.FreeBlocks != 1 || info.Fragmentation != 0 {
		t.Errorf("arena not fully coalesced: %+v", info)
	}
}

func TestBestAndWorstFit(t *testing.T) {
	// Carve free holes of size 100 and 300 separated by live blocks.
	build := func(algo Algorithm) *Allocator {
		a := New(1000, algo)
		a.Allocate("h1", 100) // offset 0, will free
		a.Allocate("k1", 50)  // keeper
		a.Allocate("h2", 300) // offset 150, will free
		a.Allocate("k2", 50)  // keeper
		a.Deallocate("h1")
		a.Deallocate("h2")
		return a
	}

	best := build(BestFit)
	off, err := best.Allocate("p", 80)
	if err != nil || off != 0 {
		t.Errorf("best fit chose offset %d (err %v), want 0 (the 100-byte hole)", off, err)
	}

	worst := build(WorstFit)
	off, err = worst.Allocate("p", 80)
	if err != nil || off == 0 {
		t.Errorf("worst fit chose offset %d (err %v), want the largest hole", off, err)
	}
}

func TestNextFitRotates(t *testing.T) {
	a := New(300, NextFit)
	a.Allocate("P1", 100)
	a.Allocate("P2", 100)
	a.Deallocate("P1")
	// Cursor sits past P2's block; the tail hole comes first.
	off, err := a.Allocate("P3", 100)
	if err != nil {
		t.Fatal(err)
	}
	if off != 200 {
		t.Errorf("next fit chose offset %d, want 200", off)
	}
}

func TestFragmentationReport(t *testing.T) {
	a := New(400, FirstFit)
	a.Allocate("P1", 100)
	a.Allocate("P2", 100)
	a.Allocate("P3", 100)
	a.Deallocate("P1")
	a.Deallocate("P3") // free: 100 at offset 0, 200 at offset 200 (tail merged)

	info := a.Fragmentation()
	if info.Free != 300 || info.LargestFree != 200 || info.FreeBlocks != 2 {
		t.Fatalf("frag info = %+v", info)
	}
	want := 1.0 - 200.0/300.0
	if diff := info.Fragmentation - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("fragmentation = %v, want %v", info.Fragmentation, want)
	}
}
