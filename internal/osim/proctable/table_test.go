package proctable

import (
	"testing"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
)

func TestCreateAndTree(t *testing.T) {
	tbl := New()
	root, err := tbl.Create("t1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	child, err := tbl.Create("t2", root, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Create("t3", "P99", ""); err == nil {
		t.Error("expected error for unknown parent")
	}

	roots, total, err := tbl.TreeOf("")
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(roots) != 1 {
		t.Fatalf("tree: total=%d roots=%d", total, len(roots))
	}
	if roots[0].PID != root || len(roots[0].Children) != 1 || roots[0].Children[0].PID != child {
		t.Errorf("tree shape wrong: %+v", roots[0])
	}
}

func TestPostOrderTermination(t *testing.T) {
	tbl := New()
	root, _ := tbl.Create("", "", "")
	c1, _ := tbl.Create("", root, "")
	c2, _ := tbl.Create("", root, "")
	gc, _ := tbl.Create("", c1, "")

	if err := tbl.Terminate(root); err != nil {
		t.Fatal(err)
	}
	for _, pid := range []string{root, c1, c2, gc} {
		if _, ok := tbl.Get(pid); ok {
			t.Errorf("process %s survived subtree termination", pid)
		}
	}
	if s := tbl.Stats(); s.Total != 0 {
		t.Errorf("table not empty after termination: %+v", s)
	}
}

func TestGroups(t *testing.T) {
	tbl := New()
	a, _ := tbl.Create("", "", "g1")
	b, _ := tbl.Create("", "", "g1")
	c, _ := tbl.Create("", "", "")

	if n := tbl.KillGroup("g1"); n != 2 {
		t.Errorf("KillGroup terminated %d, want 2", n)
	}
	if _, ok := tbl.Get(a); ok {
		t.Error("group member survived")
	}
	if _, ok := tbl.Get(b); ok {
		t.Error("group member survived")
	}
	if _, ok := tbl.Get(c); !ok {
		t.Error("non-member was terminated")
	}
	if n := tbl.KillGroup("missing"); n != 0 {
		t.Errorf("KillGroup of unknown group = %d", n)
	}
}

func TestStateTransitions(t *testing.T) {
	tbl := New()
	pid, _ := tbl.Create("", "", "")
	for _, st := range []types.ProcessState{types.ProcReady, types.ProcRunning, types.ProcWaiting} {
		if err := tbl.SetState(pid, st); err != nil {
			t.Fatal(err)
		}
		p, _ := tbl.Get(pid)
		if p.State != st {
			t.Errorf("state = %s, want %s", p.State, st)
		}
	}
	if err := tbl.SetState("P99", types.ProcReady); err == nil {
		t.Error("expected error for unknown pid")
	}
}
