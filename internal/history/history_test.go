package history

import (
	"fmt"
	"testing"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
)

func TestRingBound(t *testing.T) {
	l := New(3)
	for i := 0; i < 5; i++ {
		l.Append(Record{TaskID: fmt.Sprintf("T%d", i), Status: types.TaskCompleted})
	}
	recent := l.Recent(0, "")
	if len(recent) != 3 {
		t.Fatalf("retained %d records, want 3", len(recent))
	}
	if recent[0].TaskID != "T2" || recent[2].TaskID != "T4" {
		t.Errorf("wrong retention order: %v", recent)
	}
	if _, ok := l.Get("T0"); ok {
		t.Error("evicted record still resolvable by id")
	}
	if _, ok := l.Get("T4"); !ok {
		t.Error("recent record not resolvable by id")
	}
}

func TestStatsMatchBuffer(t *testing.T) {
	l := New(10)
	l.Append(Record{TaskID: "a", Status: types.TaskCompleted, ExecSec: 2})
	l.Append(Record{TaskID: "b", Status: types.TaskCompleted, ExecSec: 4})
	l.Append(Record{TaskID: "c", Status: types.TaskFailed, Error: "boom"})
	l.Append(Record{TaskID: "d", Status: types.TaskCancelled})
	l.Append(Record{TaskID: "e", Status: types.TaskTimedOut})

	s := l.Stats()
	if s.Total != 5 || s.Successful != 2 || s.Failed != 1 || s.Cancelled != 1 || s.TimedOut != 1 {
		t.Errorf("counts wrong: %+v", s)
	}
	if s.SuccessRate != 0.4 {
		t.Errorf("success rate = %v, want 0.4", s.SuccessRate)
	}
	if s.AvgExecSec != 3 {
		t.Errorf("avg exec = %v, want 3", s.AvgExecSec)
	}
}

func TestRecentFilter(t *testing.T) {
	l := New(10)
	l.Append(Record{TaskID: "a", TaskType: "CPU_TASK"})
	l.Append(Record{TaskID: "b", TaskType: "SET_MEM"})
	l.Append(Record{TaskID: "c", TaskType: "CPU_TASK"})

	got := l.Recent(10, "CPU_TASK")
	if len(got) != 2 || got[0].TaskID != "a" || got[1].TaskID != "c" {
		t.Errorf("filtered recent = %v", got)
	}
}
