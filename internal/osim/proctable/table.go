// Package proctable maintains the simulated process table: pids, states,
// the parent/child tree and process groups.
package proctable

import (
	"fmt"
	"sync"
	"time"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// Process is one entry in the table.
type Process struct {
	PID       string             `json:"pid"`
	PPID      string             `json:"ppid,omitempty"`
	GroupID   string             `json:"group_id,omitempty"`
	State     types.ProcessState `json:"state"`
	TaskID    string             `json:"task_id,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	CPUTime   time.Duration      `json:"cpu_time"`
	Children  []string           `json:"children,omitempty"`
}

// Tree is the recursive snapshot form returned by PROCESS_TREE.
type Tree struct {
	PID      string             `json:"pid"`
	PPID     string             `json:"ppid,omitempty"`
	State    types.ProcessState `json:"state"`
	Children []*Tree            `json:"children"`
}

// Table is the concurrent process table.
type Table struct {
	mu      sync.Mutex
	procs   map[string]*Process
	groups  map[string]map[string]struct{}
	nextPID int
}

func New() *Table {
	return &Table{
		procs:   make(map[string]*Process),
		groups:  make(map[string]map[string]struct{}),
		nextPID: 1,
	}
}

// Create inserts a new process and returns its pid. An unknown parent pid
// is an error; a group is created on first use.
func (t *Table) Create(taskID, parentPID, groupID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if parentPID != "" {
		if _, ok := t.procs[parentPID]; !ok {
			return "", wire.Errorf(wire.CodeUnknownPID, "parent process %s not found", parentPID)
		}
	}
	pid := fmt.Sprintf("P%d", t.nextPID)
	t.nextPID++
	p := &Process{
		PID:       pid,
		PPID:      parentPID,
		GroupID:   groupID,
		State:     types.ProcNew,
		TaskID:    taskID,
		CreatedAt: time.Now(),
	}
	t.procs[pid] = p
	if parentPID != "" {
		parent := t.procs[parentPID]
		parent.Children = append(parent.Children, pid)
	}
	if groupID != "" {
		if t.groups[groupID] == nil {
			t.groups[groupID] = make(map[string]struct{})
		}
		t.groups[groupID][pid] = struct{}{}
	}
	return pid, nil
}

// SetState transitions a process.
func (t *Table) SetState(pid string, state types.ProcessState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[pid]
	if !ok {
		return wire.Errorf(wire.CodeUnknownPID, "process %s not found", pid)
	}
	p.State = state
	return nil
}

// AddCPUTime accumulates execution time on a process.
func (t *Table) AddCPUTime(pid string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.procs[pid]; ok {
		p.CPUTime += d
	}
}

// Terminate performs post-order termination of the subtree rooted at pid:
// every descendant is terminated before the node itself.
func (t *Table) Terminate(pid string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.procs[pid]; !ok {
		return wire.Errorf(wire.CodeUnknownPID, "process %s not found", pid)
	}
	t.terminateLocked(pid)
	return nil
}

func (t *Table) terminateLocked(pid string) {
	p, ok := t.procs[pid]
	if !ok {
		return
	}
	for _, child := range append([]string(nil), p.Children...) {
		t.terminateLocked(child)
	}
	p.State = types.ProcTerminated
	if p.PPID != "" {
		if parent, ok := t.procs[p.PPID]; ok {
			parent.Children = removeString(parent.Children, pid)
		}
	}
	if p.GroupID != "" {
		if g, ok := t.groups[p.GroupID]; ok {
			delete(g, pid)
		}
	}
	delete(t.procs, pid)
}

// KillGroup terminates every process in a group, returning the count of
// processes removed (descendants included).
func (t *Table) KillGroup(groupID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.groups[groupID]
	if !ok {
		return 0
	}
	before := len(t.procs)
	for pid := range g {
		t.terminateLocked(pid)
	}
	delete(t.groups, groupID)
	return before - len(t.procs)
}

// AssignGroup adds existing processes to a group, creating it if needed.
func (t *Table) AssignGroup(groupID string, pids []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.groups[groupID] == nil {
		t.groups[groupID] = make(map[string]struct{})
	}
	for _, pid := range pids {
		p, ok := t.procs[pid]
		if !ok {
			return wire.Errorf(wire.CodeUnknownPID, "process %s not found", pid)
		}
		p.GroupID = groupID
		t.groups[groupID][pid] = struct{}{}
	}
	return nil
}

// Get returns a copy of one process entry.
func (t *Table) Get(pid string) (Process, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[pid]
	if !ok {
		return Process{}, false
	}
	cp := *p
	cp.Children = append([]string(nil), p.Children...)
	return cp, true
}

// TreeOf builds the tree snapshot rooted at pid, or all roots when pid is
// empty.
func (t *Table) TreeOf(pid string) ([]*Tree, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pid != "" {
		if _, ok := t.procs[pid]; !ok {
			return nil, 0, wire.Errorf(wire.CodeUnknownPID, "process %s not found", pid)
		}
		return []*Tree{t.buildTreeLocked(pid)}, len(t.procs), nil
	}
	var roots []*Tree
	for id, p := range t.procs {
		if p.PPID == "" {
			roots = append(roots, t.buildTreeLocked(id))
		}
	}
	return roots, len(t.procs), nil
}

func (t *Table) buildTreeLocked(pid string) *Tree {
	p := t.procs[pid]
	node := &Tree{PID: p.PID, PPID: p.PPID, State: p.State, Children: []*Tree{}}
	for _, child := range p.Children {
		if _, ok := t.procs[child]; ok {
			node.Children = append(node.Children, t.buildTreeLocked(child))
		}
	}
	return node
}

// Stats is the table snapshot for the status endpoint.
type Stats struct {
	Total   int            `json:"total_processes"`
	Groups  int            `json:"process_groups"`
	ByState map[string]int `json:"processes_by_state"`
}

func (t *Table) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{Total: len(t.procs), Groups: len(t.groups), ByState: make(map[string]int)}
	for _, p := range t.procs {
		s.ByState[string(p.State)]++
	}
	return s
}

func removeString(xs []string, x string) []string {
	for i, v := range xs {
		if v == x {
			return append(xs[:i], xs[i+1:]...)
		}
	}
	return xs
}
