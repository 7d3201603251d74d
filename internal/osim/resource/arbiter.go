// Package resource arbitrates resource allocation with the banker's
// algorithm safety check and detects deadlock via wait-for-graph cycles.
package resource

import (
	"sort"
	"sync"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

type resourceState struct {
	Name      string
	Kind      string
	Total     int
	Available int
	Allocated map[string]int // pid -> units
}

type procState struct {
	MaxNeed    map[string]int // resource -> declared maximum
	Allocation map[string]int // resource -> currently held
}

// need returns what the process may still request for a resource.
func (p *procState) need(res string) int {
	return p.MaxNeed[res] - p.Allocation[res]
}

type pendingRequest struct {
	Resource string
	Units    int
}

// Arbiter grants resource requests only when the resulting state is safe:
// some ordering of all registered processes must exist in which each can
// acquire its remaining maximum need from the then-available pool.
type Arbiter struct {
	mu        sync.Mutex
	resources map[string]*resourceState
	procs     map[string]*procState
	pending   map[string]pendingRequest // pid -> last unsatisfiable request
}

func New() *Arbiter {
	return &Arbiter{
		resources: make(map[string]*resourceState),
		procs:     make(map[string]*procState),
		pending:   make(map[string]pendingRequest),
	}
}

// RegisterResource declares a resource pool.
func (a *Arbiter) RegisterResource(name, kind string, totalUnits int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resources[name] = &resourceState{
		Name:      name,
		Kind:      kind,
		Total:     totalUnits,
		Available: totalUnits,
		Allocated: make(map[string]int),
	}
}

// RegisterProcess declares a process and its maximum need per resource.
// Re-registering replaces the declaration.
func (a *Arbiter) RegisterProcess(pid string, maxNeed map[string]int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	need := make(map[string]int, len(maxNeed))
	for k, v := range maxNeed {
		need[k] = v
	}
	a.procs[pid] = &procState{MaxNeed: need, Allocation: make(map[string]int)}
}

// SetMaxNeed revises a process's declared maximum for one resource. The
// new maximum must cover what the process already holds.
func (a *Arbiter) SetMaxNeed(pid, resName string, maxUnits int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.procs[pid]
	if !ok {
		return wire.Errorf(wire.CodeUnknownPID, "process %s not registered", pid)
	}
	if _, ok := a.resources[resName]; !ok {
		return wire.Errorf(wire.CodeUnknownResource, "resource %s not registered", resName)
	}
	if maxUnits < p.Allocation[resName] {
		return wire.Errorf(wire.CodeBadRequest,
			"%s already holds %d of %s, cannot lower maximum to %d",
			pid, p.Allocation[resName], resName, maxUnits)
	}
	p.MaxNeed[resName] = maxUnits
	return nil
}

// Unregister removes a process, releasing everything it holds.
func (a *Arbiter) Unregister(pid string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.procs[pid]
	if !ok {
		return
	}
	for res, units := range p.Allocation {
		if r, ok := a.resources[res]; ok {
			r.Available += units
			delete(r.Allocated, pid)
		}
	}
	delete(a.procs, pid)
	delete(a.pending, pid)
}

// Request tentatively grants units of a resource to pid and keeps the grant
// only if the resulting state is safe. Zero-unit requests are no-ops.
func (a *Arbiter) Request(pid, resName string, units int) error {
	if units == 0 {
		return nil
	}
	if units < 0 {
		return wire.Errorf(wire.CodeBadRequest, "negative unit count %d", units)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.procs[pid]
	if !ok {
		return wire.Errorf(wire.CodeUnknownPID, "process %s not registered", pid)
	}
	r, ok := a.resources[resName]
	if !ok {
		return wire.Errorf(wire.CodeUnknownResource, "resource %s not registered", resName)
	}
	if units > p.need(resName) {
		return wire.Errorf(wire.CodeExceedsNeed,
			"request of %d exceeds remaining need %d for %s", units, p.need(resName), resName)
	}
	if units > r.Available {
		a.pending[pid] = pendingRequest{Resource: resName, Units: units}
		return wire.Errorf(wire.CodeExceedsAvailable,
			"only %d of %s available, %d requested", r.Available, resName, units)
	}

	// Tentative grant, then the safety check; roll back if unsafe.
	r.Available -= units
	r.Allocated[pid] += units
	p.Allocation[resName] += units

	if !a.safeLocked() {
		r.Available += units
		r.Allocated[pid] -= units
		if r.Allocated[pid] == 0 {
			delete(r.Allocated, pid)
		}
		p.Allocation[resName] -= units
		a.pending[pid] = pendingRequest{Resource: resName, Units: units}
		return wire.Errorf(wire.CodeUnsafe,
			"granting %d of %s to %s would leave no safe ordering", units, resName, pid)
	}
	delete(a.pending, pid)
	return nil
}

// Release returns units to the free pool. No safety check is needed.
func (a *Arbiter) Release(pid, resName string, units int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.procs[pid]
	if !ok {
		return wire.Errorf(wire.CodeUnknownPID, "process %s not registered", pid)
	}
	r, ok := a.resources[resName]
	if !ok {
		return wire.Errorf(wire.CodeUnknownResource, "resource %s not registered", resName)
	}
	if units > p.Allocation[resName] {
		return wire.Errorf(wire.CodeBadRequest,
			"%s holds %d of %s, cannot release %d", pid, p.Allocation[resName], resName, units)
	}
	r.Available += units
	r.Allocated[pid] -= units
	if r.Allocated[pid] == 0 {
		delete(r.Allocated, pid)
	}
	p.Allocation[resName] -= units
	return nil
}

// safeLocked runs the banker's safety check: repeatedly find a process whose
// remaining need fits in work, fold its allocation back in, and require that
// every process finishes.
func (a *Arbiter) safeLocked() bool {
	work := make(map[string]int, len(a.resources))
	for name, r := range a.resources {
		work[name] = r.Available
	}
	finished := make(map[string]bool, len(a.procs))
	for {
		progress := false
		for pid, p := range a.procs {
			if finished[pid] {
				continue
			}
			fits := true
			for res := range p.MaxNeed {
				if p.need(res) > work[res] {
					fits = false
					break
				}
			}
			if fits {
				for res, units := range p.Allocation {
					work[res] += units
				}
				finished[pid] = true
				progress = true
			}
		}
		if !progress {
			break
		}
	}
	for pid := range a.procs {
		if !finished[pid] {
			return false
		}
	}
	return true
}

// CheckDeadlock builds the wait-for graph (edge a→b when a has a pending
// request only satisfiable by units b holds) and returns the pids on any
// cycle.
func (a *Arbiter) CheckDeadlock() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	edges := make(map[string][]string)
	for pid, req := range a.pending {
		r, ok := a.resources[req.Resource]
		if !ok || req.Units <= r.Available {
			continue
		}
		for holder, units := range r.Allocated {
			if holder != pid && units > 0 {
				edges[pid] = append(edges[pid], holder)
			}
		}
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int)
	cycle := make(map[string]struct{})

	var visit func(pid string) bool
	visit = func(pid string) bool {
		state[pid] = inStack
		for _, next := range edges[pid] {
			switch state[next] {
			case inStack:
				cycle[pid] = struct{}{}
				cycle[next] = struct{}{}
				return true
			case unvisited:
				if visit(next) {
					cycle[pid] = struct{}{}
					return true
				}
			}
		}
		state[pid] = done
		return false
	}
	for pid := range edges {
		if state[pid] == unvisited {
			visit(pid)
		}
	}

	members := make([]string, 0, len(cycle))
	for pid := range cycle {
		members = append(members, pid)
	}
	sort.Strings(members)
	return members
}

// ResourceSnapshot describes one pool for the status endpoint.
type ResourceSnapshot struct {
	Name        string         `json:"name"`
	Kind        string         `json:"kind"`
	Total       int            `json:"total"`
	Available   int            `json:"available"`
	Allocations map[string]int `json:"allocations"`
}

// Stats is the arbiter snapshot for the status endpoint.
type Stats struct {
	Resources []ResourceSnapshot `json:"resources"`
	Processes int                `json:"processes"`
	SafeState bool               `json:"safe_state"`
}

func (a *Arbiter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Stats{Processes: len(a.procs), SafeState: a.safeLocked()}
	names := make([]string, 0, len(a.resources))
	for name := range a.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := a.resources[name]
		alloc := make(map[string]int, len(r.Allocated))
		for pid, units := range r.Allocated {
			alloc[pid] = units
		}
		s.Resources = append(s.Resources, ResourceSnapshot{
			Name:        r.Name,
			Kind:        r.Kind,
			Total:       r.Total,
			Available:   r.Available,
			Allocations: alloc,
		})
	}
	return s
}
