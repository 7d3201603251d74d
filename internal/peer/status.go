package peer

import (
	"encoding/json"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// handleStatus assembles the composite status from each subsystem's
// lock-guarded snapshot. No two subsystem locks are held at once.
func (p *Peer) handleStatus() (any, error) {
	subsystems := map[string]any{
		"peer": map[string]string{
			"identity": p.opts.Identity,
			"address":  p.opts.Addr.String(),
		},
		"scheduler": p.sched.Stats(),
		"memory":    p.mem.Stats(),
		"storage":   p.files.Stats(),
		"owned":     p.owned.Stats(),
		"executor":  p.exec.Stats(),
		"history":   p.hist.Stats(),
		"cache":     p.cache.Stats(),
		"quota":     p.ledger.Usage(),
		"processes": p.procs.Stats(),
		"resources": p.arbiter.Stats(),
		"allocator": p.alloc.Fragmentation(),
		"ipc":       p.ipc.Stats(),
	}
	encoded := make(map[string]json.RawMessage, len(subsystems))
	for name, snap := range subsystems {
		data, err := json.Marshal(snap)
		if err != nil {
			return nil, wire.Errorf(wire.CodeInternal, "failed to encode %s status: %v", name, err)
		}
		encoded[name] = data
	}
	return wire.StatusResponse{Type: wire.TypeStatus, Subsystems: encoded}, nil
}
