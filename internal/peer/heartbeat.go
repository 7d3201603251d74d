package peer

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// registerWithTracker announces this peer's identity, address and load.
func (p *Peer) registerWithTracker(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.SocketTimeout)
	defer cancel()
	err := wire.Call(callCtx, p.opts.TrackerAddr, wire.RegisterRequest{
		Type:     wire.TypeRegister,
		Identity: p.opts.Identity,
		Addr:     p.opts.Addr,
		Load:     p.currentLoad(),
	}, nil)
	if err != nil {
		return err
	}
	p.log.Info("registered with tracker",
		zap.String("tracker", p.opts.TrackerAddr),
		zap.String("identity", p.opts.Identity))
	return nil
}

// heartbeatLoop reports the peer's load on a fixed interval. A failed
// UPDATE_LOAD for an unknown identity (tracker restarted, or this peer was
// evicted) falls back to a full re-register.
func (p *Peer) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(p.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			callCtx, cancel := context.WithTimeout(ctx, p.opts.SocketTimeout)
			err := wire.Call(callCtx, p.opts.TrackerAddr, wire.UpdateLoadRequest{
				Type:     wire.TypeUpdateLoad,
				Identity: p.opts.Identity,
				Load:     p.currentLoad(),
			}, nil)
			cancel()
			if err != nil {
				p.log.Debug("heartbeat failed, re-registering", zap.Error(err))
				if rerr := p.registerWithTracker(ctx); rerr != nil {
					p.log.Warn("re-registration failed", zap.Error(rerr))
				}
			}
		}
	}
}

// currentLoad is the scheduler load (queue length plus running weight) with
// a small host CPU component so an otherwise idle queue still reflects a
// busy machine.
func (p *Peer) currentLoad() float64 {
	load := p.sched.Load()
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		load += percents[0] / 100.0
	}
	return load
}
