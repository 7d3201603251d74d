package peer

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/history"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// dispatchRemote forwards a task to the least-loaded peer the tracker
// names, retrying with exponential backoff and jitter when the call fails
// (the peer is unreachable or answers with an ERROR frame). Each retry asks
// the tracker again and may land on a peer that was already tried.
func (p *Peer) dispatchRemote(task *types.Task) wire.TaskResult {
	attempts := task.MaxRetries + 1
	tried := make(map[string]struct{})
	backoff := 200 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			p.metrics.DispatchRetries.Inc()
			jitter := time.Duration(rand.Int63n(int64(backoff / 2)))
			time.Sleep(backoff + jitter)
			backoff *= 2
		}

		target, ok := p.pickTarget(tried)
		if !ok {
			lastErr = wire.Errorf(wire.CodeUnavailable, "no peers available for dispatch")
			continue
		}
		tried[target.Addr.String()] = struct{}{}

		p.log.Info("dispatching task",
			zap.String("task_id", task.ID),
			zap.String("target", target.Addr.String()),
			zap.Int("attempt", attempt+1))

		forward := *task
		forward.SourcePeer = p.opts.Addr.String()

		ctx, cancel := context.WithTimeout(context.Background(),
			forward.Timeout(p.opts.TaskTimeout)+p.opts.SocketTimeout)
		var result wire.TaskResult
		err := wire.Call(ctx, target.Addr.String(), wire.TaskRequest{
			Type: wire.TypeCPUTask,
			Task: forward,
		}, &result)
		cancel()
		if err != nil {
			// Call failed (transport error or ERROR response): reselect via the tracker.
			p.log.Warn("dispatch attempt failed",
				zap.String("task_id", task.ID),
				zap.String("target", target.Addr.String()),
				zap.Error(err))
			lastErr = err
			continue
		}

		if result.ExecutedBy == "" {
			result.ExecutedBy = target.Addr.String()
		}
		status := types.TaskStatus(result.Status)
		p.hist.Append(history.Record{
			TaskID:     task.ID,
			TaskType:   wire.TypeCPUTask,
			Status:     status,
			Role:       types.RoleRequester,
			ExecSec:    result.ExecSec,
			Error:      result.Error,
			Result:     history.Summarize(result.Result),
			ExecutedBy: result.ExecutedBy,
			Requester:  p.opts.Addr.String(),
		})
		return result
	}

	if lastErr == nil {
		lastErr = wire.Errorf(wire.CodeUnavailable, "dispatch failed")
	}
	p.hist.Append(history.Record{
		TaskID:    task.ID,
		TaskType:  wire.TypeCPUTask,
		Status:    types.TaskFailed,
		Role:      types.RoleRequester,
		Error:     lastErr.Error(),
		Requester: p.opts.Addr.String(),
	})
	return resultFromError(task.ID, lastErr, "")
}

// pickTarget asks the tracker for the best peer other than this one. The
// tracker's answer is used even when that peer was already tried this
// dispatch; no other candidate is looked for.
func (p *Peer) pickTarget(tried map[string]struct{}) (types.PeerRecord, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.SocketTimeout)
	defer cancel()
	var resp wire.BestPeerResponse
	err := wire.Call(ctx, p.opts.TrackerAddr, wire.BestPeerRequest{
		Type:        wire.TypeRequestBestPeer,
		Identity:    p.opts.Identity,
		ExcludeSelf: true,
	}, &resp)
	if err != nil || !resp.Found {
		return types.PeerRecord{}, false
	}
	rec := types.PeerRecord{Identity: resp.Identity, Addr: resp.Addr, Load: resp.Load}
	if _, seen := tried[rec.Addr.String()]; seen {
		// The tracker keeps naming the same peer; accept it rather than
		// stall, since its load may legitimately be lowest.
		return rec, true
	}
	return rec, true
}
