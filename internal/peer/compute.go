package peer

import (
	"time"

	"go.uber.org/zap"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/cache"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/history"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/sched"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// handleCPUTask is the executor-side admission path: quota, cache lookup,
// scheduler enqueue, then a synchronous wait for the result.
func (p *Peer) handleCPUTask(raw []byte) (any, error) {
	req, err := wire.Decode[wire.TaskRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	task := req.Task
	if task.ID == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "task_id required")
	}
	if req.Dispatch && !task.Confidential && p.opts.TrackerAddr != "" {
		return p.dispatchRemote(&task), nil
	}
	return p.runTask(&task), nil
}

// runTask admits and executes one task locally, returning its CPU_RESULT.
func (p *Peer) runTask(task *types.Task) wire.TaskResult {
	executedBy := p.opts.Addr.String()
	requester := task.SourcePeer
	if requester == "" {
		requester = executedBy
	}

	if err := p.ledger.AdmitTask(); err != nil {
		p.hist.Append(history.Record{
			TaskID:     task.ID,
			TaskType:   wire.TypeCPUTask,
			Status:     types.TaskFailed,
			Role:       types.RoleExecutor,
			Error:      err.Error(),
			ExecutedBy: executedBy,
			Requester:  requester,
		})
		return resultFromError(task.ID, err, executedBy)
	}

	fp := cache.Fingerprint(task.Program, task.Function, task.Args)
	if value, ok := p.cache.Get(fp); ok {
		p.metrics.CacheHits.Inc()
		p.hist.Append(history.Record{
			TaskID:     task.ID,
			TaskType:   wire.TypeCPUTask,
			Status:     types.TaskCompleted,
			Role:       types.RoleExecutor,
			Result:     history.Summarize(value),
			ExecutedBy: executedBy,
			Requester:  requester,
			CacheHit:   true,
		})
		return wire.TaskResult{
			Type:       wire.TypeCPUResult,
			TaskID:     task.ID,
			Result:     value,
			Status:     string(types.TaskCompleted),
			ExecutedBy: executedBy,
			CacheHit:   true,
		}
	}
	p.metrics.CacheMisses.Inc()

	done := make(chan sched.Result, 1)
	p.sched.Submit(task, func(res sched.Result) { done <- res })
	p.metrics.QueueDepth.Set(p.sched.Load())

	// The scheduler enforces the task timeout itself; the extra margin here
	// only guards against a wedged dispatch worker.
	limit := task.Timeout(p.opts.TaskTimeout) + p.opts.TaskTimeout
	var res sched.Result
	select {
	case res = <-done:
	case <-time.After(limit):
		res = sched.Result{
			TaskID: task.ID,
			Status: types.TaskTimedOut,
			Err:    wire.Errorf(wire.CodeTimedOut, "task %s timed out in queue", task.ID),
		}
	}

	p.metrics.TasksExecuted.WithLabelValues(string(res.Status)).Inc()
	p.metrics.QueueDepth.Set(p.sched.Load())

	rec := history.Record{
		TaskID:     task.ID,
		TaskType:   wire.TypeCPUTask,
		Status:     res.Status,
		Role:       types.RoleExecutor,
		ExecSec:    res.Exec.Seconds(),
		ExecutedBy: executedBy,
		Requester:  requester,
	}
	out := wire.TaskResult{
		Type:       wire.TypeCPUResult,
		TaskID:     task.ID,
		Status:     string(res.Status),
		ExecutedBy: executedBy,
		ExecSec:    res.Exec.Seconds(),
		WaitSec:    res.Wait.Seconds(),
		TurnSec:    res.Turnaround.Seconds(),
	}
	if res.Status == types.TaskCompleted {
		out.Result = res.Value
		rec.Result = history.Summarize(res.Value)
		p.cache.Put(fp, res.Value)
	} else if res.Err != nil {
		out.Error = res.Err.Error()
		out.Code = codeForStatus(res.Status, res.Err)
		rec.Error = res.Err.Error()
	}
	p.hist.Append(rec)
	return out
}

func codeForStatus(status types.TaskStatus, err error) string {
	switch status {
	case types.TaskTimedOut:
		return wire.CodeTimedOut
	case types.TaskCancelled:
		return wire.CodeCancelled
	}
	if werr, ok := err.(*wire.Error); ok {
		return werr.Code
	}
	return ""
}

func resultFromError(taskID string, err error, executedBy string) wire.TaskResult {
	out := wire.TaskResult{
		Type:       wire.TypeCPUResult,
		TaskID:     taskID,
		Status:     string(types.TaskFailed),
		Error:      err.Error(),
		ExecutedBy: executedBy,
	}
	if werr, ok := err.(*wire.Error); ok {
		out.Code = werr.Code
	}
	return out
}

// handleBatchTask executes a batch member-wise: results preserve submission
// order and one member's failure does not fail the rest.
func (p *Peer) handleBatchTask(raw []byte) (any, error) {
	req, err := wire.Decode[wire.BatchRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if len(req.Tasks) == 0 {
		return nil, wire.Errorf(wire.CodeBadRequest, "no tasks provided")
	}
	results := make([]wire.TaskResult, 0, len(req.Tasks))
	for i := range req.Tasks {
		task := req.Tasks[i]
		if task.ID == "" {
			results = append(results, resultFromError("",
				wire.Errorf(wire.CodeBadRequest, "batch member %d has no task_id", i), p.opts.Addr.String()))
			continue
		}
		results = append(results, p.runTask(&task))
	}
	return wire.BatchResponse{Type: wire.TypeBatchResult, Results: results}, nil
}

func (p *Peer) handleCancelTask(raw []byte) (any, error) {
	req, err := wire.Decode[wire.CancelRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.TaskID == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "task_id required")
	}
	state := p.sched.Cancel(req.TaskID)
	switch state {
	case "cancelled":
		p.log.Info("task cancelled", zap.String("task_id", req.TaskID))
	case "running":
		p.log.Info("cancel recorded for running task; execution continues",
			zap.String("task_id", req.TaskID))
	}
	return wire.TaskResult{
		Type:   wire.TypeCPUResult,
		TaskID: req.TaskID,
		Status: state,
	}, nil
}

func (p *Peer) handleTaskHistory(raw []byte) (any, error) {
	req, err := wire.Decode[wire.HistoryRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.TaskID != "" {
		rec, ok := p.hist.Get(req.TaskID)
		if !ok {
			return nil, wire.Errorf(wire.CodeBadRequest, "no history for task %s", req.TaskID)
		}
		return struct {
			Type   string         `json:"type"`
			Record history.Record `json:"record"`
		}{Type: wire.TypeTaskHistory, Record: rec}, nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	return struct {
		Type    string           `json:"type"`
		Records []history.Record `json:"records"`
		Stats   history.Stats    `json:"statistics"`
	}{
		Type:    wire.TypeTaskHistory,
		Records: p.hist.Recent(limit, req.TaskType),
		Stats:   p.hist.Stats(),
	}, nil
}
