package peer

import (
	"encoding/json"
	"time"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/osim/ipc"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/sched"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// route is the peer's dispatch table. Every handler produces exactly one
// response value or an error that the caller converts to an ERROR message.
func (p *Peer) route(msgType string, raw []byte) (any, error) {
	switch msgType {
	// Compute.
	case wire.TypeCPUTask:
		return p.handleCPUTask(raw)
	case wire.TypeBatchTask:
		return p.handleBatchTask(raw)
	case wire.TypeCancelTask:
		return p.handleCancelTask(raw)
	case wire.TypeTaskHistory:
		return p.handleTaskHistory(raw)
	case wire.TypeSetScheduler:
		return p.handleSetScheduler(raw)

	// Memory store. Remote variants are the same handlers: remote memory is
	// a proxied call against this peer's local store.
	case wire.TypeSetMem, wire.TypeSetMemRemote:
		return p.handleSetMem(raw)
	case wire.TypeGetMem, wire.TypeGetMemRemote:
		return p.handleGetMem(raw)
	case wire.TypeDelMem:
		return p.handleDelMem(raw)
	case wire.TypeListMem:
		return p.handleListMem()

	// Files.
	case wire.TypePutFile:
		return p.handlePutFile(raw)
	case wire.TypeGetFile:
		return p.handleGetFile(raw)
	case wire.TypeListFile:
		return p.handleListFile()
	case wire.TypeDeleteFile:
		return p.handleDeleteFile(raw)
	case wire.TypeGetFileChunk:
		return p.handleGetFileChunk(raw)
	case wire.TypeDownloadFile:
		return p.handleDownloadFile(raw)

	// Ownership.
	case wire.TypeUploadToPeer:
		return p.handleUploadToPeer(raw)
	case wire.TypeGetOwnedFile:
		return p.handleGetOwnedFile(raw)
	case wire.TypeDeleteOwnedFile:
		return p.handleDeleteOwnedStored(raw)
	case wire.TypeUploadOwnedFile:
		return p.handleUploadOwnedFile(raw)
	case wire.TypeDownloadOwnedFile:
		return p.handleDownloadOwnedFile(raw)
	case wire.TypeRemoveOwnedFile:
		return p.handleRemoveOwnedFile(raw)
	case wire.TypeListOwnedFiles:
		return p.handleListOwnedFiles()

	// OS simulation.
	case wire.TypeCreateProcess:
		return p.handleCreateProcess(raw)
	case wire.TypeTerminateProcess:
		return p.handleTerminateProcess(raw)
	case wire.TypeProcessTree:
		return p.handleProcessTree(raw)
	case wire.TypeCreateGroup:
		return p.handleCreateGroup(raw)
	case wire.TypeKillGroup:
		return p.handleKillGroup(raw)
	case wire.TypeRequestResource:
		return p.handleRequestResource(raw)
	case wire.TypeReleaseResource:
		return p.handleReleaseResource(raw)
	case wire.TypeCheckDeadlock:
		return p.handleCheckDeadlock()
	case wire.TypeAllocMem:
		return p.handleAllocMem(raw)
	case wire.TypeFreeMem:
		return p.handleFreeMem(raw)
	case wire.TypeFragInfo:
		return p.handleFragInfo()
	case wire.TypeCreateQueue, wire.TypeSendMsg, wire.TypeRecvMsg,
		wire.TypeCreateSem, wire.TypeWaitSem, wire.TypeSignalSem:
		return p.handleIPC(msgType, raw)

	case wire.TypeStatus:
		return p.handleStatus()
	}
	return nil, wire.Errorf(wire.CodeBadRequest, "unknown message type %q", msgType)
}

// Memory handlers.

func (p *Peer) handleSetMem(raw []byte) (any, error) {
	req, err := wire.Decode[wire.MemRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.Key == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "key required for SET_MEM")
	}
	if _, exists := p.mem.Get(req.Key); !exists {
		if err := p.ledger.CheckKeys(p.mem.Len()); err != nil {
			return nil, err
		}
	}
	p.mem.Set(req.Key, req.Value)
	return wire.NewAck(wire.TypeSetMem), nil
}

func (p *Peer) handleGetMem(raw []byte) (any, error) {
	req, err := wire.Decode[wire.MemRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.Key == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "key required for GET_MEM")
	}
	value, found := p.mem.Get(req.Key)
	if !found {
		return nil, wire.Errorf(wire.CodeUnknownKey, "key %s not found", req.Key)
	}
	return wire.MemResponse{Type: wire.TypeGetMem, Key: req.Key, Value: value, Found: true}, nil
}

func (p *Peer) handleDelMem(raw []byte) (any, error) {
	req, err := wire.Decode[wire.MemRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.Key == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "key required for DEL_MEM")
	}
	if !p.mem.Delete(req.Key) {
		return nil, wire.Errorf(wire.CodeUnknownKey, "key %s not found", req.Key)
	}
	return wire.NewAck(wire.TypeDelMem), nil
}

func (p *Peer) handleListMem() (any, error) {
	return wire.MemResponse{Type: wire.TypeListMem, Keys: p.mem.Keys(), Found: true}, nil
}

// OS simulation handlers.

func (p *Peer) handleCreateProcess(raw []byte) (any, error) {
	req, err := wire.Decode[wire.CreateProcessRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	pid, err := p.procs.Create(req.TaskID, req.ParentPID, req.GroupID)
	if err != nil {
		return nil, err
	}
	detail, _ := json.Marshal(map[string]string{"pid": pid})
	return wire.Ack{Type: wire.TypeCreateProcess, OK: true, Detail: detail}, nil
}

func (p *Peer) handleTerminateProcess(raw []byte) (any, error) {
	req, err := wire.Decode[wire.ProcessRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.PID == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "pid required")
	}
	if err := p.procs.Terminate(req.PID); err != nil {
		return nil, err
	}
	return wire.NewAck(wire.TypeTerminateProcess), nil
}

func (p *Peer) handleProcessTree(raw []byte) (any, error) {
	req, err := wire.Decode[wire.ProcessRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	roots, total, err := p.procs.TreeOf(req.PID)
	if err != nil {
		return nil, err
	}
	tree, err := json.Marshal(roots)
	if err != nil {
		return nil, wire.Errorf(wire.CodeInternal, "failed to encode tree: %v", err)
	}
	return wire.ProcessTreeResponse{Type: wire.TypeProcessTree, Tree: tree, Total: total}, nil
}

func (p *Peer) handleCreateGroup(raw []byte) (any, error) {
	var req struct {
		GroupID string   `json:"group_id"`
		PIDs    []string `json:"pids"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.GroupID == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "group_id required")
	}
	if err := p.procs.AssignGroup(req.GroupID, req.PIDs); err != nil {
		return nil, err
	}
	return wire.NewAck(wire.TypeCreateGroup), nil
}

func (p *Peer) handleKillGroup(raw []byte) (any, error) {
	req, err := wire.Decode[wire.ProcessRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.GroupID == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "group_id required")
	}
	count := p.procs.KillGroup(req.GroupID)
	detail, _ := json.Marshal(map[string]int{"terminated": count})
	return wire.Ack{Type: wire.TypeKillGroup, OK: true, Detail: detail}, nil
}

func (p *Peer) handleRequestResource(raw []byte) (any, error) {
	req, err := wire.Decode[wire.ResourceRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.PID == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "pid required")
	}
	if len(req.MaxNeed) > 0 {
		p.arbiter.RegisterProcess(req.PID, req.MaxNeed)
		if req.Resource == "" {
			return wire.NewAck(wire.TypeRequestResource), nil
		}
	}
	if err := p.arbiter.Request(req.PID, req.Resource, req.Units); err != nil {
		return nil, err
	}
	return wire.NewAck(wire.TypeRequestResource), nil
}

func (p *Peer) handleReleaseResource(raw []byte) (any, error) {
	req, err := wire.Decode[wire.ResourceRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if err := p.arbiter.Release(req.PID, req.Resource, req.Units); err != nil {
		return nil, err
	}
	return wire.NewAck(wire.TypeReleaseResource), nil
}

func (p *Peer) handleCheckDeadlock() (any, error) {
	cycle := p.arbiter.CheckDeadlock()
	return wire.DeadlockResponse{
		Type:       wire.TypeCheckDeadlock,
		Deadlocked: len(cycle) > 0,
		Cycle:      cycle,
	}, nil
}

func (p *Peer) handleAllocMem(raw []byte) (any, error) {
	req, err := wire.Decode[wire.AllocRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if req.PID == "" {
		return nil, wire.Errorf(wire.CodeBadRequest, "pid required")
	}
	offset, err := p.alloc.Allocate(req.PID, req.Size)
	if err != nil {
		return nil, err
	}
	return wire.AllocResponse{Type: wire.TypeAllocMem, PID: req.PID, Offset: offset, Size: req.Size}, nil
}

func (p *Peer) handleFreeMem(raw []byte) (any, error) {
	req, err := wire.Decode[wire.AllocRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	if err := p.alloc.Deallocate(req.PID); err != nil {
		return nil, err
	}
	return wire.NewAck(wire.TypeFreeMem), nil
}

func (p *Peer) handleFragInfo() (any, error) {
	info := p.alloc.Fragmentation()
	detail, _ := json.Marshal(info)
	return wire.Ack{Type: wire.TypeFragInfo, OK: true, Detail: detail}, nil
}

// handleIPC serves the message-queue and semaphore operations.
func (p *Peer) handleIPC(msgType string, raw []byte) (any, error) {
	req, err := wire.Decode[wire.IPCRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	switch msgType {
	case wire.TypeCreateQueue:
		if req.QueueID == "" {
			return nil, wire.Errorf(wire.CodeBadRequest, "queue_id required")
		}
		if err := p.ipc.CreateQueue(req.QueueID, req.Capacity); err != nil {
			return nil, err
		}
		return wire.IPCResponse{Type: msgType, OK: true}, nil

	case wire.TypeSendMsg:
		if req.QueueID == "" || req.PID == "" {
			return nil, wire.Errorf(wire.CodeBadRequest, "queue_id and pid required")
		}
		q, err := p.ipc.Queue(req.QueueID)
		if err != nil {
			return nil, err
		}
		receiver := req.Receiver
		if receiver == "" {
			receiver = "*"
		}
		msg := ipc.Message{Sender: req.PID, Receiver: receiver, Payload: req.Payload}
		if err := q.Send(msg, req.Block); err != nil {
			return nil, err
		}
		return wire.IPCResponse{Type: msgType, OK: true}, nil

	case wire.TypeRecvMsg:
		if req.QueueID == "" || req.PID == "" {
			return nil, wire.Errorf(wire.CodeBadRequest, "queue_id and pid required")
		}
		q, err := p.ipc.Queue(req.QueueID)
		if err != nil {
			return nil, err
		}
		timeout := time.Duration(req.Timeout) * time.Second
		msg, ok := q.Receive(req.PID, timeout)
		if !ok {
			return nil, wire.Errorf(wire.CodeTimedOut, "no message for %s in queue %s", req.PID, req.QueueID)
		}
		return wire.IPCResponse{Type: msgType, OK: true, Message: msg.Payload, Sender: msg.Sender}, nil

	case wire.TypeCreateSem:
		if req.SemID == "" {
			return nil, wire.Errorf(wire.CodeBadRequest, "sem_id required")
		}
		if err := p.ipc.CreateSemaphore(req.SemID, req.Initial); err != nil {
			return nil, err
		}
		return wire.IPCResponse{Type: msgType, OK: true, Value: req.Initial}, nil

	case wire.TypeWaitSem:
		if req.SemID == "" || req.PID == "" {
			return nil, wire.Errorf(wire.CodeBadRequest, "sem_id and pid required")
		}
		sem, err := p.ipc.Semaphore(req.SemID)
		if err != nil {
			return nil, err
		}
		granted := sem.Wait(req.PID)
		if !granted {
			_ = p.procs.SetState(req.PID, types.ProcWaiting)
		}
		return wire.IPCResponse{Type: msgType, OK: true, Granted: granted, Value: sem.Value()}, nil

	case wire.TypeSignalSem:
		if req.SemID == "" {
			return nil, wire.Errorf(wire.CodeBadRequest, "sem_id required")
		}
		sem, err := p.ipc.Semaphore(req.SemID)
		if err != nil {
			return nil, err
		}
		if woken, ok := sem.Signal(); ok {
			_ = p.procs.SetState(woken, types.ProcReady)
		}
		return wire.IPCResponse{Type: msgType, OK: true, Value: sem.Value()}, nil
	}
	return nil, wire.Errorf(wire.CodeBadRequest, "unknown IPC message %q", msgType)
}

func (p *Peer) handleSetScheduler(raw []byte) (any, error) {
	req, err := wire.Decode[wire.SetSchedulerRequest](raw)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	d, err := sched.ParseDiscipline(req.Algorithm)
	if err != nil {
		return nil, wire.Errorf(wire.CodeBadRequest, "%v", err)
	}
	p.sched.SetDiscipline(d)
	return wire.NewAck(wire.TypeSetScheduler), nil
}
