package wire

import (
	"encoding/json"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
)

// Message type tags. Tracker-bound and peer-bound types share one namespace;
// the recipient routes by tag.
const (
	// Tracker directory.
	TypeRegister          = "REGISTER"
	TypeUnregister        = "UNREGISTER"
	TypeUpdateLoad        = "UPDATE_LOAD"
	TypeRequestBestPeer   = "REQUEST_BEST_PEER"
	TypeRegisterFile      = "REGISTER_FILE"
	TypeUnregisterFile    = "UNREGISTER_FILE"
	TypeFindFile          = "FIND_FILE"
	TypeRegisterOwnedFile = "REGISTER_OWNED_FILE"
	TypeFindOwnedFile     = "FIND_OWNED_FILE"
	TypeDeleteOwnedFile   = "DELETE_OWNED_FILE"
	TypeTrackerStatus     = "TRACKER_STATUS"

	// Compute.
	TypeCPUTask      = "CPU_TASK"
	TypeCPUResult    = "CPU_RESULT"
	TypeBatchTask    = "BATCH_TASK"
	TypeBatchResult  = "BATCH_RESULT"
	TypeCancelTask   = "CANCEL_TASK"
	TypeTaskHistory  = "TASK_HISTORY"
	TypeSetScheduler = "SET_SCHEDULER"

	// Memory store.
	TypeSetMem       = "SET_MEM"
	TypeGetMem       = "GET_MEM"
	TypeDelMem       = "DEL_MEM"
	TypeListMem      = "LIST_MEM"
	TypeSetMemRemote = "SET_MEM_REMOTE"
	TypeGetMemRemote = "GET_MEM_REMOTE"

	// Files.
	TypePutFile      = "PUT_FILE"
	TypeGetFile      = "GET_FILE"
	TypeListFile     = "LIST_FILE"
	TypeDeleteFile   = "DELETE_FILE"
	TypeGetFileChunk = "GET_FILE_CHUNK"
	TypeDownloadFile = "DOWNLOAD_FILE"

	// Ownership.
	TypeUploadToPeer      = "UPLOAD_TO_PEER"
	TypeGetOwnedFile      = "GET_OWNED_FILE"
	TypeUploadOwnedFile   = "UPLOAD_OWNED_FILE"
	TypeDownloadOwnedFile = "DOWNLOAD_OWNED_FILE"
	TypeRemoveOwnedFile   = "REMOVE_OWNED_FILE"
	TypeListOwnedFiles    = "LIST_OWNED_FILES"

	// OS simulation.
	TypeCreateProcess    = "CREATE_PROCESS"
	TypeTerminateProcess = "TERMINATE_PROCESS"
	TypeProcessTree      = "PROCESS_TREE"
	TypeCreateGroup      = "CREATE_GROUP"
	TypeKillGroup        = "KILL_GROUP"
	TypeRequestResource  = "REQUEST_RESOURCE"
	TypeReleaseResource  = "RELEASE_RESOURCE"
	TypeCheckDeadlock    = "CHECK_DEADLOCK"
	TypeAllocMem         = "ALLOC_MEM"
	TypeFreeMem          = "FREE_MEM"
	TypeFragInfo         = "FRAG_INFO"
	TypeCreateQueue      = "CREATE_QUEUE"
	TypeSendMsg          = "SEND_MSG"
	TypeRecvMsg          = "RECV_MSG"
	TypeCreateSem        = "CREATE_SEM"
	TypeWaitSem          = "WAIT_SEM"
	TypeSignalSem        = "SIGNAL_SEM"

	TypeStatus = "STATUS"
	TypeError  = "ERROR"
)

// Tracker requests and responses.

type RegisterRequest struct {
	Type     string     `json:"type"`
	Identity string     `json:"identity"`
	Addr     types.Addr `json:"address"`
	Load     float64    `json:"load"`
}

type UnregisterRequest struct {
	Type     string `json:"type"`
	Identity string `json:"identity"`
}

type UpdateLoadRequest struct {
	Type     string  `json:"type"`
	Identity string  `json:"identity"`
	Load     float64 `json:"load"`
}

type BestPeerRequest struct {
	Type        string `json:"type"`
	Identity    string `json:"identity"`
	ExcludeSelf bool   `json:"exclude_self"`
}

type BestPeerResponse struct {
	Type     string     `json:"type"`
	Found    bool       `json:"found"`
	Identity string     `json:"identity,omitempty"`
	Addr     types.Addr `json:"address,omitempty"`
	Load     float64    `json:"load,omitempty"`
}

type FileAdvertRequest struct {
	Type     string `json:"type"`
	Identity string `json:"identity"`
	Filename string `json:"filename"`
}

type FindFileRequest struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
}

type FindFileResponse struct {
	Type      string       `json:"type"`
	Filename  string       `json:"filename"`
	Found     bool         `json:"found"`
	Addresses []types.Addr `json:"addresses"`
}

type RegisterOwnedFileRequest struct {
	Type            string     `json:"type"`
	Filename        string     `json:"filename"`
	OwnerID         string     `json:"owner_id"`
	OwnerAddr       types.Addr `json:"owner_address"`
	StorageIdentity string     `json:"storage_identity"`
	StorageAddr     types.Addr `json:"storage_address"`
}

type OwnedFileLookupRequest struct {
	Type        string `json:"type"`
	Filename    string `json:"filename"`
	RequesterID string `json:"requester_id"`
}

type OwnedFileLookupResponse struct {
	Type     string       `json:"type"`
	Filename string       `json:"filename"`
	Found    bool         `json:"found"`
	OwnerID  string       `json:"owner_id,omitempty"`
	Storage  []types.Addr `json:"storage_addresses,omitempty"`
}

type TrackerStatusResponse struct {
	Type       string             `json:"type"`
	PeerCount  int                `json:"peer_count"`
	Peers      []types.PeerRecord `json:"peers"`
	OwnedFiles int                `json:"owned_files"`
}

// Compute requests and responses.

type TaskRequest struct {
	Type string `json:"type"`
	types.Task
	// Dispatch asks the receiving peer to forward the task to the
	// least-loaded peer via the tracker instead of executing it itself.
	// Confidential tasks ignore it and always run locally.
	Dispatch bool `json:"dispatch,omitempty"`
}

type TaskResult struct {
	Type       string  `json:"type"`
	TaskID     string  `json:"task_id"`
	Result     any     `json:"result"`
	Error      string  `json:"error,omitempty"`
	Code       string  `json:"code,omitempty"`
	Status     string  `json:"status"`
	ExecutedBy string  `json:"executed_by,omitempty"`
	CacheHit   bool    `json:"cache_hit,omitempty"`
	ExecSec    float64 `json:"execution_time,omitempty"`
	WaitSec    float64 `json:"waiting_time,omitempty"`
	TurnSec    float64 `json:"turnaround_time,omitempty"`
}

type BatchRequest struct {
	Type  string       `json:"type"`
	Tasks []types.Task `json:"tasks"`
}

type BatchResponse struct {
	Type    string       `json:"type"`
	Results []TaskResult `json:"results"`
}

type CancelRequest struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
}

type HistoryRequest struct {
	Type     string `json:"type"`
	Limit    int    `json:"limit,omitempty"`
	TaskType string `json:"task_type,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
}

type SetSchedulerRequest struct {
	Type      string `json:"type"`
	Algorithm string `json:"algorithm"`
}

// Memory requests and responses.

type MemRequest struct {
	Type  string `json:"type"`
	Key   string `json:"key,omitempty"`
	Value any    `json:"value,omitempty"`
}

type MemResponse struct {
	Type  string   `json:"type"`
	Key   string   `json:"key,omitempty"`
	Value any      `json:"value,omitempty"`
	Found bool     `json:"found"`
	Keys  []string `json:"keys,omitempty"`
}

// File requests and responses. Data travels base64-encoded inside JSON.

type FileRequest struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Data     []byte `json:"data,omitempty"`
}

type FileResponse struct {
	Type     string   `json:"type"`
	Filename string   `json:"filename,omitempty"`
	Found    bool     `json:"found"`
	Data     []byte   `json:"data,omitempty"`
	Size     int64    `json:"size,omitempty"`
	Files    []string `json:"files,omitempty"`
}

type FileChunkRequest struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Offset   int64  `json:"offset"`
	Length   int64  `json:"length"`
}

// Ownership requests and responses.

type UploadToPeerRequest struct {
	Type      string     `json:"type"`
	Filename  string     `json:"filename"`
	Data      []byte     `json:"data"`
	OwnerID   string     `json:"owner_id"`
	OwnerAddr types.Addr `json:"owner_address"`
}

type OwnedFileRequest struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	OwnerID  string `json:"owner_id"`
}

type UploadOwnedRequest struct {
	Type        string `json:"type"`
	Filename    string `json:"filename"`
	Data        []byte `json:"data"`
	Replication int    `json:"replication,omitempty"`
}

type UploadOwnedResponse struct {
	Type    string       `json:"type"`
	Storage []types.Addr `json:"storage_peers"`
	Errors  []string     `json:"errors,omitempty"`
}

// OS simulation requests and responses.

type CreateProcessRequest struct {
	Type      string `json:"type"`
	ParentPID string `json:"parent_pid,omitempty"`
	GroupID   string `json:"group_id,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
}

type ProcessRequest struct {
	Type    string `json:"type"`
	PID     string `json:"pid,omitempty"`
	GroupID string `json:"group_id,omitempty"`
}

type ProcessTreeResponse struct {
	Type  string          `json:"type"`
	Tree  json.RawMessage `json:"tree"`
	Total int             `json:"total_processes"`
}

type ResourceRequest struct {
	Type     string         `json:"type"`
	PID      string         `json:"pid"`
	Resource string         `json:"resource,omitempty"`
	Units    int            `json:"units,omitempty"`
	MaxNeed  map[string]int `json:"max_need,omitempty"`
}

type DeadlockResponse struct {
	Type       string   `json:"type"`
	Deadlocked bool     `json:"deadlocked"`
	Cycle      []string `json:"cycle"`
}

type AllocRequest struct {
	Type string `json:"type"`
	PID  string `json:"pid"`
	Size int64  `json:"size,omitempty"`
}

type AllocResponse struct {
	Type   string `json:"type"`
	PID    string `json:"pid"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
}

type IPCRequest struct {
	Type     string `json:"type"`
	QueueID  string `json:"queue_id,omitempty"`
	SemID    string `json:"sem_id,omitempty"`
	PID      string `json:"pid,omitempty"`
	Receiver string `json:"receiver,omitempty"`
	Payload  any    `json:"payload,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
	Initial  int    `json:"initial,omitempty"`
	Timeout  int    `json:"timeout,omitempty"`
	Block    bool   `json:"block,omitempty"`
}

type IPCResponse struct {
	Type    string `json:"type"`
	OK      bool   `json:"ok"`
	Granted bool   `json:"granted,omitempty"`
	Value   int    `json:"value,omitempty"`
	Message any    `json:"message,omitempty"`
	Sender  string `json:"sender,omitempty"`
}

// Generic acknowledgement; Detail carries operation-specific extras.
type Ack struct {
	Type   string          `json:"type"`
	OK     bool            `json:"ok"`
	Detail json.RawMessage `json:"detail,omitempty"`
}

// StatusRequest asks a node for its composite status snapshot.
type StatusRequest struct {
	Type string `json:"type"`
}

// StatusResponse carries each subsystem's snapshot keyed by name.
type StatusResponse struct {
	Type       string                     `json:"type"`
	Subsystems map[string]json.RawMessage `json:"subsystems"`
}

// NewAck returns a positive acknowledgement for the given message type.
func NewAck(msgType string) Ack {
	return Ack{Type: msgType, OK: true}
}
