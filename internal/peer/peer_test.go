package peer

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/internal/tracker"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// startTracker runs an in-process tracker and returns its address.
func startTracker(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "owned_files.json")
	registry, err := tracker.NewRegistry(path, 30*time.Second, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	srv := tracker.NewServer(registry, time.Second, 0, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.ListenAndServe(ctx, "127.0.0.1:0")

	waitFor(t, func() bool { return srv.Addr() != "" })
	return srv.Addr()
}

// startPeer runs a peer on a loopback port. trackerAddr may be empty.
func startPeer(t *testing.T, identity, trackerAddr string, tweak func(*Options)) *Peer {
	t.Helper()
	opts := Options{
		Identity:          identity,
		Addr:              types.Addr{Host: "127.0.0.1", Port: 0},
		TrackerAddr:       trackerAddr,
		DataDir:           t.TempDir(),
		HeartbeatInterval: time.Second,
		TaskTimeout:       10 * time.Second,
		SocketTimeout:     5 * time.Second,
	}
	if tweak != nil {
		tweak(&opts)
	}
	p, err := New(opts, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		select {
		case <-p.Done():
		case <-time.After(5 * time.Second):
		}
	})
	go p.Start(ctx)
	waitFor(t, func() bool { return p.Addr().Port != 0 })
	// Give the registration round a moment to land.
	time.Sleep(50 * time.Millisecond)
	return p
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never became true")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func submit(t *testing.T, addr string, req wire.TaskRequest) wire.TaskResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var res wire.TaskResult
	if err := wire.Call(ctx, addr, req, &res); err != nil {
		t.Fatalf("task call failed: %v", err)
	}
	return res
}

func TestConfidentialLocalExecution(t *testing.T) {
	p := startPeer(t, "ident-conf", "", nil)

	res := submit(t, p.Addr().String(), wire.TaskRequest{
		Type: wire.TypeCPUTask,
		Task: types.Task{
			ID:           "t2",
			Program:      "f(x)=x+1",
			Function:     "increment",
			Args:         []any{10.0},
			Confidential: true,
		},
		Dispatch: true, // must be ignored for confidential tasks
	})
	if res.Status != string(types.TaskCompleted) || res.Result != 11.0 {
		t.Fatalf("result = %+v", res)
	}
	if res.ExecutedBy != p.Addr().String() {
		t.Errorf("executed_by = %s, want local", res.ExecutedBy)
	}
}

func TestCacheReplay(t *testing.T) {
	p := startPeer(t, "ident-cache", "", nil)
	task := types.Task{
		ID:       "t3",
		Program:  "f(x)=x*x",
		Function: "square",
		Args:     []any{7.0},
	}

	first := submit(t, p.Addr().String(), wire.TaskRequest{Type: wire.TypeCPUTask, Task: task})
	if first.Result != 49.0 || first.CacheHit {
		t.Fatalf("first run = %+v", first)
	}

	task.ID = "t3-replay"
	second := submit(t, p.Addr().String(), wire.TaskRequest{Type: wire.TypeCPUTask, Task: task})
	if second.Result != 49.0 || !second.CacheHit {
		t.Fatalf("replay = %+v", second)
	}
	// The replay never reached the scheduler.
	if st := p.sched.Stats(); st.Submitted != 1 {
		t.Errorf("scheduler saw %d submissions, want 1", st.Submitted)
	}
	if cs := p.cache.Stats(); cs.Hits < 1 {
		t.Errorf("cache stats = %+v", cs)
	}
}

func TestDispatchExecutesRemotely(t *testing.T) {
	trackerAddr := startTracker(t)
	a := startPeer(t, "ident-a", trackerAddr, nil)
	b := startPeer(t, "ident-b", trackerAddr, nil)

	res := submit(t, a.Addr().String(), wire.TaskRequest{
		Type: wire.TypeCPUTask,
		Task: types.Task{
			ID:       "t1",
			Program:  "f(x)=x*x",
			Function: "square",
			Args:     []any{7.0},
		},
		Dispatch: true,
	})
	if res.Status != string(types.TaskCompleted) || res.Result != 49.0 {
		t.Fatalf("result = %+v", res)
	}
	if res.ExecutedBy != b.Addr().String() {
		t.Errorf("executed_by = %s, want %s", res.ExecutedBy, b.Addr().String())
	}

	// Executor-side history on B, requester-side history on A.
	if rec, ok := b.hist.Get("t1"); !ok || rec.Role != types.RoleExecutor {
		t.Errorf("B history = %+v, %v", rec, ok)
	}
	if rec, ok := a.hist.Get("t1"); !ok || rec.Role != types.RoleRequester {
		t.Errorf("A history = %+v, %v", rec, ok)
	}
}

func TestQuotaExceeded(t *testing.T) {
	p := startPeer(t, "ident-quota", "", func(o *Options) {
		o.QuotaMaxTasks = 1
	})

	submit(t, p.Addr().String(), wire.TaskRequest{
		Type: wire.TypeCPUTask,
		Task: types.Task{ID: "q1", Function: "echo", Args: []any{"a"}},
	})
	res := submit(t, p.Addr().String(), wire.TaskRequest{
		Type: wire.TypeCPUTask,
		Task: types.Task{ID: "q2", Function: "echo", Args: []any{"b"}},
	})
	if res.Code != wire.CodeQuotaExceeded {
		t.Errorf("second submission = %+v, want QUOTA_EXCEEDED", res)
	}
}

func TestMemoryRoundTrips(t *testing.T) {
	p := startPeer(t, "ident-mem", "", nil)
	addr := p.Addr().String()
	ctx := context.Background()

	if err := wire.Call(ctx, addr, wire.MemRequest{Type: wire.TypeSetMem, Key: "k", Value: "v"}, nil); err != nil {
		t.Fatal(err)
	}
	var resp wire.MemResponse
	if err := wire.Call(ctx, addr, wire.MemRequest{Type: wire.TypeGetMem, Key: "k"}, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Value != "v" {
		t.Errorf("GET after SET = %v", resp.Value)
	}

	// Overwrite is last-write-wins.
	wire.Call(ctx, addr, wire.MemRequest{Type: wire.TypeSetMem, Key: "k", Value: "v2"}, nil)
	wire.Call(ctx, addr, wire.MemRequest{Type: wire.TypeGetMem, Key: "k"}, &resp)
	if resp.Value != "v2" {
		t.Errorf("overwrite = %v", resp.Value)
	}

	if err := wire.Call(ctx, addr, wire.MemRequest{Type: wire.TypeDelMem, Key: "k"}, nil); err != nil {
		t.Fatal(err)
	}
	err := wire.Call(ctx, addr, wire.MemRequest{Type: wire.TypeGetMem, Key: "k"}, &resp)
	if werr, ok := err.(*wire.Error); !ok || werr.Code != wire.CodeUnknownKey {
		t.Errorf("GET after DEL = %v, want UNKNOWN_KEY", err)
	}
}

func TestFileRoundTrips(t *testing.T) {
	p := startPeer(t, "ident-file", "", nil)
	addr := p.Addr().String()
	ctx := context.Background()
	data := []byte("file contents here")

	if err := wire.Call(ctx, addr, wire.FileRequest{Type: wire.TypePutFile, Filename: "n.txt", Data: data}, nil); err != nil {
		t.Fatal(err)
	}
	var resp wire.FileResponse
	if err := wire.Call(ctx, addr, wire.FileRequest{Type: wire.TypeGetFile, Filename: "n.txt"}, &resp); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(resp.Data, data) {
		t.Errorf("GET_FILE = %q", resp.Data)
	}

	if err := wire.Call(ctx, addr, wire.FileRequest{Type: wire.TypeDeleteFile, Filename: "n.txt"}, nil); err != nil {
		t.Fatal(err)
	}
	err := wire.Call(ctx, addr, wire.FileRequest{Type: wire.TypeGetFile, Filename: "n.txt"}, &resp)
	if werr, ok := err.(*wire.Error); !ok || werr.Code != wire.CodeUnknownFile {
		t.Errorf("GET after DELETE = %v, want UNKNOWN_FILE", err)
	}
}

func TestOwnedUploadDownloadDelete(t *testing.T) {
	trackerAddr := startTracker(t)
	owner := startPeer(t, "ident-owner", trackerAddr, nil)
	store := startPeer(t, "ident-store", trackerAddr, nil)
	plain := []byte("secret document body")
	ctx := context.Background()

	stored, errs := owner.UploadOwned(ctx, "doc", plain, 1)
	if len(stored) != 1 || stored[0] != store.Addr() {
		t.Fatalf("stored on %v (errs %v), want %v", stored, errs, store.Addr())
	}
	// The storage peer holds ciphertext, not the plaintext.
	cipher, err := store.owned.Load("doc")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(cipher, plain) {
		t.Error("storage peer holds plaintext")
	}

	// Owner round trip.
	got, err := owner.DownloadOwned(ctx, "doc")
	if err != nil || !bytes.Equal(got, plain) {
		t.Fatalf("DownloadOwned = %q, %v", got, err)
	}

	// A different identity is refused by the storage peer.
	var resp wire.FileResponse
	err = wire.Call(ctx, store.Addr().String(), wire.OwnedFileRequest{
		Type:     wire.TypeGetOwnedFile,
		Filename: "doc",
		OwnerID:  "ident-intruder",
	}, &resp)
	if werr, ok := err.(*wire.Error); !ok || werr.Code != wire.CodeNotOwner {
		t.Errorf("intruder read = %v, want NOT_OWNER", err)
	}

	// Owner-driven delete removes the blob and the tracker entry.
	if err := owner.RemoveOwned(ctx, "doc"); err != nil {
		t.Fatal(err)
	}
	if store.owned.Holds("doc") {
		t.Error("ciphertext survived delete")
	}
	if _, err := owner.DownloadOwned(ctx, "doc"); err == nil {
		t.Error("download succeeded after delete")
	}
}

// Owner migration: the owner re-registers from a new address and can still
// download and decrypt its file.
func TestOwnerMigration(t *testing.T) {
	trackerAddr := startTracker(t)
	oldOwner := startPeer(t, "ident-mig", trackerAddr, nil)
	store := startPeer(t, "ident-mig-store", trackerAddr, nil)
	plain := []byte("bytes that must survive relocation")
	ctx := context.Background()

	if stored, errs := oldOwner.UploadOwned(ctx, "doc", plain, 1); len(stored) != 1 {
		t.Fatalf("upload failed: %v %v", stored, errs)
	}
	_ = store

	// The owner comes back on a different port with the same identity.
	newOwner := startPeer(t, "ident-mig", trackerAddr, nil)
	got, err := newOwner.DownloadOwned(ctx, "doc")
	if err != nil {
		t.Fatalf("download after migration failed: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("decrypted bytes differ after migration")
	}
}

func TestChunkedNetworkDownload(t *testing.T) {
	trackerAddr := startTracker(t)
	seeder := startPeer(t, "ident-seed", trackerAddr, func(o *Options) {
		o.ChunkSize = 1024
	})
	fetcher := startPeer(t, "ident-fetch", trackerAddr, func(o *Options) {
		o.ChunkSize = 1024
	})

	// A file spanning several chunks with a ragged tail.
	data := make([]byte, 5*1024+37)
	for i := range data {
		data[i] = byte(i % 251)
	}
	ctx := context.Background()
	if err := wire.Call(ctx, seeder.Addr().String(), wire.FileRequest{
		Type: wire.TypePutFile, Filename: "big.bin", Data: data,
	}, nil); err != nil {
		t.Fatal(err)
	}

	got, err := fetcher.DownloadFromNetwork(ctx, "big.bin")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("reassembled file differs: %d vs %d bytes", len(got), len(data))
	}

	if _, err := fetcher.DownloadFromNetwork(ctx, "missing.bin"); err == nil {
		t.Error("download of unknown file should fail")
	}
}

func TestStatusComposite(t *testing.T) {
	p := startPeer(t, "ident-status", "", nil)
	ctx := context.Background()

	var resp wire.StatusResponse
	if err := wire.Call(ctx, p.Addr().String(), wire.StatusRequest{Type: wire.TypeStatus}, &resp); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"scheduler", "memory", "storage", "cache", "quota",
		"history", "processes", "resources", "allocator", "ipc"} {
		if _, ok := resp.Subsystems[key]; !ok {
			t.Errorf("status missing subsystem %q", key)
		}
	}
}

func TestBatchPreservesOrder(t *testing.T) {
	p := startPeer(t, "ident-batch", "", nil)
	ctx := context.Background()

	var resp wire.BatchResponse
	err := wire.Call(ctx, p.Addr().String(), wire.BatchRequest{
		Type: wire.TypeBatchTask,
		Tasks: []types.Task{
			{ID: "b1", Function: "square", Args: []any{2.0}},
			{ID: "b2", Function: "no-such-fn"},
			{ID: "b3", Function: "square", Args: []any{3.0}},
		},
	}, &resp)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("got %d results", len(resp.Results))
	}
	if resp.Results[0].TaskID != "b1" || resp.Results[1].TaskID != "b2" || resp.Results[2].TaskID != "b3" {
		t.Errorf("order not preserved: %+v", resp.Results)
	}
	if resp.Results[0].Result != 4.0 || resp.Results[2].Result != 9.0 {
		t.Errorf("member results wrong: %+v", resp.Results)
	}
	if resp.Results[1].Error == "" {
		t.Error("failing member should carry its error without failing the batch")
	}
}

func TestCancelUnknownTask(t *testing.T) {
	p := startPeer(t, "ident-cancel", "", nil)
	ctx := context.Background()

	var res wire.TaskResult
	err := wire.Call(ctx, p.Addr().String(), wire.CancelRequest{
		Type: wire.TypeCancelTask, TaskID: "never-submitted",
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != "unknown" {
		t.Errorf("cancel status = %q", res.Status)
	}
}
