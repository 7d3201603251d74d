package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/types"
	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

// startTestServer runs a tracker on a loopback port and returns its
// address.
func startTestServer(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "owned_files.json")
	registry, err := NewRegistry(path, 30*time.Second, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(registry, time.Second, 0, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.ListenAndServe(ctx, "127.0.0.1:0")

	deadline := time.Now().Add(5 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("tracker did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return srv.Addr()
}

func TestServerRegisterAndBestPeer(t *testing.T) {
	addr := startTestServer(t)
	ctx := context.Background()

	for _, reg := range []wire.RegisterRequest{
		{Type: wire.TypeRegister, Identity: "A", Addr: types.Addr{Host: "10.0.0.1", Port: 9001}, Load: 3},
		{Type: wire.TypeRegister, Identity: "B", Addr: types.Addr{Host: "10.0.0.2", Port: 9002}, Load: 1},
	} {
		if err := wire.Call(ctx, addr, reg, nil); err != nil {
			t.Fatal(err)
		}
	}

	var resp wire.BestPeerResponse
	err := wire.Call(ctx, addr, wire.BestPeerRequest{
		Type: wire.TypeRequestBestPeer, Identity: "A", ExcludeSelf: true,
	}, &resp)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Found || resp.Identity != "B" {
		t.Errorf("best peer = %+v", resp)
	}
}

func TestServerErrorsCarryCodes(t *testing.T) {
	addr := startTestServer(t)
	ctx := context.Background()

	err := wire.Call(ctx, addr, wire.UpdateLoadRequest{
		Type: wire.TypeUpdateLoad, Identity: "ghost", Load: 1,
	}, nil)
	werr, ok := err.(*wire.Error)
	if !ok || werr.Code != wire.CodeBadRequest {
		t.Errorf("expected BAD_REQUEST, got %v", err)
	}

	err = wire.Call(ctx, addr, wire.OwnedFileLookupRequest{
		Type: wire.TypeFindOwnedFile, Filename: "nope", RequesterID: "I",
	}, nil)
	werr, ok = err.(*wire.Error)
	if !ok || werr.Code != wire.CodeUnknownFile {
		t.Errorf("expected UNKNOWN_FILE, got %v", err)
	}

	err = wire.Call(ctx, addr, map[string]string{"type": "BOGUS"}, nil)
	werr, ok = err.(*wire.Error)
	if !ok || werr.Code != wire.CodeBadRequest {
		t.Errorf("expected BAD_REQUEST for unknown type, got %v", err)
	}
}

func TestServerStatus(t *testing.T) {
	addr := startTestServer(t)
	ctx := context.Background()

	if err := wire.Call(ctx, addr, wire.RegisterRequest{
		Type: wire.TypeRegister, Identity: "A",
		Addr: types.Addr{Host: "h", Port: 1},
	}, nil); err != nil {
		t.Fatal(err)
	}

	var resp wire.TrackerStatusResponse
	if err := wire.Call(ctx, addr, wire.StatusRequest{Type: wire.TypeTrackerStatus}, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.PeerCount != 1 || len(resp.Peers) != 1 || resp.Peers[0].Identity != "A" {
		t.Errorf("status = %+v", resp)
	}
}
