package quota

import (
	"testing"
	"time"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

func isQuotaErr(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected QUOTA_EXCEEDED, got nil")
	}
	werr, ok := err.(*wire.Error)
	if !ok || werr.Code != wire.CodeQuotaExceeded {
		t.Fatalf("expected QUOTA_EXCEEDED, got %v", err)
	}
}

func TestSlidingWindow(t *testing.T) {
	l := New(2, 10, 1000, time.Hour)
	now := time.Now()
	l.now = func() time.Time { return now }

	if err := l.AdmitTask(); err != nil {
		t.Fatal(err)
	}
	if err := l.AdmitTask(); err != nil {
		t.Fatal(err)
	}
	isQuotaErr(t, l.AdmitTask())

	// Advance past the window; old submissions fall out.
	now = now.Add(time.Hour + time.Second)
	if err := l.AdmitTask(); err != nil {
		t.Errorf("window did not slide: %v", err)
	}
}

func TestKeyQuota(t *testing.T) {
	l := New(10, 2, 1000, time.Hour)
	if err := l.CheckKeys(1); err != nil {
		t.Fatal(err)
	}
	isQuotaErr(t, l.CheckKeys(2))
}

func TestStorageQuota(t *testing.T) {
	l := New(10, 10, 100, time.Hour)
	if err := l.ReserveStorage(60); err != nil {
		t.Fatal(err)
	}
	isQuotaErr(t, l.ReserveStorage(50))

	l.ReleaseStorage(60)
	if err := l.ReserveStorage(100); err != nil {
		t.Errorf("release did not free quota: %v", err)
	}
	if u := l.Usage(); u.StorageUsed != 100 {
		t.Errorf("usage = %+v", u)
	}
}
