package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := RegisterRequest{Type: TypeRegister, Identity: "abc", Load: 1.5}
	if err := WriteFrame(&buf, req); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	raw, err := ReadFrame(&buf, 0)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	got, err := Decode[RegisterRequest](raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Identity != "abc" || got.Load != 1.5 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 100)
	buf.Write(hdr[:])
	buf.WriteString("short")

	_, err := ReadFrame(&buf, 0)
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 1<<21)
	buf.Write(hdr[:])

	_, err := ReadFrame(&buf, 1<<20)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestPeekType(t *testing.T) {
	typ, err := PeekType([]byte(`{"type":"STATUS","extra":1}`))
	if err != nil || typ != "STATUS" {
		t.Errorf("PeekType = %q, %v", typ, err)
	}
	if _, err := PeekType([]byte(`{`)); err == nil {
		t.Error("expected error for undecodable payload")
	}
	if _, err := PeekType([]byte(`{"x":1}`)); err == nil {
		t.Error("expected error for missing type tag")
	}
}

func TestAsError(t *testing.T) {
	if werr := AsError([]byte(`{"type":"ERROR","code":"NOT_OWNER","error":"denied"}`)); werr == nil {
		t.Fatal("expected error")
	} else if werr.Code != CodeNotOwner {
		t.Errorf("code = %q", werr.Code)
	}
	// A task result carrying its own error field is not a protocol error.
	if werr := AsError([]byte(`{"type":"CPU_RESULT","error":"task failed"}`)); werr != nil {
		t.Errorf("unexpected protocol error: %v", werr)
	}
}
