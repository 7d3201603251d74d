package storage

import (
	"bytes"
	"sort"
	"testing"

	"github.com/AbdullahhussainYasim/p2p-os-term-project/pkg/wire"
)

func openTestStore(t *testing.T) *BlobStore {
	t.Helper()
	s, err := OpenBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := openTestStore(t)
	data := []byte("hello fabric")

	if err := s.Put("doc.txt", data); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get("doc.txt")
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("Get = %q, %v", got, err)
	}

	size, err := s.Delete("doc.txt")
	if err != nil || size != int64(len(data)) {
		t.Fatalf("Delete = %d, %v", size, err)
	}
	_, err = s.Get("doc.txt")
	if werr, ok := err.(*wire.Error); !ok || werr.Code != wire.CodeUnknownFile {
		t.Errorf("expected UNKNOWN_FILE after delete, got %v", err)
	}
}

func TestSanitizeRejectsTraversal(t *testing.T) {
	s := openTestStore(t)
	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		if err := s.Put(name, []byte("x")); err == nil {
			t.Errorf("name %q accepted", name)
		}
	}
}

func TestListAndStats(t *testing.T) {
	s := openTestStore(t)
	s.Put("b.txt", []byte("bb"))
	s.Put("a.txt", []byte("aaa"))

	names, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "a.txt" || names[1] != "b.txt" {
		t.Errorf("List = %v", names)
	}
	st := s.Stats()
	if st.FileCount != 2 || st.TotalBytes != 5 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestReadRange(t *testing.T) {
	s := openTestStore(t)
	s.Put("doc", []byte("0123456789"))

	chunk, err := s.ReadRange("doc", 2, 4)
	if err != nil || string(chunk) != "2345" {
		t.Fatalf("ReadRange = %q, %v", chunk, err)
	}
	// Clipped at the end.
	chunk, err = s.ReadRange("doc", 8, 10)
	if err != nil || string(chunk) != "89" {
		t.Fatalf("clipped ReadRange = %q, %v", chunk, err)
	}
	if _, err := s.ReadRange("doc", 20, 1); err == nil {
		t.Error("offset past end must error")
	}
	if _, err := s.ReadRange("doc", -1, 1); err == nil {
		t.Error("negative offset must error")
	}

	size, err := s.Size("doc")
	if err != nil || size != 10 {
		t.Errorf("Size = %d, %v", size, err)
	}
}
