package cache

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	source := "print 1 + 2;"
	payload := []byte{0xCA, 0xFE, 0x01, 0x02}
	if err := s.Put(source, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(source)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Get = %x, want %x", got, payload)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get("print nil;")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store: err = %v, want ErrNotFound", err)
	}
}

func TestPutReplaces(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put("x", []byte{1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("x", []byte{2}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get("x")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("Get = %x, want 02", got)
	}
	if n, _ := s.Count(); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestKeyDistinguishesSources(t *testing.T) {
	if Key("print 1;") == Key("print 2;") {
		t.Error("distinct sources share a key")
	}
	if Key("print 1;") != Key("print 1;") {
		t.Error("equal sources disagree on key")
	}
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put("old", []byte{1}); err != nil {
		t.Fatal(err)
	}

	// Nothing is older than an hour yet.
	removed, err := s.Prune(time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 0 {
		t.Errorf("Prune removed %d rows, want 0", removed)
	}

	// A zero max age prunes everything written before now.
	time.Sleep(1100 * time.Millisecond)
	removed, err = s.Prune(0)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune removed %d rows, want 1", removed)
	}
	if _, err := s.Get("old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after prune: err = %v, want ErrNotFound", err)
	}
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put("persist", []byte{7}); err != nil {
		t.Fatal(err)
	}
	firstSession := s.Session()
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	got, err := s2.Get("persist")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if len(got) != 1 || got[0] != 7 {
		t.Errorf("Get = %x, want 07", got)
	}
	if s2.Session() == firstSession {
		t.Error("sessions should differ between opens")
	}
}
