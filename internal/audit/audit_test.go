package audit

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSinkWriteAppendsJSONLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	s, err := Open(path, 10, 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Write("127.0.0.1", "/api/config", "GET", "super-secret-token-value", nil, 200, 5*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := bytes.Count(data, []byte("\n")); n != 1 {
		t.Fatalf("expected 1 line, got %d", n)
	}
	if bytes.Contains(data, []byte("super-secret-token-value")) {
		t.Error("expected raw token to never appear in audit log")
	}
	if !bytes.Contains(data, []byte(`"token":"sup***lue"`)) {
		t.Errorf("expected masked token in record, got: %s", data)
	}
}

func TestSinkRotatesOldestFirst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	s, err := Open(path, 0, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// MaxSizeMB=0 disables rotation; force it by calling rotateIfNeeded
	// directly with a threshold that always trips.
	s.MaxSizeMB = 1
	if err := s.Write("10.0.0.1", "/api/health", "GET", "tok", nil, 200, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := s.rotateIfNeeded(2 * 1024 * 1024); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("expected rotated file audit.log.1 to exist: %v", err)
	}
}

func TestCleanupRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	s, err := Open(path, 10, 5, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	old := path + ".3"
	if err := os.WriteFile(old, []byte("{}\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	pastTime := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, pastTime, pastTime); err != nil {
		t.Fatal(err)
	}

	s.Cleanup()

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expected old rotated file to be removed by Cleanup")
	}
}
