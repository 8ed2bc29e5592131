package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/security"
)

func TestFileExecutorDownloadRefusesOversized(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")
	if err := os.WriteFile(path, make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}

	fe := NewFileExecutor(security.NewPathValidator(), 10, nil)
	result := fe.Download(context.Background(), model.Command{ID: "d1", Kind: model.CmdFileDownload, Target: path})
	if result.Success {
		t.Fatal("expected refusal for oversized file")
	}
}

func TestFileExecutorUploadCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.txt")

	fe := NewFileExecutor(security.NewPathValidator(), defaultMaxFileSize, nil)
	result := fe.Upload(context.Background(), model.Command{
		ID: "u1", Kind: model.CmdFileUpload, Target: path,
		Params: map[string]string{"content": "hello"},
	})
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "hello" {
		t.Errorf("got %q, want %q", content, "hello")
	}
}

func TestFileExecutorRefusesTraversal(t *testing.T) {
	fe := NewFileExecutor(security.NewPathValidator(), defaultMaxFileSize, nil)
	result := fe.Download(context.Background(), model.Command{ID: "d2", Kind: model.CmdFileDownload, Target: "/var/log/../etc/shadow"})
	if result.Success {
		t.Fatal("expected path traversal refusal")
	}
}
