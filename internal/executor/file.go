package executor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/security"
	"go.uber.org/zap"
)

const defaultMaxFileSize = 50 * 1024 * 1024 // 50 MiB default

// FileExecutor handles tail/download/upload/truncate, each operating on a
// validated canonical path and audit-logging it plus the size.
type FileExecutor struct {
	Validator   *security.PathValidator
	MaxFileSize int64
	log         *zap.SugaredLogger
}

func NewFileExecutor(v *security.PathValidator, maxFileSize int64, log *zap.SugaredLogger) *FileExecutor {
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	return &FileExecutor{Validator: v, MaxFileSize: maxFileSize, log: log}
}

func (e *FileExecutor) RegisterInto(d *Dispatcher) {
	d.Register(model.CmdFileTail, e.Tail)
	d.Register(model.CmdFileDownload, e.Download)
	d.Register(model.CmdFileUpload, e.Upload)
	d.Register(model.CmdFileTruncate, e.Truncate)
}

func (e *FileExecutor) audit(op, path string, size int64) {
	if e.log != nil {
		e.log.Infow("file operation", "op", op, "path", path, "size_bytes", size)
	}
}

// Tail reads up to N lines (default 100) by reading the whole file and
// keeping the last N
func (e *FileExecutor) Tail(ctx context.Context, cmd model.Command) model.CommandResult {
	canonical, err := e.Validator.Validate(cmd.Target)
	if err != nil {
		return model.Fail(cmd.ID, err.Error())
	}
	n := 100
	if v := cmd.Params["lines"]; v != "" {
		if parsed, perr := strconv.Atoi(v); perr == nil && parsed > 0 {
			n = parsed
		}
	}

	f, err := os.Open(canonical)
	if err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("open %q: %v", canonical, err))
	}
	defer f.Close()

	ring := make([]string, 0, n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for sc.Scan() {
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, sc.Text())
	}

	info, _ := os.Stat(canonical)
	var size int64
	if info != nil {
		size = info.Size()
	}
	e.audit("tail", canonical, size)

	out := model.OK(cmd.ID, fmt.Sprintf("%d lines", len(ring)))
	for _, l := range ring {
		out.Output += l + "\n"
	}
	return out
}

// Download refuses files exceeding MaxFileSize. The size check runs before
// the read.
func (e *FileExecutor) Download(ctx context.Context, cmd model.Command) model.CommandResult {
	canonical, err := e.Validator.Validate(cmd.Target)
	if err != nil {
		return model.Fail(cmd.ID, err.Error())
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("stat %q: %v", canonical, err))
	}
	if info.Size() > e.MaxFileSize {
		return model.Fail(cmd.ID, fmt.Sprintf("file %q (%d bytes) exceeds max_file_size (%d bytes)", canonical, info.Size(), e.MaxFileSize))
	}

	content, err := os.ReadFile(canonical)
	if err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("read %q: %v", canonical, err))
	}
	e.audit("download", canonical, info.Size())

	out := model.OK(cmd.ID, fmt.Sprintf("%d bytes", len(content)))
	out.FileContent = content
	return out
}

// Upload refuses content exceeding MaxFileSize and creates parent
// directories if missing.
func (e *FileExecutor) Upload(ctx context.Context, cmd model.Command) model.CommandResult {
	canonical, err := e.Validator.Validate(cmd.Target)
	if err != nil {
		return model.Fail(cmd.ID, err.Error())
	}
	content := []byte(cmd.Params["content"])
	if int64(len(content)) > e.MaxFileSize {
		return model.Fail(cmd.ID, fmt.Sprintf("upload content (%d bytes) exceeds max_file_size (%d bytes)", len(content), e.MaxFileSize))
	}

	if err := os.MkdirAll(filepath.Dir(canonical), 0o755); err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("create parent dirs for %q: %v", canonical, err))
	}
	if err := os.WriteFile(canonical, content, 0o644); err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("write %q: %v", canonical, err))
	}
	e.audit("upload", canonical, int64(len(content)))
	return model.OK(cmd.ID, fmt.Sprintf("wrote %d bytes to %s", len(content), canonical))
}

// Truncate opens the file in truncate mode, discarding its contents.
func (e *FileExecutor) Truncate(ctx context.Context, cmd model.Command) model.CommandResult {
	canonical, err := e.Validator.Validate(cmd.Target)
	if err != nil {
		return model.Fail(cmd.ID, err.Error())
	}
	f, err := os.OpenFile(canonical, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("truncate %q: %v", canonical, err))
	}
	defer f.Close()
	e.audit("truncate", canonical, 0)
	return model.OK(cmd.ID, fmt.Sprintf("truncated %s", canonical))
}
