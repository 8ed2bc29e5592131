// Package audit is an append-only JSONL sink for every management API
// request, with size-based rotation and age-based cleanup.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/security"
)

// Record is one audit line. Token is always pre-masked by the caller via
// security.MaskToken before it reaches Write.
type Record struct {
	TS         string                `json:"ts"`
	IP         string                `json:"ip"`
	Endpoint   string                `json:"endpoint"`
	Method     string                `json:"method"`
	Token      string                `json:"token"`
	Permission *model.PermissionLevel `json:"permission,omitempty"`
	Status     int                   `json:"status"`
	DurationMs int64                 `json:"duration_ms"`
}

// Sink writes JSONL audit records with size-based rotation and periodic
// age-based cleanup.
type Sink struct {
	mu sync.Mutex

	Path       string
	MaxSizeMB  int
	MaxFiles   int
	MaxAgeDays int

	file *os.File
}

// Open opens (creating if absent) the current audit file for appending.
func Open(path string, maxSizeMB, maxFiles, maxAgeDays int) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open audit log %q: %w", path, err)
	}
	return &Sink{Path: path, MaxSizeMB: maxSizeMB, MaxFiles: maxFiles, MaxAgeDays: maxAgeDays, file: f}, nil
}

// Write appends one record, masking token, rotating first if the current
// file would exceed MaxSizeMB, and flushing before returning -- crash safety
// is a requirement, performance is not.
func (s *Sink) Write(ip, endpoint, method, rawToken string, permission *model.PermissionLevel, status int, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{
		TS:         time.Now().UTC().Format(time.RFC3339),
		IP:         ip,
		Endpoint:   endpoint,
		Method:     method,
		Token:      security.MaskToken(rawToken),
		Permission: permission,
		Status:     status,
		DurationMs: duration.Milliseconds(),
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	line = append(line, '\n')

	if err := s.rotateIfNeeded(int64(len(line))); err != nil {
		return err
	}

	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return s.file.Sync()
}

// rotateIfNeeded shifts audit.log -> audit.log.1 -> ... -> audit.log.N,
// dropping the eldest, when appending next would exceed MaxSizeMB.
func (s *Sink) rotateIfNeeded(nextLen int64) error {
	if s.MaxSizeMB <= 0 {
		return nil
	}
	info, err := s.file.Stat()
	if err != nil {
		return err
	}
	if info.Size()+nextLen <= int64(s.MaxSizeMB)*1024*1024 {
		return nil
	}

	s.file.Close()

	for i := s.MaxFiles - 1; i >= 1; i-- {
		src := rotatedPath(s.Path, i)
		dst := rotatedPath(s.Path, i+1)
		if i+1 > s.MaxFiles {
			os.Remove(src)
			continue
		}
		if _, err := os.Stat(src); err == nil {
			os.Rename(src, dst)
		}
	}
	if err := os.Rename(s.Path, rotatedPath(s.Path, 1)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotate audit log: %w", err)
	}

	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("reopen audit log after rotation: %w", err)
	}
	s.file = f
	return nil
}

func rotatedPath(base string, n int) string {
	return fmt.Sprintf("%s.%d", base, n)
}

// Cleanup deletes rotated/base files older than MaxAgeDays whose basename
// starts with the audit log's basename, best-effort.
func (s *Sink) Cleanup() {
	if s.MaxAgeDays <= 0 {
		return
	}
	dir := filepath.Dir(s.Path)
	base := filepath.Base(s.Path)
	cutoff := time.Now().Add(-time.Duration(s.MaxAgeDays) * 24 * time.Hour)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), base) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}

// RunCleanupLoop runs Cleanup once immediately and then every interval until
// stop fires.
func (s *Sink) RunCleanupLoop(interval time.Duration, stop <-chan struct{}) {
	s.Cleanup()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

// Close closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
