package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/security"
)

// ConfigManager implements config-read/config-write for a whitelisted set
// of managed files (distinct from the daemon's own internal/config.Config,
// which the supervisor/sampler/management components load at startup).
// Sensitive substrings are regex-redacted on read; writes are preceded by a
// timestamped backup.
type ConfigManager struct {
	Whitelist  []string
	BackupDir  string
	MaxBackups int
	nowFn      func() time.Time
}

func NewConfigManager(whitelist []string, backupDir string, maxBackups int) *ConfigManager {
	return &ConfigManager{Whitelist: whitelist, BackupDir: backupDir, MaxBackups: maxBackups, nowFn: time.Now}
}

func (m *ConfigManager) RegisterInto(d *Dispatcher) {
	d.Register(model.CmdConfigRead, m.Read)
	d.Register(model.CmdConfigWrite, m.Write)
}

func (m *ConfigManager) whitelisted(path string) bool {
	for _, w := range m.Whitelist {
		if ok, _ := filepath.Match(w, path); ok || path == w {
			return true
		}
	}
	return false
}

// Read returns the file content with sensitive substrings redacted.
func (m *ConfigManager) Read(ctx context.Context, cmd model.Command) model.CommandResult {
	if !m.whitelisted(cmd.Target) {
		return model.Fail(cmd.ID, fmt.Sprintf("path %q is not a managed config path", cmd.Target))
	}
	content, err := os.ReadFile(cmd.Target)
	if err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("read %q: %v", cmd.Target, err))
	}
	redacted, count := security.Redact(string(content))
	out := model.OK(cmd.ID, redacted)
	if count > 0 {
		out.Output = redacted
	}
	return out
}

// Write backs up the current file before overwriting it. A write failure
// never partially applies -- the backup is created from the pre-write
// content, then the new content replaces the original atomically via
// rename.
func (m *ConfigManager) Write(ctx context.Context, cmd model.Command) model.CommandResult {
	if !m.whitelisted(cmd.Target) {
		return model.Fail(cmd.ID, fmt.Sprintf("path %q is not a managed config path", cmd.Target))
	}

	if err := m.backup(cmd.Target); err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("backup %q: %v", cmd.Target, err))
	}

	tmp := cmd.Target + ".tmp"
	if err := os.WriteFile(tmp, []byte(cmd.Params["content"]), 0o644); err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("write %q: %v", tmp, err))
	}
	if err := os.Rename(tmp, cmd.Target); err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("rename %q: %v", tmp, err))
	}
	return model.OK(cmd.ID, fmt.Sprintf("wrote %s", cmd.Target))
}

// backup copies the current file into BackupDir as
// "<filename>_YYYYMMDD_HHMMSS.bak", then prunes backups beyond MaxBackups,
// oldest-first.
func (m *ConfigManager) backup(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // nothing to back up yet
	}
	if err := os.MkdirAll(m.BackupDir, 0o755); err != nil {
		return err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ts := m.nowFn().Format("20060102_150405")
	name := filepath.Base(path) + "_" + ts + ".bak"
	if err := os.WriteFile(filepath.Join(m.BackupDir, name), content, 0o644); err != nil {
		return err
	}
	return m.prune(filepath.Base(path))
}

func (m *ConfigManager) prune(baseName string) error {
	if m.MaxBackups <= 0 {
		return nil
	}
	entries, err := os.ReadDir(m.BackupDir)
	if err != nil {
		return err
	}
	var matches []string
	prefix := baseName + "_"
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".bak") {
			matches = append(matches, e.Name())
		}
	}
	sort.Strings(matches) // timestamp suffix sorts lexically = chronologically
	for len(matches) > m.MaxBackups {
		_ = os.Remove(filepath.Join(m.BackupDir, matches[0]))
		matches = matches[1:]
	}
	return nil
}

// Rollback restores the newest backup for path, used by CLI/ops flows
// outside the server-dispatched command set.
func (m *ConfigManager) Rollback(path string) error {
	entries, err := os.ReadDir(m.BackupDir)
	if err != nil {
		return err
	}
	prefix := filepath.Base(path) + "_"
	var newest string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) && e.Name() > newest {
			newest = e.Name()
		}
	}
	if newest == "" {
		return fmt.Errorf("no backup found for %q", path)
	}
	content, err := os.ReadFile(filepath.Join(m.BackupDir, newest))
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

// Validate is a structural placeholder hook for callers (e.g. the CLI) that
// want to dry-run a config write before committing it; the daemon's own
// startup validation lives in internal/config.Config.Validate.
func (m *ConfigManager) Validate(content []byte) error {
	if len(content) == 0 {
		return fmt.Errorf("config content must not be empty")
	}
	return nil
}
