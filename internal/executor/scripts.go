package executor

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/security"
	"github.com/nanoagent/nanoagent/internal/subprocess"
)

const scriptMetadataLines = 20

var (
	reDescription = regexp.MustCompile(`^#\s*Description:\s*(.*)$`)
	reCategory    = regexp.MustCompile(`^#\s*Category:\s*(.*)$`)
	reArgs        = regexp.MustCompile(`^#\s*Args:\s*(.*)$`)
	rePermission  = regexp.MustCompile(`^#\s*Permission:\s*(.*)$`)
	reHex64       = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// ScriptExecutor reads metadata from the first 20 lines of a script,
// computes and optionally verifies a SHA-256 signature, and runs it inside
// a configured scripts directory.
type ScriptExecutor struct {
	ScriptsDir       string
	RequireSignature bool
}

func NewScriptExecutor(scriptsDir string, requireSignature bool) *ScriptExecutor {
	return &ScriptExecutor{ScriptsDir: scriptsDir, RequireSignature: requireSignature}
}

func (e *ScriptExecutor) RegisterInto(d *Dispatcher) {
	d.Register(model.CmdScriptExecute, e.Execute)
}

// resolve validates the script name and canonicalizes it inside
// ScriptsDir, defending against a symlink escape.
func (e *ScriptExecutor) resolve(name string) (string, error) {
	if err := security.ValidateScriptName(name); err != nil {
		return "", err
	}
	canonicalDir, err := filepath.EvalSymlinks(e.ScriptsDir)
	if err != nil {
		return "", fmt.Errorf("resolve scripts dir: %w", err)
	}
	joined := filepath.Join(canonicalDir, name)
	canonical, err := filepath.EvalSymlinks(joined)
	if err != nil {
		canonical = filepath.Clean(joined)
	}
	if err := security.EnsureWithinDir(canonical, canonicalDir); err != nil {
		return "", err
	}
	return canonical, nil
}

func readMetadata(path string) (model.ScriptInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.ScriptInfo{}, err
	}
	defer f.Close()

	info := model.ScriptInfo{Name: filepath.Base(path)}
	sc := bufio.NewScanner(f)
	for i := 0; i < scriptMetadataLines && sc.Scan(); i++ {
		line := sc.Text()
		switch {
		case reDescription.MatchString(line):
			info.Description = reDescription.FindStringSubmatch(line)[1]
		case reCategory.MatchString(line):
			info.Category = reCategory.FindStringSubmatch(line)[1]
		case reArgs.MatchString(line):
			info.Args = reArgs.FindStringSubmatch(line)[1]
		case rePermission.MatchString(line):
			info.Permission = rePermission.FindStringSubmatch(line)[1]
		}
	}
	return info, nil
}

func scriptChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// verifySignature checks an adjacent "<script>.sig" file containing the
// lowercase hex SHA-256 of the script, constant-time compared after length
// validation.
func verifySignature(scriptPath, checksum string) error {
	sigPath := scriptPath + ".sig"
	raw, err := os.ReadFile(sigPath)
	if err != nil {
		return fmt.Errorf("read signature %q: %w", sigPath, err)
	}
	sig := strings.ToLower(strings.TrimSpace(string(raw)))
	if !reHex64.MatchString(sig) {
		return fmt.Errorf("signature file %q is not a 64-char lowercase hex digest", sigPath)
	}
	if !security.ConstantTimeEqualString(sig, checksum) {
		return fmt.Errorf("signature verification failed for %q", scriptPath)
	}
	return nil
}

// Execute resolves, optionally verifies, and runs the target script with
// Command.Params["args"] split on whitespace. Any argument containing the
// dangerous character set is refused.
func (e *ScriptExecutor) Execute(ctx context.Context, cmd model.Command) model.CommandResult {
	canonical, err := e.resolve(cmd.Target)
	if err != nil {
		return model.Fail(cmd.ID, err.Error())
	}

	checksum, err := scriptChecksum(canonical)
	if err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("checksum %q: %v", canonical, err))
	}
	if e.RequireSignature {
		if err := verifySignature(canonical, checksum); err != nil {
			return model.Fail(cmd.ID, err.Error())
		}
	}

	var args []string
	if raw := cmd.Params["args"]; raw != "" {
		args = strings.Fields(raw)
		for _, a := range args {
			if strings.ContainsAny(a, ";|&$`(){}<>\n\r\\\"'") {
				return model.Fail(cmd.ID, fmt.Sprintf("argument %q contains a disallowed character", a))
			}
		}
	}

	program := canonical
	if runtime.GOOS != "windows" {
		program = "sh"
		args = append([]string{canonical}, args...)
	}

	res, err := subprocess.Run(ctx, program, args, subprocess.SlowTimeout)
	return toResult(cmd.ID, res, err)
}

// List enumerates scripts in ScriptsDir with their parsed metadata and
// checksum, for a future script-list command kind or CLI introspection.
func (e *ScriptExecutor) List() ([]model.ScriptInfo, error) {
	entries, err := os.ReadDir(e.ScriptsDir)
	if err != nil {
		return nil, err
	}
	var out []model.ScriptInfo
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".sig") {
			continue
		}
		path := filepath.Join(e.ScriptsDir, entry.Name())
		info, err := readMetadata(path)
		if err != nil {
			continue
		}
		checksum, err := scriptChecksum(path)
		if err != nil {
			continue
		}
		info.Checksum = checksum
		out = append(out, info)
	}
	return out, nil
}
