package executor

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/security"
	"github.com/nanoagent/nanoagent/internal/subprocess"
)

var windowsEventLogWhitelist = map[string]bool{
	"System": true, "Application": true, "Security": true, "Setup": true,
}

var macSubsystemPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// LogExecutor handles log-read: journald on Linux, `log show` on macOS,
// `tail -n` on a whitelisted file path Every returned
// line is passed through the same sensitive-value scrubber ConfigManager
// uses, accompanied by SanitizedCount.
type LogExecutor struct {
	FileWhitelist []string
	GOOS          string
}

func NewLogExecutor(fileWhitelist []string) *LogExecutor {
	return &LogExecutor{FileWhitelist: fileWhitelist, GOOS: runtime.GOOS}
}

func (e *LogExecutor) RegisterInto(d *Dispatcher) {
	d.Register(model.CmdLogRead, e.Read)
}

func (e *LogExecutor) Read(ctx context.Context, cmd model.Command) model.CommandResult {
	source := cmd.Params["source"] // "journald" | "syslog" | "file" | "eventlog"
	switch source {
	case "eventlog":
		return e.readEventLog(ctx, cmd)
	case "file":
		return e.readFile(ctx, cmd)
	default:
		return e.readSystemLog(ctx, cmd)
	}
}

func (e *LogExecutor) readSystemLog(ctx context.Context, cmd model.Command) model.CommandResult {
	lines := cmd.Params["lines"]
	if lines == "" {
		lines = "200"
	}

	var res subprocess.Result
	var err error
	switch e.GOOS {
	case "darwin":
		predicate := cmd.Params["predicate"]
		if predicate != "" && !macSubsystemPattern.MatchString(predicate) {
			return model.Fail(cmd.ID, fmt.Sprintf("predicate subsystem %q has an invalid format", predicate))
		}
		args := []string{"show", "--last", "5m"}
		if predicate != "" {
			args = append(args, "--predicate", fmt.Sprintf("subsystem == %q", predicate))
		}
		res, err = subprocess.Run(ctx, "log", args, subprocess.SlowTimeout)
	default:
		res, err = subprocess.Run(ctx, "journalctl", []string{"-n", lines, "--no-pager"}, subprocess.SlowTimeout)
	}
	if err != nil {
		return model.Fail(cmd.ID, err.Error())
	}
	if res.Outcome != subprocess.Success {
		return model.Fail(cmd.ID, fmt.Sprintf("log read failed: %s", res.Stdout))
	}
	return e.scrubAndReply(cmd.ID, res.Stdout)
}

func (e *LogExecutor) readFile(ctx context.Context, cmd model.Command) model.CommandResult {
	if !e.onWhitelist(cmd.Target) {
		return model.Fail(cmd.ID, fmt.Sprintf("path %q is not on the log file whitelist", cmd.Target))
	}
	lines := cmd.Params["lines"]
	if lines == "" {
		lines = "200"
	}
	res, err := subprocess.Run(ctx, "tail", []string{"-n", lines, cmd.Target}, subprocess.FastTimeout)
	if err != nil {
		return model.Fail(cmd.ID, err.Error())
	}
	if res.Outcome != subprocess.Success {
		return model.Fail(cmd.ID, fmt.Sprintf("tail %q failed", cmd.Target))
	}
	return e.scrubAndReply(cmd.ID, res.Stdout)
}

func (e *LogExecutor) readEventLog(ctx context.Context, cmd model.Command) model.CommandResult {
	if !windowsEventLogWhitelist[cmd.Target] {
		return model.Fail(cmd.ID, fmt.Sprintf("event log %q is not on the fixed whitelist", cmd.Target))
	}
	lines := cmd.Params["lines"]
	if lines == "" {
		lines = "200"
	}
	n, _ := strconv.Atoi(lines)
	script := fmt.Sprintf("Get-WinEvent -LogName %s -MaxEvents %d | Format-List", cmd.Target, n)
	res, err := subprocess.Run(ctx, "powershell", []string{"-NoProfile", "-Command", script}, subprocess.SlowTimeout)
	if err != nil {
		return model.Fail(cmd.ID, err.Error())
	}
	if res.Outcome != subprocess.Success {
		return model.Fail(cmd.ID, fmt.Sprintf("event log read failed: %s", res.Stdout))
	}
	return e.scrubAndReply(cmd.ID, res.Stdout)
}

func (e *LogExecutor) onWhitelist(path string) bool {
	for _, w := range e.FileWhitelist {
		if w == path {
			return true
		}
	}
	return false
}

func (e *LogExecutor) scrubAndReply(id, raw string) model.CommandResult {
	lines := strings.Split(raw, "\n")
	sanitized := make([]string, 0, len(lines))
	total := 0
	for _, l := range lines {
		clean, count := security.Redact(l)
		sanitized = append(sanitized, clean)
		total += count
	}
	out := model.OK(id, fmt.Sprintf("%d lines", len(sanitized)))
	out.LogResult = &model.LogResult{Lines: sanitized, SanitizedCount: total}
	return out
}
