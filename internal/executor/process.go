package executor

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/security"
	"github.com/nanoagent/nanoagent/internal/subprocess"
)

// ProcessExecutor handles process-list and process-kill.
type ProcessExecutor struct{}

func NewProcessExecutor() *ProcessExecutor {
	return &ProcessExecutor{}
}

// RegisterInto binds this executor's handlers into d.
func (e *ProcessExecutor) RegisterInto(d *Dispatcher) {
	d.Register(model.CmdProcessList, e.List)
	d.Register(model.CmdProcessKill, e.Kill)
}

// List snapshots PID/name/user/cpu%/mem-bytes/status/start-time via `ps`.
func (e *ProcessExecutor) List(ctx context.Context, cmd model.Command) model.CommandResult {
	res, err := subprocess.Run(ctx, "ps", []string{"-eo", "pid,comm,user,%cpu,rss,stat,lstart"}, subprocess.FastTimeout)
	if err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("ps: %v", err))
	}
	if res.Outcome != subprocess.Success {
		return model.Fail(cmd.ID, fmt.Sprintf("ps exited with %s", res.Outcome))
	}

	lines := strings.Split(res.Stdout, "\n")
	var procs []model.ProcessInfo
	for i, line := range lines {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue // header / trailing blank
		}
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		cpuPct, _ := strconv.ParseFloat(fields[3], 64)
		rssKB, _ := strconv.ParseUint(fields[4], 10, 64)
		procs = append(procs, model.ProcessInfo{
			PID:      pid,
			Name:     fields[1],
			User:     fields[2],
			CPUPct:   cpuPct,
			MemBytes: rssKB * 1024,
			Status:   fields[5],
		})
	}
	out := model.OK(cmd.ID, fmt.Sprintf("%d processes", len(procs)))
	out.Processes = procs
	return out
}

// signalFor translates a symbolic signal name to the platform primitive;
// unrecognized names default to KILL
func signalFor(name string) syscall.Signal {
	switch strings.ToUpper(name) {
	case "TERM":
		return syscall.SIGTERM
	case "HUP":
		return syscall.SIGHUP
	case "INT":
		return syscall.SIGINT
	case "KILL", "":
		return syscall.SIGKILL
	default:
		return syscall.SIGKILL
	}
}

// Kill accepts either a target PID or a process name in Command.Target.
// A PID target is validated killable; a name target is validated against
// shell metacharacters and resolved via `pkill`.
func (e *ProcessExecutor) Kill(ctx context.Context, cmd model.Command) model.CommandResult {
	sig := signalFor(cmd.Params["signal"])

	if pid, err := strconv.Atoi(cmd.Target); err == nil {
		if verr := security.ValidatePID(pid); verr != nil {
			return model.Fail(cmd.ID, verr.Error())
		}
		proc, err := os.FindProcess(pid)
		if err != nil {
			return model.Fail(cmd.ID, fmt.Sprintf("find process %d: %v", pid, err))
		}
		if err := proc.Signal(sig); err != nil {
			return model.Fail(cmd.ID, fmt.Sprintf("signal process %d: %v", pid, err))
		}
		return model.OK(cmd.ID, fmt.Sprintf("sent %s to pid %d", strings.ToUpper(cmd.Params["signal"]), pid))
	}

	if err := security.ValidateProcessName(cmd.Target); err != nil {
		return model.Fail(cmd.ID, err.Error())
	}
	res, err := subprocess.Run(ctx, "pkill", []string{"-" + pkillSignalName(sig), cmd.Target}, subprocess.FastTimeout)
	if err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("pkill: %v", err))
	}
	if res.Outcome != subprocess.Success {
		return model.Fail(cmd.ID, fmt.Sprintf("pkill %q exited with %s", cmd.Target, res.Outcome))
	}
	return model.OK(cmd.ID, fmt.Sprintf("killed processes named %q", cmd.Target))
}

func pkillSignalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGTERM:
		return "TERM"
	case syscall.SIGHUP:
		return "HUP"
	case syscall.SIGINT:
		return "INT"
	default:
		return "KILL"
	}
}
