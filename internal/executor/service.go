package executor

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/security"
	"github.com/nanoagent/nanoagent/internal/subprocess"
)

// ServiceExecutor dispatches start/stop/restart/status to the platform's
// service manager: systemd (systemctl), launchd (launchctl), or the
// Windows SCM (sc)
type ServiceExecutor struct {
	// GOOS overrides runtime.GOOS for tests.
	GOOS string
}

func NewServiceExecutor() *ServiceExecutor {
	return &ServiceExecutor{GOOS: runtime.GOOS}
}

func (e *ServiceExecutor) RegisterInto(d *Dispatcher) {
	d.Register(model.CmdServiceStatus, e.handle("status"))
	d.Register(model.CmdServiceStart, e.handle("start"))
	d.Register(model.CmdServiceStop, e.handle("stop"))
	d.Register(model.CmdServiceRestart, e.handle("restart"))
}

func (e *ServiceExecutor) handle(action string) Handler {
	return func(ctx context.Context, cmd model.Command) model.CommandResult {
		if err := security.ValidateServiceName(cmd.Target); err != nil {
			return model.Fail(cmd.ID, err.Error())
		}
		switch e.GOOS {
		case "darwin":
			return e.launchd(ctx, cmd, action)
		case "windows":
			return e.scm(ctx, cmd, action)
		default:
			return e.systemd(ctx, cmd, action)
		}
	}
}

func (e *ServiceExecutor) systemd(ctx context.Context, cmd model.Command, action string) model.CommandResult {
	res, err := subprocess.Run(ctx, "systemctl", []string{action, cmd.Target}, subprocess.SlowTimeout)
	return toResult(cmd.ID, res, err)
}

// launchd has no single "restart" verb; it is modeled as unload+load.
func (e *ServiceExecutor) launchd(ctx context.Context, cmd model.Command, action string) model.CommandResult {
	plist := cmd.Target
	switch action {
	case "start":
		res, err := subprocess.Run(ctx, "launchctl", []string{"load", plist}, subprocess.SlowTimeout)
		return toResult(cmd.ID, res, err)
	case "stop":
		res, err := subprocess.Run(ctx, "launchctl", []string{"unload", plist}, subprocess.SlowTimeout)
		return toResult(cmd.ID, res, err)
	case "restart":
		if res, err := subprocess.Run(ctx, "launchctl", []string{"unload", plist}, subprocess.SlowTimeout); err != nil || res.Outcome != subprocess.Success {
			return toResult(cmd.ID, res, err)
		}
		res, err := subprocess.Run(ctx, "launchctl", []string{"load", plist}, subprocess.SlowTimeout)
		return toResult(cmd.ID, res, err)
	default: // status
		res, err := subprocess.Run(ctx, "launchctl", []string{"list", plist}, subprocess.FastTimeout)
		return toResult(cmd.ID, res, err)
	}
}

// scm restarts as stop + 2s settle + start.
func (e *ServiceExecutor) scm(ctx context.Context, cmd model.Command, action string) model.CommandResult {
	switch action {
	case "restart":
		if res, err := subprocess.Run(ctx, "sc", []string{"stop", cmd.Target}, subprocess.SlowTimeout); err != nil || res.Outcome != subprocess.Success {
			return toResult(cmd.ID, res, err)
		}
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return model.Fail(cmd.ID, "restart cancelled during settle period")
		}
		res, err := subprocess.Run(ctx, "sc", []string{"start", cmd.Target}, subprocess.SlowTimeout)
		return toResult(cmd.ID, res, err)
	case "status":
		res, err := subprocess.Run(ctx, "sc", []string{"query", cmd.Target}, subprocess.FastTimeout)
		return toResult(cmd.ID, res, err)
	default:
		res, err := subprocess.Run(ctx, "sc", []string{action, cmd.Target}, subprocess.SlowTimeout)
		return toResult(cmd.ID, res, err)
	}
}

// toResult adapts a subprocess.Result into a model.CommandResult uniformly
// across executors that simply shell a single tool invocation.
func toResult(id string, res subprocess.Result, err error) model.CommandResult {
	if err != nil {
		return model.Fail(id, err.Error())
	}
	switch res.Outcome {
	case subprocess.Success:
		return model.OK(id, res.Stdout)
	case subprocess.Timeout:
		return model.Fail(id, "command timed out")
	case subprocess.NotFound:
		return model.Fail(id, "required tool not found")
	default:
		return model.Fail(id, fmt.Sprintf("exited with code %d: %s", res.ExitCode, res.Stdout))
	}
}
