package executor

import (
	"context"
	"runtime"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/security"
	"github.com/nanoagent/nanoagent/internal/subprocess"
)

// ShellExecutor runs shell-execute commands after the shell gate accepts
// them.
type ShellExecutor struct {
	Gate    *security.ShellGate
	Timeout func() (seconds int)
	GOOS    string
}

func NewShellExecutor(gate *security.ShellGate) *ShellExecutor {
	return &ShellExecutor{Gate: gate, GOOS: runtime.GOOS}
}

func (e *ShellExecutor) RegisterInto(d *Dispatcher) {
	d.Register(model.CmdShellExecute, e.Execute)
}

func (e *ShellExecutor) Execute(ctx context.Context, cmd model.Command) model.CommandResult {
	if err := e.Gate.Check(cmd.Target, cmd.SuperToken); err != nil {
		return model.Fail(cmd.ID, err.Error())
	}

	var program string
	var args []string
	if e.GOOS == "windows" {
		program, args = "cmd", []string{"/C", cmd.Target}
	} else {
		program, args = "sh", []string{"-c", cmd.Target}
	}

	res, err := subprocess.Run(ctx, program, args, subprocess.SlowTimeout)
	return toResult(cmd.ID, res, err)
}
