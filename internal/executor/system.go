package executor

import (
	"context"
	"runtime"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/subprocess"
)

// SystemExecutor implements the system-reboot command, the single
// SystemAdmin-only operation that does not belong to any other executor
// family.
type SystemExecutor struct {
	GOOS string
}

func NewSystemExecutor() *SystemExecutor {
	return &SystemExecutor{GOOS: runtime.GOOS}
}

func (e *SystemExecutor) RegisterInto(d *Dispatcher) {
	d.Register(model.CmdSystemReboot, e.Reboot)
}

func (e *SystemExecutor) Reboot(ctx context.Context, cmd model.Command) model.CommandResult {
	var program string
	var args []string
	switch e.GOOS {
	case "windows":
		program, args = "shutdown", []string{"/r", "/t", "0"}
	case "darwin":
		program, args = "shutdown", []string{"-r", "now"}
	default:
		program, args = "shutdown", []string{"-r", "now"}
	}
	res, err := subprocess.Run(ctx, program, args, subprocess.SlowTimeout)
	return toResult(cmd.ID, res, err)
}
