package executor

import (
	"context"
	"strconv"
	"strings"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/security"
	"github.com/nanoagent/nanoagent/internal/subprocess"
)

// DockerExecutor handles container list/start/stop/restart/logs via the
// docker CLI.
type DockerExecutor struct{}

func NewDockerExecutor() *DockerExecutor {
	return &DockerExecutor{}
}

func (e *DockerExecutor) RegisterInto(d *Dispatcher) {
	d.Register(model.CmdDockerList, e.List)
	d.Register(model.CmdDockerLogs, e.withContainer(e.Logs))
	d.Register(model.CmdDockerStart, e.withContainer(e.action("start")))
	d.Register(model.CmdDockerStop, e.withContainer(e.action("stop")))
	d.Register(model.CmdDockerRestart, e.withContainer(e.action("restart")))
}

func (e *DockerExecutor) withContainer(h Handler) Handler {
	return func(ctx context.Context, cmd model.Command) model.CommandResult {
		if err := security.ValidateContainerID(cmd.Target); err != nil {
			return model.Fail(cmd.ID, err.Error())
		}
		return h(ctx, cmd)
	}
}

const dockerFormat = `{{.ID}}\t{{.Names}}\t{{.Image}}\t{{.Status}}\t{{.CreatedAt}}\t{{.Ports}}`

// List shells `docker ps -a` with a tab-delimited custom format.
func (e *DockerExecutor) List(ctx context.Context, cmd model.Command) model.CommandResult {
	res, err := subprocess.Run(ctx, "docker", []string{"ps", "-a", "--format", dockerFormat}, subprocess.SlowTimeout)
	if err != nil {
		return model.Fail(cmd.ID, err.Error())
	}
	if res.Outcome != subprocess.Success {
		return model.Fail(cmd.ID, "docker ps failed: "+res.Stdout)
	}

	var containers []model.ContainerInfo
	for _, line := range strings.Split(strings.TrimRight(res.Stdout, "\n"), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 6 {
			continue
		}
		containers = append(containers, model.ContainerInfo{
			ID: fields[0], Name: fields[1], Image: fields[2],
			Status: fields[3], Created: fields[4], Ports: fields[5],
		})
	}
	out := model.OK(cmd.ID, strconv.Itoa(len(containers))+" containers")
	out.Containers = containers
	return out
}

func (e *DockerExecutor) action(verb string) Handler {
	return func(ctx context.Context, cmd model.Command) model.CommandResult {
		res, err := subprocess.Run(ctx, "docker", []string{verb, cmd.Target}, subprocess.SlowTimeout)
		return toResult(cmd.ID, res, err)
	}
}

// Logs returns the last N lines (default 200) of a container's logs.
func (e *DockerExecutor) Logs(ctx context.Context, cmd model.Command) model.CommandResult {
	tail := cmd.Params["lines"]
	if tail == "" {
		tail = "200"
	}
	res, err := subprocess.Run(ctx, "docker", []string{"logs", "--tail", tail, cmd.Target}, subprocess.SlowTimeout)
	return toResult(cmd.ID, res, err)
}
