package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/security"
	"github.com/nanoagent/nanoagent/internal/subprocess"
)

// packageManagerSpec describes one OS package manager's invocation shape.
type packageManagerSpec struct {
	name          string
	probeArgs     []string
	listArgs      []string
	checkArgs     []string
	updateArgs    func(pkg string) []string
	systemUpdate  []string
}

var packageManagers = []packageManagerSpec{
	{name: "apt", probeArgs: []string{"--version"}, listArgs: []string{"list", "--installed"}, checkArgs: []string{"list", "--upgradable"},
		updateArgs: func(pkg string) []string { return []string{"install", "-y", pkg} }, systemUpdate: []string{"upgrade", "-y"}},
	{name: "dnf", probeArgs: []string{"--version"}, listArgs: []string{"list", "installed"}, checkArgs: []string{"check-update"},
		updateArgs: func(pkg string) []string { return []string{"install", "-y", pkg} }, systemUpdate: []string{"upgrade", "-y"}},
	{name: "yum", probeArgs: []string{"--version"}, listArgs: []string{"list", "installed"}, checkArgs: []string{"check-update"},
		updateArgs: func(pkg string) []string { return []string{"install", "-y", pkg} }, systemUpdate: []string{"update", "-y"}},
	{name: "pacman", probeArgs: []string{"--version"}, listArgs: []string{"-Q"}, checkArgs: []string{"-Qu"},
		updateArgs: func(pkg string) []string { return []string{"-S", "--noconfirm", pkg} }, systemUpdate: []string{"-Syu", "--noconfirm"}},
	{name: "brew", probeArgs: []string{"--version"}, listArgs: []string{"list", "--versions"}, checkArgs: []string{"outdated"},
		updateArgs: func(pkg string) []string { return []string{"upgrade", pkg} }, systemUpdate: []string{"upgrade"}},
	{name: "winget", probeArgs: []string{"--version"}, listArgs: []string{"list"}, checkArgs: []string{"upgrade"},
		updateArgs: func(pkg string) []string { return []string{"upgrade", pkg} }, systemUpdate: []string{"upgrade", "--all"}},
	{name: "choco", probeArgs: []string{"--version"}, listArgs: []string{"list", "--local-only"}, checkArgs: []string{"outdated"},
		updateArgs: func(pkg string) []string { return []string{"upgrade", pkg, "-y"} }, systemUpdate: []string{"upgrade", "all", "-y"}},
}

// PackageManager detects the system package manager once (by trying
// --version on each candidate) and dispatches list/check/update through it.
type PackageManager struct {
	avail              *subprocess.AvailabilityCache
	AllowSystemUpdate  bool

	detected *packageManagerSpec
}

func NewPackageManager(avail *subprocess.AvailabilityCache, allowSystemUpdate bool) *PackageManager {
	return &PackageManager{avail: avail, AllowSystemUpdate: allowSystemUpdate}
}

func (p *PackageManager) RegisterInto(d *Dispatcher) {
	d.Register(model.CmdPackageList, p.List)
	d.Register(model.CmdPackageCheckUpdates, p.CheckUpdates)
	d.Register(model.CmdPackageUpdate, p.Update)
	d.Register(model.CmdSystemUpdate, p.SystemUpdate)
}

func (p *PackageManager) detect(ctx context.Context) (*packageManagerSpec, error) {
	if p.detected != nil {
		return p.detected, nil
	}
	for i := range packageManagers {
		spec := &packageManagers[i]
		if p.avail.Available(ctx, spec.name, spec.probeArgs...) {
			p.detected = spec
			return spec, nil
		}
	}
	return nil, fmt.Errorf("no supported package manager detected")
}

func (p *PackageManager) List(ctx context.Context, cmd model.Command) model.CommandResult {
	spec, err := p.detect(ctx)
	if err != nil {
		return model.Fail(cmd.ID, err.Error())
	}
	res, err := subprocess.Run(ctx, spec.name, spec.listArgs, subprocess.SlowTimeout)
	if err != nil || res.Outcome != subprocess.Success {
		return toResult(cmd.ID, res, err)
	}
	out := model.OK(cmd.ID, spec.name)
	out.Packages = parsePackageList(res.Stdout)
	return out
}

func (p *PackageManager) CheckUpdates(ctx context.Context, cmd model.Command) model.CommandResult {
	spec, err := p.detect(ctx)
	if err != nil {
		return model.Fail(cmd.ID, err.Error())
	}
	res, err := subprocess.Run(ctx, spec.name, spec.checkArgs, subprocess.SlowTimeout)
	if err != nil {
		return model.Fail(cmd.ID, err.Error())
	}
	out := model.OK(cmd.ID, spec.name)
	out.Packages = parsePackageList(res.Stdout)
	return out
}

func (p *PackageManager) Update(ctx context.Context, cmd model.Command) model.CommandResult {
	if err := security.ValidatePackageName(cmd.Target); err != nil {
		return model.Fail(cmd.ID, err.Error())
	}
	spec, err := p.detect(ctx)
	if err != nil {
		return model.Fail(cmd.ID, err.Error())
	}
	res, err := subprocess.Run(ctx, spec.name, spec.updateArgs(cmd.Target), subprocess.SlowTimeout)
	return toResult(cmd.ID, res, err)
}

// SystemUpdate requires the allow_system_update config flag in addition to
// SystemAdmin.
func (p *PackageManager) SystemUpdate(ctx context.Context, cmd model.Command) model.CommandResult {
	if !p.AllowSystemUpdate {
		return model.Fail(cmd.ID, "system-wide updates are disabled by configuration (allow_system_update=false)")
	}
	spec, err := p.detect(ctx)
	if err != nil {
		return model.Fail(cmd.ID, err.Error())
	}
	res, err := subprocess.Run(ctx, spec.name, spec.systemUpdate, subprocess.SlowTimeout)
	return toResult(cmd.ID, res, err)
}

func parsePackageList(raw string) []model.PackageInfo {
	var out []model.PackageInfo
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		pkg := model.PackageInfo{Name: fields[0]}
		if len(fields) > 1 {
			pkg.InstalledVersion = fields[1]
		}
		out = append(out, pkg)
	}
	return out
}
