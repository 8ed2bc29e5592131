package executor

import (
	"net/http"

	"github.com/nanoagent/nanoagent/internal/config"
	"github.com/nanoagent/nanoagent/internal/security"
	"github.com/nanoagent/nanoagent/internal/subprocess"
	"go.uber.org/zap"
)

// Build assembles a Dispatcher with every executor family registered per
// the supplied configuration and version string. Callers (internal/runtime)
// own the Dispatcher's lifetime; Build performs no I/O beyond constructing
// an AvailabilityCache.
func Build(cfg *config.Config, currentVersion string, updateSource UpdateSource, workDir string, log *zap.SugaredLogger) *Dispatcher {
	d := NewDispatcher(log)

	NewProcessExecutor().RegisterInto(d)
	NewServiceExecutor().RegisterInto(d)
	NewDockerExecutor().RegisterInto(d)
	NewSystemExecutor().RegisterInto(d)

	NewFileExecutor(security.NewPathValidatorFrom(cfg.Security.PathAllowlist, cfg.Security.PathDenylist), cfg.Security.MaxFileSize, log).RegisterInto(d)

	if cfg.Shell.Enabled {
		gate := &security.ShellGate{
			Enabled:    cfg.Shell.Enabled,
			SuperToken: cfg.Shell.SuperToken,
			Blacklist:  append(append([]string{}, security.DefaultShellBlacklist...), cfg.Shell.Blacklist...),
			Whitelist:  cfg.Shell.Whitelist,
		}
		NewShellExecutor(gate).RegisterInto(d)
	}

	avail := subprocess.NewAvailabilityCache()
	NewPackageManager(avail, cfg.Packages.AllowSystemUpdate).RegisterInto(d)

	NewLogExecutor(cfg.Security.LogFileWhitelist).RegisterInto(d)

	NewConfigManager(cfg.ConfigMgmt.Whitelist, cfg.ConfigMgmt.BackupDir, cfg.ConfigMgmt.MaxBackups).RegisterInto(d)

	NewScriptExecutor(cfg.Scripts.Dir, cfg.Scripts.RequireSignature).RegisterInto(d)

	if updateSource == nil {
		updateSource = updateSourceFromConfig(cfg)
	}
	ue := NewUpdateExecutor(currentVersion, updateSource, workDir)
	ue.RegisterInto(d)

	return d
}

func updateSourceFromConfig(cfg *config.Config) UpdateSource {
	switch cfg.Update.Source {
	case "github":
		return &GitHubUpdateSource{Repo: cfg.Update.Repo, Client: &http.Client{}}
	default:
		return &StaticManifestSource{BaseURL: cfg.Update.BaseURL, Client: &http.Client{}}
	}
}
