// Package config loads, validates, and persists the agent's YAML/TOML
// configuration file. YAML is the default format; TOML is selected by file
// extension via github.com/BurntSushi/toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/security"
	"gopkg.in/yaml.v3"
)

// CurrentVersion is the config schema version this build writes.
const CurrentVersion = 2

// Config is the agent's top-level on-disk configuration.
type Config struct {
	ConfigVersion int              `yaml:"config_version" toml:"config_version"`
	Agent         AgentConfig      `yaml:"agent" toml:"agent"`
	Servers       []model.Endpoint `yaml:"servers" toml:"servers"`
	Collector     CollectorConfig  `yaml:"collector" toml:"collector"`
	Buffer        BufferConfig     `yaml:"buffer" toml:"buffer"`
	Shell         ShellConfig      `yaml:"shell" toml:"shell"`
	Logging       LoggingConfig    `yaml:"logging" toml:"logging"`
	Management    ManagementConfig `yaml:"management" toml:"management"`
	Security      SecurityConfig   `yaml:"security" toml:"security"`
	Update        UpdateConfig     `yaml:"update" toml:"update"`
	Scripts       ScriptsConfig    `yaml:"scripts" toml:"scripts"`
	ConfigMgmt    ConfigMgmtConfig `yaml:"config_management" toml:"config_management"`
	Packages      PackagesConfig   `yaml:"package_management" toml:"package_management"`
}

type AgentConfig struct {
	Hostname string `yaml:"hostname" toml:"hostname"`
}

type CollectorConfig struct {
	RealtimeIntervalMs int `yaml:"realtime_interval_ms" toml:"realtime_interval_ms"`
	// CPUIntervalMs is accepted for backwards compatibility.
	// RealtimeIntervalMs wins when both are set; migration moves
	// CPUIntervalMs into RealtimeIntervalMs and drops it on rewrite when
	// RealtimeIntervalMs was absent.
	CPUIntervalMs      int `yaml:"cpu_interval_ms,omitempty" toml:"cpu_interval_ms,omitempty"`
	DiskUsageIntervalMs int `yaml:"disk_usage_interval_ms" toml:"disk_usage_interval_ms"`
	SessionIntervalMs   int `yaml:"session_interval_ms" toml:"session_interval_ms"`
	IPCheckIntervalMs   int `yaml:"ip_check_interval_ms" toml:"ip_check_interval_ms"`
	SendInitialFull     bool `yaml:"send_initial_full" toml:"send_initial_full"`
}

type BufferConfig struct {
	Capacity int `yaml:"capacity" toml:"capacity"`
}

type ShellConfig struct {
	Enabled    bool     `yaml:"enabled" toml:"enabled"`
	SuperToken string   `yaml:"super_token" toml:"super_token"`
	Blacklist  []string `yaml:"blacklist" toml:"blacklist"`
	Whitelist  []string `yaml:"whitelist" toml:"whitelist"`
}

type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
}

type ManagementConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	BindAddr string `yaml:"bind_addr" toml:"bind_addr"`
	APIToken string `yaml:"api_token" toml:"api_token"`
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" toml:"rate_limit_per_minute"`
	RateLimitBurst     int `yaml:"rate_limit_burst" toml:"rate_limit_burst"`
}

type SecurityConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size" toml:"max_file_size"`
	PathAllowlist  []string `yaml:"path_allowlist" toml:"path_allowlist"`
	PathDenylist   []string `yaml:"path_denylist" toml:"path_denylist"`
	LogFileWhitelist []string `yaml:"log_file_whitelist" toml:"log_file_whitelist"`
}

type UpdateConfig struct {
	Source  string `yaml:"source" toml:"source"` // "github" | "r2" | "custom"
	Repo    string `yaml:"repo" toml:"repo"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

type ScriptsConfig struct {
	Dir              string `yaml:"dir" toml:"dir"`
	RequireSignature bool   `yaml:"require_signature" toml:"require_signature"`
}

type ConfigMgmtConfig struct {
	Whitelist  []string `yaml:"whitelist" toml:"whitelist"`
	BackupDir  string   `yaml:"backup_dir" toml:"backup_dir"`
	MaxBackups int      `yaml:"max_backups" toml:"max_backups"`
}

type PackagesConfig struct {
	AllowSystemUpdate bool `yaml:"allow_system_update" toml:"allow_system_update"`
}

// Default returns a fully-populated default configuration, the same shape
// `nanoagentd generate-config` emits.
func Default() *Config {
	return &Config{
		ConfigVersion: CurrentVersion,
		Collector: CollectorConfig{
			RealtimeIntervalMs:  5000,
			DiskUsageIntervalMs: 60_000,
			SessionIntervalMs:   60_000,
			IPCheckIntervalMs:   30_000,
			SendInitialFull:     true,
		},
		Buffer: BufferConfig{Capacity: 720},
		Shell:  ShellConfig{Enabled: false},
		Logging: LoggingConfig{Level: "info"},
		Management: ManagementConfig{
			Enabled: false, BindAddr: "127.0.0.1:9101",
			RateLimitPerMinute: 60, RateLimitBurst: 10,
		},
		Security: SecurityConfig{MaxFileSize: 50 * 1024 * 1024},
		Update:   UpdateConfig{Source: "github"},
		Scripts:  ScriptsConfig{Dir: "/etc/nanoagent/scripts"},
		ConfigMgmt: ConfigMgmtConfig{BackupDir: "/etc/nanoagent/backups", MaxBackups: 10},
	}
}

// Load reads path, picking the codec by extension (.yaml/.yml -> yaml.v3,
// .toml -> BurntSushi/toml), fills in defaults for absent optional
// sections, and performs the linear config_version migration, rewriting the
// file in place when it upgrades a version.
// Endpoint tokens are never resolved here -- that happens lazily at connect
// time.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg := Default()
	cfg.ConfigVersion = 0 // overwritten by unmarshal if present; 0 marks "absent" for migration
	// Likewise 0 marks realtime_interval_ms as absent, so migrate can fold a
	// legacy cpu_interval_ms into it before filling the default.
	cfg.Collector.RealtimeIntervalMs = 0
	if err := unmarshal(path, raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	migrated := migrate(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %q: %w", path, err)
	}
	if migrated {
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("rewrite migrated config %q: %w", path, err)
		}
	}
	return cfg, nil
}

func unmarshal(path string, raw []byte, cfg *Config) error {
	if strings.HasSuffix(path, ".toml") {
		return toml.Unmarshal(raw, cfg)
	}
	return yaml.Unmarshal(raw, cfg)
}

// migrate applies the linear config_version migration: insert missing
// sections with defaults, resolve the cpu_interval_ms/realtime_interval_ms
// precedence, and bump to CurrentVersion. Returns true if the in-memory
// config changed and should be rewritten.
func migrate(cfg *Config) bool {
	changed := false

	if cfg.Collector.RealtimeIntervalMs == 0 && cfg.Collector.CPUIntervalMs > 0 {
		cfg.Collector.RealtimeIntervalMs = cfg.Collector.CPUIntervalMs
		cfg.Collector.CPUIntervalMs = 0
		changed = true
	}
	if cfg.Collector.RealtimeIntervalMs == 0 {
		cfg.Collector.RealtimeIntervalMs = Default().Collector.RealtimeIntervalMs
		changed = true
	}
	if cfg.Buffer.Capacity == 0 {
		cfg.Buffer.Capacity = Default().Buffer.Capacity
		changed = true
	}
	if cfg.Management.BindAddr == "" {
		cfg.Management.BindAddr = Default().Management.BindAddr
		changed = true
	}
	if cfg.Security.MaxFileSize == 0 {
		cfg.Security.MaxFileSize = Default().Security.MaxFileSize
		changed = true
	}

	if cfg.ConfigVersion < CurrentVersion {
		cfg.ConfigVersion = CurrentVersion
		changed = true
	}
	return changed
}

// Validate enforces cross-field constraints; a failure here is fatal at
// startup.
func (c *Config) Validate() error {
	for _, ep := range c.Servers {
		if ep.Permission < model.ReadOnly || ep.Permission > model.SystemAdmin {
			return fmt.Errorf("endpoint %s:%d: permission %d out of range [0,3]", ep.Host, ep.Port, ep.Permission)
		}
	}
	if c.Collector.RealtimeIntervalMs <= 0 {
		return fmt.Errorf("collector.realtime_interval_ms must be positive")
	}
	if c.Buffer.Capacity <= 0 {
		return fmt.Errorf("buffer.capacity must be positive")
	}
	if err := security.ValidateWhitelistConfig(c.Shell.Whitelist); err != nil {
		return fmt.Errorf("shell.whitelist: %w", err)
	}
	if c.Scripts.RequireSignature && c.Scripts.Dir == "" {
		return fmt.Errorf("scripts.dir must be set when scripts.require_signature is enabled")
	}
	if c.Management.Enabled && c.Management.APIToken == "" {
		// Not fatal: auto-disable, handled by the caller
		// (internal/runtime), which logs the warning. Validate only checks
		// shapes that would make the process unable to start at all.
	}
	return nil
}

// Save serializes cfg back to path, preserving format by extension.
func (c *Config) Save(path string) error {
	var out []byte
	var err error
	if strings.HasSuffix(path, ".toml") {
		var buf strings.Builder
		enc := toml.NewEncoder(&buf)
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("encode toml: %w", err)
		}
		out = []byte(buf.String())
	} else {
		out, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
