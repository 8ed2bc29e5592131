// nanoagentd is the host monitoring agent daemon: it samples hardware and
// OS state, streams it to one or more central servers over authenticated
// bidirectional connections, and executes server-originated commands under
// a per-connection permission gate.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nanoagent/nanoagent/internal/config"
	"github.com/nanoagent/nanoagent/internal/runtime"
)

// buildVersion is overridden at build time via -ldflags.
var buildVersion = "0.0.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("NANOAGENT_CONFIG"); p != "" {
		return p
	}
	return "/etc/nanoagent/config.yaml"
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	root := &cobra.Command{
		Use:     "nanoagentd",
		Short:   "Host monitoring agent daemon",
		Version: buildVersion,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to the agent config file (YAML or TOML)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")

	root.AddCommand(newRunCmd(&configPath, &logLevel))
	root.AddCommand(newGenerateConfigCmd(&configPath))
	root.AddCommand(newServerCmd(&configPath))
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), buildVersion)
			return nil
		},
	}
}

func newRunCmd(configPath, logLevel *string) *cobra.Command {
	var mcpStdio bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the agent daemon (long-running)",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(*logLevel)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			runtime.Version = buildVersion
			rt := runtime.New(cfg, *configPath, log)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			log.Infow("nanoagentd starting", "config", *configPath, "version", buildVersion, "endpoints", len(cfg.Servers))

			if !mcpStdio {
				return rt.Run(ctx)
			}

			// The read-only local introspection surface
			// shares this process so it can query the live Runtime directly;
			// zap's production config writes to stderr, leaving stdio free
			// for the MCP JSON-RPC stream.
			runErrCh := make(chan error, 1)
			go func() { runErrCh <- rt.Run(ctx) }()

			if err := rt.MCPSurface().Start(ctx); err != nil {
				log.Warnw("mcp stdio surface exited", "error", err)
			}
			cancel()
			return <-runErrCh
		},
	}
	cmd.Flags().BoolVar(&mcpStdio, "mcp-stdio", false, "also serve the read-only local introspection surface over stdio MCP")
	return cmd
}

func newGenerateConfigCmd(configPath *string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "generate-config",
		Short: "Emit the default config (YAML, or TOML for a .toml path)",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := out
			if path == "" {
				path = *configPath
			}
			return config.Default().Save(path)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output path (defaults to --config)")
	return cmd
}

func newServerCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Mutate the on-disk config's endpoint list without starting the daemon",
	}
	cmd.AddCommand(newServerListCmd(configPath))
	cmd.AddCommand(newServerAddCmd(configPath))
	cmd.AddCommand(newServerUpdateCmd(configPath))
	cmd.AddCommand(newServerRemoveCmd(configPath))
	return cmd
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), nil
}
