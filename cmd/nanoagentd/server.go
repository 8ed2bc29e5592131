package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nanoagent/nanoagent/internal/config"
	"github.com/nanoagent/nanoagent/internal/model"
)

func newServerListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg.Servers)
		},
	}
}

func newServerAddCmd(configPath *string) *cobra.Command {
	var (
		host       string
		port       int
		token      string
		permission int
		tlsEnabled bool
		tlsVerify  bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an endpoint to the config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ep := model.Endpoint{
				Host: host, Port: port, Token: token,
				Permission: model.PermissionLevel(permission),
				TLSEnabled: tlsEnabled, TLSVerify: tlsVerify,
			}
			for _, existing := range cfg.Servers {
				if existing.Key() == ep.Key() {
					return fmt.Errorf("endpoint %s already exists", ep.Key())
				}
			}
			cfg.Servers = append(cfg.Servers, ep)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return cfg.Save(*configPath)
		},
	}
	addServerFlags(cmd, &host, &port, &token, &permission, &tlsEnabled, &tlsVerify)
	return cmd
}

func newServerUpdateCmd(configPath *string) *cobra.Command {
	var (
		host       string
		port       int
		token      string
		permission int
		tlsEnabled bool
		tlsVerify  bool
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Replace an existing endpoint's fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ep := model.Endpoint{
				Host: host, Port: port, Token: token,
				Permission: model.PermissionLevel(permission),
				TLSEnabled: tlsEnabled, TLSVerify: tlsVerify,
			}
			for i, existing := range cfg.Servers {
				if existing.Key() == ep.Key() {
					cfg.Servers[i] = ep
					if err := cfg.Validate(); err != nil {
						return err
					}
					return cfg.Save(*configPath)
				}
			}
			return fmt.Errorf("endpoint %s:%d not found", host, port)
		},
	}
	addServerFlags(cmd, &host, &port, &token, &permission, &tlsEnabled, &tlsVerify)
	return cmd
}

func newServerRemoveCmd(configPath *string) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove an endpoint from the config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if len(cfg.Servers) <= 1 {
				return fmt.Errorf("cannot remove the last endpoint")
			}
			key := model.Endpoint{Host: host, Port: port}.Key()
			for i, existing := range cfg.Servers {
				if existing.Key() == key {
					cfg.Servers = append(cfg.Servers[:i], cfg.Servers[i+1:]...)
					return cfg.Save(*configPath)
				}
			}
			return fmt.Errorf("endpoint %s:%d not found", host, port)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "endpoint host")
	cmd.Flags().IntVar(&port, "port", 0, "endpoint port")
	cmd.MarkFlagRequired("host")
	cmd.MarkFlagRequired("port")
	return cmd
}

func addServerFlags(cmd *cobra.Command, host *string, port *int, token *string, permission *int, tlsEnabled, tlsVerify *bool) {
	cmd.Flags().StringVar(host, "host", "", "endpoint host")
	cmd.Flags().IntVar(port, "port", 0, "endpoint port")
	cmd.Flags().StringVar(token, "token", "", "endpoint token (literal, ${ENV_NAME}, or file://PATH)")
	cmd.Flags().IntVar(permission, "permission", 0, "permission level 0-3")
	cmd.Flags().BoolVar(tlsEnabled, "tls", false, "enable TLS")
	cmd.Flags().BoolVar(tlsVerify, "tls-verify", true, "verify TLS certificates")
	cmd.MarkFlagRequired("host")
	cmd.MarkFlagRequired("port")
}
