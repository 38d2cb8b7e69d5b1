//go:build linux

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus-gateway/internal/config"
)

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate gateway configuration",
	}
	cmd.AddCommand(buildConfigValidateCmd())
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file plus its registry document",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = defaultConfigPath
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}

			doc, err := config.LoadRegistryDocument(cfg.Registry.Path)
			if err != nil {
				return fmt.Errorf("registry document invalid: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config OK: %s\n", configPath)
			fmt.Fprintf(out, "registry OK: %s (%d servers)\n", cfg.Registry.Path, len(doc.MCPServers))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}
