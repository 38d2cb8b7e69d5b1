//go:build linux

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus-gateway/internal/doctor"
)

// buildDoctorCmd creates the "doctor" command group: operational calls
// against a running gateway's admin surface (spec §5 supplement:
// reset_server_failures exposed as a CLI subcommand).
func buildDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Operational commands against a running gateway",
	}
	cmd.AddCommand(buildDoctorResetServerCmd(), buildDoctorReloadRegistryCmd())
	return cmd
}

func buildDoctorResetServerCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "reset-server <name>",
		Short: "Clear a tool server's recorded consecutive failures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := doctor.NewClient(addr)
			if err := client.ResetServerFailures(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("reset server %q: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "server %q failure count reset\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Base URL of the running gateway")
	return cmd
}

func buildDoctorReloadRegistryCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "reload-registry",
		Short: "Force the running gateway to re-read its server registry document",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := doctor.NewClient(addr)
			diff, err := client.ReloadRegistry(cmd.Context())
			if err != nil {
				return fmt.Errorf("reload registry: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "registry reloaded to version %d\n", diff.Version)
			if len(diff.Added) > 0 {
				fmt.Fprintf(out, "  added:   %v\n", diff.Added)
			}
			if len(diff.Removed) > 0 {
				fmt.Fprintf(out, "  removed: %v\n", diff.Removed)
			}
			if len(diff.Changed) > 0 {
				fmt.Fprintf(out, "  changed: %v\n", diff.Changed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "Base URL of the running gateway")
	return cmd
}
