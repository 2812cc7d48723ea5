package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools (default command)",
		Example: `  # stdio, for an MCP client that spawns the process
  SSH_HOST=build-01 SSH_USERNAME=agent SSH_PRIVATE_KEY_FILE=~/.ssh/id_ed25519 sshexecctl serve

  # streamable HTTP with a bearer token
  sshexecctl serve --transport http --listen 127.0.0.1:8080 --auth-token "$TOKEN"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, *configPath)
		},
	}
}

func buildCheckCmd(configPath *string) *cobra.Command {
	var command, arguments string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a command against the policy without running it",
		Long: `check prints the gate decision for a command as JSON. It exits 0 when the
command would be allowed and 2 when it would be denied. No SSH connection is
made and no credentials are needed.`,
		Example: `  sshexecctl check --command cat --arguments "/etc/passwd" --allowed-paths /srv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, *configPath, command, arguments)
		},
	}
	cmd.Flags().StringVar(&command, "command", "", "command token to check")
	cmd.Flags().StringVar(&arguments, "arguments", "", "argument string to check")
	return cmd
}

func buildConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write, validate or print configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "sshexec.toml"
			if len(args) == 1 {
				target = args[0]
			}
			return runConfigInit(cmd, target, force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, *configPath)
		},
	}

	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration as TOML with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigPrint(cmd, *configPath)
		},
	}

	cmd.AddCommand(initCmd, validateCmd, printCmd)
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sshexecctl %s (commit: %s)\n", version, commit)
		},
	}
}
