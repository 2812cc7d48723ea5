// Command sshexecctl serves a policy-gated SSH command tool to MCP clients.
package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/danmuck/sshexec/internal/config"
	"github.com/danmuck/sshexec/internal/observability"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

// exitCodeError ends the process with code without printing an error.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	observability.InitLogger("sshexecctl")

	if err := buildRootCmd().Execute(); err != nil {
		var exit exitCodeError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "sshexecctl: %v\n", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "sshexecctl",
		Short: "Policy-gated remote command execution for MCP agents",
		Long: `sshexecctl exposes the ssh_exec and ssh_policy tools over the Model Context
Protocol. Every command is checked against allow-lists and block-lists before it
is run on the configured host over SSH.

Settings come from flags, SSH_* and SSHEXEC_* environment variables and an
optional TOML file, in that order of precedence.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to a TOML config file (env "+config.EnvConfigPath+")")
	config.BindFlags(root.PersistentFlags())

	root.AddCommand(
		buildServeCmd(&configPath),
		buildCheckCmd(&configPath),
		buildConfigCmd(&configPath),
		buildVersionCmd(),
	)
	return root
}
