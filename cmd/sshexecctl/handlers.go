package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/danmuck/sshexec/internal/config"
	"github.com/danmuck/sshexec/internal/gate"
	"github.com/danmuck/sshexec/internal/remote"
	"github.com/danmuck/sshexec/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const exitDenied = 2

func loadOptions(cmd *cobra.Command, configPath string) config.LoadOptions {
	return config.LoadOptions{
		Path:   config.ConfigPath(configPath, os.LookupEnv),
		Lookup: os.LookupEnv,
		Flags:  cmd.Flags(),
	}
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(loadOptions(cmd, configPath))
	if err != nil {
		return err
	}

	remoteCfg, err := cfg.Remote()
	if err != nil {
		return err
	}
	executor, err := remote.NewSSHExecutor(remoteCfg)
	if err != nil {
		return errors.Mark(err, config.ErrConfig)
	}

	p := cfg.Policy()
	log.Info().
		Str("host", remoteCfg.Address()).
		Str("user", remoteCfg.User).
		Str("credential", remote.CredentialKind(remoteCfg.Credential)).
		Strs("allowed_commands", p.AllowedCommands()).
		Strs("allowed_paths", p.AllowedPaths()).
		Strs("blocked_commands", p.BlockedCommands()).
		Strs("blocked_arguments", p.BlockedArguments()).
		Dur("timeout", remoteCfg.Timeout).
		Msg("policy loaded")

	// stdout carries MCP frames in stdio mode.
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = os.Stderr

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(gate.New(p, executor), cfg.Server(version))
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("sshexec server stopped")
	return nil
}

type checkReport struct {
	Allowed     bool   `json:"allowed"`
	Rule        string `json:"rule,omitempty"`
	Reason      string `json:"reason,omitempty"`
	CommandLine string `json:"command_line,omitempty"`
}

func runCheck(cmd *cobra.Command, configPath, command, arguments string) error {
	cfg, err := config.Resolve(loadOptions(cmd, configPath))
	if err != nil {
		return err
	}

	decision := gate.New(cfg.Policy(), nil).Check(gate.Request{Command: command, Arguments: arguments})
	report := checkReport{
		Allowed: decision.Allowed,
		Rule:    string(decision.Rule),
		Reason:  decision.Reason,
	}
	if decision.Allowed {
		report.CommandLine = remote.JoinCommand(command, gate.Tokens(arguments))
		if cfg.WorkDir != "" {
			report.CommandLine = "cd " + remote.JoinCommand(cfg.WorkDir, nil) + " && " + report.CommandLine
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return errors.Wrap(err, "write check report")
	}
	if !decision.Allowed {
		return exitCodeError{code: exitDenied}
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, target string, force bool) error {
	if err := config.WriteTemplate(target, force); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote config template to %s\n", target)
	return nil
}

func runConfigValidate(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(loadOptions(cmd, configPath))
	if err != nil {
		return err
	}
	if _, err := cfg.Remote(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "configuration ok")
	return nil
}

func runConfigPrint(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Resolve(loadOptions(cmd, configPath))
	if err != nil {
		return err
	}
	out, err := config.Render(cfg)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
