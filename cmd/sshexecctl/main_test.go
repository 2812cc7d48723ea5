package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/danmuck/sshexec/internal/config"
	"github.com/danmuck/sshexec/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range config.EnvNames() {
		t.Setenv(name, "")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	testlog.Start(t)
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "sshexecctl dev"))
}

func TestCheckAllowed(t *testing.T) {
	testlog.Start(t)
	clearEnv(t)
	out, err := execute(t, "check",
		"--command", "ls",
		"--arguments", "-la /srv/app/logs",
		"--allowed-paths", "/srv/app",
		"--workdir", "/srv/app",
	)
	require.NoError(t, err)

	var report checkReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Allowed)
	assert.Empty(t, report.Reason)
	assert.Equal(t, "cd '/srv/app' && 'ls' '-la' '/srv/app/logs'", report.CommandLine)
}

func TestCheckDeniedExitsTwo(t *testing.T) {
	testlog.Start(t)
	clearEnv(t)
	t.Setenv("SSH_ALLOWED_PATHS", "/tmp,/home")

	out, err := execute(t, "check", "--command", "cat", "--arguments", "/etc/passwd")
	require.Error(t, err)
	var exit exitCodeError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, exitDenied, exit.code)

	var report checkReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Allowed)
	assert.Equal(t, "path_restriction", report.Rule)
	assert.Equal(t, "path not permitted: /etc/passwd", report.Reason)
	assert.Empty(t, report.CommandLine)
}

func TestCheckFlagOverridesEnvBlacklist(t *testing.T) {
	testlog.Start(t)
	clearEnv(t)
	t.Setenv("SSH_COMMANDS_BLACKLIST", "ls")

	_, err := execute(t, "check", "--command", "ls")
	require.Error(t, err)

	_, err = execute(t, "check", "--command", "ls", "--commands-blacklist", "")
	require.NoError(t, err)
}

func TestConfigInitPrintValidate(t *testing.T) {
	testlog.Start(t)
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "sshexec.toml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = execute(t, "config", "init", path)
	require.Error(t, err)

	t.Setenv("SSH_PASSWORD", "hunter2")
	t.Setenv("SSH_PRIVATE_KEY_FILE", "")
	out, err = execute(t, "config", "print", "--config", path, "--private-key-file", "")
	require.NoError(t, err)
	assert.Contains(t, out, "build-01.internal")
	assert.Contains(t, out, "[redacted]")
	assert.NotContains(t, out, "hunter2")

	keyPath := filepath.Join(dir, "id_test")
	require.NoError(t, os.WriteFile(keyPath, []byte("PEM"), 0o600))
	t.Setenv("SSH_PASSWORD", "")
	out, err = execute(t, "config", "validate", "--config", path, "--private-key-file", keyPath)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration ok")
}

func TestConfigValidateReportsConfigError(t *testing.T) {
	testlog.Start(t)
	clearEnv(t)
	_, err := execute(t, "config", "validate", "--username", "agent", "--password", "pw")
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrConfig))
}

func TestServeFailsFastOnBadConfig(t *testing.T) {
	testlog.Start(t)
	clearEnv(t)
	_, err := execute(t, "serve", "--host", "node-a", "--username", "agent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrConfig))
}

func TestExampleConfigLoads(t *testing.T) {
	testlog.Start(t)
	clearEnv(t)

	cfg, err := config.Load(config.LoadOptions{Path: "ex.config.toml", Lookup: os.LookupEnv})
	require.NoError(t, err)
	assert.Equal(t, "pi-build.local", cfg.Host)
	assert.Equal(t, 2222, cfg.Port)
	assert.Equal(t, "deploy", cfg.Username)
	assert.Equal(t, "http", cfg.Transport)
	assert.Equal(t, 10*time.Minute, cfg.Timeout)
	assert.Contains(t, cfg.ArgumentsBlacklist, "--hard")

	out, err := execute(t, "check", "--config", "ex.config.toml", "--command", "git", "--arguments", "reset --hard")
	require.Error(t, err)
	assert.Contains(t, out, "blocked argument: --hard")

	out, err = execute(t, "check", "--config", "ex.config.toml", "--command", "tail", "--arguments", "-n 50 ../app/build.log")
	require.NoError(t, err)
	assert.Contains(t, out, `"allowed": true`)
}
