package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/sshexec/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateLoads(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "sshexec.toml")
	require.NoError(t, WriteTemplate(path, false))

	cfg, err := Load(LoadOptions{Path: path, Lookup: envMap(nil)})
	require.NoError(t, err)
	assert.Equal(t, "build-01.internal", cfg.Host)
	assert.Equal(t, "agent", cfg.Username)
	assert.Equal(t, []string{"ls", "cat", "tail", "grep", "git"}, cfg.AllowedCommands)
	assert.Equal(t, "/srv/app", cfg.Policy().BaseDir())
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sshexec.toml")
	require.NoError(t, os.WriteFile(path, []byte("host = \"keep\"\n"), 0o600))

	err := WriteTemplate(path, false)
	require.Error(t, err)
	body, _ := os.ReadFile(path)
	assert.Equal(t, "host = \"keep\"\n", string(body))

	require.NoError(t, WriteTemplate(path, true))
	body, _ = os.ReadFile(path)
	assert.Equal(t, Template(), string(body))
}

func TestRenderRoundTrip(t *testing.T) {
	testlog.Start(t)
	cfg := Default()
	cfg.Host = "node-a"
	cfg.Username = "agent"
	cfg.Password = "hunter2"
	cfg.AllowedPaths = []string{"/srv"}
	cfg.Timeout = 0

	out, err := Render(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")

	path := filepath.Join(t.TempDir(), "rendered.toml")
	require.NoError(t, os.WriteFile(path, out, 0o600))
	back, err := Resolve(LoadOptions{Path: path, Lookup: envMap(nil)})
	require.NoError(t, err)
	assert.Equal(t, "node-a", back.Host)
	assert.Equal(t, []string{"/srv"}, back.AllowedPaths)
	assert.Equal(t, cfg.DialTimeout, back.DialTimeout)
	assert.Equal(t, "[redacted]", back.Password)
}
