package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

// Template returns a commented starter config file.
func Template() string {
	return configTemplate
}

// WriteTemplate writes the starter config to path, refusing to replace an
// existing file unless overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.Newf("config already exists: %s", path)
		}
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return errors.Wrapf(err, "write config template %s", path)
	}
	return nil
}

type renderedConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Username       string `toml:"username"`
	PrivateKey     string `toml:"private_key,omitempty"`
	PrivateKeyFile string `toml:"private_key_file,omitempty"`
	KeyPassphrase  string `toml:"key_passphrase,omitempty"`
	Password       string `toml:"password,omitempty"`

	AllowedCommands    []string `toml:"allowed_commands"`
	AllowedPaths       []string `toml:"allowed_paths"`
	CommandsBlacklist  []string `toml:"commands_blacklist"`
	ArgumentsBlacklist []string `toml:"arguments_blacklist"`
	WorkDir            string   `toml:"workdir,omitempty"`

	KnownHosts            string `toml:"known_hosts,omitempty"`
	InsecureIgnoreHostKey bool   `toml:"insecure_ignore_host_key"`
	DialTimeout           string `toml:"dial_timeout"`
	Timeout               string `toml:"timeout"`

	Transport   string   `toml:"transport"`
	Listen      string   `toml:"listen"`
	AdminListen string   `toml:"admin_listen,omitempty"`
	AuthToken   string   `toml:"auth_token,omitempty"`
	CORSOrigins []string `toml:"cors_origins"`
	TLSCert     string   `toml:"tls_cert,omitempty"`
	TLSKey      string   `toml:"tls_key,omitempty"`
}

// Render encodes the redacted configuration in the file format Load reads.
func Render(cfg Config) ([]byte, error) {
	c := cfg.Redacted()
	out, err := toml.Marshal(renderedConfig{
		Host:                  c.Host,
		Port:                  c.Port,
		Username:              c.Username,
		PrivateKey:            c.PrivateKey,
		PrivateKeyFile:        c.PrivateKeyFile,
		KeyPassphrase:         c.KeyPassphrase,
		Password:              c.Password,
		AllowedCommands:       nonNil(c.AllowedCommands),
		AllowedPaths:          nonNil(c.AllowedPaths),
		CommandsBlacklist:     nonNil(c.CommandsBlacklist),
		ArgumentsBlacklist:    nonNil(c.ArgumentsBlacklist),
		WorkDir:               c.WorkDir,
		KnownHosts:            c.KnownHosts,
		InsecureIgnoreHostKey: c.InsecureIgnoreHostKey,
		DialTimeout:           c.DialTimeout.String(),
		Timeout:               c.Timeout.String(),
		Transport:             c.Transport,
		Listen:                c.Listen,
		AdminListen:           c.AdminListen,
		AuthToken:             c.AuthToken,
		CORSOrigins:           nonNil(c.CORSOrigins),
		TLSCert:               c.TLSCert,
		TLSKey:                c.TLSKey,
	})
	if err != nil {
		return nil, errors.Wrap(err, "render config")
	}
	return out, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

const configTemplate = `# sshexec configuration. Flags and SSH_* / SSHEXEC_* environment
# variables override these values.

host = "build-01.internal"
port = 22
username = "agent"

# Exactly one of password, private_key or private_key_file.
private_key_file = "~/.ssh/id_ed25519"
# key_passphrase = ""
# password = ""

known_hosts = "~/.ssh/known_hosts"
insecure_ignore_host_key = false
dial_timeout = "10s"
# 0 disables the per command timeout.
timeout = "0s"

# Commands run from here; relative path arguments resolve against it.
workdir = "/srv/app"

# Empty allow-lists disable the corresponding check.
allowed_commands = ["ls", "cat", "tail", "grep", "git"]
allowed_paths = ["/srv/app", "/var/log/app"]
commands_blacklist = ["rm", "mv", "dd", "mkfs", "fdisk", "format"]
arguments_blacklist = ["-rf", "-fr", "--force"]

transport = "stdio"
listen = "127.0.0.1:8080"
# admin_listen = "127.0.0.1:9090"
# auth_token = ""
cors_origins = []
# tls_cert = "/etc/sshexec/tls.crt"
# tls_key = "/etc/sshexec/tls.key"
`
