package config

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/danmuck/sshexec/internal/policy"
	"github.com/spf13/pflag"
)

type kind int

const (
	kindString kind = iota
	kindList
	kindInt
	kindBool
	kindDuration
)

// setting binds one configuration value to its flag and environment names.
// Flags and env values share the string parser in set.
type setting struct {
	flag  string
	env   string
	kind  kind
	usage string
	set   func(cfg *Config, raw string) error
}

func stringSetting(flag, env, usage string, field func(*Config) *string) setting {
	return setting{flag: flag, env: env, kind: kindString, usage: usage, set: func(cfg *Config, raw string) error {
		*field(cfg) = strings.TrimSpace(raw)
		return nil
	}}
}

func secretSetting(flag, env, usage string, field func(*Config) *string) setting {
	return setting{flag: flag, env: env, kind: kindString, usage: usage, set: func(cfg *Config, raw string) error {
		*field(cfg) = raw
		return nil
	}}
}

func listSetting(flag, env, usage string, field func(*Config) *[]string) setting {
	return setting{flag: flag, env: env, kind: kindList, usage: usage, set: func(cfg *Config, raw string) error {
		*field(cfg) = policy.ParseList(raw)
		return nil
	}}
}

var settings = []setting{
	stringSetting("host", "SSH_HOST", "remote host name or address", func(c *Config) *string { return &c.Host }),
	{flag: "port", env: "SSH_PORT", kind: kindInt, usage: "remote SSH port", set: func(cfg *Config, raw string) error {
		port, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return errors.Wrapf(err, "invalid port %q", raw)
		}
		cfg.Port = port
		return nil
	}},
	stringSetting("username", "SSH_USERNAME", "remote login user", func(c *Config) *string { return &c.Username }),
	secretSetting("private-key", "SSH_PRIVATE_KEY", "PEM private key content", func(c *Config) *string { return &c.PrivateKey }),
	stringSetting("private-key-file", "SSH_PRIVATE_KEY_FILE", "path to a PEM private key", func(c *Config) *string { return &c.PrivateKeyFile }),
	secretSetting("key-passphrase", "SSH_KEY_PASSPHRASE", "passphrase for an encrypted private key", func(c *Config) *string { return &c.KeyPassphrase }),
	secretSetting("password", "SSH_PASSWORD", "password authentication (exclusive with a private key)", func(c *Config) *string { return &c.Password }),
	listSetting("allowed-commands", "SSH_ALLOWED_COMMANDS", "comma separated allow-list of commands; empty allows any command not blocked", func(c *Config) *[]string { return &c.AllowedCommands }),
	listSetting("allowed-paths", "SSH_ALLOWED_PATHS", "comma separated allowed path prefixes; empty disables path checks", func(c *Config) *[]string { return &c.AllowedPaths }),
	listSetting("commands-blacklist", "SSH_COMMANDS_BLACKLIST", "comma separated blocked commands", func(c *Config) *[]string { return &c.CommandsBlacklist }),
	listSetting("arguments-blacklist", "SSH_ARGUMENTS_BLACKLIST", "comma separated blocked argument tokens", func(c *Config) *[]string { return &c.ArgumentsBlacklist }),
	stringSetting("workdir", "SSH_WORKDIR", "absolute remote directory commands run in", func(c *Config) *string { return &c.WorkDir }),
	stringSetting("known-hosts", "SSH_KNOWN_HOSTS", "known_hosts file (default ~/.ssh/known_hosts)", func(c *Config) *string { return &c.KnownHosts }),
	{flag: "insecure-ignore-host-key", env: "SSH_INSECURE_IGNORE_HOST_KEY", kind: kindBool, usage: "skip host key verification", set: func(cfg *Config, raw string) error {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return errors.Wrapf(err, "invalid bool %q", raw)
		}
		cfg.InsecureIgnoreHostKey = v
		return nil
	}},
	{flag: "dial-timeout", env: "SSH_DIAL_TIMEOUT", kind: kindDuration, usage: "TCP connect and handshake timeout", set: func(cfg *Config, raw string) error {
		d, err := parseDuration(raw)
		cfg.DialTimeout = d
		return err
	}},
	{flag: "timeout", env: "SSH_EXEC_TIMEOUT", kind: kindDuration, usage: "per command timeout, 0 disables", set: func(cfg *Config, raw string) error {
		d, err := parseDuration(raw)
		cfg.Timeout = d
		return err
	}},
	{flag: "transport", env: "SSHEXEC_TRANSPORT", kind: kindString, usage: "MCP transport: stdio or http", set: func(cfg *Config, raw string) error {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw))
		return nil
	}},
	stringSetting("listen", "SSHEXEC_LISTEN", "HTTP listen address for the http transport", func(c *Config) *string { return &c.Listen }),
	stringSetting("admin-listen", "SSHEXEC_ADMIN_LISTEN", "health and metrics listen address in stdio mode", func(c *Config) *string { return &c.AdminListen }),
	secretSetting("auth-token", "SSHEXEC_AUTH_TOKEN", "bearer token required on /mcp", func(c *Config) *string { return &c.AuthToken }),
	listSetting("cors-origins", "SSHEXEC_CORS_ORIGINS", "comma separated CORS origins", func(c *Config) *[]string { return &c.CORSOrigins }),
	stringSetting("tls-cert", "SSHEXEC_TLS_CERT", "PEM certificate for HTTPS listeners", func(c *Config) *string { return &c.TLSCert }),
	stringSetting("tls-key", "SSHEXEC_TLS_KEY", "PEM key for HTTPS listeners", func(c *Config) *string { return &c.TLSKey }),
}

// BindFlags registers every setting on fs. Defaults shown in help are the
// built-in ones; Load only applies flags that were explicitly set.
func BindFlags(fs *pflag.FlagSet) {
	def := Default()
	for _, s := range settings {
		switch s.kind {
		case kindInt:
			fs.Int(s.flag, def.Port, s.usage)
		case kindBool:
			fs.Bool(s.flag, false, s.usage)
		case kindDuration:
			d := def.Timeout
			if s.flag == "dial-timeout" {
				d = def.DialTimeout
			}
			fs.Duration(s.flag, d, s.usage)
		case kindList:
			fs.String(s.flag, listDefault(def, s.flag), s.usage)
		default:
			fs.String(s.flag, stringDefault(def, s.flag), s.usage)
		}
	}
}

func listDefault(def Config, flag string) string {
	switch flag {
	case "commands-blacklist":
		return strings.Join(def.CommandsBlacklist, ",")
	case "arguments-blacklist":
		return strings.Join(def.ArgumentsBlacklist, ",")
	}
	return ""
}

func stringDefault(def Config, flag string) string {
	switch flag {
	case "transport":
		return def.Transport
	case "listen":
		return def.Listen
	}
	return ""
}

// EnvNames lists the environment variables Load reads, in flag order.
func EnvNames() []string {
	out := make([]string, 0, len(settings)+1)
	for _, s := range settings {
		out = append(out, s.env)
	}
	return append(out, EnvConfigPath)
}
