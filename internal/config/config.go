// Package config resolves sshexec settings from, highest first, explicit CLI
// flags, non-empty environment variables, a TOML file and built-in defaults.
package config

import (
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/danmuck/sshexec/internal/policy"
	"github.com/danmuck/sshexec/internal/remote"
	"github.com/danmuck/sshexec/internal/server"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// ErrConfig marks every configuration failure. It is fatal at startup.
var ErrConfig = errors.New("config: invalid configuration")

const redacted = "[redacted]"

type Config struct {
	Host           string `toml:"host" validate:"required"`
	Port           int    `toml:"port" validate:"min=1,max=65535"`
	Username       string `toml:"username" validate:"required"`
	PrivateKey     string `toml:"private_key"`
	PrivateKeyFile string `toml:"private_key_file"`
	KeyPassphrase  string `toml:"key_passphrase"`
	Password       string `toml:"password"`

	AllowedCommands    []string `toml:"allowed_commands"`
	AllowedPaths       []string `toml:"allowed_paths"`
	CommandsBlacklist  []string `toml:"commands_blacklist"`
	ArgumentsBlacklist []string `toml:"arguments_blacklist"`
	WorkDir            string   `toml:"workdir" validate:"omitempty,startswith=/"`

	KnownHosts            string        `toml:"known_hosts"`
	InsecureIgnoreHostKey bool          `toml:"insecure_ignore_host_key"`
	DialTimeout           time.Duration `toml:"dial_timeout" validate:"gte=0"`
	Timeout               time.Duration `toml:"timeout" validate:"gte=0"`

	Transport   string   `toml:"transport" validate:"oneof=stdio http"`
	Listen      string   `toml:"listen" validate:"required_if=Transport http"`
	AdminListen string   `toml:"admin_listen"`
	AuthToken   string   `toml:"auth_token"`
	CORSOrigins []string `toml:"cors_origins"`
	TLSCert     string   `toml:"tls_cert" validate:"required_with=TLSKey"`
	TLSKey      string   `toml:"tls_key" validate:"required_with=TLSCert"`
}

// Default returns the built-in settings. Host and username have no default.
func Default() Config {
	return Config{
		Port:               remote.DefaultPort,
		AllowedCommands:    []string{},
		AllowedPaths:       []string{},
		CommandsBlacklist:  policy.DefaultBlockedCommands(),
		ArgumentsBlacklist: policy.DefaultBlockedArguments(),
		DialTimeout:        remote.DefaultDialTimeout,
		Transport:          string(server.TransportStdio),
		Listen:             server.DefaultListen,
		CORSOrigins:        []string{},
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
			return name
		})
	})
	return validate
}

// Validate checks field shapes and the credential rule: exactly one of
// password or private key (inline or file).
func (c Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return configErrorf("%s: failed %q check (value %v)", fe.Field(), fe.Tag(), safeValue(fe))
		}
		return errors.Mark(errors.Wrap(err, "validate config"), ErrConfig)
	}

	hasPassword := c.Password != ""
	hasKey := c.PrivateKey != "" || c.PrivateKeyFile != ""
	switch {
	case c.PrivateKey != "" && c.PrivateKeyFile != "":
		return configErrorf("private_key and private_key_file are mutually exclusive")
	case hasPassword && hasKey:
		return configErrorf("password and private key are mutually exclusive; set exactly one")
	case !hasPassword && !hasKey:
		return configErrorf("one of password or private key is required")
	case c.KeyPassphrase != "" && !hasKey:
		return configErrorf("key_passphrase is set but no private key is configured")
	}
	return nil
}

func safeValue(fe validator.FieldError) any {
	switch fe.Field() {
	case "password", "private_key", "key_passphrase", "auth_token":
		return redacted
	}
	return fe.Value()
}

// Policy builds the command policy. The working directory doubles as the base
// for relative path tokens.
func (c Config) Policy() policy.Policy {
	return policy.New(policy.Options{
		AllowedCommands:  c.AllowedCommands,
		AllowedPaths:     c.AllowedPaths,
		BlockedCommands:  c.CommandsBlacklist,
		BlockedArguments: c.ArgumentsBlacklist,
		BaseDir:          c.WorkDir,
	})
}

// Remote builds the executor settings, reading the private key file when one
// is configured.
func (c Config) Remote() (remote.Config, error) {
	var cred remote.Credential
	switch {
	case c.Password != "":
		cred = remote.PasswordCredential{Password: c.Password}
	case c.PrivateKey != "":
		cred = remote.KeyCredential{PrivateKey: []byte(c.PrivateKey), Passphrase: []byte(c.KeyPassphrase)}
	case c.PrivateKeyFile != "":
		key, err := os.ReadFile(expandHome(c.PrivateKeyFile))
		if err != nil {
			return remote.Config{}, errors.Mark(errors.Wrapf(err, "read private key file %s", c.PrivateKeyFile), ErrConfig)
		}
		cred = remote.KeyCredential{PrivateKey: key, Passphrase: []byte(c.KeyPassphrase)}
	default:
		return remote.Config{}, configErrorf("one of password or private key is required")
	}

	return remote.Config{
		Host:                  c.Host,
		Port:                  c.Port,
		User:                  c.Username,
		Credential:            cred,
		KnownHostsPath:        expandHome(c.KnownHosts),
		InsecureIgnoreHostKey: c.InsecureIgnoreHostKey,
		DialTimeout:           c.DialTimeout,
		Timeout:               c.Timeout,
		WorkingDir:            c.WorkDir,
	}, nil
}

// Server builds the host surface options.
func (c Config) Server(version string) server.Options {
	return server.Options{
		Version:     version,
		Transport:   server.Transport(c.Transport),
		Listen:      c.Listen,
		AdminListen: c.AdminListen,
		AuthToken:   c.AuthToken,
		CORSOrigins: c.CORSOrigins,
		TLSCertFile: expandHome(c.TLSCert),
		TLSKeyFile:  expandHome(c.TLSKey),
	}
}

// Redacted returns a copy safe to log or print.
func (c Config) Redacted() Config {
	out := c
	for _, secret := range []*string{&out.Password, &out.PrivateKey, &out.KeyPassphrase, &out.AuthToken} {
		if *secret != "" {
			*secret = redacted
		}
	}
	return out
}

func (c Config) warnings() []string {
	var out []string
	for _, p := range c.AllowedPaths {
		if p = strings.TrimSpace(p); p != "" && !strings.HasPrefix(p, "/") {
			out = append(out, "allowed path "+p+" is not absolute and will never match")
		}
	}
	if c.InsecureIgnoreHostKey {
		out = append(out, "host key verification is disabled")
	}
	if c.Transport == string(server.TransportHTTP) && c.AuthToken != "" && c.TLSCert == "" {
		out = append(out, "bearer token is sent over plain http; set tls_cert and tls_key")
	}
	if c.Transport == string(server.TransportHTTP) && c.AuthToken == "" {
		out = append(out, "http transport has no auth token; /mcp is open to anyone who can reach "+c.Listen)
	}
	return out
}

func (c Config) logWarnings() {
	for _, w := range c.warnings() {
		log.Warn().Msg(w)
	}
}

func expandHome(p string) string {
	p = strings.TrimSpace(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + p[1:]
		}
	}
	return p
}

func configErrorf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfig)
}
