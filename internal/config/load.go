package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/danmuck/sshexec/internal/policy"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

// EnvConfigPath names the TOML file when --config is not given.
const EnvConfigPath = "SSHEXEC_CONFIG"

type LookupFunc func(key string) (string, bool)

type LoadOptions struct {
	// Path is an optional TOML file.
	Path string
	// Lookup reads the environment. Nil means os.LookupEnv.
	Lookup LookupFunc
	// Flags holds parsed CLI flags registered with BindFlags. Only flags the
	// user actually set are applied.
	Flags *pflag.FlagSet
}

// Load resolves the configuration and validates it.
func Load(opts LoadOptions) (Config, error) {
	cfg, err := Resolve(opts)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.logWarnings()
	log.Debug().Interface("config", cfg.Redacted()).Msg("configuration resolved")
	return cfg, nil
}

// Resolve merges every source without validating the result.
func Resolve(opts LoadOptions) (Config, error) {
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	cfg := Default()
	if path := strings.TrimSpace(opts.Path); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if opts.Flags != nil {
		if err := applyFlags(&cfg, opts.Flags); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// ConfigPath returns the explicit path when set, else the value of
// SSHEXEC_CONFIG.
func ConfigPath(explicit string, lookup LookupFunc) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvConfigPath); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

type fileConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Username       string `toml:"username"`
	PrivateKey     string `toml:"private_key"`
	PrivateKeyFile string `toml:"private_key_file"`
	KeyPassphrase  string `toml:"key_passphrase"`
	Password       string `toml:"password"`

	AllowedCommands    []string `toml:"allowed_commands"`
	AllowedPaths       []string `toml:"allowed_paths"`
	CommandsBlacklist  []string `toml:"commands_blacklist"`
	ArgumentsBlacklist []string `toml:"arguments_blacklist"`
	WorkDir            string   `toml:"workdir"`

	KnownHosts            string `toml:"known_hosts"`
	InsecureIgnoreHostKey bool   `toml:"insecure_ignore_host_key"`
	DialTimeout           string `toml:"dial_timeout"`
	Timeout               string `toml:"timeout"`

	Transport   string   `toml:"transport"`
	Listen      string   `toml:"listen"`
	AdminListen string   `toml:"admin_listen"`
	AuthToken   string   `toml:"auth_token"`
	CORSOrigins []string `toml:"cors_origins"`
	TLSCert     string   `toml:"tls_cert"`
	TLSKey      string   `toml:"tls_key"`
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "load config %s", path), ErrConfig)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		log.Warn().Str("path", path).Str("key", undecoded[0].String()).Int("count", len(undecoded)).Msg("unknown config keys ignored")
	}

	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("username") {
		cfg.Username = strings.TrimSpace(raw.Username)
	}
	if meta.IsDefined("private_key") {
		cfg.PrivateKey = raw.PrivateKey
	}
	if meta.IsDefined("private_key_file") {
		cfg.PrivateKeyFile = strings.TrimSpace(raw.PrivateKeyFile)
	}
	if meta.IsDefined("key_passphrase") {
		cfg.KeyPassphrase = raw.KeyPassphrase
	}
	if meta.IsDefined("password") {
		cfg.Password = raw.Password
	}
	if meta.IsDefined("allowed_commands") {
		cfg.AllowedCommands = policy.NormalizeList(raw.AllowedCommands)
	}
	if meta.IsDefined("allowed_paths") {
		cfg.AllowedPaths = policy.NormalizeList(raw.AllowedPaths)
	}
	if meta.IsDefined("commands_blacklist") {
		cfg.CommandsBlacklist = policy.NormalizeList(raw.CommandsBlacklist)
	}
	if meta.IsDefined("arguments_blacklist") {
		cfg.ArgumentsBlacklist = policy.NormalizeList(raw.ArgumentsBlacklist)
	}
	if meta.IsDefined("workdir") {
		cfg.WorkDir = strings.TrimSpace(raw.WorkDir)
	}
	if meta.IsDefined("known_hosts") {
		cfg.KnownHosts = strings.TrimSpace(raw.KnownHosts)
	}
	if meta.IsDefined("insecure_ignore_host_key") {
		cfg.InsecureIgnoreHostKey = raw.InsecureIgnoreHostKey
	}
	if meta.IsDefined("dial_timeout") {
		d, err := parseDuration(raw.DialTimeout)
		if err != nil {
			return errors.Mark(errors.Wrap(err, "parse dial_timeout"), ErrConfig)
		}
		cfg.DialTimeout = d
	}
	if meta.IsDefined("timeout") {
		d, err := parseDuration(raw.Timeout)
		if err != nil {
			return errors.Mark(errors.Wrap(err, "parse timeout"), ErrConfig)
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("admin_listen") {
		cfg.AdminListen = strings.TrimSpace(raw.AdminListen)
	}
	if meta.IsDefined("auth_token") {
		cfg.AuthToken = raw.AuthToken
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = policy.NormalizeList(raw.CORSOrigins)
	}
	if meta.IsDefined("tls_cert") {
		cfg.TLSCert = strings.TrimSpace(raw.TLSCert)
	}
	if meta.IsDefined("tls_key") {
		cfg.TLSKey = strings.TrimSpace(raw.TLSKey)
	}
	return nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	for _, s := range settings {
		raw, ok := lookup(s.env)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if err := s.set(cfg, raw); err != nil {
			return errors.Mark(errors.Wrapf(err, "parse %s", s.env), ErrConfig)
		}
	}
	return nil
}

func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	for _, s := range settings {
		f := fs.Lookup(s.flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := s.set(cfg, f.Value.String()); err != nil {
			return errors.Mark(errors.Wrapf(err, "parse --%s", s.flag), ErrConfig)
		}
	}
	return nil
}

// parseDuration accepts Go durations ("30s") and bare integers as seconds.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", raw)
	}
	return d, nil
}
