package remote

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	DefaultPort        = 22
	DefaultDialTimeout = 10 * time.Second
)

// Config describes how to reach and authenticate against the remote host.
type Config struct {
	Host       string
	Port       int
	User       string
	Credential Credential

	KnownHostsPath        string
	InsecureIgnoreHostKey bool

	// DialTimeout bounds TCP connect and SSH handshake.
	DialTimeout time.Duration
	// Timeout bounds a whole Execute call. Zero means no deadline.
	Timeout time.Duration
	// WorkingDir is entered with cd before the command runs when set.
	WorkingDir string
}

func (c Config) withDefaults() Config {
	c.Host = strings.TrimSpace(c.Host)
	c.User = strings.TrimSpace(c.User)
	c.WorkingDir = strings.TrimSpace(c.WorkingDir)
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	return c
}

// Validate checks the connection settings without touching the network.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.Host == "" {
		return invalidConfig("ssh host is required")
	}
	if c.User == "" {
		return invalidConfig("ssh user is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return invalidConfig("ssh port must be between 1 and 65535")
	}
	if c.Timeout < 0 {
		return invalidConfig("execution timeout must not be negative")
	}
	switch cred := c.Credential.(type) {
	case PasswordCredential:
		if cred.Password == "" {
			return invalidConfig("ssh password is empty")
		}
	case KeyCredential:
		if len(cred.PrivateKey) == 0 {
			return invalidConfig("ssh private key is empty")
		}
	case nil:
		return invalidConfig("one of password or private key is required")
	}
	return nil
}

// Address returns host:port. A host that already carries a port is kept.
func (c Config) Address() string {
	c = c.withDefaults()
	if _, _, err := net.SplitHostPort(c.Host); err == nil {
		return c.Host
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := strings.TrimSpace(c.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, invalidConfig("known hosts path not set and home dir unavailable")
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "load known hosts %s", path), ErrInvalidConfig)
	}
	return callback, nil
}

func invalidConfig(reason string) error {
	return errors.Mark(errors.New(reason), ErrInvalidConfig)
}
