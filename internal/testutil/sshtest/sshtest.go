package sshtest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Reply is what the scripted remote host answers for one exec request.
type Reply struct {
	Stdout     string
	Stderr     string
	ExitStatus uint32
	// NoExitStatus closes the channel without sending exit-status.
	NoExitStatus bool
}

type Handler func(command string) Reply

type Options struct {
	User          string
	Password      string
	AuthorizedKey ssh.PublicKey
	Handler       Handler
}

// Server is an in-process SSH server that accepts exec requests only.
type Server struct {
	listener net.Listener
	config   *ssh.ServerConfig
	hostKey  ssh.PublicKey
	handler  Handler

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	commands []string
	closed   bool
}

func Start(t testing.TB, opts Options) *Server {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}

	cfg := &ssh.ServerConfig{}
	if opts.Password != "" {
		cfg.PasswordCallback = func(meta ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if meta.User() == opts.User && subtle.ConstantTimeCompare(pass, []byte(opts.Password)) == 1 {
				return nil, nil
			}
			return nil, errors.New("password rejected")
		}
	}
	if opts.AuthorizedKey != nil {
		authorized := opts.AuthorizedKey.Marshal()
		cfg.PublicKeyCallback = func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if meta.User() == opts.User && bytes.Equal(key.Marshal(), authorized) {
				return nil, nil
			}
			return nil, errors.New("public key rejected")
		}
	}
	cfg.AddHostKey(hostSigner)

	handler := opts.Handler
	if handler == nil {
		handler = func(string) Reply { return Reply{} }
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &Server{
		listener: ln,
		config:   cfg,
		hostKey:  hostSigner.PublicKey(),
		handler:  handler,
		conns:    make(map[net.Conn]struct{}),
	}
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

func (s *Server) HostKey() ssh.PublicKey {
	return s.hostKey
}

// Commands returns every exec payload received so far.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// WriteKnownHosts writes a known_hosts file trusting key for this server.
func (s *Server) WriteKnownHosts(t testing.TB, dir string, key ssh.PublicKey) string {
	t.Helper()
	if key == nil {
		key = s.hostKey
	}
	path := filepath.Join(dir, "known_hosts")
	line := knownhosts.Line([]string{s.Addr()}, key) + "\n"
	if err := os.WriteFile(path, []byte(line), 0o600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}
	return path
}

func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	_ = s.listener.Close()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, chReqs)
	}
}

func (s *Server) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()
	for req := range reqs {
		if req.Type != "exec" {
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
			continue
		}

		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			return
		}
		_ = req.Reply(true, nil)

		s.mu.Lock()
		s.commands = append(s.commands, payload.Command)
		s.mu.Unlock()

		reply := s.handler(payload.Command)
		if reply.Stdout != "" {
			_, _ = io.WriteString(ch, reply.Stdout)
		}
		if reply.Stderr != "" {
			_, _ = io.WriteString(ch.Stderr(), reply.Stderr)
		}
		if !reply.NoExitStatus {
			status := struct{ Status uint32 }{reply.ExitStatus}
			_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(&status))
		}
		return
	}
}

// NewClientKey returns a PEM encoded ed25519 private key and its public key.
// A non-empty passphrase encrypts the PEM block.
func NewClientKey(t testing.TB, passphrase string) ([]byte, ssh.PublicKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "sshtest")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "sshtest", []byte(passphrase))
	}
	if err != nil {
		t.Fatalf("marshal client key: %v", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("client public key: %v", err)
	}
	return pem.EncodeToMemory(block), sshPub
}

// NewHostKey returns a fresh public key, useful to build mismatching
// known_hosts entries.
func NewHostKey(t testing.TB) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	key, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	return key
}
