package remote

import (
	"bytes"
	"context"
	"net"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/danmuck/sshexec/internal/observability"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

var (
	ErrInvalidConfig = errors.New("remote: invalid config")
	ErrConnection    = errors.New("remote: connection failed")
	ErrTimeout       = errors.New("remote: execution timed out")
)

// exit code reported when the remote process dies on a signal.
const signalExitCode = 255

// Result is the captured outcome of one remote command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// SSHExecutor opens a fresh SSH connection for every Execute call.
type SSHExecutor struct {
	cfg     Config
	auth    ssh.AuthMethod
	hostKey ssh.HostKeyCallback
}

// NewSSHExecutor validates cfg and prepares authentication. Key parsing and
// known_hosts loading happen here so bad material fails at startup.
func NewSSHExecutor(cfg Config) (*SSHExecutor, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	auth, err := authMethod(cfg.Credential)
	if err != nil {
		return nil, errors.Mark(err, ErrInvalidConfig)
	}

	hostKey, err := cfg.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	return &SSHExecutor{cfg: cfg, auth: auth, hostKey: hostKey}, nil
}

func (e *SSHExecutor) Config() Config {
	return e.cfg
}

// Execute runs command with args on the remote host. A non-zero exit code is
// a normal Result; errors mean the command could not be run to completion and
// no partial Result is returned.
func (e *SSHExecutor) Execute(ctx context.Context, command string, args []string) (Result, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := e.execute(ctx, command, args)
	elapsed := time.Since(start)
	observability.RecordRemoteExecution(outcomeOf(res, err), elapsed)

	if err != nil {
		log.Warn().
			Str("host", e.cfg.Address()).
			Str("command", command).
			Dur("duration", elapsed).
			Err(err).
			Msg("remote execution failed")
		return Result{}, err
	}
	log.Debug().
		Str("host", e.cfg.Address()).
		Str("command", command).
		Int("exit_code", res.ExitCode).
		Dur("duration", elapsed).
		Msg("remote execution complete")
	return res, nil
}

func (e *SSHExecutor) execute(ctx context.Context, command string, args []string) (Result, error) {
	client, err := e.dial(ctx)
	if err != nil {
		return Result{}, err
	}
	defer client.Close()

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	session, err := client.NewSession()
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, contextError(ctx)
		}
		return Result{}, connectionError(err, "open ssh session")
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	runErr := session.Run(e.commandLine(command, args))
	return runOutcome(ctx, runErr, &stdout, &stderr)
}

// runOutcome keeps a completed run even when ctx ends right after it. A
// failed run under an ended ctx is reported as the cancellation.
func runOutcome(ctx context.Context, runErr error, stdout, stderr *bytes.Buffer) (Result, error) {
	if runErr != nil && ctx.Err() != nil {
		return Result{}, contextError(ctx)
	}
	return exitResult(runErr, stdout, stderr)
}

func (e *SSHExecutor) dial(ctx context.Context) (*ssh.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(ctx)
	}
	address := e.cfg.Address()

	dialer := net.Dialer{Timeout: e.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		if ctx.Err() != nil {
			return nil, contextError(ctx)
		}
		return nil, connectionError(err, "dial "+address)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_ = conn.SetDeadline(time.Now().Add(e.cfg.DialTimeout))
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, &ssh.ClientConfig{
		User:            e.cfg.User,
		Auth:            []ssh.AuthMethod{e.auth},
		HostKeyCallback: e.hostKey,
		Timeout:         e.cfg.DialTimeout,
	})
	if err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, contextError(ctx)
		}
		return nil, connectionError(err, "ssh handshake with "+address)
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (e *SSHExecutor) commandLine(command string, args []string) string {
	line := JoinCommand(command, args)
	if e.cfg.WorkingDir == "" {
		return line
	}
	return "cd " + shellEscape(e.cfg.WorkingDir) + " && " + line
}

func exitResult(runErr error, stdout, stderr *bytes.Buffer) (Result, error) {
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr == nil {
		return res, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitStatus()
		if res.ExitCode == 0 && exitErr.Signal() != "" {
			res.ExitCode = signalExitCode
		}
		return res, nil
	}

	var missing *ssh.ExitMissingError
	if errors.As(runErr, &missing) {
		return Result{}, connectionError(runErr, "remote closed the session without an exit status")
	}
	return Result{}, connectionError(runErr, "run remote command")
}

func connectionError(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrConnection)
}

func contextError(ctx context.Context) error {
	cause := ctx.Err()
	if errors.Is(cause, context.DeadlineExceeded) {
		return errors.Mark(errors.Wrap(cause, "remote command did not finish before the deadline"), ErrTimeout)
	}
	return errors.Wrap(cause, "remote command cancelled")
}

func outcomeOf(res Result, err error) string {
	switch {
	case err == nil && res.ExitCode == 0:
		return observability.OutcomeSuccess
	case err == nil:
		return observability.OutcomeNonZero
	case errors.Is(err, ErrTimeout):
		return observability.OutcomeTimeout
	default:
		return observability.OutcomeConnection
	}
}

// JoinCommand renders command and args as one shell line with every token
// single-quoted, so the remote shell runs exactly these tokens.
func JoinCommand(cmd string, args []string) string {
	if len(args) == 0 {
		return shellEscape(cmd)
	}

	var builder strings.Builder
	builder.WriteString(shellEscape(cmd))
	for _, arg := range args {
		builder.WriteByte(' ')
		builder.WriteString(shellEscape(arg))
	}

	return builder.String()
}

func shellEscape(value string) string {
	if value == "" {
		return "''"
	}

	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
