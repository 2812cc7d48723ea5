package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/danmuck/sshexec/internal/gate"
	"github.com/danmuck/sshexec/internal/policy"
	"github.com/danmuck/sshexec/internal/remote"
	"github.com/danmuck/sshexec/internal/testutil/testlog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	result remote.Result
	err    error
	calls  int
}

func (s *stubExecutor) Execute(context.Context, string, []string) (remote.Result, error) {
	s.calls++
	return s.result, s.err
}

func connect(t *testing.T, g *gate.Gate) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	server := mcp.NewServer(&mcp.Implementation{Name: "sshexec-test", Version: "v0.0.0"}, nil)
	Register(server, g)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "agent", Version: "v0.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return text.Text
}

func TestMapResultPassesOutputThrough(t *testing.T) {
	res := MapResult(remote.Result{ExitCode: 1, Stdout: "a\n\n", Stderr: "  warn\t\n"})
	assert.False(t, res.IsError)
	assert.Equal(t, ExecOutput{ExitCode: 1, Stdout: "a\n\n", Stderr: "  warn\t\n"}, res.StructuredContent)

	var out ExecOutput
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &out))
	assert.Equal(t, "a\n\n", out.Stdout)
	assert.Equal(t, "  warn\t\n", out.Stderr)
}

func TestMapErrorUsesMessageVerbatim(t *testing.T) {
	res := MapError(errors.New("path not permitted: /etc/passwd"))
	assert.True(t, res.IsError)
	assert.Equal(t, "path not permitted: /etc/passwd", textOf(t, res))
}

func TestListTools(t *testing.T) {
	testlog.Start(t)
	session := connect(t, gate.New(policy.Default(), &stubExecutor{}))

	list, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	names := make([]string, 0, len(list.Tools))
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ExecToolName, PolicyToolName}, names)
}

func TestExecToolRoundTrip(t *testing.T) {
	testlog.Start(t)
	exec := &stubExecutor{result: remote.Result{ExitCode: 0, Stdout: "hello", Stderr: ""}}
	session := connect(t, gate.New(policy.Default(), exec))

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ExecToolName,
		Arguments: map[string]any{"command": "echo", "arguments": "hello"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, 1, exec.calls)

	var out ExecOutput
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &out))
	assert.Equal(t, ExecOutput{ExitCode: 0, Stdout: "hello", Stderr: ""}, out)
}

func TestExecToolNonZeroExitIsNotAToolError(t *testing.T) {
	testlog.Start(t)
	exec := &stubExecutor{result: remote.Result{ExitCode: 2, Stderr: "ls: cannot access 'x'\n"}}
	session := connect(t, gate.New(policy.Default(), exec))

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ExecToolName,
		Arguments: map[string]any{"command": "ls", "arguments": "x"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var out ExecOutput
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &out))
	assert.Equal(t, 2, out.ExitCode)
	assert.Equal(t, "ls: cannot access 'x'\n", out.Stderr)
}

func TestExecToolDenied(t *testing.T) {
	testlog.Start(t)
	exec := &stubExecutor{}
	p := policy.New(policy.Options{
		BlockedArguments: []string{"-rf"},
		AllowedPaths:     []string{"/tmp"},
	})
	session := connect(t, gate.New(p, exec))

	cases := map[string]string{
		"-rf /tmp":    "blocked argument: -rf",
		"/etc/passwd": "path not permitted: /etc/passwd",
	}
	for args, reason := range cases {
		res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
			Name:      ExecToolName,
			Arguments: map[string]any{"command": "cat", "arguments": args},
		})
		require.NoError(t, err)
		assert.True(t, res.IsError, args)
		assert.Equal(t, reason, textOf(t, res))
	}
	assert.Zero(t, exec.calls)
}

func TestExecToolConnectionError(t *testing.T) {
	testlog.Start(t)
	exec := &stubExecutor{err: errors.Mark(errors.New("dial 10.0.0.9:22: connection refused"), remote.ErrConnection)}
	session := connect(t, gate.New(policy.Default(), exec))

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ExecToolName,
		Arguments: map[string]any{"command": "uptime"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "connection refused")
}

func TestPolicyTool(t *testing.T) {
	testlog.Start(t)
	p := policy.New(policy.Options{
		AllowedCommands:  []string{"ls", "cat"},
		AllowedPaths:     []string{"/srv/app"},
		BlockedCommands:  policy.DefaultBlockedCommands(),
		BlockedArguments: policy.DefaultBlockedArguments(),
		BaseDir:          "/srv/app",
	})
	session := connect(t, gate.New(p, &stubExecutor{}))

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      PolicyToolName,
		Arguments: map[string]any{},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var summary policy.Summary
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &summary))
	assert.Equal(t, p.Summary(), summary)
}
