package tools

import (
	"context"
	"time"

	"github.com/danmuck/sshexec/internal/gate"
	"github.com/danmuck/sshexec/internal/policy"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

const (
	ExecToolName   = "ssh_exec"
	PolicyToolName = "ssh_policy"
)

type ExecInput struct {
	Command   string `json:"command" jsonschema:"single command token to run on the remote host, e.g. ls"`
	Arguments string `json:"arguments,omitempty" jsonschema:"whitespace separated arguments, no shell parsing is applied"`
}

type PolicyInput struct{}

// Register adds the gate-backed tools to server.
func Register(server *mcp.Server, g *gate.Gate) {
	mcp.AddTool(server, &mcp.Tool{
		Name: ExecToolName,
		Description: "Run a command on the configured remote host over SSH. " +
			"The command is checked against the server policy first; use ssh_policy to inspect it.",
	}, execHandler(g))

	mcp.AddTool(server, &mcp.Tool{
		Name:        PolicyToolName,
		Description: "Describe the active command policy: allow-lists, block-lists and the working directory.",
	}, policyHandler(g.Policy()))
}

func execHandler(g *gate.Gate) mcp.ToolHandlerFor[ExecInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in ExecInput) (*mcp.CallToolResult, any, error) {
		callID := uuid.NewString()
		logger := log.With().Str("call_id", callID).Str("tool", ExecToolName).Logger()
		ctx = logger.WithContext(ctx)

		start := time.Now()
		res, err := g.Run(ctx, gate.Request{Command: in.Command, Arguments: in.Arguments})
		if err != nil {
			logger.Info().
				Str("command", in.Command).
				Dur("duration", time.Since(start)).
				Str("reason", err.Error()).
				Msg("tool call failed")
			return MapError(err), nil, nil
		}

		logger.Info().
			Str("command", in.Command).
			Int("exit_code", res.ExitCode).
			Dur("duration", time.Since(start)).
			Msg("tool call complete")
		return MapResult(res), nil, nil
	}
}

func policyHandler(p policy.Policy) mcp.ToolHandlerFor[PolicyInput, any] {
	summary := p.Summary()
	return func(context.Context, *mcp.CallToolRequest, PolicyInput) (*mcp.CallToolResult, any, error) {
		return structured(summary), nil, nil
	}
}
