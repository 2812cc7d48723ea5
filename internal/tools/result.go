package tools

import (
	"encoding/json"

	"github.com/danmuck/sshexec/internal/remote"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ExecOutput is the structured content of a successful ssh_exec call.
type ExecOutput struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

func outputOf(res remote.Result) ExecOutput {
	return ExecOutput{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
}

// MapResult turns an execution result into a tool result. Output bytes are
// not trimmed or re-encoded.
func MapResult(res remote.Result) *mcp.CallToolResult {
	return structured(outputOf(res))
}

// MapError reports err as a tool error whose text is the error message.
func MapError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

func structured(v any) *mcp.CallToolResult {
	body, err := json.Marshal(v)
	if err != nil {
		return MapError(err)
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(body)}},
		StructuredContent: v,
	}
}
