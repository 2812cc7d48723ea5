// Package tools binds the command gate to MCP tools.
//
// Tools:
// - ssh_exec: validate a command against the policy and run it on the
//   configured host, returning exit_code, stdout and stderr
//
// - ssh_policy: describe the active policy so an agent can plan commands
//
// Results are passed through unchanged. A non-zero exit code is a normal
// result; denials and connection failures are tool errors carrying the
// human readable reason.
package tools
