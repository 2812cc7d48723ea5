package gate

import (
	"context"
	"strings"

	"github.com/danmuck/sshexec/internal/observability"
	"github.com/danmuck/sshexec/internal/policy"
	"github.com/danmuck/sshexec/internal/remote"
	"github.com/rs/zerolog/log"
)

// Executor runs an already validated command.
type Executor interface {
	Execute(ctx context.Context, command string, args []string) (remote.Result, error)
}

// Gate pairs a fixed policy with the executor it guards.
type Gate struct {
	policy   policy.Policy
	executor Executor
}

func New(p policy.Policy, executor Executor) *Gate {
	return &Gate{policy: p, executor: executor}
}

func (g *Gate) Policy() policy.Policy {
	return g.policy
}

// Check validates req against the gate's policy and records the decision.
func (g *Gate) Check(req Request) Decision {
	decision := Validate(req, g.policy)
	observability.RecordGateDecision(decision.Allowed, string(decision.Rule))

	event := log.Debug()
	if !decision.Allowed {
		event = log.Info()
	}
	event.
		Str("command", strings.TrimSpace(req.Command)).
		Bool("allowed", decision.Allowed).
		Str("rule", string(decision.Rule)).
		Str("reason", decision.Reason).
		Msg("gate decision")
	return decision
}

// Run executes req when the policy allows it. Denied requests return the
// decision error and never reach the executor. Results pass through
// unchanged, including non-zero exit codes.
func (g *Gate) Run(ctx context.Context, req Request) (remote.Result, error) {
	decision := g.Check(req)
	if err := decision.Err(); err != nil {
		return remote.Result{}, err
	}
	return g.executor.Execute(ctx, strings.TrimSpace(req.Command), Tokens(req.Arguments))
}
