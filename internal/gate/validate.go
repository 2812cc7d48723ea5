package gate

import (
	"path"
	"strings"
	"unicode"

	"github.com/danmuck/sshexec/internal/policy"
)

// Request is one command the agent asked to run.
type Request struct {
	Command   string
	Arguments string
}

// Rule names the check that produced a decision.
type Rule string

const (
	RuleNone            Rule = ""
	RuleInvalidInput    Rule = "invalid_input"
	RuleBlockedCommand  Rule = "blocked_command"
	RuleAllowList       Rule = "allow_list"
	RuleBlockedArgument Rule = "blocked_argument"
	RulePathRestriction Rule = "path_restriction"
)

const (
	reasonCommandRequired = "command is required"
	reasonSingleToken     = "command must be a single token"
	reasonBlacklisted     = "command is blacklisted"
	reasonNotAllowed      = "command not in allow-list"
	reasonBlockedArgument = "blocked argument: "
	reasonPathNotAllowed  = "path not permitted: "
)

type Decision struct {
	Allowed bool
	Rule    Rule
	Reason  string
}

// Err returns nil for an allowed decision and a *DeniedError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Decision: d}
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(rule Rule, reason string) Decision {
	return Decision{Rule: rule, Reason: reason}
}

// Tokens splits an argument string on whitespace. No shell parsing is done:
// quotes stay part of the token they appear in.
func Tokens(arguments string) []string {
	return strings.Fields(arguments)
}

// Validate applies the policy checks in order; the first failing check
// decides.
func Validate(req Request, p policy.Policy) Decision {
	command := strings.TrimSpace(req.Command)
	if command == "" {
		return deny(RuleInvalidInput, reasonCommandRequired)
	}
	if strings.IndexFunc(command, unicode.IsSpace) >= 0 {
		return deny(RuleInvalidInput, reasonSingleToken)
	}

	if p.IsBlockedCommand(command) {
		return deny(RuleBlockedCommand, reasonBlacklisted)
	}
	if !p.IsAllowedCommand(command) {
		return deny(RuleAllowList, reasonNotAllowed)
	}

	tokens := Tokens(req.Arguments)
	for _, token := range tokens {
		if p.IsBlockedArgument(token) || p.IsBlockedArgument(unquote(token)) {
			return deny(RuleBlockedArgument, reasonBlockedArgument+token)
		}
	}

	if p.RestrictsPaths() {
		candidates := append([]string{command}, tokens...)
		for _, token := range candidates {
			if !pathTokenAllowed(token, p) {
				return deny(RulePathRestriction, reasonPathNotAllowed+token)
			}
		}
	}

	return allow()
}

// unquote strips one layer of matching single or double quotes.
func unquote(token string) string {
	if len(token) < 2 {
		return token
	}
	first, last := token[0], token[len(token)-1]
	if first == last && (first == '\'' || first == '"') {
		return token[1 : len(token)-1]
	}
	return token
}

func pathTokenAllowed(token string, p policy.Policy) bool {
	for _, candidate := range pathCandidates(unquote(token)) {
		if !isPathLike(candidate) {
			continue
		}
		canonical, ok := canonicalPath(candidate, p.BaseDir())
		if !ok || !p.PathAllowed(canonical) {
			return false
		}
	}
	return true
}

// pathCandidates lists every reading of token a remote program may treat
// as a path. A token with "=" yields each side of every "=". A short
// option yields the whole token plus each value that could be attached to
// one of its letters before the first "/".
func pathCandidates(token string) []string {
	if strings.Contains(token, "=") {
		parts := strings.Split(token, "=")
		for i, part := range parts {
			parts[i] = unquote(part)
		}
		return parts
	}
	out := []string{token}
	if strings.HasPrefix(token, "-") && !strings.HasPrefix(token, "--") {
		if slash := strings.IndexByte(token, '/'); slash > 1 {
			for i := 2; i <= slash; i++ {
				out = append(out, token[i:])
			}
		}
	}
	return out
}

func isPathLike(token string) bool {
	return strings.HasPrefix(token, "/") ||
		strings.HasPrefix(token, "~") ||
		strings.Contains(token, "/")
}

// canonicalPath resolves token to a cleaned absolute path. Home-relative
// tokens and relative tokens without a base directory cannot be resolved
// locally.
func canonicalPath(token, baseDir string) (string, bool) {
	if strings.HasPrefix(token, "~") {
		return "", false
	}
	if path.IsAbs(token) {
		return path.Clean(token), true
	}
	if baseDir == "" {
		return "", false
	}
	return path.Join(baseDir, token), true
}
