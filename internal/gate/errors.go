package gate

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidInput marks requests that are malformed rather than forbidden.
	ErrInvalidInput = errors.New("gate: invalid input")
	// ErrDenied marks requests refused by the policy.
	ErrDenied = errors.New("gate: denied by policy")
)

// DeniedError carries the refusing decision. Its message is the decision
// reason verbatim so callers can show it to the agent unchanged.
type DeniedError struct {
	Decision Decision
}

func (e *DeniedError) Error() string {
	return e.Decision.Reason
}

func (e *DeniedError) Is(target error) bool {
	if target == ErrDenied {
		return e.Decision.Rule != RuleInvalidInput
	}
	if target == ErrInvalidInput {
		return e.Decision.Rule == RuleInvalidInput
	}
	return false
}
