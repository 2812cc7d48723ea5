package policy

import (
	"path"
	"slices"
	"strings"
)

var (
	defaultBlockedCommands  = []string{"rm", "mv", "dd", "mkfs", "fdisk", "format"}
	defaultBlockedArguments = []string{"-rf", "-fr", "--force"}
)

func DefaultBlockedCommands() []string {
	return slices.Clone(defaultBlockedCommands)
}

func DefaultBlockedArguments() []string {
	return slices.Clone(defaultBlockedArguments)
}

// Options carries raw list values before normalisation.
type Options struct {
	AllowedCommands  []string
	AllowedPaths     []string
	BlockedCommands  []string
	BlockedArguments []string
	// BaseDir anchors relative path tokens. Empty means relative paths cannot
	// be canonicalised.
	BaseDir string
}

// Policy is the immutable command policy. Empty allow-lists mean no
// restriction beyond the block-lists.
type Policy struct {
	allowedCommands  set
	allowedPaths     []string
	blockedCommands  set
	blockedArguments set
	baseDir          string
}

type set map[string]struct{}

func newSet(values []string) set {
	out := make(set, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func (s set) has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Default returns the built-in policy: no allow-lists, default block-lists.
func Default() Policy {
	return New(Options{
		BlockedCommands:  defaultBlockedCommands,
		BlockedArguments: defaultBlockedArguments,
	})
}

func New(opts Options) Policy {
	return Policy{
		allowedCommands:  newSet(NormalizeList(opts.AllowedCommands)),
		allowedPaths:     normalizePaths(opts.AllowedPaths),
		blockedCommands:  newSet(NormalizeList(opts.BlockedCommands)),
		blockedArguments: newSet(NormalizeList(opts.BlockedArguments)),
		baseDir:          normalizeBaseDir(opts.BaseDir),
	}
}

// ParseList splits a comma separated value into trimmed, non-empty entries.
func ParseList(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return []string{}
	}
	return NormalizeList(strings.Split(csv, ","))
}

// NormalizeList trims entries and drops empty values and duplicates,
// keeping first-seen order.
func NormalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func normalizePaths(in []string) []string {
	entries := NormalizeList(in)
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		cleaned := path.Clean(entry)
		if !slices.Contains(out, cleaned) {
			out = append(out, cleaned)
		}
	}
	slices.Sort(out)
	return out
}

func normalizeBaseDir(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" || !path.IsAbs(dir) {
		return ""
	}
	return path.Clean(dir)
}

func (p Policy) IsBlockedCommand(command string) bool {
	return p.blockedCommands.has(command)
}

// IsAllowedCommand reports allow-list membership; always true when the
// allow-list is empty.
func (p Policy) IsAllowedCommand(command string) bool {
	if len(p.allowedCommands) == 0 {
		return true
	}
	return p.allowedCommands.has(command)
}

func (p Policy) IsBlockedArgument(token string) bool {
	return p.blockedArguments.has(token)
}

func (p Policy) RestrictsCommands() bool {
	return len(p.allowedCommands) > 0
}

func (p Policy) RestrictsPaths() bool {
	return len(p.allowedPaths) > 0
}

// PathAllowed reports whether an absolute, cleaned path equals an allowed
// path or lies beneath one.
func (p Policy) PathAllowed(canonical string) bool {
	if !path.IsAbs(canonical) {
		return false
	}
	for _, root := range p.allowedPaths {
		if !path.IsAbs(root) {
			continue
		}
		if canonical == root || root == "/" || strings.HasPrefix(canonical, root+"/") {
			return true
		}
	}
	return false
}

func (p Policy) BaseDir() string {
	return p.baseDir
}

func (p Policy) AllowedCommands() []string {
	return p.allowedCommands.sorted()
}

func (p Policy) AllowedPaths() []string {
	return slices.Clone(p.allowedPaths)
}

func (p Policy) BlockedCommands() []string {
	return p.blockedCommands.sorted()
}

func (p Policy) BlockedArguments() []string {
	return p.blockedArguments.sorted()
}

// Summary is the JSON view of a policy, used by the ssh_policy tool and logs.
type Summary struct {
	AllowedCommands  []string `json:"allowed_commands"`
	AllowedPaths     []string `json:"allowed_paths"`
	BlockedCommands  []string `json:"blocked_commands"`
	BlockedArguments []string `json:"blocked_arguments"`
	WorkingDir       string   `json:"working_dir,omitempty"`
}

func (p Policy) Summary() Summary {
	return Summary{
		AllowedCommands:  p.AllowedCommands(),
		AllowedPaths:     p.AllowedPaths(),
		BlockedCommands:  p.BlockedCommands(),
		BlockedArguments: p.BlockedArguments(),
		WorkingDir:       p.baseDir,
	}
}
