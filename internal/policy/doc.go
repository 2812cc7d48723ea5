// Package policy owns the command policy consulted by the execution gate.
//
// Ownership boundary:
// - allow-lists and block-lists for commands, arguments and paths
//
// - list normalisation for values resolved by the config layer
//
// A Policy is built once at startup and never mutated afterwards, so it is
// shared by concurrent requests without locking.
package policy
