// Package gate decides whether a requested command may run on the remote
// host and, when it may, hands it to an Executor.
//
// Validate is a pure function of the request and the policy. Gate wraps it
// with logging, metrics and the execution hand-off; a denied request never
// reaches the executor.
package gate
