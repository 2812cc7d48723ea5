// Package remote runs validated commands on a remote host over SSH.
//
// Ownership boundary:
// - connection and authentication (password or private key)
//
// - host key verification
//
// - command line assembly and output capture
//
// One connection and one session are opened per call and closed before
// returning. Output is fully buffered; there is no streaming.
package remote
