// Package chain drives the per-item build state machine over a
// topologically sorted item list: manifest mutation, artifact cleanup,
// dependency rewriting, command execution, artifact capture, and the
// guaranteed manifest restore that makes a failed run safe to re-invoke.
package chain
