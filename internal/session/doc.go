// Package session persists the process-tracking record of a chain run: one
// JSON document per configuration name under the per-user state directory.
// The file outlives the invocation that wrote it, which is what lets a
// later watch invocation discover orphaned child processes. Writes are
// whole-file atomic rewrites (temp file + rename); there is no file
// locking, a concurrent reader simply sees the previous complete document.
package session
