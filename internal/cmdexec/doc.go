// Package cmdexec turns configured command strings into running child
// processes: placeholder resolution against dependency outputs, install
// command rewriting, shell-style tokenizing, and serial or fail-fast
// parallel stage execution through the process manager.
package cmdexec
