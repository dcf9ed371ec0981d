// Package watch inspects and reaps the processes recorded in session
// files. The stored status of a record is whatever its spawning invocation
// last managed to write, so the watcher re-derives actual liveness by
// probing each pid against the OS. It can display sessions once or on an
// interval, terminate recorded processes graceful-then-forced, and delete
// session files once nothing in them is alive.
package watch
