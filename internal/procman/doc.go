// Package procman owns every child process spawned during one chain run.
// A Manager is an explicit, injected object (never a package-level
// singleton): it registers live process handles in memory, mirrors each
// lifecycle transition into the on-disk session store, and on shutdown
// terminates every still-registered child graceful-then-forced. The
// in-memory registry dies with the invocation; the session store record is
// what lets a later watch invocation find anything shutdown missed.
package procman
