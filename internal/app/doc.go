// Package app wires the CLI surface to the core: it owns the logger, the
// configuration loader, the session store, and the lifecycles of a chain
// build or a watch invocation.
package app
