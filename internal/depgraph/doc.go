// Package depgraph validates the dependency relation between build items
// and produces a topological execution order. The model is deliberately
// single-parent: each item declares at most one depends_on target, so the
// dependency graph is a forest of chains and cycle detection reduces to a
// linked-list walk.
package depgraph
