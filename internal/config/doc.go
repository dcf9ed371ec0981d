// Package config loads and validates the per-user build chain
// configuration. A configuration is a named, ordered list of build items;
// the canonical on-disk format is JSON, with an equivalent HCL syntax
// accepted as an alternative. The loaded []Item is the single source of
// truth for the depgraph and chain packages.
package config
