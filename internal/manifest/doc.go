// Package manifest reads and rewrites package.json files: the version
// field, file: dependency references across the three dependency sections,
// and the declared package name. Mutations re-serialize pretty-printed;
// callers that need byte-exact restoration snapshot the raw file before the
// first mutation and restore from that snapshot, never by re-serializing.
package manifest
