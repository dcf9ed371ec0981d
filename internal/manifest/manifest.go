package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the manifest file consulted in every item directory.
const FileName = "package.json"

var (
	// ErrNotFound indicates the directory holds no manifest file.
	ErrNotFound = errors.New("package.json not found")
	// ErrNoVersion indicates the manifest lacks a version field.
	ErrNoVersion = errors.New("package.json has no version field")
	// ErrNoName indicates the manifest lacks a name field.
	ErrNoName = errors.New("package.json has no name field")
)

// dependencySections are the manifest keys rewritten by WriteDependencyPath.
var dependencySections = []string{"dependencies", "devDependencies", "peerDependencies"}

// Path returns the manifest path for an item directory.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Exists reports whether dir contains a manifest file.
func Exists(dir string) bool {
	info, err := os.Stat(Path(dir))
	return err == nil && !info.IsDir()
}

// read parses the manifest into a generic document.
func read(dir string) (map[string]any, error) {
	raw, err := os.ReadFile(Path(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s", ErrNotFound, dir)
		}
		return nil, fmt.Errorf("read %s: %w", Path(dir), err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", Path(dir), err)
	}
	return doc, nil
}

// write serializes the document pretty-printed with a trailing newline.
func write(dir string, doc map[string]any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode %s: %w", Path(dir), err)
	}
	if err := os.WriteFile(Path(dir), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", Path(dir), err)
	}
	return nil
}

// ReadVersion returns the manifest's version field.
func ReadVersion(dir string) (string, error) {
	doc, err := read(dir)
	if err != nil {
		return "", err
	}
	version, ok := doc["version"].(string)
	if !ok || version == "" {
		return "", fmt.Errorf("%w in %s", ErrNoVersion, dir)
	}
	return version, nil
}

// ReadName returns the manifest's declared package name, which may differ
// from the configuration item name.
func ReadName(dir string) (string, error) {
	doc, err := read(dir)
	if err != nil {
		return "", err
	}
	name, ok := doc["name"].(string)
	if !ok || name == "" {
		return "", fmt.Errorf("%w in %s", ErrNoName, dir)
	}
	return name, nil
}

// WriteVersion rewrites the manifest's version field.
func WriteVersion(dir, version string) error {
	doc, err := read(dir)
	if err != nil {
		return err
	}
	doc["version"] = version
	return write(dir, doc)
}

// WriteDependencyPath rewrites every occurrence of depName across the
// dependency sections to a file:<path> reference. Silent no-op when the
// dependency is not declared anywhere.
func WriteDependencyPath(dir, depName, path string) error {
	doc, err := read(dir)
	if err != nil {
		return err
	}

	changed := false
	for _, section := range dependencySections {
		deps, ok := doc[section].(map[string]any)
		if !ok {
			continue
		}
		if _, ok := deps[depName]; ok {
			deps[depName] = "file:" + path
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return write(dir, doc)
}

// Snapshot returns the manifest's raw bytes, for byte-exact restoration
// after a mutate-run-restore cycle.
func Snapshot(dir string) ([]byte, error) {
	raw, err := os.ReadFile(Path(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s", ErrNotFound, dir)
		}
		return nil, fmt.Errorf("read %s: %w", Path(dir), err)
	}
	return raw, nil
}

// Restore writes back a snapshot taken by Snapshot.
func Restore(dir string, raw []byte) error {
	if err := os.WriteFile(Path(dir), raw, 0o644); err != nil {
		return fmt.Errorf("restore %s: %w", Path(dir), err)
	}
	return nil
}
