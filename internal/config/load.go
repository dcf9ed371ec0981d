package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/pkgchain/internal/ctxlog"
)

// ErrNotFound indicates that no configuration file exists for the requested
// name, in either supported format.
var ErrNotFound = errors.New("configuration not found")

// ItemError describes a validation failure on a single configuration item.
type ItemError struct {
	Index  int
	Name   string
	Reason string
}

func (e *ItemError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("item %q: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("item at index %d: %s", e.Index, e.Reason)
}

// Loader reads named build chain configurations from a directory.
type Loader struct {
	dir string
}

// DefaultDir resolves the per-user configuration directory.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "pkgchain"), nil
}

// NewLoader creates a Loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Dir returns the directory the loader reads from.
func (l *Loader) Dir() string {
	return l.dir
}

// Load reads and validates the configuration named name. It looks for
// <name>.json first and falls back to <name>.hcl. The configuration
// directory is created if it does not yet exist.
func (l *Loader) Load(ctx context.Context, name string) ([]Item, error) {
	logger := ctxlog.FromContext(ctx)

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config directory %s: %w", l.dir, err)
	}

	jsonPath := filepath.Join(l.dir, name+".json")
	raw, err := os.ReadFile(jsonPath)
	switch {
	case err == nil:
		logger.Debug("Loading JSON configuration.", "path", jsonPath)
		items, perr := parseJSON(raw)
		if perr != nil {
			return nil, fmt.Errorf("parse %s: %w", jsonPath, perr)
		}
		return finish(ctx, items)
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read %s: %w", jsonPath, err)
	}

	hclPath := filepath.Join(l.dir, name+".hcl")
	if _, serr := os.Stat(hclPath); serr == nil {
		logger.Debug("Loading HCL configuration.", "path", hclPath)
		items, perr := parseHCLFile(hclPath)
		if perr != nil {
			return nil, fmt.Errorf("parse %s: %w", hclPath, perr)
		}
		return finish(ctx, items)
	}

	return nil, fmt.Errorf("%w: %q (looked for %s and %s)", ErrNotFound, name, jsonPath, hclPath)
}

// parseJSON decodes a configuration document. The top-level value must be a
// list of item objects.
func parseJSON(raw []byte) ([]Item, error) {
	var top any
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("not valid JSON: %w", err)
	}
	if _, ok := top.([]any); !ok {
		return nil, fmt.Errorf("top-level value must be a list of items")
	}

	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// finish applies validation and defaults to a freshly parsed item list.
func finish(ctx context.Context, items []Item) ([]Item, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}
	applyDefaults(items)
	ctxlog.FromContext(ctx).Debug("Configuration loaded.", "items", len(items))
	return items, nil
}

func validateItems(items []Item) error {
	seen := make(map[string]bool, len(items))
	for i, it := range items {
		if it.Name == "" {
			return &ItemError{Index: i, Reason: "missing required field 'name'"}
		}
		if seen[it.Name] {
			return &ItemError{Index: i, Name: it.Name, Reason: "duplicate name"}
		}
		seen[it.Name] = true

		switch it.Type {
		case TypePackage, TypeApp:
		case "":
			return &ItemError{Index: i, Name: it.Name, Reason: "missing required field 'type'"}
		default:
			return &ItemError{Index: i, Name: it.Name, Reason: fmt.Sprintf("type must be %q or %q, got %q", TypePackage, TypeApp, it.Type)}
		}

		if it.Dir == "" {
			return &ItemError{Index: i, Name: it.Name, Reason: "missing required field 'dir'"}
		}
		if len(it.Commands) == 0 {
			return &ItemError{Index: i, Name: it.Name, Reason: "missing required field 'commands'"}
		}
	}
	return nil
}

// applyDefaults fills in auto_pack for package items that omit it.
func applyDefaults(items []Item) {
	t := true
	for i := range items {
		if items[i].Type == TypePackage && items[i].AutoPack == nil {
			items[i].AutoPack = &t
		}
	}
}
