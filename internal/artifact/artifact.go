// Package artifact locates and cleans the tarballs produced by packaging
// commands. Tarball names follow the npm convention
// <name>-<version>.tgz, with scoped package names flattened to
// scope--name.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vk/pkgchain/internal/ctxlog"
	"github.com/vk/pkgchain/internal/fsutil"
)

// Extension is the packaging artifact file extension.
const Extension = ".tgz"

// ErrNoArtifacts indicates a directory that exists but contains no
// packaging artifacts at all.
var ErrNoArtifacts = errors.New("no packaging artifacts found")

// FilenamePrefix maps a declared package name to the filename prefix the
// packaging tool uses. Scoped names (@scope/name) flatten the scope
// separator to scope--name; unscoped names pass through unchanged.
func FilenamePrefix(packageName string) string {
	if !strings.HasPrefix(packageName, "@") {
		return packageName
	}
	return strings.ReplaceAll(strings.TrimPrefix(packageName, "@"), "/", "--")
}

// Clean deletes every packaging artifact in dir. Best-effort: individual
// deletion failures are collected and returned, never fatal. A missing
// directory is not an error.
func Clean(ctx context.Context, dir string) []error {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.ListByExtension(dir, Extension)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return []error{fmt.Errorf("list artifacts in %s: %w", dir, err)}
	}

	var failures []error
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			logger.Warn("Could not delete stale artifact.", "path", file, "error", err)
			failures = append(failures, err)
			continue
		}
		logger.Debug("Deleted stale artifact.", "path", file)
	}
	return failures
}

// Find resolves the artifact produced for packageName at version in dir.
// Resolution order:
//  1. exact <prefix>-<version>.tgz match
//  2. artifacts containing the version string, preferring prefix matches,
//     else newest by modification time
//  3. artifacts matching the prefix, newest first
//  4. artifacts matching the legacy configuration item name prefix
//  5. the single newest artifact in the directory, with a warning
func Find(ctx context.Context, dir, itemName, packageName, version string) (string, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.ListByExtension(dir, Extension)
	if err != nil {
		return "", fmt.Errorf("list artifacts in %s: %w", dir, err)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoArtifacts, dir)
	}

	prefix := FilenamePrefix(packageName)

	exact := filepath.Join(dir, prefix+"-"+version+Extension)
	for _, file := range files {
		if file == exact {
			logger.Debug("Found exact artifact match.", "path", file)
			return file, nil
		}
	}

	if match := pickNewest(filterBase(files, func(base string) bool {
		return strings.Contains(base, version) && strings.HasPrefix(base, prefix+"-")
	})); match != "" {
		logger.Debug("Found artifact by version and prefix.", "path", match)
		return match, nil
	}
	if match := pickNewest(filterBase(files, func(base string) bool {
		return strings.Contains(base, version)
	})); match != "" {
		logger.Debug("Found artifact by version substring.", "path", match)
		return match, nil
	}

	if match := pickNewest(filterBase(files, func(base string) bool {
		return strings.HasPrefix(base, prefix+"-")
	})); match != "" {
		logger.Debug("Found artifact by package name prefix.", "path", match)
		return match, nil
	}

	if match := pickNewest(filterBase(files, func(base string) bool {
		return strings.HasPrefix(base, itemName+"-")
	})); match != "" {
		logger.Debug("Found artifact by legacy item name prefix.", "path", match)
		return match, nil
	}

	newest := pickNewest(files)
	logger.Warn("No artifact matched the expected name; using the newest one in the directory.",
		"path", newest, "expected_prefix", prefix, "version", version)
	return newest, nil
}

// filterBase keeps files whose base name satisfies keep.
func filterBase(files []string, keep func(base string) bool) []string {
	var out []string
	for _, file := range files {
		if keep(filepath.Base(file)) {
			out = append(out, file)
		}
	}
	return out
}

// pickNewest returns the file with the latest modification time, or "" for
// an empty slice. Unstattable files sort last.
func pickNewest(files []string) string {
	if len(files) == 0 {
		return ""
	}
	sorted := make([]string, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		fi, erri := os.Stat(sorted[i])
		fj, errj := os.Stat(sorted[j])
		if erri != nil || errj != nil {
			return errj != nil
		}
		return fi.ModTime().After(fj.ModTime())
	})
	return sorted[0]
}
