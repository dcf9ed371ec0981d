// Package fsutil provides file system utility functions.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome resolves a leading ~ or $HOME in a configured path.
func ExpandHome(path string) (string, error) {
	if path == "" {
		return path, nil
	}

	if strings.HasPrefix(path, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "$HOME")), nil
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}

	return path, nil
}

// ListByExtension returns the full paths of all regular files in dir ending
// with the specified extension. The search is non-recursive.
func ListByExtension(dir string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), extension) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}
