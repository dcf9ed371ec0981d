package cmdexec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vk/pkgchain/internal/artifact"
)

// Output is what a completed package item contributes to its dependents.
type Output struct {
	// TarballPath is the absolute path of the produced artifact.
	TarballPath string
	// PackageName is the manifest-declared name, which may differ from the
	// configuration item name.
	PackageName string
}

// PlaceholderError names a {{token}} with no matching dependency output.
type PlaceholderError struct {
	Token string
}

func (e *PlaceholderError) Error() string {
	return fmt.Sprintf("unresolved placeholder {{%s}}: no dependency output with that name", e.Token)
}

var placeholderRe = regexp.MustCompile(`\{\{([\w@/.-]+)\}\}`)

// installPrefixes are command openings that add a dependency to a manifest.
var installPrefixes = []string{
	"pnpm add ",
	"pnpm install ",
	"npm install ",
	"npm add ",
	"npm i ",
}

// isInstallCommand reports whether command starts with an install-style
// invocation.
func isInstallCommand(command string) bool {
	trimmed := strings.TrimSpace(command)
	for _, prefix := range installPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// ResolvePlaceholders replaces every {{name}} token with the matching
// dependency's artifact path. Install-style commands instead get the
// name@file:path form, which sidesteps lockfile staleness checks on
// reinstalling a same-version tarball.
func ResolvePlaceholders(command string, outputs map[string]Output) (string, error) {
	install := isInstallCommand(command)

	var unresolved error
	resolved := placeholderRe.ReplaceAllStringFunc(command, func(match string) string {
		token := placeholderRe.FindStringSubmatch(match)[1]
		out, ok := outputs[token]
		if !ok {
			if unresolved == nil {
				unresolved = &PlaceholderError{Token: token}
			}
			return match
		}
		if install {
			return out.PackageName + "@file:" + out.TarballPath
		}
		return out.TarballPath
	})
	if unresolved != nil {
		return "", unresolved
	}
	return resolved, nil
}

// rewriteInstall appends the flags an install command needs when pointed at
// a local tarball: --force when the command references an artifact path,
// and --ignore-workspace (pnpm only) so workspace-aware resolution does not
// reject the file: reference.
func rewriteInstall(command string) string {
	if !isInstallCommand(command) {
		return command
	}
	if strings.Contains(command, "file:") || strings.Contains(command, artifact.Extension) {
		if !strings.Contains(command, "--force") {
			command += " --force"
		}
	}
	if strings.HasPrefix(strings.TrimSpace(command), "pnpm ") && !strings.Contains(command, "--ignore-workspace") {
		command += " --ignore-workspace"
	}
	return command
}
