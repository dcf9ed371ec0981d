package manifest

import (
	"regexp"
	"time"
)

// alphaSuffix matches an existing pre-release tag at the end of a version.
var alphaSuffix = regexp.MustCompile(`-alpha\.\d+$`)

// GenerateTimestamp formats the current local time as a fixed-width
// YYYYMMDDHHmmss string. Second resolution: two calls within the same
// second collide, which the artifact finder tolerates by falling back to
// modification time.
func GenerateTimestamp() string {
	return time.Now().Format("20060102150405")
}

// AlphaVersion derives a unique pre-release version from base. A version
// already carrying a -alpha.<digits> suffix gets fresh digits; anything
// else gets a new suffix appended. The semantic base version is never
// touched.
func AlphaVersion(base string) string {
	stamp := GenerateTimestamp()
	if alphaSuffix.MatchString(base) {
		return alphaSuffix.ReplaceAllString(base, "-alpha."+stamp)
	}
	return base + "-alpha." + stamp
}
