package watch

import (
	"path/filepath"
	"strings"
)

// relHome converts an absolute path reported by the filesystem watcher
// into a home-relative, slash-separated path. Paths outside homeDir (can
// happen transiently while a watch root is being torn down) are rejected.
func relHome(homeDir, abs string) (string, bool) {
	rel, err := filepath.Rel(homeDir, abs)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") || rel == ".." {
		return "", false
	}
	return rel, true
}
