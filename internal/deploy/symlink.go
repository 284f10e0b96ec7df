package deploy

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hometree/hometree/internal/herror"
)

// validateSymlinkTarget refuses a symlink whose resolved target would
// point outside homeDir, whether the target is relative (escaping via
// "../..") or an absolute path elsewhere on the filesystem.
func validateSymlinkTarget(homeDir, symlinkPath, target string) error {
	if symlinkPath != homeDir && !strings.HasPrefix(symlinkPath, homeDir+string(filepath.Separator)) {
		return herror.New(herror.Conflict, fmt.Sprintf("symlink path must live under home: %s", symlinkPath))
	}

	base := filepath.Dir(symlinkPath)
	resolved := normalizeSymlinkTarget(homeDir, base, target)

	if resolved == homeDir || strings.HasPrefix(resolved, homeDir+string(filepath.Separator)) {
		return nil
	}
	return herror.New(herror.Conflict,
		fmt.Sprintf("symlink target escapes home directory: %s -> %s", symlinkPath, target))
}

// normalizeSymlinkTarget resolves target (absolute or relative to base)
// into a clean absolute path without touching the filesystem, so ".."
// components cannot be used to escape past homeDir undetected.
func normalizeSymlinkTarget(homeDir, base, target string) string {
	var start string
	if filepath.IsAbs(target) {
		start = string(filepath.Separator)
	} else {
		start = base
	}

	parts := strings.Split(filepath.ToSlash(target), "/")
	segments := strings.Split(filepath.ToSlash(strings.TrimPrefix(start, string(filepath.Separator))), "/")
	if start == string(filepath.Separator) {
		segments = nil
	}

	for _, part := range parts {
		switch part {
		case "", ".":
			// no-op
		case "..":
			if len(segments) > 0 {
				segments = segments[:len(segments)-1]
			}
		default:
			segments = append(segments, part)
		}
	}

	return string(filepath.Separator) + filepath.Join(segments...)
}
