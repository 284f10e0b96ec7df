package config

import (
	"os"
	"strings"
)

// defaultDenyPatterns are sensible defaults excluded regardless of the
// configured ignore set: SSH, GPG, and browser keyring material.
var defaultDenyPatterns = []string{
	".ssh/id_*",
	".ssh/*_rsa",
	".ssh/*_ed25519",
	".gnupg/**",
	".mozilla/**/key*.db",
	".mozilla/**/logins.json",
	"Library/Keychains/**",
	".local/share/keyrings/**",
}

// DefaultDenyPatterns returns the built-in deny-list, independent of any
// configuration, for use by the Path Oracle's deny matcher.
func DefaultDenyPatterns() []string {
	out := make([]string, len(defaultDenyPatterns))
	copy(out, defaultDenyPatterns)
	return out
}

// WriteExcludesFile renders the aggregated glob pattern set (secret
// plaintext paths plus the default deny-list) to path, for use as the
// revision backend's excludes file.
func WriteExcludesFile(cfg Config, path string) error {
	var b strings.Builder
	b.WriteString("# generated by hometree; do not edit\n")

	for _, rule := range cfg.Secrets.Rules {
		b.WriteString(rule.PlaintextRel)
		b.WriteByte('\n')
	}

	for _, pattern := range DefaultDenyPatterns() {
		b.WriteString(pattern)
		b.WriteByte('\n')
	}

	return os.WriteFile(path, []byte(b.String()), 0o644)
}
