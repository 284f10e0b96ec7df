// Package config loads and validates the hometree configuration document
// and resolves the XDG-style base directories the rest of the core reads
// and writes under.
package config

import (
	"fmt"
	"strings"

	"github.com/hometree/hometree/internal/herror"
)

// BackupPolicy controls how a secret's plaintext is handled while backing
// up the current tree before a deploy.
type BackupPolicy string

const (
	BackupPolicyEncrypt   BackupPolicy = "encrypt"
	BackupPolicySkip      BackupPolicy = "skip"
	BackupPolicyPlaintext BackupPolicy = "plaintext"
)

// DefaultSidecarSuffix is used when secrets.sidecar_suffix is unset.
const DefaultSidecarSuffix = ".age"

// DefaultDebounceMs is the floor imposed on watch.debounce_ms.
const DefaultDebounceMs = 50

// MaxAutoAddPatterns bounds the watch.auto_add_allow list.
const MaxAutoAddPatterns = 50

// RepositoryConfig locates the bare object store and the work tree root.
type RepositoryConfig struct {
	GitDir   string `mapstructure:"git_dir"`
	WorkTree string `mapstructure:"work_tree"`
}

// WatchConfig tunes the watch daemon's debounce and auto-add behavior.
type WatchConfig struct {
	DebounceMs           int      `mapstructure:"debounce_ms"`
	AutoStageTrackedOnly bool     `mapstructure:"auto_stage_tracked_only"`
	AutoAddNew           bool     `mapstructure:"auto_add_new"`
	AutoAddAllow         []string `mapstructure:"auto_add_allow"`
}

// SnapshotConfig carries the optional auto-message template used by the
// (out-of-scope) CLI's snapshot operation; the core only stores it.
type SnapshotConfig struct {
	MessageTemplate string `mapstructure:"message_template"`
}

// SecretRule maps a plaintext home-relative path to its ciphertext sidecar.
type SecretRule struct {
	PlaintextRel  string `mapstructure:"plaintext"`
	CiphertextRel string `mapstructure:"ciphertext"`
	Mode          string `mapstructure:"mode"`
}

// EffectiveCiphertextRel returns the configured ciphertext path, or the
// plaintext path with sidecarSuffix appended when none was given.
func (r SecretRule) EffectiveCiphertextRel(sidecarSuffix string) string {
	if r.CiphertextRel != "" {
		return r.CiphertextRel
	}
	return r.PlaintextRel + sidecarSuffix
}

// SecretsConfig is the optional secrets subsection.
type SecretsConfig struct {
	Enabled       bool         `mapstructure:"enabled"`
	SidecarSuffix string       `mapstructure:"sidecar_suffix"`
	Recipients    []string     `mapstructure:"recipients"`
	IdentityFiles []string     `mapstructure:"identity_files"`
	Rules         []SecretRule `mapstructure:"rules"`
	BackupPolicy  BackupPolicy `mapstructure:"backup_policy"`
}

// Config is the persisted on-disk configuration document.
type Config struct {
	Repository RepositoryConfig `mapstructure:"repository"`
	Manage     []string         `mapstructure:"manage"`
	Ignore     []string         `mapstructure:"ignore"`
	Watch      WatchConfig      `mapstructure:"watch"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
}

// trivialAutoAddPatterns are rejected outright: they would let the daemon
// auto-track arbitrary home-directory content.
var trivialAutoAddPatterns = map[string]bool{
	"*":      true,
	"**":     true,
	"**/*":   true,
	"*/**":   true,
	".**":    true,
	".*/**":  true,
}

func isTriviallyBroad(pattern string) bool {
	if trivialAutoAddPatterns[pattern] {
		return true
	}
	if strings.HasPrefix(pattern, "/") {
		return true
	}
	if !strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, ".") {
		return true
	}
	return false
}

// Default returns the canonical default configuration.
func Default() Config {
	return Config{
		Watch: WatchConfig{
			DebounceMs:           500,
			AutoStageTrackedOnly: false,
			AutoAddNew:           false,
			AutoAddAllow:         nil,
		},
		Secrets: SecretsConfig{
			SidecarSuffix: DefaultSidecarSuffix,
			BackupPolicy:  BackupPolicyEncrypt,
		},
	}
}

// Normalize applies defaults, forces secret plaintext paths into the ignore
// set (so staging can never capture them directly), and validates the
// document. It mutates cfg in place.
func Normalize(cfg *Config) error {
	if cfg.Watch.DebounceMs < DefaultDebounceMs {
		cfg.Watch.DebounceMs = DefaultDebounceMs
	}

	if len(cfg.Watch.AutoAddAllow) > MaxAutoAddPatterns {
		return herror.New(herror.Configuration,
			fmt.Sprintf("watch.auto_add_allow has %d patterns, limit is %d",
				len(cfg.Watch.AutoAddAllow), MaxAutoAddPatterns))
	}

	for _, pattern := range cfg.Watch.AutoAddAllow {
		if isTriviallyBroad(pattern) {
			return herror.New(herror.Configuration,
				fmt.Sprintf("watch.auto_add_allow pattern %q is trivially broad", pattern)).
				WithHelp("scope auto-add patterns to a specific directory, e.g. \".config/app/**\"")
		}
	}

	if cfg.Secrets.SidecarSuffix == "" {
		cfg.Secrets.SidecarSuffix = DefaultSidecarSuffix
	}

	if cfg.Secrets.BackupPolicy == "" {
		cfg.Secrets.BackupPolicy = BackupPolicyEncrypt
	}
	switch cfg.Secrets.BackupPolicy {
	case BackupPolicyEncrypt, BackupPolicySkip, BackupPolicyPlaintext:
	default:
		return herror.New(herror.Configuration,
			fmt.Sprintf("secrets.backup_policy %q is not one of encrypt|skip|plaintext", cfg.Secrets.BackupPolicy))
	}

	if cfg.Secrets.Enabled {
		if len(cfg.Secrets.Rules) > 0 && len(cfg.Secrets.Recipients) == 0 {
			return herror.New(herror.Configuration, "secrets are enabled with rules but no recipients configured")
		}
	}

	for _, rule := range cfg.Secrets.Rules {
		plaintext := strings.TrimPrefix(rule.PlaintextRel, "./")
		alreadyIgnored := false
		for _, ig := range cfg.Ignore {
			if ig == plaintext {
				alreadyIgnored = true
				break
			}
		}
		if !alreadyIgnored {
			cfg.Ignore = append(cfg.Ignore, plaintext)
		}
	}

	return nil
}
