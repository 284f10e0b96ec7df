// Package secrets implements path mapping between a secret's plaintext and
// ciphertext sidecar, and a pluggable envelope-encryption capability set.
package secrets

import (
	"os"
	"strconv"

	"github.com/hometree/hometree/internal/config"
)

// DefaultFileMode is applied to a deployed plaintext secret when a rule
// gives no explicit mode.
const DefaultFileMode = os.FileMode(0o600)

// Envelope is the pluggable encryption capability set. The default
// implementation, ageenv, wraps filippo.io/age.
type Envelope interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Manager maps plaintext/ciphertext paths for the configured secret rules
// and drives Envelope for a given rule.
type Manager struct {
	cfg      config.SecretsConfig
	envelope Envelope
}

// New returns a Manager for the given secrets configuration and envelope
// implementation. envelope may be nil if the caller only needs path
// mapping (e.g. the plan engine never encrypts or decrypts).
func New(cfg config.SecretsConfig, envelope Envelope) *Manager {
	return &Manager{cfg: cfg, envelope: envelope}
}

// Enabled reports whether the secrets subsystem is active.
func (m *Manager) Enabled() bool {
	return m.cfg.Enabled
}

// Rules returns the configured secret rules.
func (m *Manager) Rules() []config.SecretRule {
	return m.cfg.Rules
}

// PlaintextPath returns a rule's plaintext home-relative path.
func (m *Manager) PlaintextPath(rule config.SecretRule) string {
	return rule.PlaintextRel
}

// CiphertextPath returns a rule's ciphertext home-relative path, defaulting
// to plaintext + sidecar suffix when no explicit ciphertext path was given.
func (m *Manager) CiphertextPath(rule config.SecretRule) string {
	return rule.EffectiveCiphertextRel(m.cfg.SidecarSuffix)
}

// RuleForPlaintext returns the rule whose plaintext path equals r, if any.
func (m *Manager) RuleForPlaintext(r string) (config.SecretRule, bool) {
	for _, rule := range m.cfg.Rules {
		if rule.PlaintextRel == r {
			return rule, true
		}
	}
	return config.SecretRule{}, false
}

// IsCiphertextRulePath reports whether r is the ciphertext path of some
// configured rule.
func (m *Manager) IsCiphertextRulePath(r string) bool {
	for _, rule := range m.cfg.Rules {
		if m.CiphertextPath(rule) == r {
			return true
		}
	}
	return false
}

// BackupPolicy returns the configured backup handling for secret
// plaintexts.
func (m *Manager) BackupPolicy() config.BackupPolicy {
	return m.cfg.BackupPolicy
}

// FileMode parses a rule's configured file mode (an octal string such as
// "0600"), falling back to DefaultFileMode when unset or unparsable.
func (m *Manager) FileMode(rule config.SecretRule) os.FileMode {
	if rule.Mode == "" {
		return DefaultFileMode
	}
	parsed, err := strconv.ParseUint(rule.Mode, 8, 32)
	if err != nil {
		return DefaultFileMode
	}
	return os.FileMode(parsed)
}

// Encrypt runs the configured envelope's Encrypt.
func (m *Manager) Encrypt(plaintext []byte) ([]byte, error) {
	return m.envelope.Encrypt(plaintext)
}

// Decrypt runs the configured envelope's Decrypt.
func (m *Manager) Decrypt(ciphertext []byte) ([]byte, error) {
	return m.envelope.Decrypt(ciphertext)
}
