// Package verify compares a resolved revision's managed tree against
// what is actually on disk, reporting every discrepancy without
// mutating anything.
package verify

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/pathoracle"
	"github.com/hometree/hometree/internal/plan"
	"github.com/hometree/hometree/internal/revision"
	"github.com/hometree/hometree/internal/secrets"
)

// SecretsMode controls how deep secret verification goes.
type SecretsMode string

const (
	SecretsSkip     SecretsMode = "skip"
	SecretsPresence SecretsMode = "presence"
	SecretsDecrypt  SecretsMode = "decrypt"
)

// Options tunes a single verify run.
type Options struct {
	// Strict also checks for unexpected paths (managed paths present on
	// disk that the revision does not contain) and executable-bit
	// mismatches.
	Strict      bool
	SecretsMode SecretsMode
}

// Report is every discrepancy found between rev and the home directory.
type Report struct {
	Rev         string
	Strict      bool
	SecretsMode SecretsMode

	Missing      []string
	Modified     []string
	TypeMismatch []string
	ModeMismatch []string
	Unexpected   []string

	SecretMissingPlaintext  []string
	SecretMissingCiphertext []string
	SecretMismatch          []string
	SecretDecryptError      []string
}

// Clean reports whether every category is empty.
func (r Report) Clean() bool {
	return len(r.Missing) == 0 &&
		len(r.Modified) == 0 &&
		len(r.TypeMismatch) == 0 &&
		len(r.ModeMismatch) == 0 &&
		len(r.Unexpected) == 0 &&
		len(r.SecretMissingPlaintext) == 0 &&
		len(r.SecretMissingCiphertext) == 0 &&
		len(r.SecretMismatch) == 0 &&
		len(r.SecretDecryptError) == 0
}

// Run resolves ref against backend and verifies the home directory
// matches it, per opts.
func Run(ctx context.Context, cfg config.Config, oracle *pathoracle.Oracle, secretsMgr *secrets.Manager,
	backend revision.Backend, homeDir, ref string, opts Options,
) (Report, error) {
	resolved, err := backend.Resolve(ctx, ref)
	if err != nil {
		return Report{}, err
	}

	treeEntries, err := backend.ListTree(ctx, resolved)
	if err != nil {
		return Report{}, err
	}

	target := make(map[string]revision.Mode, len(treeEntries))
	for _, e := range treeEntries {
		if plan.IsManagedOrCipher(e.Path, oracle, secretsMgr) {
			target[e.Path] = e.Mode
		}
	}

	report := Report{Rev: resolved, Strict: opts.Strict, SecretsMode: opts.SecretsMode}

	if err := verifyExpected(ctx, backend, resolved, homeDir, target, opts.Strict, &report); err != nil {
		return Report{}, err
	}

	if opts.Strict {
		current, err := plan.CollectCurrent(homeDir, oracle, secretsMgr)
		if err != nil {
			return Report{}, err
		}
		for rel := range current {
			if _, ok := target[rel]; !ok {
				report.Unexpected = append(report.Unexpected, rel)
			}
		}
	}

	if err := verifySecrets(ctx, backend, resolved, homeDir, secretsMgr, target, opts.SecretsMode, &report); err != nil {
		return Report{}, err
	}

	sortAllCategories(&report)
	return report, nil
}

func verifyExpected(ctx context.Context, backend revision.Backend, rev, homeDir string,
	target map[string]revision.Mode, strict bool, report *Report,
) error {
	for rel, mode := range target {
		abs := filepath.Join(homeDir, rel)

		info, err := os.Lstat(abs)
		if err != nil {
			report.Missing = append(report.Missing, rel)
			continue
		}

		if mode == revision.ModeSymlink {
			if info.Mode()&os.ModeSymlink == 0 {
				report.TypeMismatch = append(report.TypeMismatch, rel)
				continue
			}
			expected, err := backend.ReadBlob(ctx, rev, rel)
			if err != nil {
				return err
			}
			actual, err := os.Readlink(abs)
			if err != nil {
				return err
			}
			if actual != string(expected) {
				report.Modified = append(report.Modified, rel)
			}
			continue
		}

		if info.Mode()&os.ModeSymlink != 0 || !info.Mode().IsRegular() {
			report.TypeMismatch = append(report.TypeMismatch, rel)
			continue
		}

		expected, err := backend.ReadBlob(ctx, rev, rel)
		if err != nil {
			return err
		}
		actual, err := os.ReadFile(abs)
		if err != nil {
			return err
		}
		if !bytes.Equal(actual, expected) {
			report.Modified = append(report.Modified, rel)
		}

		if strict {
			expectedExec := mode == revision.ModeExecutable
			actualExec := info.Mode().Perm()&0o111 != 0
			if actualExec != expectedExec {
				report.ModeMismatch = append(report.ModeMismatch, rel)
			}
		}
	}
	return nil
}

func verifySecrets(ctx context.Context, backend revision.Backend, rev, homeDir string, mgr *secrets.Manager,
	target map[string]revision.Mode, mode SecretsMode, report *Report,
) error {
	if mode == SecretsSkip || mgr == nil || !mgr.Enabled() {
		return nil
	}

	for _, rule := range mgr.Rules() {
		plaintextRel := mgr.PlaintextPath(rule)
		ciphertextRel := mgr.CiphertextPath(rule)
		plaintextAbs := filepath.Join(homeDir, plaintextRel)

		_, plaintextErr := os.Lstat(plaintextAbs)
		plaintextExists := plaintextErr == nil
		_, ciphertextInRepo := target[ciphertextRel]

		if !plaintextExists {
			report.SecretMissingPlaintext = append(report.SecretMissingPlaintext, plaintextRel)
		}
		if !ciphertextInRepo {
			report.SecretMissingCiphertext = append(report.SecretMissingCiphertext, ciphertextRel)
		}

		if mode != SecretsDecrypt || !plaintextExists || !ciphertextInRepo {
			continue
		}

		plaintext, err := os.ReadFile(plaintextAbs)
		if err != nil {
			return err
		}
		ciphertext, err := backend.ReadBlob(ctx, rev, ciphertextRel)
		if err != nil {
			return err
		}
		decrypted, err := mgr.Decrypt(ciphertext)
		if err != nil {
			report.SecretDecryptError = append(report.SecretDecryptError, plaintextRel)
			continue
		}
		if !bytes.Equal(decrypted, plaintext) {
			report.SecretMismatch = append(report.SecretMismatch, plaintextRel)
		}
	}
	return nil
}
