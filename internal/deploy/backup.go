package deploy

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/herror"
	"github.com/hometree/hometree/internal/secrets"
)

// createBackupDir returns {stateDir}/backups/{unix_seconds}, creating it if
// needed, to hold a pre-deploy snapshot. Deploys within the same second
// share one directory.
func createBackupDir(stateDir string) (string, error) {
	dir := filepath.Join(stateDir, "backups", strconv.FormatInt(time.Now().Unix(), 10))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", herror.Wrap(herror.IO, err, "failed to create backup directory")
	}
	return dir, nil
}

// backupCurrent copies every currently-present managed path into
// backupDir, preserving symlinks as symlinks.
func backupCurrent(backupDir, homeDir string, current map[string]struct{}) error {
	for rel := range current {
		src := filepath.Join(homeDir, rel)
		dest := filepath.Join(backupDir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
			return herror.Wrap(herror.IO, err, "failed to create backup parent directory")
		}

		info, err := os.Lstat(src)
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(src)
			if err != nil {
				continue
			}
			_ = os.Symlink(target, dest)
			continue
		}
		_ = copyFile(src, dest)
	}
	return nil
}

// backupSecrets backs up each secret's plaintext per its configured
// BackupPolicy: skipped, copied verbatim, or re-encrypted into the backup
// directory.
func backupSecrets(ctx context.Context, backupDir, homeDir string, mgr *secrets.Manager) error {
	if mgr == nil || !mgr.Enabled() {
		return nil
	}

	for _, rule := range mgr.Rules() {
		plaintextRel := mgr.PlaintextPath(rule)
		plaintextAbs := filepath.Join(homeDir, plaintextRel)
		if _, err := os.Lstat(plaintextAbs); err != nil {
			continue
		}

		switch mgr.BackupPolicy() {
		case config.BackupPolicySkip:
			continue
		case config.BackupPolicyPlaintext:
			dest := filepath.Join(backupDir, plaintextRel)
			if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
				return herror.Wrap(herror.IO, err, "failed to create backup parent directory")
			}
			if err := copyFile(plaintextAbs, dest); err != nil {
				return err
			}
		default: // encrypt, and the empty default
			plaintext, err := os.ReadFile(plaintextAbs)
			if err != nil {
				return herror.Wrap(herror.IO, err, "failed to read secret plaintext for backup")
			}
			ciphertext, err := mgr.Encrypt(plaintext)
			if err != nil {
				return err
			}
			dest := filepath.Join(backupDir, mgr.CiphertextPath(rule))
			if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
				return herror.Wrap(herror.IO, err, "failed to create backup parent directory")
			}
			if err := os.WriteFile(dest, ciphertext, 0o600); err != nil {
				return herror.Wrap(herror.IO, err, "failed to write encrypted backup")
			}
		}
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return herror.Wrap(herror.IO, err, "failed to open backup source")
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return herror.Wrap(herror.IO, err, "failed to create backup destination")
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return herror.Wrap(herror.IO, err, "failed to copy backup contents")
	}
	return nil
}
