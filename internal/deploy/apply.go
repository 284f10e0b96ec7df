package deploy

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/hometree/hometree/internal/herror"
	"github.com/hometree/hometree/internal/revision"
	"github.com/hometree/hometree/internal/secrets"
)

// preservedMeta is the owner/group/timestamp triple captured off a
// regular file before it is overwritten, so applying a revision never
// silently resets a file's age or ownership.
type preservedMeta struct {
	uid, gid   int
	atim, mtim time.Time
}

func captureMeta(path string) (preservedMeta, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return preservedMeta{}, false
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return preservedMeta{}, false
	}
	return preservedMeta{
		uid:  int(stat.Uid),
		gid:  int(stat.Gid),
		atim: time.Unix(stat.Atim.Sec, stat.Atim.Nsec),
		mtim: time.Unix(stat.Mtim.Sec, stat.Mtim.Nsec),
	}, true
}

// restoreMeta is best-effort: a non-privileged process cannot always
// chown, and that must never fail a deploy.
func restoreMeta(path string, meta preservedMeta) {
	_ = os.Chtimes(path, meta.atim, meta.mtim)
	_ = os.Chown(path, meta.uid, meta.gid)
}

// applyTarget writes every target entry's content onto disk, preserving
// symlinks as symlinks, setting the executable bit from the tree mode,
// and refusing to replace a directory with a file or symlink.
func applyTarget(ctx context.Context, homeDir string, backend revision.Backend, rev string,
	target map[string]revision.Mode,
) error {
	paths := sortedKeys(target)
	for _, rel := range paths {
		mode := target[rel]
		dest := filepath.Join(homeDir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return herror.Wrap(herror.IO, err, "failed to create parent directory")
		}

		if mode == revision.ModeSymlink {
			if err := applySymlink(ctx, homeDir, backend, rev, rel, dest); err != nil {
				return err
			}
			continue
		}

		if err := applyRegular(ctx, backend, rev, rel, dest, mode); err != nil {
			return err
		}
	}
	return nil
}

func applySymlink(ctx context.Context, homeDir string, backend revision.Backend, rev, rel, dest string) error {
	data, err := backend.ReadBlob(ctx, rev, rel)
	if err != nil {
		return err
	}
	target := string(data)

	if err := validateSymlinkTarget(homeDir, dest, target); err != nil {
		return err
	}

	if info, err := os.Lstat(dest); err == nil {
		if info.IsDir() {
			return herror.New(herror.Conflict, "refusing to replace directory with symlink: "+dest)
		}
		if err := os.Remove(dest); err != nil {
			return herror.Wrap(herror.IO, err, "failed to remove existing entry before symlinking")
		}
	}

	if err := os.Symlink(target, dest); err != nil {
		return herror.Wrap(herror.IO, err, "failed to create symlink")
	}
	return nil
}

func applyRegular(ctx context.Context, backend revision.Backend, rev, rel, dest string, mode revision.Mode) error {
	var preserved preservedMeta
	havePreserved := false

	if info, err := os.Lstat(dest); err == nil {
		switch {
		case info.IsDir():
			return herror.New(herror.Conflict, "refusing to replace directory with file: "+dest)
		case info.Mode()&os.ModeSymlink != 0:
			if err := os.Remove(dest); err != nil {
				return herror.Wrap(herror.IO, err, "failed to remove existing symlink before writing")
			}
		case info.Mode().IsRegular():
			preserved, havePreserved = captureMeta(dest)
		default:
			return herror.New(herror.Conflict, "refusing to replace non-regular file with file: "+dest)
		}
	}

	data, err := backend.ReadBlob(ctx, rev, rel)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return herror.Wrap(herror.IO, err, "failed to write target file")
	}

	perm := os.FileMode(0o644)
	if mode == revision.ModeExecutable {
		perm = 0o755
	}
	if err := os.Chmod(dest, perm); err != nil {
		return herror.Wrap(herror.IO, err, "failed to set target file mode")
	}

	if havePreserved {
		restoreMeta(dest, preserved)
	}
	return nil
}

// applySecrets decrypts each rule's ciphertext blob out of rev and writes
// it to its plaintext path, refusing to replace a directory and removing
// a stale symlink first.
func applySecrets(ctx context.Context, homeDir string, mgr *secrets.Manager, backend revision.Backend, rev string) error {
	if mgr == nil || !mgr.Enabled() {
		return nil
	}

	for _, rule := range mgr.Rules() {
		ciphertext, err := backend.ReadBlob(ctx, rev, mgr.CiphertextPath(rule))
		if err != nil {
			return err
		}
		plaintext, err := mgr.Decrypt(ciphertext)
		if err != nil {
			return err
		}

		dest := filepath.Join(homeDir, mgr.PlaintextPath(rule))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return herror.Wrap(herror.IO, err, "failed to create parent directory")
		}

		if info, err := os.Lstat(dest); err == nil {
			if info.IsDir() {
				return herror.New(herror.Conflict, "refusing to replace directory with secret file: "+dest)
			}
			if info.Mode()&os.ModeSymlink != 0 {
				if err := os.Remove(dest); err != nil {
					return herror.Wrap(herror.IO, err, "failed to remove stale symlink before writing secret")
				}
			}
		}

		perm := mgr.FileMode(rule)
		if err := os.WriteFile(dest, plaintext, perm); err != nil {
			return herror.Wrap(herror.IO, err, "failed to write secret plaintext")
		}
		if err := os.Chmod(dest, perm); err != nil {
			return herror.Wrap(herror.IO, err, "failed to set secret file mode")
		}
	}
	return nil
}

// deleteMissing removes every currently-present path that the target set
// no longer names. Deletion is best-effort per path, mirroring the
// engine's tolerance for a file vanishing between plan and apply.
func deleteMissing(homeDir string, current, target map[string]struct{}) {
	for rel := range current {
		if _, ok := target[rel]; ok {
			continue
		}
		_ = os.Remove(filepath.Join(homeDir, rel))
	}
}

func sortedKeys(m map[string]revision.Mode) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
