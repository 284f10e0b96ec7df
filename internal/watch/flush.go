package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/safedep/dry/log"

	"github.com/hometree/hometree/internal/herror"
)

// flush drains the pending queues and stages them into the revision
// backend under the cross-process lock:
//
//  1. Drain the managed, secret-plaintext, and auto-add queues.
//  2. Try to acquire the repository lock (non-blocking: a held lock means
//     a CLI deploy or rollback is in progress, so the flush backs off).
//  3. Stage auto-add candidates as new paths.
//  4. Encrypt each pending secret plaintext and stage its ciphertext
//     sidecar.
//  5. Re-stage modifications to managed paths: `git add -u` semantics
//     (tracked paths only) when auto_stage_tracked_only is set, otherwise
//     stage the drained managed paths directly so a newly-managed but
//     not-yet-tracked file is picked up too.
//  6. Release the lock.
//
// Nothing is committed: flush only keeps the index current so a later
// snapshot captures a consistent tree.
func (d *Daemon) flush(ctx context.Context) (err error) {
	managed := d.managedQ.drain(lessString)
	secretPaths := d.secretQ.drain(lessString)
	autoAdd := make([]string, 0, len(d.autoAdd))
	for p := range d.autoAdd {
		autoAdd = append(autoAdd, p)
	}
	d.autoAdd = make(map[string]struct{})

	if len(managed) == 0 && len(secretPaths) == 0 && len(autoAdd) == 0 {
		return nil
	}

	releaser, acquired, err := d.deps.Locks.TryAcquire()
	if err != nil {
		requeue(d.managedQ, managed, d.secretQ, secretPaths, d.autoAdd, autoAdd)
		return err
	}
	if !acquired {
		requeue(d.managedQ, managed, d.secretQ, secretPaths, d.autoAdd, autoAdd)
		return herror.New(herror.Busy, "repository lock held by another operation")
	}
	defer releaser.Release()
	defer func() {
		if err != nil {
			requeue(d.managedQ, managed, d.secretQ, secretPaths, d.autoAdd, autoAdd)
		}
	}()

	if len(autoAdd) > 0 {
		if err := d.deps.Backend.StagePaths(ctx, autoAdd); err != nil {
			return herror.Wrap(herror.Backend, err, "failed to stage auto-add paths")
		}
		for _, p := range autoAdd {
			d.tracked[p] = struct{}{}
		}
	}

	if len(secretPaths) > 0 {
		if err := d.flushSecrets(ctx, secretPaths); err != nil {
			return err
		}
	}

	if len(managed) > 0 {
		if d.deps.Config.Watch.AutoStageTrackedOnly {
			if err := d.deps.Backend.StageTrackedOnly(ctx); err != nil {
				return herror.Wrap(herror.Backend, err, "failed to stage tracked modifications")
			}
		} else {
			if err := d.deps.Backend.StagePaths(ctx, managed); err != nil {
				return herror.Wrap(herror.Backend, err, "failed to stage managed paths")
			}
		}
	}

	return nil
}

// flushSecrets encrypts every pending plaintext and stages its ciphertext
// sidecar. A plaintext that has since been deleted is skipped rather than
// treated as an error: the file simply isn't there to encrypt yet.
func (d *Daemon) flushSecrets(ctx context.Context, secretPaths []string) error {
	if d.deps.Secrets == nil || !d.deps.Secrets.Enabled() {
		return nil
	}

	var ciphertextPaths []string
	for _, rel := range secretPaths {
		rule, ok := d.deps.Secrets.RuleForPlaintext(rel)
		if !ok {
			continue
		}

		plaintext, err := os.ReadFile(filepath.Join(d.deps.HomeDir, rel))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return herror.Wrap(herror.IO, err, "failed to read secret plaintext")
		}

		ciphertext, err := d.deps.Secrets.Encrypt(plaintext)
		if err != nil {
			return herror.Wrap(herror.Crypto, err, "failed to encrypt secret")
		}

		ciphertextRel := d.deps.Secrets.CiphertextPath(rule)
		ciphertextAbs := filepath.Join(d.deps.HomeDir, ciphertextRel)
		if err := os.MkdirAll(filepath.Dir(ciphertextAbs), 0o700); err != nil {
			return herror.Wrap(herror.IO, err, "failed to create ciphertext directory")
		}
		if err := os.WriteFile(ciphertextAbs, ciphertext, 0o600); err != nil {
			return herror.Wrap(herror.IO, err, "failed to write ciphertext sidecar")
		}

		ciphertextPaths = append(ciphertextPaths, ciphertextRel)
	}

	if len(ciphertextPaths) == 0 {
		return nil
	}
	if err := d.deps.Backend.StagePaths(ctx, ciphertextPaths); err != nil {
		return herror.Wrap(herror.Backend, err, "failed to stage secret ciphertexts")
	}
	return nil
}

// requeue restores drained values after a failed or skipped flush attempt
// so no change is silently lost to lock contention or a staging error.
func requeue(managedQ *debounce[string], managed []string, secretQ *debounce[string], secretPaths []string,
	autoAddSet map[string]struct{}, autoAdd []string,
) {
	now := time.Now()
	for _, p := range managed {
		managedQ.push(p, now)
	}
	for _, p := range secretPaths {
		secretQ.push(p, now)
	}
	for _, p := range autoAdd {
		autoAddSet[p] = struct{}{}
	}
	if len(managed) > 0 || len(secretPaths) > 0 || len(autoAdd) > 0 {
		log.Debugf("watch: requeued %d managed, %d secret, %d auto-add paths after a failed flush",
			len(managed), len(secretPaths), len(autoAdd))
	}
}
