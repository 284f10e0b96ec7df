// Package deploy implements the deploy/rollback pipeline: resolve a
// revision, back up what's currently on disk, write the revision's
// managed tree and secrets onto the home directory, delete whatever the
// revision no longer names, and record the result in the generation log.
package deploy

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/generation"
	"github.com/hometree/hometree/internal/lock"
	"github.com/hometree/hometree/internal/pathoracle"
	"github.com/hometree/hometree/internal/plan"
	"github.com/hometree/hometree/internal/revision"
	"github.com/hometree/hometree/internal/secrets"
)

// Options tunes a single Deploy or Rollback call.
type Options struct {
	// NoBackup skips the pre-deploy backup phase entirely.
	NoBackup bool
	Message  string
}

// Engine owns every dependency the deploy pipeline needs and exposes
// Deploy/Rollback, which both funnel through the same apply sequence.
type Engine struct {
	Config      config.Config
	Oracle      *pathoracle.Oracle
	Secrets     *secrets.Manager
	Backend     revision.Backend
	Locks       *lock.Manager
	Generations *generation.Log
	HomeDir     string
	StateDir    string
}

// Deploy resolves ref and applies it onto the home directory.
func (e *Engine) Deploy(ctx context.Context, ref string, opts Options) (generation.Entry, error) {
	return e.apply(ctx, ref, opts)
}

// Rollback applies a previously-deployed revision named directly by ref.
// It is deploy with a caller-supplied ref instead of one computed from
// the generation log; the pipeline itself does not distinguish the two
// operations. Use RollbackSteps to roll back by a step count instead.
func (e *Engine) Rollback(ctx context.Context, ref string, opts Options) (generation.Entry, error) {
	return e.apply(ctx, ref, opts)
}

// RollbackSteps rolls back to the revision steps generations ago (§4.7.2):
// generations[len-1-steps].rev when the log holds that many entries,
// otherwise the literal ref "HEAD~{steps}".
func (e *Engine) RollbackSteps(ctx context.Context, steps int, opts Options) (generation.Entry, error) {
	ref, err := e.resolveRollbackRef(steps)
	if err != nil {
		return generation.Entry{}, err
	}
	return e.apply(ctx, ref, opts)
}

func (e *Engine) resolveRollbackRef(steps int) (string, error) {
	if steps > 0 {
		entries, err := e.Generations.ReadAll()
		if err != nil {
			return "", err
		}
		if idx := len(entries) - 1 - steps; idx >= 0 {
			return entries[idx].Rev, nil
		}
	}
	return fmt.Sprintf("HEAD~%d", steps), nil
}

func (e *Engine) apply(ctx context.Context, ref string, opts Options) (entry generation.Entry, err error) {
	releaser, lockErr := e.Locks.Acquire(ctx)
	if lockErr != nil {
		return generation.Entry{}, lockErr
	}
	defer func() {
		if r := recover(); r != nil {
			_ = releaser.Release()
			panic(r)
		}
		_ = releaser.Release()
	}()

	resolved, err := e.Backend.Resolve(ctx, ref)
	if err != nil {
		return generation.Entry{}, err
	}

	treeEntries, err := e.Backend.ListTree(ctx, resolved)
	if err != nil {
		return generation.Entry{}, err
	}

	target := make(map[string]revision.Mode, len(treeEntries))
	for _, te := range treeEntries {
		if !isContentMode(te.Mode) {
			continue
		}
		if plan.IsManagedOrCipher(te.Path, e.Oracle, e.Secrets) {
			target[te.Path] = te.Mode
		}
	}

	current, err := plan.CollectCurrent(e.HomeDir, e.Oracle, e.Secrets)
	if err != nil {
		return generation.Entry{}, err
	}

	if !opts.NoBackup {
		backupDir, backupErr := createBackupDir(e.StateDir)
		if backupErr != nil {
			return generation.Entry{}, backupErr
		}
		if backupErr := backupCurrent(backupDir, e.HomeDir, current); backupErr != nil {
			return generation.Entry{}, backupErr
		}
		if backupErr := backupSecrets(ctx, backupDir, e.HomeDir, e.Secrets); backupErr != nil {
			return generation.Entry{}, backupErr
		}
	}

	if err := applyTarget(ctx, e.HomeDir, e.Backend, resolved, target); err != nil {
		return generation.Entry{}, err
	}

	if err := applySecrets(ctx, e.HomeDir, e.Secrets, e.Backend, resolved); err != nil {
		return generation.Entry{}, err
	}

	targetSet := make(map[string]struct{}, len(target))
	for rel := range target {
		targetSet[rel] = struct{}{}
	}
	deleteMissing(e.HomeDir, current, targetSet)

	entry = generation.Entry{
		Timestamp: time.Now().Unix(),
		Rev:       resolved,
		Host:      hostname(),
		User:      username(),
	}
	if opts.Message != "" {
		msg := opts.Message
		entry.Message = &msg
	}
	if err := e.Generations.Append(entry); err != nil {
		return generation.Entry{}, err
	}

	return entry, nil
}

func isContentMode(m revision.Mode) bool {
	switch m {
	case revision.ModeRegular, revision.ModeExecutable, revision.ModeSymlink:
		return true
	default:
		return false
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}

func username() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return ""
}
