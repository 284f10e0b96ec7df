// Package plan computes the difference between a revision's managed tree
// and what currently sits on disk. Computing a plan has no side effects:
// it takes no lock and touches no file other than reading them.
package plan

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/pathoracle"
	"github.com/hometree/hometree/internal/revision"
	"github.com/hometree/hometree/internal/secrets"
)

// Action is what a plan entry would do to bring the home tree in line
// with the target revision.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Entry is one path's planned action.
type Entry struct {
	Action Action
	Path   string
}

// Plan is the full set of entries needed to deploy ref, plus the
// concrete revision ref resolved to.
type Plan struct {
	Rev     string
	Entries []Entry
}

// isContentMode reports whether a tree entry mode is one of the three the
// core understands; other modes (submodules, gitlinks) are invisible.
func isContentMode(m revision.Mode) bool {
	switch m {
	case revision.ModeRegular, revision.ModeExecutable, revision.ModeSymlink:
		return true
	default:
		return false
	}
}

// Compute resolves ref against backend and diffs its managed tree entries
// (plus any staged secret ciphertext sidecars) against the paths
// currently present under homeDir that the oracle or secrets manager
// considers part of the managed set.
func Compute(ctx context.Context, cfg config.Config, oracle *pathoracle.Oracle, secretsMgr *secrets.Manager,
	backend revision.Backend, homeDir, ref string,
) (Plan, error) {
	resolved, err := backend.Resolve(ctx, ref)
	if err != nil {
		return Plan{}, err
	}

	treeEntries, err := backend.ListTree(ctx, resolved)
	if err != nil {
		return Plan{}, err
	}

	target := make(map[string]revision.Mode, len(treeEntries))
	for _, e := range treeEntries {
		if !isContentMode(e.Mode) {
			continue
		}
		if IsManagedOrCipher(e.Path, oracle, secretsMgr) {
			target[e.Path] = e.Mode
		}
	}

	current, err := CollectCurrent(homeDir, oracle, secretsMgr)
	if err != nil {
		return Plan{}, err
	}

	var entries []Entry
	for p, mode := range target {
		abs := filepath.Join(homeDir, p)
		info, statErr := os.Lstat(abs)
		if statErr != nil {
			entries = append(entries, Entry{Action: ActionCreate, Path: p})
			continue
		}

		unchanged, cmpErr := contentUnchanged(ctx, backend, resolved, abs, p, mode, info)
		if cmpErr != nil {
			return Plan{}, cmpErr
		}
		if unchanged {
			continue
		}
		entries = append(entries, Entry{Action: ActionUpdate, Path: p})
	}
	for p := range current {
		if _, ok := target[p]; !ok {
			entries = append(entries, Entry{Action: ActionDelete, Path: p})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	return Plan{Rev: resolved, Entries: entries}, nil
}

// contentUnchanged reports whether what's on disk at abs already matches
// the blob at rel in rev: link-target string for a symlink entry, exact
// bytes for a regular or executable entry. A type mismatch (e.g. a plain
// file where the target is a symlink) is never "unchanged" — it surfaces
// as an Update, same as any other content difference.
func contentUnchanged(ctx context.Context, backend revision.Backend, rev, abs, rel string,
	mode revision.Mode, info os.FileInfo,
) (bool, error) {
	if mode == revision.ModeSymlink {
		if info.Mode()&os.ModeSymlink == 0 {
			return false, nil
		}
		expected, err := backend.ReadBlob(ctx, rev, rel)
		if err != nil {
			return false, err
		}
		actual, err := os.Readlink(abs)
		if err != nil {
			return false, err
		}
		return actual == string(expected), nil
	}

	if info.Mode()&os.ModeSymlink != 0 || !info.Mode().IsRegular() {
		return false, nil
	}
	expected, err := backend.ReadBlob(ctx, rev, rel)
	if err != nil {
		return false, err
	}
	actual, err := os.ReadFile(abs)
	if err != nil {
		return false, err
	}
	return bytes.Equal(actual, expected), nil
}

// IsManagedOrCipher reports whether path is part of the managed set,
// either directly via the oracle or as a secret's ciphertext sidecar.
func IsManagedOrCipher(path string, oracle *pathoracle.Oracle, secretsMgr *secrets.Manager) bool {
	if oracle.IsManaged(path) {
		return true
	}
	return secretsMgr != nil && secretsMgr.Enabled() && secretsMgr.IsCiphertextRulePath(path)
}

// CollectCurrent walks homeDir and returns every relative path the oracle
// or secrets manager considers part of the managed set. The revision
// backend's own on-disk state directory (".git" for a co-located work
// tree, if ever used) is never walked into.
func CollectCurrent(homeDir string, oracle *pathoracle.Oracle, secretsMgr *secrets.Manager) (map[string]struct{}, error) {
	current := make(map[string]struct{})

	err := filepath.WalkDir(homeDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == homeDir {
			return nil
		}
		rel, relErr := filepath.Rel(homeDir, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		if IsManagedOrCipher(rel, oracle, secretsMgr) {
			current[rel] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}
