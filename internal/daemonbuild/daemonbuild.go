// Package daemonbuild assembles watch.Deps from on-disk configuration,
// the one place that wires every concrete implementation (gitcli,
// ageenv, the real filesystem) into the daemon's abstract dependencies.
package daemonbuild

import (
	"os"
	"path/filepath"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/generation"
	"github.com/hometree/hometree/internal/lock"
	"github.com/hometree/hometree/internal/pathoracle"
	"github.com/hometree/hometree/internal/revision/gitcli"
	"github.com/hometree/hometree/internal/secrets"
	"github.com/hometree/hometree/internal/secrets/ageenv"
	"github.com/hometree/hometree/internal/watch"
)

// Dirs are the resolved XDG base directories a build needs.
type Dirs struct {
	ConfigDir  string
	StateDir   string
	RuntimeDir string
	HomeDir    string
}

// Build loads config.toml under dirs.ConfigDir and wires a complete
// watch.Deps from it: a gitcli backend rooted at dirs.HomeDir, the path
// oracle, the secrets manager (with an age envelope when enabled), the
// lock manager and generation log under dirs.StateDir.
func Build(dirs Dirs) (watch.Deps, error) {
	cfg, err := config.Load(dirs.ConfigDir)
	if err != nil {
		return watch.Deps{}, err
	}

	oracle, err := pathoracle.New(cfg.Manage, cfg.Ignore, config.DefaultDenyPatterns(), statDirFunc(dirs.HomeDir))
	if err != nil {
		return watch.Deps{}, err
	}

	var allowlist *pathoracle.SimpleMatcher
	if len(cfg.Watch.AutoAddAllow) > 0 {
		allowlist, err = pathoracle.NewSimpleMatcher(cfg.Watch.AutoAddAllow)
		if err != nil {
			return watch.Deps{}, err
		}
	} else {
		allowlist, err = pathoracle.NewSimpleMatcher(nil)
		if err != nil {
			return watch.Deps{}, err
		}
	}

	var secretsMgr *secrets.Manager
	if cfg.Secrets.Enabled {
		envelope, err := ageenv.New(cfg.Secrets.Recipients, cfg.Secrets.IdentityFiles)
		if err != nil {
			return watch.Deps{}, err
		}
		secretsMgr = secrets.New(cfg.Secrets, envelope)
	} else {
		secretsMgr = secrets.New(cfg.Secrets, nil)
	}

	gitDir := cfg.Repository.GitDir
	if gitDir == "" {
		gitDir = filepath.Join(dirs.StateDir, "repo.git")
	}
	workTree := cfg.Repository.WorkTree
	if workTree == "" {
		workTree = dirs.HomeDir
	}
	backend := &gitcli.Backend{GitDir: gitDir, WorkTree: workTree}

	return watch.Deps{
		Config:      cfg,
		HomeDir:     dirs.HomeDir,
		StateDir:    dirs.StateDir,
		WatchRoots:  watchRoots(dirs.HomeDir, cfg.Manage),
		Oracle:      oracle,
		Secrets:     secretsMgr,
		Backend:     backend,
		Locks:       lock.New(dirs.StateDir),
		Generations: generation.Open(filepath.Join(dirs.StateDir, generation.FileName)),
		Allowlist:   allowlist,
	}, nil
}

// watchRoots resolves each manage pattern's literal directory prefix (the
// part before any glob metacharacter) to a concrete path the filesystem
// watcher can register. A pattern with no literal directory component
// (e.g. a bare top-level glob) falls back to watching the whole home
// directory.
func watchRoots(homeDir string, patterns []string) []string {
	seen := make(map[string]struct{})
	var roots []string
	for _, p := range patterns {
		root := literalPrefix(p)
		abs := filepath.Join(homeDir, root)
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		roots = append(roots, abs)
	}
	if len(roots) == 0 {
		roots = []string{homeDir}
	}
	return roots
}

func literalPrefix(pattern string) string {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*', '?', '[', '{':
			dir := filepath.Dir(pattern[:i])
			if dir == "." {
				return ""
			}
			return dir
		}
	}
	return filepath.Dir(pattern)
}

func statDirFunc(homeDir string) pathoracle.StatDirFunc {
	return func(pattern string) bool {
		info, err := os.Stat(filepath.Join(homeDir, pattern))
		return err == nil && info.IsDir()
	}
}
