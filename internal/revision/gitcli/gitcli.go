// Package gitcli implements revision.Backend by spawning the git binary:
// build an argument list, run it, wrap non-zero exits into a single
// taxonomy error, and never parse stderr for structured information.
package gitcli

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/safedep/dry/log"

	"github.com/hometree/hometree/internal/herror"
	"github.com/hometree/hometree/internal/revision"
)

// Backend spawns git against a bare repository and work tree.
type Backend struct {
	// GitDir is the bare object store (GIT_DIR).
	GitDir string
	// WorkTree is the work tree root (GIT_WORK_TREE); for hometree this
	// is the user's home directory.
	WorkTree string
	// Exe overrides the git binary name, primarily for tests.
	Exe string
}

var _ revision.Backend = (*Backend)(nil)

func (b *Backend) exe() string {
	if b.Exe != "" {
		return b.Exe
	}
	return "git"
}

func (b *Backend) run(ctx context.Context, args ...string) ([]byte, error) {
	fullArgs := append([]string{"--git-dir=" + b.GitDir, "--work-tree=" + b.WorkTree}, args...)

	log.Debugf("gitcli: running git %s", strings.Join(fullArgs, " "))

	cmd := exec.CommandContext(ctx, b.exe(), fullArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, herror.Wrap(herror.Backend, err,
			fmt.Sprintf("git %s failed: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String())))
	}

	return stdout.Bytes(), nil
}

func (b *Backend) InitBare(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, b.exe(), "init", "--bare", b.GitDir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return herror.Wrap(herror.Backend, err, "git init --bare failed: "+strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (b *Backend) Resolve(ctx context.Context, ref string) (string, error) {
	out, err := b.run(ctx, "rev-parse", "--verify", ref)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (b *Backend) ListTree(ctx context.Context, rev string) ([]revision.TreeEntry, error) {
	out, err := b.run(ctx, "ls-tree", "-r", "-z", rev)
	if err != nil {
		return nil, err
	}

	var entries []revision.TreeEntry
	for _, line := range strings.Split(strings.TrimRight(string(out), "\x00"), "\x00") {
		if line == "" {
			continue
		}
		entry, ok := parseLsTreeLine(line)
		if ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// parseLsTreeLine parses one "<mode> <type> <sha>\t<path>" line as emitted
// by "git ls-tree -r -z".
func parseLsTreeLine(line string) (revision.TreeEntry, bool) {
	tab := strings.IndexByte(line, '\t')
	if tab < 0 {
		return revision.TreeEntry{}, false
	}
	meta := strings.Fields(line[:tab])
	if len(meta) < 1 {
		return revision.TreeEntry{}, false
	}
	return revision.TreeEntry{Mode: revision.Mode(meta[0]), Path: line[tab+1:]}, true
}

func (b *Backend) ReadBlob(ctx context.Context, rev, path string) ([]byte, error) {
	return b.run(ctx, "cat-file", "blob", rev+":"+path)
}

func (b *Backend) StageTrackedOnly(ctx context.Context) error {
	_, err := b.run(ctx, "add", "--update")
	return err
}

func (b *Backend) StagePaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--"}, paths...)
	_, err := b.run(ctx, args...)
	return err
}

func (b *Backend) Commit(ctx context.Context, message string) error {
	_, err := b.run(ctx, "commit", "--allow-empty", "-m", message)
	return err
}

func (b *Backend) Remotes(ctx context.Context) ([]string, error) {
	out, err := b.run(ctx, "remote")
	if err != nil {
		return nil, err
	}
	var remotes []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			remotes = append(remotes, line)
		}
	}
	return remotes, nil
}

func (b *Backend) Push(ctx context.Context, remote string) error {
	_, err := b.run(ctx, "push", remote)
	return err
}

func (b *Backend) Pull(ctx context.Context, remote string) error {
	_, err := b.run(ctx, "pull", remote)
	return err
}

func (b *Backend) StatusPorcelain(ctx context.Context) (string, error) {
	out, err := b.run(ctx, "status", "--porcelain=v2")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (b *Backend) PurgePath(ctx context.Context, path string) error {
	_, err := b.run(ctx, "filter-branch", "--force", "--index-filter",
		"git rm --cached --ignore-unmatch "+strconv.Quote(path), "--prune-empty", "--", "--all")
	return err
}

func (b *Backend) RemoveCached(ctx context.Context, path string) error {
	_, err := b.run(ctx, "rm", "--cached", "--", path)
	return err
}
