// Package revisiontest is an in-memory revision.Backend used by every other
// package's tests: no subprocess, no disk I/O, deterministic history.
package revisiontest

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hometree/hometree/internal/herror"
	"github.com/hometree/hometree/internal/revision"
)

// Entry is one path's content in a commit's tree.
type Entry struct {
	Mode          revision.Mode
	Bytes         []byte // for ModeRegular / ModeExecutable
	SymlinkTarget string // for ModeSymlink
}

type commit struct {
	id   string
	tree map[string]Entry
}

// Backend is the in-memory stub.
type Backend struct {
	commits []commit
	staged  map[string]bool
	message string
}

var _ revision.Backend = (*Backend)(nil)

// New returns an empty Backend with no commits.
func New() *Backend {
	return &Backend{staged: map[string]bool{}}
}

// Snapshot appends a new commit with the given id (used literally, "HEAD"
// always refers to the most recent one) and tree snapshot.
func (b *Backend) Snapshot(id string, tree map[string]Entry) {
	b.commits = append(b.commits, commit{id: id, tree: tree})
}

func (b *Backend) InitBare(ctx context.Context) error {
	return nil
}

var headTildeRe = regexp.MustCompile(`^HEAD~(\d+)$`)

func (b *Backend) Resolve(ctx context.Context, ref string) (string, error) {
	if len(b.commits) == 0 {
		return "", herror.New(herror.Backend, "no commits in repository")
	}

	if ref == "HEAD" {
		return b.commits[len(b.commits)-1].id, nil
	}

	if m := headTildeRe.FindStringSubmatch(ref); m != nil {
		n, _ := strconv.Atoi(m[1])
		idx := len(b.commits) - 1 - n
		if idx < 0 {
			return "", herror.New(herror.Backend, fmt.Sprintf("revision %q is before the first commit", ref))
		}
		return b.commits[idx].id, nil
	}

	for _, c := range b.commits {
		if c.id == ref {
			return c.id, nil
		}
	}

	return "", herror.New(herror.NotFound, fmt.Sprintf("revision %q not found", ref))
}

func (b *Backend) findCommit(id string) (*commit, error) {
	for i := range b.commits {
		if b.commits[i].id == id {
			return &b.commits[i], nil
		}
	}
	return nil, herror.New(herror.NotFound, fmt.Sprintf("revision %q not found", id))
}

func (b *Backend) ListTree(ctx context.Context, rev string) ([]revision.TreeEntry, error) {
	c, err := b.findCommit(rev)
	if err != nil {
		return nil, err
	}

	var entries []revision.TreeEntry
	for path, e := range c.tree {
		entries = append(entries, revision.TreeEntry{Mode: e.Mode, Path: path})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (b *Backend) ReadBlob(ctx context.Context, rev, path string) ([]byte, error) {
	c, err := b.findCommit(rev)
	if err != nil {
		return nil, err
	}
	e, ok := c.tree[path]
	if !ok {
		return nil, herror.New(herror.NotFound, fmt.Sprintf("path %q not found in %q", path, rev))
	}
	if e.Mode == revision.ModeSymlink {
		return []byte(e.SymlinkTarget), nil
	}
	return e.Bytes, nil
}

func (b *Backend) StageTrackedOnly(ctx context.Context) error {
	return nil
}

func (b *Backend) StagePaths(ctx context.Context, paths []string) error {
	for _, p := range paths {
		b.staged[p] = true
	}
	return nil
}

// Staged returns the set of paths staged since the backend was created or
// last committed, for test assertions.
func (b *Backend) Staged() []string {
	var out []string
	for p := range b.staged {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (b *Backend) Commit(ctx context.Context, message string) error {
	b.message = message
	b.staged = map[string]bool{}
	return nil
}

func (b *Backend) Remotes(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (b *Backend) Push(ctx context.Context, remote string) error {
	return nil
}

func (b *Backend) Pull(ctx context.Context, remote string) error {
	return nil
}

func (b *Backend) StatusPorcelain(ctx context.Context) (string, error) {
	var b2 strings.Builder
	for p := range b.staged {
		b2.WriteString("1 M. N... 100644 100644 100644 0000000000000000000000000000000000000000 0000000000000000000000000000000000000000 ")
		b2.WriteString(p)
		b2.WriteByte('\n')
	}
	return b2.String(), nil
}

func (b *Backend) PurgePath(ctx context.Context, path string) error {
	for i := range b.commits {
		delete(b.commits[i].tree, path)
	}
	return nil
}

func (b *Backend) RemoveCached(ctx context.Context, path string) error {
	delete(b.staged, path)
	return nil
}
