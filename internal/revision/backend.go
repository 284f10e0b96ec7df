// Package revision abstracts the operations the core needs from a bare
// revision-control repository. The exact wire semantics are delegated to
// an implementation; the core only relies on this capability set and
// never inspects an implementation's stderr.
package revision

import "context"

// Mode is a tree entry's file mode, as reported by the backend.
type Mode string

const (
	ModeRegular    Mode = "100644"
	ModeExecutable Mode = "100755"
	ModeSymlink    Mode = "120000"
)

// TreeEntry is one (mode, path) pair from a recursive tree listing.
// Entries whose Mode is none of the three above (submodules, etc.) are not
// of interest to the core and should be filtered out by callers.
type TreeEntry struct {
	Mode Mode
	Path string
}

// Backend is the capability set the deploy/plan/verify engines and the
// watch daemon consume. Two implementations are expected at minimum: a
// process-spawning one over an external tool (gitcli) and an in-memory
// stub for tests (revisiontest).
type Backend interface {
	// InitBare initializes a new bare repository at the backend's
	// configured location.
	InitBare(ctx context.Context) error

	// Resolve turns a revision name (a branch, tag, or symbolic ref like
	// "HEAD~1") into a canonical, backend-specific revision id.
	Resolve(ctx context.Context, ref string) (string, error)

	// ListTree recursively lists every entry in rev.
	ListTree(ctx context.Context, rev string) ([]TreeEntry, error)

	// ReadBlob reads the bytes of path as it exists in rev.
	ReadBlob(ctx context.Context, rev, path string) ([]byte, error)

	// StageTrackedOnly stages changes to paths the backend already
	// tracks, without adding any new path.
	StageTrackedOnly(ctx context.Context) error

	// StagePaths stages exactly the given paths, tracked or not.
	StagePaths(ctx context.Context, paths []string) error

	// Commit commits the currently staged changes.
	Commit(ctx context.Context, message string) error

	// Remotes lists configured remote names.
	Remotes(ctx context.Context) ([]string, error)

	// Push pushes the current branch to remote.
	Push(ctx context.Context, remote string) error

	// Pull fetches and integrates remote's current branch.
	Pull(ctx context.Context, remote string) error

	// StatusPorcelain returns a porcelain-v2-shaped status report, used by
	// the guard check that refuses to stage a plaintext secret.
	StatusPorcelain(ctx context.Context) (string, error)

	// PurgePath removes path from the entire history of the repository.
	PurgePath(ctx context.Context, path string) error

	// RemoveCached removes path from the index without touching the work
	// tree (used to undo an accidental stage of a plaintext secret).
	RemoveCached(ctx context.Context, path string) error
}
