// Package watch implements the background staging daemon: a filesystem
// watcher, a debounced event queue, and a single-threaded main loop that
// periodically flushes pending changes into the revision backend under the
// cross-process lock.
package watch

import (
	"context"
	"time"

	"github.com/safedep/dry/log"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/generation"
	"github.com/hometree/hometree/internal/herror"
	"github.com/hometree/hometree/internal/inhibit"
	"github.com/hometree/hometree/internal/lock"
	"github.com/hometree/hometree/internal/pathoracle"
	"github.com/hometree/hometree/internal/revision"
	"github.com/hometree/hometree/internal/secrets"
)

// Deps are the daemon's wired dependencies, assembled once at startup and
// rebuilt wholesale on a config reload.
type Deps struct {
	Config      config.Config
	HomeDir     string
	StateDir    string
	WatchRoots  []string
	Oracle      *pathoracle.Oracle
	Secrets     *secrets.Manager
	Backend     revision.Backend
	Locks       *lock.Manager
	Generations *generation.Log
	Allowlist   *pathoracle.SimpleMatcher
}

type controlKind int

const (
	ctrlPause controlKind = iota
	ctrlResume
	ctrlFlush
	ctrlReload
	ctrlShutdown
	ctrlStatus
)

type controlMsg struct {
	kind     controlKind
	ttl      time.Duration
	reason   string
	errCh    chan error
	statusCh chan Status
}

const tickInterval = 50 * time.Millisecond
const inhibitPollInterval = time.Second

// Daemon is the watch loop's state machine. All mutable state below is
// touched only by the goroutine running Run; other goroutines communicate
// with it exclusively through control and the statusBoard.
type Daemon struct {
	deps Deps

	board   *statusBoard
	control chan controlMsg

	managedQ *debounce[string]
	secretQ  *debounce[string]
	autoAdd  map[string]struct{}
	tracked  map[string]struct{}

	bo *backoff

	paused      bool
	pauseUntil  time.Time
	pauseReason string

	forceFlush bool

	reloadFunc func() (Deps, error)
}

// New constructs a Daemon ready to Run. reloadFunc rebuilds Deps from
// on-disk configuration and is invoked on a Reload control message; it may
// be nil if reload is not supported by the caller (Reload then reports an
// error).
func New(deps Deps, reloadFunc func() (Deps, error)) *Daemon {
	window := time.Duration(deps.Config.Watch.DebounceMs) * time.Millisecond

	d := &Daemon{
		deps:       deps,
		board:      newStatusBoard(),
		control:    make(chan controlMsg, 8),
		managedQ:   newDebounce[string](window),
		secretQ:    newDebounce[string](window),
		autoAdd:    make(map[string]struct{}),
		tracked:    make(map[string]struct{}),
		bo:         newBackoff(),
		reloadFunc: reloadFunc,
	}
	d.board.update(func(s *Status) { s.WatchRootCount = len(deps.WatchRoots) })
	return d
}

func (d *Daemon) loadTracked(ctx context.Context) {
	head, err := d.deps.Backend.Resolve(ctx, "HEAD")
	if err != nil {
		log.Debugf("watch: repository has no HEAD yet: %v", err)
		return
	}
	entries, err := d.deps.Backend.ListTree(ctx, head)
	if err != nil {
		log.Debugf("watch: failed to list tracked tree: %v", err)
		return
	}
	tracked := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		tracked[e.Path] = struct{}{}
	}
	d.tracked = tracked
}

func (d *Daemon) isTracked(path string) bool {
	_, ok := d.tracked[path]
	return ok
}

// Run drives the main loop until ctx is canceled or a Shutdown control
// message is handled. It owns the filesystem watcher goroutine it starts
// and closes it before returning.
func (d *Daemon) Run(ctx context.Context) error {
	d.loadTracked(ctx)

	fw, err := newFSWatcher(d.deps.WatchRoots)
	if err != nil {
		return err
	}
	defer fw.close()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	lastInhibitCheck := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg := <-d.control:
			shutdown := d.handleControl(ctx, msg)
			if shutdown {
				return nil
			}

		case abs, ok := <-fw.events:
			if !ok {
				continue
			}
			d.handleEvent(abs)

		case err := <-fw.errs:
			d.recordError(err)

		case now := <-ticker.C:
			if d.paused && !d.pauseUntil.IsZero() && !now.Before(d.pauseUntil) {
				d.paused = false
				d.pauseReason = ""
				d.board.update(func(s *Status) { s.Paused = false; s.PauseReason = "" })
			}

			if now.Sub(lastInhibitCheck) >= inhibitPollInterval {
				d.pollInhibit(now)
				lastInhibitCheck = now
			}

			d.board.update(func(s *Status) {
				s.ManagedQueue = len(d.managedQ.pending)
				s.SecretQueue = len(d.secretQ.pending)
				s.AutoAddQueue = len(d.autoAdd)
			})

			d.maybeFlush(ctx, now)
		}
	}
}

// handleControl applies one control message and reports whether the
// daemon should shut down.
func (d *Daemon) handleControl(ctx context.Context, msg controlMsg) bool {
	switch msg.kind {
	case ctrlPause:
		d.paused = true
		d.pauseReason = msg.reason
		if msg.ttl > 0 {
			d.pauseUntil = time.Now().Add(msg.ttl)
		} else {
			d.pauseUntil = time.Time{}
		}
		d.managedQ.drain(lessString)
		d.secretQ.drain(lessString)
		d.autoAdd = make(map[string]struct{})
		d.board.update(func(s *Status) { s.Paused = true; s.PauseReason = msg.reason })
		respond(msg.errCh, nil)

	case ctrlResume:
		d.paused = false
		d.pauseReason = ""
		d.pauseUntil = time.Time{}
		d.board.update(func(s *Status) { s.Paused = false; s.PauseReason = "" })
		respond(msg.errCh, nil)

	case ctrlFlush:
		d.forceFlush = true
		respond(msg.errCh, nil)

	case ctrlReload:
		respond(msg.errCh, d.reload())

	case ctrlStatus:
		if msg.statusCh != nil {
			msg.statusCh <- d.board.snapshot()
		}

	case ctrlShutdown:
		respond(msg.errCh, nil)
		return true
	}
	return false
}

func (d *Daemon) reload() error {
	if d.reloadFunc == nil {
		return herror.New(herror.Configuration, "daemon does not support reload")
	}
	deps, err := d.reloadFunc()
	if err != nil {
		return err
	}
	d.deps = deps
	d.managedQ = newDebounce[string](time.Duration(deps.Config.Watch.DebounceMs) * time.Millisecond)
	d.secretQ = newDebounce[string](time.Duration(deps.Config.Watch.DebounceMs) * time.Millisecond)
	d.autoAdd = make(map[string]struct{})
	d.board.update(func(s *Status) { s.WatchRootCount = len(deps.WatchRoots) })
	return nil
}

func (d *Daemon) pollInhibit(now time.Time) {
	marker, active, err := inhibit.Active(d.deps.StateDir)
	if err != nil {
		log.Debugf("watch: failed to read inhibit marker: %v", err)
		return
	}
	if active {
		d.board.update(func(s *Status) { s.Inhibited = true; s.InhibitReason = marker.Reason })
		return
	}
	if !d.paused {
		d.board.update(func(s *Status) { s.Inhibited = false; s.InhibitReason = "" })
	}
}

func (d *Daemon) handleEvent(abs string) {
	rel, ok := relHome(d.deps.HomeDir, abs)
	if !ok {
		return
	}

	sidecarSuffix := ""
	if d.deps.Secrets != nil && d.deps.Secrets.Enabled() {
		sidecarSuffix = d.deps.Config.Secrets.SidecarSuffix
	}

	classified := Classify(rel, d.deps.Oracle, d.deps.Secrets, d.deps.Config.Watch,
		sidecarSuffix, d.deps.Allowlist, d.isTracked)

	now := time.Now()
	switch classified.Kind {
	case KindSecretPlaintext:
		d.secretQ.push(rel, now)
	case KindManaged:
		d.managedQ.push(rel, now)
		if classified.Managed.AutoAdd {
			if classified.Managed.IsAllowed && classified.Managed.MatchesAllowlist {
				d.autoAdd[rel] = struct{}{}
				d.forceFlush = true
			} else if !classified.Managed.IsAllowed {
				log.Debugf("watch: skipped auto-add, path is ignored or denied: %s", rel)
			} else {
				log.Debugf("watch: skipped auto-add, path does not match allowlist: %s", rel)
			}
		}
	}
}

func (d *Daemon) maybeFlush(ctx context.Context, now time.Time) {
	flushDue := d.forceFlush ||
		(d.managedQ.isDue(now) && !d.managedQ.isEmpty()) ||
		(d.secretQ.isDue(now) && !d.secretQ.isEmpty())
	if !flushDue {
		return
	}
	if !d.bo.ready(now) {
		return
	}

	d.forceFlush = false

	marker, inhibited, err := inhibit.Active(d.deps.StateDir)
	if err != nil {
		d.recordError(err)
	}
	if d.paused || inhibited {
		if inhibited {
			d.board.update(func(s *Status) { s.Inhibited = true; s.InhibitReason = marker.Reason })
		}
		d.managedQ.drain(lessString)
		d.secretQ.drain(lessString)
		d.autoAdd = make(map[string]struct{})
		return
	}

	if err := d.flush(ctx); err != nil {
		d.recordError(err)
		d.bo.fail(now)
		return
	}
	d.bo.reset()
	d.board.update(func(s *Status) { s.LastFlushUnix = time.Now().Unix() })
}

func (d *Daemon) recordError(err error) {
	log.Errorf("watch: %v", err)
	d.board.update(func(s *Status) {
		s.LastErrorUnix = time.Now().Unix()
		s.LastError = err.Error()
	})
}

func respond(ch chan error, err error) {
	if ch != nil {
		ch <- err
	}
}
