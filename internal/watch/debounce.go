package watch

import (
	"sort"
	"time"
)

// debounce coalesces repeated pushes of the same value within a trailing
// window: each push resets the window, and the queue only becomes due once
// it has been quiet for the full window. Backs the managed-stage and
// secret-plaintext queues in the daemon's main loop; the auto-add set is a
// plain map.
type debounce[T comparable] struct {
	window    time.Duration
	lastEvent time.Time
	hasEvent  bool
	pending   map[T]struct{}
}

func newDebounce[T comparable](window time.Duration) *debounce[T] {
	return &debounce[T]{
		window:  window,
		pending: make(map[T]struct{}),
	}
}

// push records value as pending and refreshes the quiet-window clock.
func (d *debounce[T]) push(value T, now time.Time) {
	d.lastEvent = now
	d.hasEvent = true
	d.pending[value] = struct{}{}
}

// isDue reports whether the queue has been quiet for at least window since
// the last push. A queue that has never been pushed to is never due.
func (d *debounce[T]) isDue(now time.Time) bool {
	if !d.hasEvent {
		return false
	}
	return now.Sub(d.lastEvent) >= d.window
}

// isEmpty reports whether there are no pending values.
func (d *debounce[T]) isEmpty() bool {
	return len(d.pending) == 0
}

// drain returns the pending values and resets the queue to idle.
func (d *debounce[T]) drain(less func(a, b T) bool) []T {
	items := make([]T, 0, len(d.pending))
	for v := range d.pending {
		items = append(items, v)
	}
	sort.Slice(items, func(i, j int) bool { return less(items[i], items[j]) })

	d.pending = make(map[T]struct{})
	d.hasEvent = false

	return items
}

func lessString(a, b string) bool { return a < b }
