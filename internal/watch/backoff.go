package watch

import "time"

const (
	backoffInitial = 200 * time.Millisecond
	backoffCeiling = 10 * time.Second
)

// backoff is a multiplicative retry timer: each failure doubles the delay
// before the next attempt is allowed, up to a ceiling, and any success
// resets it to the initial delay. Used when a flush fails to acquire the
// repository lock or a backend operation errors, so the daemon doesn't
// spin tightly against contention.
type backoff struct {
	current time.Duration
	until   time.Time
	blocked bool
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// ready reports whether a retry is currently allowed.
func (b *backoff) ready(now time.Time) bool {
	return !b.blocked || !now.Before(b.until)
}

// fail blocks retries until now plus the current delay, then doubles the
// delay (capped at backoffCeiling) for the next failure.
func (b *backoff) fail(now time.Time) {
	b.until = now.Add(b.current)
	b.blocked = true
	b.current *= 2
	if b.current > backoffCeiling {
		b.current = backoffCeiling
	}
}

func (b *backoff) reset() {
	b.current = backoffInitial
	b.blocked = false
}
