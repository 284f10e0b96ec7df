package lock

import "time"

// defaultRetryInterval is how often Acquire polls for the lock while
// blocking, mirroring flock's own TryLockContext contract (it has no
// native blocking primitive on all platforms).
const defaultRetryInterval = 25 * time.Millisecond
