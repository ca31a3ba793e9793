// Package coarsetime trades precision for speed: Now returns a cached
// timestamp refreshed every 50ms by a background goroutine instead of
// making a syscall per call. Good enough for idle-time bookkeeping on
// hot paths.
package coarsetime

import (
	"sync/atomic"
	"time"
)

const resolution = 50 * time.Millisecond

var current atomic.Pointer[time.Time]

func init() {
	update()
	go func() {
		for range time.Tick(resolution) {
			update()
		}
	}()
}

func update() {
	now := time.Now()
	current.Store(&now)
}

// Now returns the cached wall clock time, at most one resolution stale.
func Now() time.Time {
	return *current.Load()
}
