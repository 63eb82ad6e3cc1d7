package supervisor

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultWatchdogInterval is how often the watchdog compares the last
// chunk time against the stall timeout.
const DefaultWatchdogInterval = time.Second

// Watchdog detects a stream that stays open but stops delivering bytes.
type Watchdog struct {
	timeout  time.Duration
	interval time.Duration

	last atomic.Int64 // unix nanos of the most recent chunk
	done atomic.Bool  // set by Stop or by the stall, whichever is first
}

// NewWatchdog creates a watchdog armed from now.
func NewWatchdog(timeout, interval time.Duration) *Watchdog {
	if interval <= 0 {
		interval = DefaultWatchdogInterval
	}
	w := &Watchdog{timeout: timeout, interval: interval}
	w.Touch()
	return w
}

// Touch records that a chunk arrived.
func (w *Watchdog) Touch() {
	w.last.Store(time.Now().UnixNano())
}

// Idle returns the time since the last chunk.
func (w *Watchdog) Idle() time.Duration {
	return time.Since(time.Unix(0, w.last.Load()))
}

// Stalled reports whether the idle time exceeds the timeout.
func (w *Watchdog) Stalled() bool {
	return w.Idle() > w.timeout
}

// Stop disarms the watchdog. Returns false if a stall was already reported.
func (w *Watchdog) Stop() bool {
	return w.done.CompareAndSwap(false, true)
}

// Run polls until ctx is cancelled, Stop is called or a stall is seen.
// onStall is called at most once and never after Stop. The caller cancels
// ctx when the session ends on any path.
func (w *Watchdog) Run(ctx context.Context, onStall func(idle time.Duration)) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.done.Load() {
				return
			}
			if idle := w.Idle(); idle > w.timeout {
				if w.done.CompareAndSwap(false, true) {
					onStall(idle)
				}
				return
			}
		}
	}
}
