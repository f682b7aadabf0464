// Package playtime accumulates the time a player has spent in a game
// across checkpoints and restores.
package playtime

import (
	"fmt"
	"sync"
	"time"
)

// Clock returns the current time. time.Now carries a monotonic reading, so
// deltas are immune to wall-clock jumps.
type Clock func() time.Time

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the time source, for tests.
func WithClock(c Clock) Option {
	return func(t *Tracker) { t.now = c }
}

// Tracker measures playtime for one session.
type Tracker struct {
	mu      sync.Mutex
	now     Clock
	prior   time.Duration
	started time.Time
	running bool
	last    time.Duration
}

// New returns a tracker seeded with playtime carried over from a checkpoint.
func New(prior time.Duration, opts ...Option) *Tracker {
	if prior < 0 {
		prior = 0
	}
	t := &Tracker{now: time.Now, prior: prior}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins measuring. Calling Start on a running tracker is a no-op.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.started = t.now()
	t.running = true
}

// Stop freezes the tracker, folding the elapsed time into the prior.
func (t *Tracker) Stop() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.prior += t.elapsedLocked()
		t.running = false
	}
	t.last = t.prior
	return t.prior
}

// Prior returns the playtime carried in at creation plus stopped intervals.
func (t *Tracker) Prior() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prior
}

// Elapsed returns the time since Start, or zero when not running.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsedLocked()
}

// Total returns prior + elapsed, never smaller than a previous Total.
func (t *Tracker) Total() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := t.prior + t.elapsedLocked()
	if total < t.last {
		total = t.last
	}
	t.last = total
	return total
}

func (t *Tracker) elapsedLocked() time.Duration {
	if !t.running {
		return 0
	}
	d := t.now().Sub(t.started)
	if d < 0 {
		return 0
	}
	return d
}

// Format renders d as H:MM:SS.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}
