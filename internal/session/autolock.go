package session

import (
	"context"
	"sync"
	"time"
)

// AutoLockTimer is the inactivity watchdog. Any recorded activity resets its
// window; once the window elapses it reports expiry, either by poll
// (Expired) or by pushing an event onto its channel from Watch. The timeout
// can change at runtime; the next check uses the new value.
type AutoLockTimer struct {
	clock Clock

	mu      sync.Mutex
	timeout time.Duration
	last    time.Time

	fired chan struct{}
}

// NewAutoLockTimer creates a watchdog with the given inactivity window.
// A zero timeout disables it.
func NewAutoLockTimer(clock Clock, timeout time.Duration) *AutoLockTimer {
	return &AutoLockTimer{
		clock:   clock,
		timeout: timeout,
		last:    clock.Now(),
		fired:   make(chan struct{}, 1),
	}
}

// Touch records activity, resetting the inactivity window.
func (t *AutoLockTimer) Touch() {
	t.mu.Lock()
	t.last = t.clock.Now()
	t.mu.Unlock()
}

// SetTimeout changes the window; zero disables auto-lock.
func (t *AutoLockTimer) SetTimeout(d time.Duration) {
	t.mu.Lock()
	t.timeout = d
	t.mu.Unlock()
}

// Timeout returns the current window.
func (t *AutoLockTimer) Timeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout
}

// Expired reports whether the inactivity window has fully elapsed.
func (t *AutoLockTimer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout > 0 && t.clock.Now().Sub(t.last) >= t.timeout
}

// Events is the ordered channel expiry events are delivered on. At most one
// event is pending at a time.
func (t *AutoLockTimer) Events() <-chan struct{} {
	return t.fired
}

// Watch polls for expiry every interval until ctx is cancelled. The consumer
// decides whether an event still applies; activity that arrives after an
// event was queued simply makes it a no-op.
func (t *AutoLockTimer) Watch(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if t.Expired() {
				select {
				case t.fired <- struct{}{}:
				default:
				}
			}
		}
	}
}
