package session

import "time"

// Clock abstracts wall time so the auto-lock watchdog and the two-factor
// window can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the real-time clock used outside tests.
func SystemClock() Clock { return systemClock{} }
