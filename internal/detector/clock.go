package detector

import "time"

// Timer is a pending callback armed by a [Clock].
type Timer interface {
	// Stop cancels the callback. It reports false when the callback already
	// ran or was stopped.
	Stop() bool
}

// Clock arms silence timers. Tests substitute a manually advanced clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock is the wall clock backed by [time.AfterFunc].
type SystemClock struct{}

// AfterFunc implements [Clock].
func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
