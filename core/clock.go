package core

import "time"

// Timer is a stoppable scheduled callback
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the stop
	// happened before the callback ran.
	Stop() bool
}

// Clock abstracts wall-clock time and timer scheduling so expiration
// behavior is testable against a simulated clock. Production uses
// SystemClock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// SystemClock returns the wall clock backed by the time package
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
