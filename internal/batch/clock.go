package batch

import "time"

// Clock abstracts timer creation for deterministic tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the stoppable handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

// RealClock delegates to the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
