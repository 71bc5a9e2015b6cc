package model

import "time"

// Clock is an injectable time source. Tests inject a fixed or steppable
// clock; production uses SystemClock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
