// Package clock abstracts wall-clock access so time-dependent components
// can be tested deterministically.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// System is a Clock backed by the real wall clock.
type System struct{}

// NewSystem returns the real clock.
func NewSystem() System { return System{} }

// Now returns the current time.
func (System) Now() time.Time { return time.Now() }

// Fixed is a Clock pinned to a single instant, for tests.
type Fixed struct {
	T time.Time
}

// Now returns the pinned instant.
func (f Fixed) Now() time.Time { return f.T }
