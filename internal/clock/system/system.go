// Package system provides the wall clock used for archive names and fallback timestamps.
package system

import "time"

// Clock implements airquality.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to whole seconds, the finest
// resolution used by archive object names and observation timestamps.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
