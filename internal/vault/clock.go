package vault

import "time"

// Clock supplies the logical time for vault operations. Each mutating
// operation samples the clock exactly once on entry and treats the
// value as a constant for the rest of the call.
type Clock interface {
	// Now returns the current logical time in seconds.
	Now() uint64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current Unix time in seconds.
func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}
