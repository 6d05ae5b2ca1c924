package service

import "time"

// Clock supplies the current time to the engine
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC, truncated to the microsecond
// precision Postgres stores.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
