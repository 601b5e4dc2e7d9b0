package license

import "time"

// Clock supplies the current time. The service takes a Clock so tests can
// pin "now"; production code uses SystemClock.
type Clock interface {
	Now() time.Time
}

// SystemClock returns wall-clock time normalized to UTC
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// fixedClock is a test clock pinned to one instant
type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time {
	return c.t
}

// EnsureUTC normalizes a timestamp to UTC; nil passes through
func EnsureUTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// RemainingDays returns the whole days between now and expireAt, floored at
// zero. Nil when the license never expires.
func RemainingDays(expireAt *time.Time, now time.Time) *int {
	if expireAt == nil {
		return nil
	}
	days := 0
	if d := expireAt.UTC().Sub(now); d > 0 {
		days = int(d / (24 * time.Hour))
	}
	return &days
}
