// Package timestamp provides the microsecond-resolution time value used
// throughout mcf in place of wall-clock types. Components and the timing
// controller never compare against time.Time directly — every ordering
// decision goes through Timestamp so that virtual (replay) and real time
// are interchangeable.
package timestamp

import "time"

// Timestamp is a signed count of microseconds since the Unix epoch.
// Negative and zero values are valid; Zero is the sentinel "unset" value.
type Timestamp int64

// Zero is the unset timestamp, distinct from any time actually observed.
const Zero Timestamp = 0

// Now returns the current host time as a Timestamp.
func Now() Timestamp {
	return FromTime(time.Now())
}

// FromTime converts a time.Time to a Timestamp, truncating to microseconds.
func FromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixMicro())
}

// Time converts a Timestamp back to a time.Time in UTC.
func (t Timestamp) Time() time.Time {
	return time.UnixMicro(int64(t)).UTC()
}

// Add returns t advanced by d.
func (t Timestamp) Add(d time.Duration) Timestamp {
	return t + Timestamp(d.Microseconds())
}

// Sub returns the duration between t and u (t - u).
func (t Timestamp) Sub(u Timestamp) time.Duration {
	return time.Duration(int64(t)-int64(u)) * time.Microsecond
}

// Before reports whether t is strictly earlier than u.
func (t Timestamp) Before(u Timestamp) bool { return t < u }

// After reports whether t is strictly later than u.
func (t Timestamp) After(u Timestamp) bool { return t > u }

// IsZero reports whether t is the unset sentinel value.
func (t Timestamp) IsZero() bool { return t == Zero }

// String renders t as RFC3339 with microsecond precision, for logging.
func (t Timestamp) String() string {
	return t.Time().Format("2006-01-02T15:04:05.000000Z07:00")
}
