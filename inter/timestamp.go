package inter

import (
	"time"
)

// Timestamp is a UNIX timestamp in nanoseconds. It is stored as a plain
// uint64 so that it serializes compactly and compares without conversions.
type Timestamp uint64

// FromUnix converts a time.Time into a Timestamp, truncating to nanoseconds.
func FromUnix(t time.Time) Timestamp {
	return Timestamp(t.UnixNano())
}

// Time converts the Timestamp back into a time.Time.
func (t Timestamp) Time() time.Time {
	return time.Unix(0, int64(t))
}

// Unix returns the timestamp in whole seconds.
func (t Timestamp) Unix() uint64 {
	return uint64(t) / uint64(time.Second)
}

// MaxTimestamp returns the later of two timestamps.
func MaxTimestamp(x, y Timestamp) Timestamp {
	if x > y {
		return x
	}
	return y
}
