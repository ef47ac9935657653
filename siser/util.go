package siser

import "time"

// TimeToUnixMillisecond converts t into Unix epoch time in milliseconds.
// Seconds are not precise enough and nanoseconds are too much.
func TimeToUnixMillisecond(t time.Time) int64 {
	return t.UnixNano() / 1e6
}

// TimeFromUnixMillisecond returns time from Unix epoch time in milliseconds.
func TimeFromUnixMillisecond(unixMs int64) time.Time {
	return time.Unix(0, unixMs*1e6)
}
