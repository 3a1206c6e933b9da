package util

import (
	"time"

	"github.com/davidscholberg/go-durationfmt"
)

// FmtDur renders d as a human-readable "N days, N hours N minutes N seconds"
// string, rounded to the nearest second, for end-of-run summary logging.
func FmtDur(d time.Duration) string {
	d = d.Round(time.Second)

	str, err := durationfmt.Format(d, "%d days, %h hours %m minutes %s seconds")
	if err != nil {
		return "?"
	}

	return str
}

// Ptr converts a value of type [T] to a pointer of type [*T].
func Ptr[T any](v T) *T {
	return &v
}
