package crypto

import (
	"fmt"
	"time"
)

// TimestampLayout is second-granularity UTC.
const TimestampLayout = "2006-01-02T15:04:05Z"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimestampLayout)
}

func Now() string {
	return FormatTimestamp(time.Now())
}

func ParseTimestamp(ts string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", ts, err)
	}
	return t, nil
}

// IsFresh reports whether ts lies within tolerance of now, in either direction.
func IsFresh(ts string, now time.Time, tolerance time.Duration) bool {
	t, err := ParseTimestamp(ts)
	if err != nil {
		return false
	}
	d := now.Sub(t)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}
