package monitor

import (
	"fmt"
	"time"
)

// FormatAge formats the time since t as "just now", "Xm ago" or "Xh Ym ago".
func FormatAge(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	d := now.Sub(*t)
	if d < time.Minute {
		return "just now"
	}
	return FormatDuration(int64(d.Seconds())) + " ago"
}

// FormatInterval formats a sync interval in minutes.
func FormatInterval(minutes int) string {
	return "every " + FormatDuration(int64(minutes)*60)
}

// FormatRatio formats pending/total as "N of M".
func FormatRatio(pending, total int) string {
	return fmt.Sprintf("%d of %d", pending, total)
}

// FormatDuration formats duration in seconds to "Xh Ym" or "Xm"
func FormatDuration(seconds int64) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
